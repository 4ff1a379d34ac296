package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"main/internal/fixed"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadResolvesDefaults(t *testing.T) {
	loaded, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis addr = %q", loaded.Redis.Addr)
	}
	if loaded.InputStream != DefaultInputStream || loaded.ReplyStream != DefaultReplyStream {
		t.Fatalf("streams = %q %q", loaded.InputStream, loaded.ReplyStream)
	}
	if loaded.Risk.MaintenanceThreshold != 0 {
		t.Fatalf("threshold should stay zero (engine default applies), got %v", loaded.Risk.MaintenanceThreshold)
	}
	if loaded.DispatchTimeout != 5*time.Second {
		t.Fatalf("dispatch timeout = %v", loaded.DispatchTimeout)
	}
	if loaded.ReadBackoff != time.Second {
		t.Fatalf("read backoff = %v", loaded.ReadBackoff)
	}
	if len(loaded.Feed.Markets) == 0 {
		t.Fatal("feed markets should have defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	loaded, err := Load(writeConfig(t, `{
		"redis": {"addr": "redis:6380", "db": 2},
		"streams": {"input": "engine-in", "reply": "engine-out"},
		"risk": {"maintenanceThreshold": "0.1"},
		"writeBack": {"queueCapacity": 500, "batchSize": 20, "flushIntervalMs": 250},
		"dispatch": {"timeoutMs": 1500},
		"consumer": {"readBackoffMs": 100},
		"assetDecimals": {"DOGE": 4}
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Redis.Addr != "redis:6380" || loaded.Redis.DB != 2 {
		t.Fatalf("redis = %+v", loaded.Redis)
	}
	if loaded.InputStream != "engine-in" || loaded.ReplyStream != "engine-out" {
		t.Fatalf("streams = %q %q", loaded.InputStream, loaded.ReplyStream)
	}
	if loaded.Risk.MaintenanceThreshold != fixed.ToFixed(0.1) {
		t.Fatalf("threshold = %v", loaded.Risk.MaintenanceThreshold)
	}
	if loaded.WriteBack.Capacity != 500 || loaded.WriteBack.BatchSize != 20 {
		t.Fatalf("write-back = %+v", loaded.WriteBack)
	}
	if loaded.WriteBack.FlushInterval != 250*time.Millisecond {
		t.Fatalf("flush interval = %v", loaded.WriteBack.FlushInterval)
	}
	if loaded.DispatchTimeout != 1500*time.Millisecond {
		t.Fatalf("dispatch timeout = %v", loaded.DispatchTimeout)
	}
	if loaded.ReadBackoff != 100*time.Millisecond {
		t.Fatalf("read backoff = %v", loaded.ReadBackoff)
	}
	if loaded.AssetDecimals["DOGE"] != 4 {
		t.Fatalf("asset decimals = %+v", loaded.AssetDecimals)
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	for _, doc := range []string{
		`{"risk": {"maintenanceThreshold": "abc"}}`,
		`{"risk": {"maintenanceThreshold": "-0.05"}}`,
		`{"risk": {"maintenanceThreshold": "1.5"}}`,
	} {
		if _, err := Load(writeConfig(t, doc)); err == nil {
			t.Fatalf("expected error for %s", doc)
		}
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	if _, err := Load(writeConfig(t, `{`)); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestDefaultMatchesEmptyFile(t *testing.T) {
	fromFile, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if def.InputStream != fromFile.InputStream || def.DispatchTimeout != fromFile.DispatchTimeout {
		t.Fatalf("Default() diverges from empty file: %+v vs %+v", def, fromFile)
	}
}
