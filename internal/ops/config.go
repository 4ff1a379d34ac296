// Package ops loads the JSON runtime configuration shared by the engine,
// the price feed and the operator tools.
package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/fixed"
	"main/internal/risk"
	"main/internal/writeback"
)

const (
	// DefaultInputStream is the engine request stream key.
	DefaultInputStream = "trading-engine"
	// DefaultReplyStream is the reply stream key.
	DefaultReplyStream = "callback-queue"

	defaultDispatchTimeout = 5 * time.Second
	defaultReadBackoff     = time.Second
)

// FileConfig mirrors the JSON config layout. Zero values fall back to
// defaults at load time.
type FileConfig struct {
	Redis     RedisConfig      `json:"redis"`
	Postgres  PostgresConfig   `json:"postgres"`
	Streams   StreamsConfig    `json:"streams"`
	Risk      RiskConfig       `json:"risk"`
	WriteBack WriteBackConfig  `json:"writeBack"`
	Dispatch  DispatchConfig   `json:"dispatch"`
	Consumer  ConsumerConfig   `json:"consumer"`
	Assets    map[string]int32 `json:"assetDecimals"`
	Profiling ProfilingConfig  `json:"profiling"`
	Feed      FeedConfig       `json:"feed"`
}

// RedisConfig locates the stream broker.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PostgresConfig locates the durable store. ConnString wins over the
// individual fields when set.
type PostgresConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Database   string `json:"database"`
	SSLMode    string `json:"sslMode"`
	ConnString string `json:"connString"`
}

// StreamsConfig names the two stream keys.
type StreamsConfig struct {
	Input string `json:"input"`
	Reply string `json:"reply"`
}

// RiskConfig holds the risk limits as decimal strings.
type RiskConfig struct {
	MaintenanceThreshold string `json:"maintenanceThreshold"`
}

// WriteBackConfig sizes the write-back queue.
type WriteBackConfig struct {
	QueueCapacity   int   `json:"queueCapacity"`
	BatchSize       int   `json:"batchSize"`
	FlushIntervalMS int64 `json:"flushIntervalMs"`
}

// DispatchConfig bounds request/reply correlation.
type DispatchConfig struct {
	TimeoutMS int64 `json:"timeoutMs"`
}

// ConsumerConfig tunes the engine input loop.
type ConsumerConfig struct {
	ReadBackoffMS int64 `json:"readBackoffMs"`
}

// ProfilingConfig gates the pyroscope profiler.
type ProfilingConfig struct {
	Enable        bool   `json:"enable"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// FeedConfig drives the market data poller.
type FeedConfig struct {
	URL     string   `json:"url"`
	Markets []string `json:"markets"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Redis           RedisConfig
	Postgres        PostgresConfig
	InputStream     string
	ReplyStream     string
	Risk            risk.Config
	WriteBack       writeback.Config
	DispatchTimeout time.Duration
	ReadBackoff     time.Duration
	AssetDecimals   map[string]int32
	Profiling       ProfilingConfig
	Feed            FeedConfig
}

// Default returns the configuration used when no file is given: local
// redis and postgres, default stream keys and limits.
func Default() Loaded {
	return resolve(FileConfig{})
}

// Load reads a JSON config file and resolves defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	loaded := resolve(cfg)
	if cfg.Risk.MaintenanceThreshold != "" {
		threshold, err := fixed.Parse(cfg.Risk.MaintenanceThreshold)
		if err != nil {
			return Loaded{}, errors.Wrap(err, "parse maintenanceThreshold")
		}
		if threshold <= 0 || threshold >= fixed.ToFixed(1) {
			return Loaded{}, errors.New("maintenanceThreshold must be inside (0, 1)")
		}
		loaded.Risk.MaintenanceThreshold = threshold
	}
	return loaded, nil
}

func resolve(cfg FileConfig) Loaded {
	loaded := Loaded{
		Redis:           cfg.Redis,
		Postgres:        cfg.Postgres,
		InputStream:     cfg.Streams.Input,
		ReplyStream:     cfg.Streams.Reply,
		DispatchTimeout: defaultDispatchTimeout,
		ReadBackoff:     defaultReadBackoff,
		AssetDecimals:   cfg.Assets,
		Profiling:       cfg.Profiling,
		Feed:            cfg.Feed,
	}
	if loaded.Redis.Addr == "" {
		loaded.Redis.Addr = "localhost:6379"
	}
	if loaded.InputStream == "" {
		loaded.InputStream = DefaultInputStream
	}
	if loaded.ReplyStream == "" {
		loaded.ReplyStream = DefaultReplyStream
	}
	loaded.WriteBack = writeback.Config{
		Capacity:  cfg.WriteBack.QueueCapacity,
		BatchSize: cfg.WriteBack.BatchSize,
	}
	if cfg.WriteBack.FlushIntervalMS > 0 {
		loaded.WriteBack.FlushInterval = time.Duration(cfg.WriteBack.FlushIntervalMS) * time.Millisecond
	}
	if cfg.Dispatch.TimeoutMS > 0 {
		loaded.DispatchTimeout = time.Duration(cfg.Dispatch.TimeoutMS) * time.Millisecond
	}
	if cfg.Consumer.ReadBackoffMS > 0 {
		loaded.ReadBackoff = time.Duration(cfg.Consumer.ReadBackoffMS) * time.Millisecond
	}
	if loaded.Feed.URL == "" {
		loaded.Feed.URL = "wss://stream.binance.com:9443/ws"
	}
	if len(loaded.Feed.Markets) == 0 {
		loaded.Feed.Markets = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	return loaded
}
