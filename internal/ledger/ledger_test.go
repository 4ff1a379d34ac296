package ledger

import (
	"testing"
	"time"

	"main/internal/fixed"
	"main/internal/schema"
)

func TestBalanceNeverNegative(t *testing.T) {
	l := New()
	l.SetBalance("u-1", "USDC", fixed.ToFixed(-5))
	if got := l.Balance("u-1", "USDC"); got != 0 {
		t.Fatalf("negative balance leaked: %d", got)
	}

	l.SetBalance("u-1", "USDC", fixed.ToFixed(100))
	if err := l.Debit("u-1", "USDC", fixed.ToFixed(150)); err == nil {
		t.Fatal("overdraft debit should fail")
	}
	if got := l.Balance("u-1", "USDC"); got != fixed.ToFixed(100) {
		t.Fatalf("failed debit mutated balance: %d", got)
	}
}

func TestCreditDebit(t *testing.T) {
	l := New()
	l.SetBalance("u-1", "USDC", fixed.ToFixed(600))
	if err := l.Debit("u-1", "USDC", fixed.ToFixed(500)); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if got := l.Credit("u-1", "USDC", fixed.ToFixed(20)); got != fixed.ToFixed(120) {
		t.Fatalf("credit result = %v, want 120", fixed.FromFixed(got))
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	l := New()
	p := &Position{ID: "o-1", UserID: "u-1", Asset: "BTC", Side: schema.SideLong}
	if err := l.Insert(p); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := l.Insert(p); err != ErrDuplicatePosition {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	l := New()
	_ = l.Insert(&Position{ID: "o-1", Asset: "BTC"})
	if _, ok := l.Remove("o-1"); !ok {
		t.Fatal("remove failed")
	}
	if _, ok := l.Remove("o-1"); ok {
		t.Fatal("second remove should miss")
	}
	if l.PositionCount() != 0 {
		t.Fatalf("count = %d, want 0", l.PositionCount())
	}
}

func TestMarkPrice(t *testing.T) {
	q := Quote{Bid: fixed.ToFixed(99), Ask: fixed.ToFixed(101)}
	long := &Position{Side: schema.SideLong}
	short := &Position{Side: schema.SideShort}
	if long.MarkPrice(q) != q.Bid {
		t.Fatal("long should mark at bid")
	}
	if short.MarkPrice(q) != q.Ask {
		t.Fatal("short should mark at ask")
	}
}

func TestPositionsByAssetOrder(t *testing.T) {
	l := New()
	base := time.Unix(1700000000, 0)
	_ = l.Insert(&Position{ID: "b", Asset: "BTC", CreatedAt: base.Add(time.Second)})
	_ = l.Insert(&Position{ID: "a", Asset: "BTC", CreatedAt: base})
	_ = l.Insert(&Position{ID: "c", Asset: "ETH", CreatedAt: base})

	got := l.PositionsByAsset("BTC")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
