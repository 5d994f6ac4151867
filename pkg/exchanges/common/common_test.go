package common

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatalf("Opposite mismatch: %s/%s", SideBuy.Opposite(), SideSell.Opposite())
	}
}

func TestRateLimiterThreshold(t *testing.T) {
	rl := NewRateLimiter(100, time.Minute, nil)
	rl.UpdateFromHeader("not-a-number")
	if rl.ShouldDelay() {
		t.Fatalf("ShouldDelay=true after bad header")
	}
	rl.UpdateFromHeader("91")
	if !rl.ShouldDelay() {
		t.Fatalf("ShouldDelay=false at 91%%")
	}
	used, limit, _ := rl.Usage()
	if used != 91 || limit != 100 {
		t.Fatalf("Usage=%d/%d, expected 91/100", used, limit)
	}
}

func TestTimeSyncOffset(t *testing.T) {
	ahead := time.Now().UnixMilli() + 5000
	ts := NewTimeSync(func(context.Context) (int64, error) { return ahead, nil }, nil)
	if err := ts.Sync(context.Background()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if off := ts.Offset(); off < 4900 || off > 5100 {
		t.Fatalf("Offset=%d, expected ~5000", off)
	}

	failing := NewTimeSync(func(context.Context) (int64, error) { return 0, errors.New("down") }, nil)
	if err := failing.Sync(context.Background()); err == nil {
		t.Fatalf("expected error from failing server time")
	}
	if failing.Offset() != 0 {
		t.Fatalf("Offset=%d after failed sync, expected 0", failing.Offset())
	}
}
