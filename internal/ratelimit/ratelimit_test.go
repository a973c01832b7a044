package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocal_OnePerInterval(t *testing.T) {
	l := NewLocal(3 * time.Second)
	now := time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, 1); !ok {
		t.Fatalf("first message must pass")
	}
	if ok, _ := l.Allow(ctx, 1); ok {
		t.Fatalf("second message within interval must be throttled")
	}
	if ok, _ := l.Allow(ctx, 2); !ok {
		t.Fatalf("other clients are independent")
	}

	now = now.Add(3 * time.Second)
	if ok, _ := l.Allow(ctx, 1); !ok {
		t.Fatalf("message after interval must pass")
	}
}

func TestLocal_Disabled(t *testing.T) {
	l := NewLocal(0)
	for i := 0; i < 5; i++ {
		if ok, err := l.Allow(context.Background(), 1); !ok || err != nil {
			t.Fatalf("disabled limiter must allow, got %v %v", ok, err)
		}
	}
}

func TestLocal_Sweep(t *testing.T) {
	l := NewLocal(time.Second)
	now := time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, 1)
	now = now.Add(time.Minute)
	_, _ = l.Allow(ctx, 2)

	if n := l.Sweep(30 * time.Second); n != 1 {
		t.Fatalf("want 1 swept, got %d", n)
	}
	if _, ok := l.visitors[2]; !ok {
		t.Fatalf("recent client must be kept")
	}
}

func TestRedis_UnreachableReturnsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	r := NewRedis(rdb, time.Second, "")
	if r.prefix != "throttle" {
		t.Fatalf("want default prefix, got %q", r.prefix)
	}
	if _, err := r.Allow(context.Background(), 1); err == nil {
		t.Fatalf("want error from unreachable redis")
	}
}
