package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	got := Key("http://api.test/search", "usb c cable", 3)
	want := "http://api.test/search?page=3&query=usb+c+cable"
	if got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}
}

func TestLRUGetSet(t *testing.T) {
	c, err := NewLRU(2, time.Minute)
	if err != nil {
		t.Fatalf("new lru: %v", err)
	}
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	body := []byte(`{"results":[]}`)
	if err := c.Set(ctx, "a", body); err != nil {
		t.Fatalf("set: %v", err)
	}
	body[0] = 'X'

	got, ok, err := c.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(got) != `{"results":[]}` {
		t.Fatalf("cached body mutated through caller slice: %q", got)
	}

	_ = c.Set(ctx, "b", []byte("b"))
	_ = c.Set(ctx, "c", []byte("c"))
	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestNewLRURejectsNonPositiveSize(t *testing.T) {
	if _, err := NewLRU(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestRedisGetSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c, err := NewRedis(client, "collector:", time.Hour)
	if err != nil {
		t.Fatalf("new redis cache: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "k", []byte("page-body")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("collector:k") {
		t.Fatalf("expected prefixed key in redis")
	}
	if ttl := mr.TTL("collector:k"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "page-body" {
		t.Fatalf("get = %q ok=%v err=%v", got, ok, err)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("entry should expire after ttl")
	}
}

func TestNewRedisValidation(t *testing.T) {
	if _, err := NewRedis(nil, "", time.Hour); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedis(client, "", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
