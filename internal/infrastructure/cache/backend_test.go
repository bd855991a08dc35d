package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"portfolio_aggregator/internal/domain/entity"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisBackend(t *testing.T) {
	t.Parallel()

	fake := &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
	b := NewRedisBackend(fake)
	ctx := context.Background()

	if _, ok, err := b.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("redis.Nil must be a clean miss, got ok=%v err=%v", ok, err)
	}

	if err := b.Set(ctx, "k", []byte("v"), 1500*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.ttls["k"] != time.Second {
		t.Fatalf("ttl should be floored to whole seconds, got %v", fake.ttls["k"])
	}
	_ = b.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
	if fake.ttls["short"] != time.Second {
		t.Fatalf("ttl should never drop below one second, got %v", fake.ttls["short"])
	}

	data, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(data) != "v" {
		t.Fatalf("unexpected get: %q ok=%v err=%v", data, ok, err)
	}

	fake.getErr = errors.New("i/o timeout")
	_, _, err = b.Get(ctx, "k")
	if entity.KindOf(err) != entity.KindCacheBackend {
		t.Fatalf("expected cache backend error, got %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	t.Parallel()

	b := NewMemoryBackend(time.Minute)
	ctx := context.Background()
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatalf("expected miss")
	}
	_ = b.Set(ctx, "k", []byte("payload"), time.Minute)
	data, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(data) != "payload" {
		t.Fatalf("unexpected get: %q ok=%v err=%v", data, ok, err)
	}
}

func TestNewRedisClientParsesURL(t *testing.T) {
	origNewClient := newRedisClient
	origPing := pingRedis
	t.Cleanup(func() {
		newRedisClient = origNewClient
		pingRedis = origPing
	})

	var captured *redis.Options
	newRedisClient = func(opts *redis.Options) *redis.Client {
		captured = opts
		return redis.NewClient(opts)
	}
	pingRedis = func(context.Context, *redis.Client) error { return nil }

	client, err := NewRedisClient(context.Background(), "redis://:secret@cache.internal:6380/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if captured.Addr != "cache.internal:6380" || captured.DB != 2 || captured.Password != "secret" {
		t.Fatalf("unexpected options: addr=%s db=%d", captured.Addr, captured.DB)
	}

	if _, err := NewRedisClient(context.Background(), "cache.internal:6379"); err != nil {
		t.Fatalf("plain host:port should be accepted: %v", err)
	}
	if captured.Addr != "cache.internal:6379" {
		t.Fatalf("unexpected addr %s", captured.Addr)
	}
}

func TestNewRedisClientPingFailure(t *testing.T) {
	origPing := pingRedis
	t.Cleanup(func() { pingRedis = origPing })
	pingRedis = func(context.Context, *redis.Client) error { return errors.New("connection refused") }

	if _, err := NewRedisClient(context.Background(), "localhost:1"); err == nil {
		t.Fatalf("expected ping failure to surface")
	}
}
