package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestMarkOnceWithinWindow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.DeadlineWarningKey("match-1", "application")

	first, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("expected first mark to win")
	}
	if mock.ttls[key] != time.Hour {
		t.Fatalf("expected ttl to be applied, got %s", mock.ttls[key])
	}

	again, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again {
		t.Fatalf("expected duplicate mark to be rejected")
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	afterDel, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !afterDel {
		t.Fatalf("expected mark to succeed once the key is gone")
	}
}

func TestMarkOnceRejectsNonPositiveTTL(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.MarkOnce(context.Background(), "k", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestGetMissingKey(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.Get(context.Background(), "missing"); err != redis.Nil {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.DedupeKey("scope", "id"); got != "onb:dedupe:scope:id" {
		t.Fatalf("unexpected dedupe key %s", got)
	}
	if got := client.DeadlineWarningKey("m1", "onboarding"); got != "onb:dedupe:deadline_warning:m1:onboarding" {
		t.Fatalf("unexpected warning key %s", got)
	}
	if got := client.DedupeKey("scope", "", " id "); got != "onb:dedupe:scope:id" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:      "redis://localhost:6379/3",
		PoolSize: 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6380", DB: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
		delete(m.ttls, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
