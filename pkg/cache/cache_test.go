package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() err = %v; want %v", err, ErrMiss)
	}
	v := []byte("value")
	if err := m.Set(ctx, "a", v); err != nil {
		t.Fatalf("Set() err = %v", err)
	}
	v[0] = 'X'
	got, err := m.Get(ctx, "a")
	if err != nil || string(got) != "value" {
		t.Fatalf("Get() = %q, %v; want %q", got, err, "value")
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() after ttl err = %v; want %v", err, ErrMiss)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		if err := m.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set(%q) err = %v", k, err)
		}
	}
	now = now.Add(2 * time.Minute)
	if err := m.Set(ctx, "d", []byte("d")); err != nil {
		t.Fatalf("Set() err = %v", err)
	}
	if n := m.Len(); n != 1 {
		t.Fatalf("Len() = %d; want 1", n)
	}
	if got, err := m.Get(ctx, "d"); err != nil || string(got) != "d" {
		t.Fatalf("Get() = %q, %v; want %q", got, err, "d")
	}
}

func TestRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, "127.0.0.1:1", 0); err == nil {
		t.Fatalf("NewRedis() err = nil; want error")
	}
}
