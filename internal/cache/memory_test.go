package cache

import (
	"context"
	"testing"
	"time"
)

func newMemCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(context.Background())
	t.Cleanup(c.Close)
	return c
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	c := newMemCache(t)
	if _, ok := c.Get(context.Background(), "absent"); ok {
		t.Fatal("absent key must miss")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newMemCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("deleted key must miss")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d", c.Len())
	}
}
