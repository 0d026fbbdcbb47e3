package ristretto

import (
	"context"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewMB(1)
	if err != nil {
		t.Fatalf("NewMB: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCache_SetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "amadeus:token", []byte("abc"), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "amadeus:token")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected found after Set")
	}
	if string(val) != "abc" {
		t.Fatalf("expected abc, got %s", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(t)
	_, found, err := c.Get(context.Background(), "nonexistent-key")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss for nonexistent key")
	}
}

func TestCache_NonPositiveTTLNotStored(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := c.Set(ctx, "k", []byte("v"), ttl); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := c.Get(ctx, "k"); found {
			t.Fatalf("ttl %v should not store", ttl)
		}
	}
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1200 * time.Millisecond) // ristretto sweeps expired keys on a 1s ticker
	if _, found, _ := c.Get(ctx, "short"); found {
		t.Fatal("expected expiry")
	}
}

func TestCache_DeleteAndOverwrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "ow-key", []byte("v1"), time.Minute)
	_ = c.Set(ctx, "ow-key", []byte("v2"), time.Minute)
	val, found, _ := c.Get(ctx, "ow-key")
	if !found || string(val) != "v2" {
		t.Fatalf("expected v2 after overwrite, got %q found=%v", val, found)
	}

	if err := c.Delete(ctx, "ow-key"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "ow-key"); found {
		t.Fatal("expected miss after Delete")
	}
	if err := c.Delete(ctx, "never-existed"); err != nil {
		t.Fatal("Delete of nonexistent key should not error")
	}
}
