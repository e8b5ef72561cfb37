package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "price:1:0xabc", "1999.50", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := c.Get(ctx, "price:1:0xabc")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "1999.50" {
		t.Errorf("expected 1999.50, got %v", got)
	}
}

func TestMemoryCacheMissReturnsNotFound(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	_, err := c.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "key", "value", 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired entry to be gone, got %v", err)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	_, err := c.Get(ctx, "key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted entry to be gone, got %v", err)
	}
}

func TestMemoryCacheEvictsAtCapacity(t *testing.T) {
	c := NewMemoryCache(3)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if err := c.Set(ctx, key, strconv.Itoa(i), time.Duration(i+1)*time.Minute); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	if got := c.Len(); got > 3 {
		t.Errorf("cache exceeded capacity: %d entries", got)
	}

	// The entry closest to expiration is evicted first, so the last
	// written key survives
	if _, err := c.Get(ctx, "key-4"); err != nil {
		t.Errorf("expected newest entry to survive eviction, got %v", err)
	}
}

func TestMemoryCacheOverwriteKeepsSingleEntry(t *testing.T) {
	c := NewMemoryCache(10)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := c.Set(ctx, "key", strconv.Itoa(i), time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}

	if got := c.Len(); got != 1 {
		t.Errorf("expected 1 entry after overwrites, got %d", got)
	}

	got, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "2" {
		t.Errorf("expected latest value 2, got %v", got)
	}
}
