package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestMemoryCache(maxSize int) *MemoryCache {
	return NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, MaxSize: maxSize})
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := newTestMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	if err := c.Set(ctx, "entries/posts/a.json", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, err := c.Get(ctx, "entries/posts/a.json")
	if err != nil || string(val) != "v1" {
		t.Fatalf("Get = %q, %v; want v1", val, err)
	}
	if has, _ := c.Has(ctx, "entries/posts/a.json"); !has {
		t.Error("Has = false, want true")
	}

	if err := c.Delete(ctx, "entries/posts/a.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "entries/posts/a.json"); err != ErrCacheMiss {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := newTestMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("x"), 20*time.Millisecond)
	_ = c.Set(ctx, "long", []byte("y"), 0)
	time.Sleep(40 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); err != ErrCacheMiss {
		t.Errorf("expired Get = %v, want ErrCacheMiss", err)
	}
	if has, _ := c.Has(ctx, "short"); has {
		t.Error("expired key still reported by Has")
	}
	if _, err := c.Get(ctx, "long"); err != nil {
		t.Errorf("default TTL entry expired early: %v", err)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newTestMemoryCache(2)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	_, _ = c.Get(ctx, "a") // b is now least recently used
	_ = c.Set(ctx, "c", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); err != ErrCacheMiss {
		t.Errorf("b should have been evicted, got %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if _, err := c.Get(ctx, k); err != nil {
			t.Errorf("%s evicted unexpectedly: %v", k, err)
		}
	}

	// Overwriting an existing key does not evict.
	_ = c.Set(ctx, "a", []byte("11"), 0)
	if got := c.Stats().Items; got != 2 {
		t.Errorf("Items = %d, want 2", got)
	}
}

func TestMemoryCache_DeleteByPrefixAndClear(t *testing.T) {
	c := newTestMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	for _, k := range []string{"media/records/1", "media/records/2", "entries/posts/a"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	if err := c.DeleteByPrefix(ctx, "media/"); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	if got := c.Stats().Items; got != 1 {
		t.Errorf("Items after prefix delete = %d, want 1", got)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	st := c.Stats()
	if st.Items != 0 || st.Size != 0 {
		t.Errorf("after Clear Items=%d Size=%d, want 0/0", st.Items, st.Size)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	c := newTestMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("abcd"), 0)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "missing")

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Sets != 1 {
		t.Errorf("Stats = %+v, want 1 hit, 1 miss, 1 set", st)
	}
	if st.HitRate != 50 {
		t.Errorf("HitRate = %v, want 50", st.HitRate)
	}
	if st.Size != 4 {
		t.Errorf("Size = %d, want 4", st.Size)
	}

	c.ResetStats()
	if st := c.Stats(); st.Hits != 0 || st.Items != 1 {
		t.Errorf("after ResetStats = %+v", st)
	}
}

func TestMemoryCache_ValueCopy(t *testing.T) {
	c := newTestMemoryCache(0)
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	in := []byte("original")
	_ = c.Set(ctx, "k", in, 0)
	in[0] = 'X'

	out, _ := c.Get(ctx, "k")
	out[1] = 'Y'

	again, _ := c.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("cached value mutated: %q", again)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, MaxSize: 50, CleanupInterval: time.Millisecond})
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 200 {
				key := fmt.Sprintf("k%d", (i*200+j)%80)
				_ = c.Set(ctx, key, []byte(key), 0)
				_, _ = c.Get(ctx, key)
				if j%50 == 0 {
					_ = c.DeleteByPrefix(ctx, "k1")
				}
			}
		}(i)
	}
	wg.Wait()

	if got := c.Stats().Items; got > 50 {
		t.Errorf("Items = %d exceeds MaxSize 50", got)
	}
}

func TestMemoryCache_Close(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Hour, CleanupInterval: time.Millisecond})
	ctx := context.Background()

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); err != ErrCacheClosed {
		t.Errorf("Set after Close = %v, want ErrCacheClosed", err)
	}
	if _, err := c.Get(ctx, "k"); err != ErrCacheClosed {
		t.Errorf("Get after Close = %v, want ErrCacheClosed", err)
	}
}
