package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/osprey-riskscore/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, tenantID, "expiring", []byte("temp"), time.Minute)
		if val, _ := c.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock = clock.Add(2 * time.Minute)
		if val, _ := c.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expired entry should be dropped, size=%d", size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes the oldest.
		_, _ = small.Get(ctx, tenantID, "a")
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		for _, k := range []string{"a", "c", "d"} {
			if val, _ := small.Get(ctx, tenantID, k); val == nil {
				t.Errorf("expected %q to survive eviction", k)
			}
		}
		if size, capacity := small.Stats(); size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-a", "shared", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "tenant-b", "shared", []byte("b"), time.Minute)

		valA, _ := cache.Get(ctx, "tenant-a", "shared")
		valB, _ := cache.Get(ctx, "tenant-b", "shared")
		if string(valA) != "a" || string(valB) != "b" {
			t.Errorf("tenants leaked: a=%q b=%q", valA, valB)
		}
	})

	t.Run("EmptyTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "k"); err == nil {
			t.Error("expected error for empty tenantID on Get")
		}
		if err := cache.Set(ctx, "", "k", nil, time.Minute); err == nil {
			t.Error("expected error for empty tenantID on Set")
		}
		if err := cache.Delete(ctx, "", "k"); err == nil {
			t.Error("expected error for empty tenantID on Delete")
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestLRUCacheRuns(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	tenantID := "tenant-001"

	recall := 0.5
	run := &domain.Run{
		ID:     "run-001",
		Source: "transactions.csv",
		Total:  8,
		Summary: &domain.EvaluationSummary{
			Total:     8,
			Detection: domain.DetectionStats{FraudInHigh: 1, TotalHigh: 3, TotalFraud: 2, Recall: &recall},
		},
	}

	t.Run("Miss", func(t *testing.T) {
		got, err := cache.GetRun(ctx, tenantID, "run-001")
		if err != nil || got != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", got, err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		if err := cache.SetRun(ctx, tenantID, run, time.Minute); err != nil {
			t.Fatalf("SetRun failed: %v", err)
		}
		got, err := cache.GetRun(ctx, tenantID, "run-001")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Source != run.Source || got.Summary == nil || got.Summary.Total != 8 {
			t.Errorf("unexpected run: %+v", got)
		}
		if got.Summary.Detection.Recall == nil || *got.Summary.Detection.Recall != 0.5 {
			t.Error("recall did not survive caching")
		}
		if got.Summary.Detection.Precision != nil {
			t.Error("precision should stay absent")
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		if err := cache.SetRun(ctx, tenantID, &domain.Run{}, time.Minute); err == nil {
			t.Error("expected error for run without id")
		}
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, runKey("bad"), []byte("{not json"), time.Minute)
		if _, err := cache.GetRun(ctx, tenantID, "bad"); err == nil {
			t.Error("expected decode error for corrupt entry")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		lru, ok := cache.(*LRUCache)
		if !ok {
			t.Fatal("expected LRUCache for memory type")
		}
		if _, capacity := lru.Stats(); capacity != 100 {
			t.Errorf("expected capacity 100, got %d", capacity)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func BenchmarkLRUCacheGet(b *testing.B) {
	cache := NewLRUCache(1000)
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		_ = cache.Set(ctx, "t", fmt.Sprintf("k%d", i), []byte("v"), time.Hour)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cache.Get(ctx, "t", fmt.Sprintf("k%d", i%1000))
	}
}
