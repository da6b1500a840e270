package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/payrisk/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	defer cache.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("MissReturnsNil", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "missing")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for miss, got %v", val)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		cache.Set(ctx, tenantID, "short", []byte("v"), time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		val, err := cache.Get(ctx, tenantID, "short")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if val != nil {
			t.Error("expected expired entry to be nil")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Set(ctx, tenantID, "del", []byte("v"), time.Minute)
		cache.Delete(ctx, tenantID, "del")

		val, _ := cache.Get(ctx, tenantID, "del")
		if val != nil {
			t.Error("expected deleted entry to be nil")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		cache.Set(ctx, "tenant-a", "shared-key", []byte("a"), time.Minute)
		cache.Set(ctx, "tenant-b", "shared-key", []byte("b"), time.Minute)

		valA, _ := cache.Get(ctx, "tenant-a", "shared-key")
		valB, _ := cache.Get(ctx, "tenant-b", "shared-key")

		if string(valA) != "a" || string(valB) != "b" {
			t.Errorf("tenants share cache entries: %s, %s", valA, valB)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := cache.Set(ctx, "", "key", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Eviction", func(t *testing.T) {
		small := NewLRUCache(2)
		defer small.Close()

		small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// "a" is the oldest and should be evicted
		val, _ := small.Get(ctx, tenantID, "a")
		if val != nil {
			t.Error("expected oldest entry to be evicted")
		}

		size, capacity := small.Stats()
		if size != 2 || capacity != 2 {
			t.Errorf("expected size 2 of 2, got %d of %d", size, capacity)
		}
	})
}

func TestLRUCacheScores(t *testing.T) {
	cache := NewLRUCache(100)
	defer cache.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	score := &domain.CachedScore{
		Risk:         1,
		Probability:  0.91,
		ModelVersion: "v1",
	}

	if err := cache.SetScore(ctx, tenantID, "hash-abc", score, time.Minute); err != nil {
		t.Fatalf("setScore failed: %v", err)
	}

	got, err := cache.GetScore(ctx, tenantID, "hash-abc")
	if err != nil {
		t.Fatalf("getScore failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached score")
	}
	if got.Risk != 1 || got.Probability != 0.91 || got.ModelVersion != "v1" {
		t.Errorf("score did not round-trip: %+v", got)
	}

	miss, err := cache.GetScore(ctx, tenantID, "hash-missing")
	if err != nil {
		t.Fatalf("getScore failed: %v", err)
	}
	if miss != nil {
		t.Errorf("expected nil for score miss, got %+v", miss)
	}
}

func TestLRUCacheCounters(t *testing.T) {
	cache := NewLRUCache(100)
	defer cache.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Increments", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, "predictions:total", time.Minute)
			if err != nil {
				t.Fatalf("increment failed: %v", err)
			}
			if got != want {
				t.Errorf("expected counter %d, got %d", want, got)
			}
		}
	})

	t.Run("WindowReset", func(t *testing.T) {
		cache.IncrementCounter(ctx, tenantID, "windowed", time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		got, err := cache.IncrementCounter(ctx, tenantID, "windowed", time.Minute)
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expected counter reset to 1 after window, got %d", got)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 50,
		}

		c, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
