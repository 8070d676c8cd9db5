package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/finance-tracker-go/internal/domain"
	"github.com/boddenberg/finance-tracker-go/internal/infra/cache"
	"github.com/boddenberg/finance-tracker-go/internal/port"
)

var _ port.Cache[*domain.AnalysisReport] = (*cache.InMemory[*domain.AnalysisReport])(nil)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[*domain.AnalysisReport](5 * time.Minute)
	defer c.Close()

	report := &domain.AnalysisReport{Insights: []string{"ok"}}
	c.Set("user-1:abc", report)

	got, ok := c.Get("user-1:abc")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if got != report {
		t.Errorf("expected the stored report, got %+v", got)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_JanitorEvicts(t *testing.T) {
	c := cache.New[string](20 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Errorf("expected janitor to evict expired entries, %d left", n)
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_DeletePrefix(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("alice:1", "a")
	c.Set("alice:2", "b")
	c.Set("bob:1", "c")

	if n := c.DeletePrefix("alice:"); n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}
	if _, ok := c.Get("bob:1"); !ok {
		t.Error("expected other owners' entries to survive")
	}
	c.Close()
}
