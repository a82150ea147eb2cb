package contextstore

import (
	"sync"
	"testing"
	"time"
)

func TestStore_FreshHit(t *testing.T) {
	s := New(30 * time.Second)
	s.Set("us-east-1", "CheckNetworkSecurity", map[string]any{"resources_checked": 3})

	result := s.Get("us-east-1", "CheckNetworkSecurity")
	if !result.Hit {
		t.Fatal("expected hit")
	}
	if result.Stale {
		t.Fatal("expected fresh, got stale")
	}
	if result.Entry.Data["resources_checked"] != 3 {
		t.Fatalf("unexpected data %v", result.Entry.Data)
	}
}

func TestStore_Miss(t *testing.T) {
	s := New(30 * time.Second)
	result := s.Get("us-east-1", "nonexistent")
	if result.Hit {
		t.Fatal("expected miss")
	}
	if result.Entry != nil {
		t.Fatal("expected nil entry on miss")
	}
}

func TestStore_StaleHitStillReturned(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	s.Set("us-east-1", "CheckStorageEncryption", map[string]any{})

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	result := s.Get("us-east-1", "CheckStorageEncryption")
	if !result.Hit {
		t.Fatal("expected stale hit")
	}
	if !result.Stale {
		t.Fatal("expected stale flag")
	}
}

func TestStore_SetAfterStale_ResetsFreshness(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	s.Set("us-east-1", "tool", map[string]any{"v": 1})

	now = now.Add(2 * time.Minute)
	s.Set("us-east-1", "tool", map[string]any{"v": 2})

	result := s.Get("us-east-1", "tool")
	if result.Stale {
		t.Fatal("expected fresh after re-set")
	}
	if result.Entry.Data["v"] != 2 {
		t.Fatalf("expected updated data, got %v", result.Entry.Data)
	}
}

func TestStore_RegionIsolatedAndSorted(t *testing.T) {
	s := New(30 * time.Second)
	s.Set("us-east-1", "b", nil)
	s.Set("us-east-1", "a", nil)
	s.Set("us-east-12", "c", nil)
	s.Set("eu-west-1", "d", nil)

	got := s.Region("us-east-1")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Entry.Tool != "a" || got[1].Entry.Tool != "b" {
		t.Fatalf("unexpected order %s, %s", got[0].Entry.Tool, got[1].Entry.Tool)
	}
}

func TestStore_Delete(t *testing.T) {
	s := New(30 * time.Second)
	s.Set("us-east-1", "tool_a", nil)
	s.Delete("us-east-1", "tool_a")

	if s.Get("us-east-1", "tool_a").Hit {
		t.Fatal("expected miss after delete")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(30 * time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set("us-east-1", "tool", map[string]any{})
			s.Get("us-east-1", "tool")
			s.Region("us-east-1")
			s.Delete("us-east-1", "tool")
		}()
	}
	wg.Wait()
}

func BenchmarkStore_Get_FreshHit(b *testing.B) {
	s := New(30 * time.Second)
	s.Set("us-east-1", "tool", map[string]any{})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s.Get("us-east-1", "tool")
	}
}
