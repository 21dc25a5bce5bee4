package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, ttl time.Duration) (*Store, *time.Time) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products_cache.json")
	s, err := Open(path, ttl)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestGetReturnsOnlyFreshEntries(t *testing.T) {
	s, now := openTestStore(t, time.Hour)

	s.Set("B00TEST01", json.RawMessage(`{"name":"lip mask"}`))

	if _, ok := s.Get("B00TEST01"); !ok {
		t.Fatal("expected hit immediately after set")
	}

	*now = now.Add(59 * time.Minute)
	if _, ok := s.Get("B00TEST01"); !ok {
		t.Error("entry expired before TTL elapsed")
	}

	*now = now.Add(2 * time.Minute)
	if _, ok := s.Get("B00TEST01"); ok {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestGetMissForUnknownKey(t *testing.T) {
	s, _ := openTestStore(t, time.Hour)
	if _, ok := s.Get("B00NOPE00"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestClearExpired(t *testing.T) {
	s, now := openTestStore(t, time.Hour)

	s.Set("old", json.RawMessage(`1`))
	*now = now.Add(2 * time.Hour)
	s.Set("fresh", json.RawMessage(`2`))

	if removed := s.ClearExpired(); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	st := s.Stats()
	if st.Total != 1 || st.Valid != 1 || st.Expired != 0 {
		t.Errorf("unexpected stats after prune: %+v", st)
	}
}

func TestStatsCountsValidAndExpired(t *testing.T) {
	s, now := openTestStore(t, time.Hour)

	s.Set("a", json.RawMessage(`1`))
	s.Set("b", json.RawMessage(`2`))
	*now = now.Add(90 * time.Minute)
	s.Set("c", json.RawMessage(`3`))

	st := s.Stats()
	if st.Total != 3 || st.Valid != 1 || st.Expired != 2 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := Open(path, time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Set("B00MASK01", json.RawMessage(`{"brand":"LANEIGE"}`))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	raw, ok := reopened.Get("B00MASK01")
	if !ok {
		t.Fatal("expected entry to survive restart")
	}
	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded["brand"] != "LANEIGE" {
		t.Errorf("payload mangled across restart: %v", decoded)
	}
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, time.Hour)
	if err != nil {
		t.Fatalf("open should not fail on corrupt file: %v", err)
	}
	if st := s.Stats(); st.Total != 0 {
		t.Errorf("expected empty store, got %+v", st)
	}
}

func TestClearAll(t *testing.T) {
	s, _ := openTestStore(t, time.Hour)
	s.Set("a", json.RawMessage(`1`))
	s.Set("b", json.RawMessage(`2`))
	s.ClearAll()
	if st := s.Stats(); st.Total != 0 {
		t.Errorf("expected empty store after ClearAll, got %+v", st)
	}
}

func TestConcurrentSetAndGet(t *testing.T) {
	s, _ := openTestStore(t, time.Hour)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			key := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				s.Set(key, json.RawMessage(`{"v":1}`))
				s.Get(key)
				s.Stats()
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if st := s.Stats(); st.Valid != 8 {
		t.Errorf("expected 8 valid entries, got %+v", st)
	}
}
