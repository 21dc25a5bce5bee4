// Package cache is a TTL key-value store for scraped payloads, persisted to a
// single JSON file so a pipeline run can reuse fresh fetches from the previous
// one. A miss is always safe: callers fall back to re-fetching.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultFlushDelay = 500 * time.Millisecond

type entry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
}

// Store is a mutex-serialized in-memory map flushed to disk with a short
// debounce, so bursts of Set calls from concurrent enrichment tasks produce
// one write instead of one per entry.
type Store struct {
	mu         sync.Mutex
	path       string
	ttl        time.Duration
	entries    map[string]entry
	dirty      bool
	flushTimer *time.Timer

	flushDelay time.Duration
	now        func() time.Time
}

// Stats summarizes store contents.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

// Open loads the cache file at path, creating parent directories as needed.
// A corrupt or unreadable file is treated as an empty cache, never an error.
func Open(path string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	s := &Store{
		path:       path,
		ttl:        ttl,
		entries:    make(map[string]entry),
		flushDelay: defaultFlushDelay,
		now:        time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Cannot read cache file %s: %v (starting empty)", path, err)
		}
		return s, nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		log.Printf("Cache file %s is corrupt: %v (starting empty)", path, err)
		s.entries = make(map[string]entry)
	}
	return s, nil
}

// Get returns the cached payload for key if present and not expired.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.CachedAt) >= s.ttl {
		return nil, false
	}
	return e.Data, true
}

// Set stores a payload stamped with the current time and schedules a flush.
func (s *Store) Set(key string, data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{Data: data, CachedAt: s.now()}
	s.markDirty()
}

// ClearExpired removes entries past TTL and returns how many were dropped.
func (s *Store) ClearExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.CachedAt) >= s.ttl {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.markDirty()
		log.Printf("Cleared %d expired cache entries", removed)
	}
	return removed
}

// ClearAll empties the store.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]entry)
	s.markDirty()
}

// Stats counts total, valid, and expired entries.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{Total: len(s.entries)}
	for _, e := range s.entries {
		if now.Sub(e.CachedAt) < s.ttl {
			st.Valid++
		} else {
			st.Expired++
		}
	}
	return st
}

// Flush writes the store to disk if it has unsaved changes.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close cancels any pending debounced flush and writes out the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	return s.flushLocked()
}

// markDirty schedules a debounced flush. Caller holds mu.
func (s *Store) markDirty() {
	s.dirty = true
	if s.flushTimer != nil {
		return
	}
	s.flushTimer = time.AfterFunc(s.flushDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.flushTimer = nil
		if err := s.flushLocked(); err != nil {
			log.Printf("Cache flush failed: %v", err)
		}
	})
}

// flushLocked writes atomically via a temp file. Caller holds mu.
func (s *Store) flushLocked() error {
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}

	s.dirty = false
	return nil
}
