// Package contextstore keeps the most recent result of each security tool per
// region so later calls can return them without touching AWS again.
package contextstore

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one stored tool result.
type Entry struct {
	Region   string
	Tool     string
	Data     map[string]any
	StoredAt time.Time
}

type storeEntry struct {
	entry     *Entry
	expiresAt time.Time
}

// GetResult holds the result of a lookup.
type GetResult struct {
	Entry *Entry // nil on miss
	Hit   bool
	Stale bool // older than the TTL; still returned
}

// Store is a TTL-based in-memory store. Uses sync.Map for lock-free reads.
// Expired entries are kept and reported Stale rather than dropped.
type Store struct {
	entries sync.Map // map[string]*storeEntry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{ttl: ttl, now: time.Now}
}

func key(region, tool string) string {
	return region + "|" + tool
}

// Get performs a non-blocking lookup.
func (s *Store) Get(region, tool string) GetResult {
	val, ok := s.entries.Load(key(region, tool))
	if !ok {
		return GetResult{}
	}
	e := val.(*storeEntry)
	return GetResult{Entry: e.entry, Hit: true, Stale: !s.now().Before(e.expiresAt)}
}

// Set stores data for a region+tool pair with a fresh TTL.
func (s *Store) Set(region, tool string, data map[string]any) {
	now := s.now()
	s.entries.Store(key(region, tool), &storeEntry{
		entry:     &Entry{Region: region, Tool: tool, Data: data, StoredAt: now},
		expiresAt: now.Add(s.ttl),
	})
}

// Delete removes an entry.
func (s *Store) Delete(region, tool string) {
	s.entries.Delete(key(region, tool))
}

// Region returns every entry stored for region, ordered by tool name.
func (s *Store) Region(region string) []GetResult {
	prefix := region + "|"
	now := s.now()
	var out []GetResult
	s.entries.Range(func(k, v any) bool {
		if !strings.HasPrefix(k.(string), prefix) {
			return true
		}
		e := v.(*storeEntry)
		out = append(out, GetResult{Entry: e.entry, Hit: true, Stale: !now.Before(e.expiresAt)})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.Tool < out[j].Entry.Tool })
	return out
}
