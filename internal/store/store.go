// Package store holds the latest poll result of every telemetry source and
// the snapshot most recently built from them.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dbfleet/dbfleet/internal/compute"
	"github.com/dbfleet/dbfleet/pkg/types"
)

// Entry is a source result together with the time it was last stored.
type Entry struct {
	Result    types.SourceResult
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory result store, keyed by source id.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL. A TTL of 0 disables eviction.
type Store struct {
	mu       sync.RWMutex
	data     map[string]*Entry
	snapshot types.Snapshot
	subs     map[int]chan types.Snapshot
	nextSub  int
	ttl      time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data:     make(map[string]*Entry),
		subs:     make(map[int]chan types.Snapshot),
		snapshot: types.Snapshot{Engines: []types.EngineSnapshot{}},
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put stores or replaces the result for r.SourceID.
// Callers must not modify r.Nodes after calling Put.
func (s *Store) Put(r types.SourceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[r.SourceID] = &Entry{Result: r, UpdatedAt: s.now()}
}

// Get returns the Entry for the given source id and whether one was found.
// The entry may be expired if the TTL has elapsed.
func (s *Store) Get(sourceID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sourceID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Delete removes a source, e.g. after it disappeared from the config.
func (s *Store) Delete(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sourceID)
}

// List returns the results updated within the TTL, sorted by source id.
func (s *Store) List() []types.SourceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []types.SourceResult {
	cutoff := s.now().Add(-s.ttl)
	out := make([]types.SourceResult, 0, len(s.data))
	for _, e := range s.data {
		if s.ttl > 0 && !e.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, e.Result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Count returns the number of entries held, including expired ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Publish rebuilds the snapshot from the live results, makes it the current
// one and hands it to every subscriber. Slow subscribers miss intermediate
// snapshots; they always receive the newest one.
func (s *Store) Publish() types.Snapshot {
	s.mu.Lock()
	snap := compute.BuildSnapshot(s.listLocked(), s.now())
	if snap.Engines == nil {
		snap.Engines = []types.EngineSnapshot{}
	}
	s.snapshot = snap
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	s.mu.Unlock()
	return snap
}

// Snapshot returns the most recently published snapshot.
func (s *Store) Snapshot() types.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Subscribe returns a channel that receives every published snapshot and a
// cancel func that releases it.
func (s *Store) Subscribe() (<-chan types.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan types.Snapshot, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and republishes when something was evicted. Run blocks
// until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Warn("store: evicted expired source results", "count", n)
				s.Publish()
			}
		}
	}
}
