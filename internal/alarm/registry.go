package alarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dbfleet/dbfleet/pkg/types"
)

// ErrUnknownKey is returned when toggling a node that was never observed.
var ErrUnknownKey = errors.New("alarm: unknown node key")

// IsSuppressed reports whether alerts for a node in state s are muted at now.
// An enabled node is never suppressed. A disabled node is suppressed forever
// when it has no deadline, otherwise until the deadline passes.
func IsSuppressed(s types.AlarmState, now time.Time) bool {
	if s.AlertEnabled {
		return false
	}
	return s.SilenceUntil == nil || s.SilenceUntil.After(now)
}

// Registry holds the AlarmState of every observed node.
//
// Reads take a shared lock. Set persists through the Store before the new
// state becomes visible, and concurrent Sets are applied one at a time.
type Registry struct {
	store Store
	now   func() time.Time

	writeMu sync.Mutex // serialises Set so store and memory agree on order

	mu     sync.RWMutex
	states map[string]types.AlarmState
}

// NewRegistry returns an empty Registry persisting through store.
// A nil store keeps state in memory only.
func NewRegistry(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		store:  store,
		now:    time.Now,
		states: make(map[string]types.AlarmState),
	}
}

// Restore loads every persisted state into the registry. Keys already present
// in memory are overwritten.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	saved, err := r.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("alarm: restore: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range saved {
		r.states[k] = copyState(s)
	}
	return len(saved), nil
}

// Observe creates a default state (alerting enabled) for every key not seen
// before. Existing states are left untouched. It returns how many were added.
func (r *Registry) Observe(keys []string) int {
	now := r.now()

	r.mu.RLock()
	var missing []string
	for _, k := range keys {
		if _, ok := r.states[k]; !ok {
			missing = append(missing, k)
		}
	}
	r.mu.RUnlock()
	if len(missing) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, k := range missing {
		if _, ok := r.states[k]; ok {
			continue
		}
		r.states[k] = types.AlarmState{AlertEnabled: true, UpdatedAt: now}
		added++
	}
	return added
}

// Set is the operator toggle. Enabling alerts clears any silence deadline;
// disabling with a nil until silences the node indefinitely.
func (r *Registry) Set(ctx context.Context, key string, enabled bool, until *time.Time) (types.AlarmState, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, ok := r.Get(key); !ok {
		return types.AlarmState{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	st := types.AlarmState{AlertEnabled: enabled, UpdatedAt: r.now()}
	if !enabled && until != nil {
		u := *until
		st.SilenceUntil = &u
	}
	if err := r.store.Save(ctx, key, st); err != nil {
		return types.AlarmState{}, fmt.Errorf("alarm: save %q: %w", key, err)
	}

	r.mu.Lock()
	r.states[key] = st
	r.mu.Unlock()
	return copyState(st), nil
}

// Get returns the state for key.
func (r *Registry) Get(key string) (types.AlarmState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[key]
	if !ok {
		return types.AlarmState{}, false
	}
	return copyState(s), true
}

// Suppressed reports whether alerts for key are muted at now. Unknown keys
// are not suppressed.
func (r *Registry) Suppressed(key string, now time.Time) bool {
	r.mu.RLock()
	s, ok := r.states[key]
	r.mu.RUnlock()
	return ok && IsSuppressed(s, now)
}

// SuppressedSet evaluates Suppressed for every key under one read lock.
func (r *Registry) SuppressedSet(keys []string, now time.Time) map[string]bool {
	out := make(map[string]bool, len(keys))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range keys {
		s, ok := r.states[k]
		out[k] = ok && IsSuppressed(s, now)
	}
	return out
}

// Entry is one key and its state, as listed by List.
type Entry struct {
	Key        string `json:"key"`
	Suppressed bool   `json:"suppressed"`
	types.AlarmState
}

// List returns every state sorted by key, with suppression evaluated at now.
func (r *Registry) List(now time.Time) []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.states))
	for k, s := range r.states {
		out = append(out, Entry{Key: k, Suppressed: IsSuppressed(s, now), AlarmState: copyState(s)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of tracked keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

func copyState(s types.AlarmState) types.AlarmState {
	if s.SilenceUntil != nil {
		u := *s.SilenceUntil
		s.SilenceUntil = &u
	}
	return s
}
