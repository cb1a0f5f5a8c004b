// Package store holds the three append-only event collections the views are
// derived from. Writers go through a single mutex; readers take snapshots.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// ErrStaleGeneration is returned when a write targets a generation that has
// since been reset, e.g. a backfill abandoned by a reconnect.
var ErrStaleGeneration = errors.New("stale store generation")

// Generation counts resets. Writers carry the generation they were started
// under so superseded work cannot leak into a fresh store.
type Generation uint64

type collection struct {
	ids    map[uint64]struct{}
	loaded bool
}

func newCollection() *collection {
	return &collection{ids: make(map[uint64]struct{})}
}

// Store is the Event Store.
type Store struct {
	mu  sync.RWMutex
	gen Generation

	placed    []ledger.Order
	cancelled []ledger.Order
	filled    []ledger.Trade
	colls     map[ledger.Kind]*collection

	ready chan struct{}
}

func New() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.placed, s.cancelled, s.filled = nil, nil, nil
	s.colls = map[ledger.Kind]*collection{
		ledger.KindPlaced:    newCollection(),
		ledger.KindCancelled: newCollection(),
		ledger.KindFilled:    newCollection(),
	}
	s.ready = make(chan struct{})
}

// Reset clears every collection and loaded flag and starts a new generation.
func (s *Store) Reset() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.resetLocked()
	return s.gen
}

// Generation returns the current generation.
func (s *Store) Generation() Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Ready is closed once all three collections are loaded in the current
// generation. A Reset hands out a new channel.
func (s *Store) Ready() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Load merges a completed backfill for kind and marks it loaded. Events that
// already arrived live are kept after the backfilled ones; duplicates by id
// are dropped. It returns the number of events added.
func (s *Store) Load(gen Generation, kind ledger.Kind, events []ledger.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return 0, fmt.Errorf("load %s: %w", kind, ErrStaleGeneration)
	}
	c, ok := s.colls[kind]
	if !ok {
		return 0, fmt.Errorf("load: unknown kind %s", kind)
	}

	for _, ev := range events {
		if ev.Kind() != kind {
			return 0, fmt.Errorf("load %s: got %s event", kind, ev.Kind())
		}
	}

	live := s.take(kind)
	c.ids = make(map[uint64]struct{}, len(events)+len(live))
	added := 0
	for _, ev := range events {
		if s.appendLocked(ev) {
			added++
		}
	}
	for _, ev := range live {
		s.appendLocked(ev)
	}
	c.loaded = true

	if s.allLoadedLocked() {
		select {
		case <-s.ready:
		default:
			close(s.ready)
		}
	}
	return added, nil
}

// take removes and returns the current contents of a collection as events.
func (s *Store) take(kind ledger.Kind) []ledger.Event {
	var out []ledger.Event
	switch kind {
	case ledger.KindPlaced:
		for _, o := range s.placed {
			out = append(out, ledger.Placed{Order: o})
		}
		s.placed = nil
	case ledger.KindCancelled:
		for _, o := range s.cancelled {
			out = append(out, ledger.Cancelled{Order: o})
		}
		s.cancelled = nil
	case ledger.KindFilled:
		for _, t := range s.filled {
			out = append(out, ledger.Filled{Trade: t})
		}
		s.filled = nil
	}
	return out
}

// Append adds one live event. It reports false when the id is already
// present for that kind.
func (s *Store) Append(gen Generation, ev ledger.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false, fmt.Errorf("append %s: %w", ev.Kind(), ErrStaleGeneration)
	}
	return s.appendLocked(ev), nil
}

func (s *Store) appendLocked(ev ledger.Event) bool {
	c := s.colls[ev.Kind()]
	id := ev.Base().ID
	if _, dup := c.ids[id]; dup {
		return false
	}
	c.ids[id] = struct{}{}
	switch e := ev.(type) {
	case ledger.Placed:
		s.placed = append(s.placed, e.Order)
	case ledger.Cancelled:
		s.cancelled = append(s.cancelled, e.Order)
	case ledger.Filled:
		s.filled = append(s.filled, e.Trade)
	}
	return true
}

func (s *Store) allLoadedLocked() bool {
	for _, c := range s.colls {
		if !c.loaded {
			return false
		}
	}
	return true
}

// Snapshot is an immutable copy of the store contents. Amount pointers are
// shared with the store; events are never mutated after recording.
type Snapshot struct {
	Generation Generation
	Placed     []ledger.Order
	Cancelled  []ledger.Order
	Filled     []ledger.Trade
	LoadedKind map[ledger.Kind]bool
}

// Loaded reports whether every collection finished its initial backfill.
func (s Snapshot) Loaded() bool {
	for _, k := range ledger.Kinds {
		if !s.LoadedKind[k] {
			return false
		}
	}
	return true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Generation: s.gen,
		Placed:     append([]ledger.Order(nil), s.placed...),
		Cancelled:  append([]ledger.Order(nil), s.cancelled...),
		Filled:     append([]ledger.Trade(nil), s.filled...),
		LoadedKind: make(map[ledger.Kind]bool, len(s.colls)),
	}
	for k, c := range s.colls {
		snap.LoadedKind[k] = c.loaded
	}
	return snap
}
