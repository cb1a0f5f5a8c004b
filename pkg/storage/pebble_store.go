package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// PebbleStore journals ledger events so a restart can resume backfill from
// the last checkpoint instead of block zero.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveEvents writes events in one batch. Rewriting an event is a no-op
// because the key is derived from its chain position and id.
func (s *PebbleStore) SaveEvents(scope string, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, ev := range events {
		val, err := encodeEvent(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event %d: %w", ev.Kind(), ev.Base().ID, err)
		}
		o := ev.Base()
		if err := batch.Set(eventKey(scope, ev.Kind(), o.Meta, o.ID), val, nil); err != nil {
			return fmt.Errorf("failed to stage event: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// LoadEvents returns the journaled events of one kind in chain order.
// Entries that fail to decode are skipped and counted.
func (s *PebbleStore) LoadEvents(scope string, kind ledger.Kind) ([]ledger.Event, int, error) {
	prefix := eventPrefix(scope, kind)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var (
		events  []ledger.Event
		skipped int
	)
	for iter.First(); iter.Valid(); iter.Next() {
		ev, err := decodeEvent(iter.Value())
		if err != nil || ev.Kind() != kind {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, iter.Error()
}

// Checkpoint returns the last block whose events of kind are journaled.
func (s *PebbleStore) Checkpoint(scope string, kind ledger.Kind) (uint64, bool, error) {
	val, closer, err := s.db.Get(checkpointKey(scope, kind))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer closer.Close()

	n, err := decodeBlock(val)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *PebbleStore) SetCheckpoint(scope string, kind ledger.Kind, block uint64) error {
	if err := s.db.Set(checkpointKey(scope, kind), encodeBlock(block), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// DropScope deletes every journaled event and checkpoint of a scope.
func (s *PebbleStore) DropScope(scope string) error {
	ev := scopePrefix(scope)
	if err := s.db.DeleteRange(ev, keyUpperBound(ev), pebble.Sync); err != nil {
		return fmt.Errorf("failed to drop events: %w", err)
	}
	cp := []byte(prefixCheckpoint + scope + ":")
	if err := s.db.DeleteRange(cp, keyUpperBound(cp), pebble.Sync); err != nil {
		return fmt.Errorf("failed to drop checkpoints: %w", err)
	}
	return nil
}
