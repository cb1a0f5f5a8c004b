package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// Scopes lists every scope that has at least one checkpoint.
func (s *PebbleStore) Scopes() ([]string, error) {
	prefix := []byte(prefixCheckpoint)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	seen := make(map[string]struct{})
	for iter.First(); iter.Valid(); iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), prefixCheckpoint)
		if i := strings.LastIndexByte(key, ':'); i > 0 {
			seen[key[:i]] = struct{}{}
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for sc := range seen {
		out = append(out, sc)
	}
	sort.Strings(out)
	return out, nil
}

// JournalSource replays a journaled scope as a ledger source. It has no live
// feed: subscriptions stay idle until unsubscribed.
type JournalSource struct {
	store *PebbleStore
	scope string
}

func (s *PebbleStore) Source(scope string) *JournalSource {
	return &JournalSource{store: s, scope: scope}
}

func (j *JournalSource) FetchHistory(ctx context.Context, kind ledger.Kind, fromBlock uint64, toBlock *uint64) ([]ledger.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, _, err := j.store.LoadEvents(j.scope, kind)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		b := ev.Base().Meta.BlockNumber
		if b < fromBlock || (toBlock != nil && b > *toBlock) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (j *JournalSource) Subscribe(ctx context.Context, kind ledger.Kind, handler func(ledger.Event)) (ledger.Subscription, error) {
	return &idleSub{errc: make(chan error)}, nil
}

type idleSub struct {
	once sync.Once
	errc chan error
}

func (s *idleSub) Unsubscribe()      { s.once.Do(func() { close(s.errc) }) }
func (s *idleSub) Err() <-chan error { return s.errc }

var _ ledger.Source = (*JournalSource)(nil)
