package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Source is the ledger collaborator: bounded historical fetches plus a live feed.
type Source interface {
	// FetchHistory returns events of one kind in [fromBlock, toBlock]; a nil
	// toBlock means the latest block.
	FetchHistory(ctx context.Context, kind Kind, fromBlock uint64, toBlock *uint64) ([]Event, error)
	// Subscribe invokes handler for every new event of the kind until the
	// subscription is closed or ctx is done.
	Subscribe(ctx context.Context, kind Kind, handler func(Event)) (Subscription, error)
}

// Subscription is a live feed registration.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// EthSource reads exchange events over Ethereum JSON-RPC. Subscribe needs a
// websocket or IPC endpoint.
type EthSource struct {
	client   *ethclient.Client
	contract common.Address
	log      *zap.SugaredLogger
}

// DialEthSource connects to rpcURL and watches the exchange contract at contract.
func DialEthSource(ctx context.Context, rpcURL string, contract common.Address, logger *zap.SugaredLogger) (*EthSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", rpcURL, err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EthSource{client: client, contract: contract, log: logger}, nil
}

// Scope identifies the network and contract, e.g. "1337:0xAbC...".
func (s *EthSource) Scope(ctx context.Context) (string, error) {
	id, err := s.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}
	return fmt.Sprintf("%s:%s", id.String(), s.contract.Hex()), nil
}

func (s *EthSource) Close() { s.client.Close() }

func (s *EthSource) query(kind Kind) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{Topic(kind)}},
	}
}

func (s *EthSource) FetchHistory(ctx context.Context, kind Kind, fromBlock uint64, toBlock *uint64) ([]Event, error) {
	q := s.query(kind)
	q.FromBlock = new(big.Int).SetUint64(fromBlock)
	if toBlock != nil {
		q.ToBlock = new(big.Int).SetUint64(*toBlock)
	}
	logs, err := s.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter %s logs: %w", kind, err)
	}

	out := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := DecodeLog(l)
		if err != nil {
			s.log.Warnw("ledger_log_rejected", "kind", kind.String(), "block", l.BlockNumber, "tx", l.TxHash.Hex(), "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *EthSource) Subscribe(ctx context.Context, kind Kind, handler func(Event)) (Subscription, error) {
	ch := make(chan types.Log, 64)
	sub, err := s.client.SubscribeFilterLogs(ctx, s.query(kind), ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s logs: %w", kind, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case err, ok := <-sub.Err():
				if ok && err != nil {
					s.log.Warnw("ledger_subscription_dropped", "kind", kind.String(), "err", err)
				}
				return
			case l := <-ch:
				if l.Removed {
					// the store is append-only; reorged logs are not retracted
					s.log.Warnw("ledger_log_removed", "kind", kind.String(), "block", l.BlockNumber, "tx", l.TxHash.Hex())
					continue
				}
				ev, err := DecodeLog(l)
				if err != nil {
					s.log.Warnw("ledger_log_rejected", "kind", kind.String(), "block", l.BlockNumber, "err", err)
					continue
				}
				handler(ev)
			}
		}
	}()
	return sub, nil
}

var _ Source = (*EthSource)(nil)

// MemorySource is an in-process ledger. History is served from what was set
// or emitted; Emit also pushes to live subscribers.
type MemorySource struct {
	mu      sync.Mutex
	history map[Kind][]Event
	subs    map[Kind]map[*memSub]struct{}
	failing map[Kind]error
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		history: make(map[Kind][]Event),
		subs:    make(map[Kind]map[*memSub]struct{}),
		failing: make(map[Kind]error),
	}
}

// SetHistory replaces the stored events of each kind present in evs.
func (m *MemorySource) SetHistory(evs ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[Kind]bool)
	for _, ev := range evs {
		if !seen[ev.Kind()] {
			m.history[ev.Kind()] = nil
			seen[ev.Kind()] = true
		}
		m.history[ev.Kind()] = append(m.history[ev.Kind()], ev)
	}
}

// FailHistory makes FetchHistory for kind return err (nil clears it).
func (m *MemorySource) FailHistory(kind Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[kind] = err
}

// Emit records ev and delivers it to current subscribers synchronously.
func (m *MemorySource) Emit(ev Event) {
	m.mu.Lock()
	m.history[ev.Kind()] = append(m.history[ev.Kind()], ev)
	var targets []*memSub
	for s := range m.subs[ev.Kind()] {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.deliver(ev)
	}
}

func (m *MemorySource) FetchHistory(ctx context.Context, kind Kind, fromBlock uint64, toBlock *uint64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing[kind]; err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range m.history[kind] {
		b := ev.Base().Meta.BlockNumber
		if b < fromBlock || (toBlock != nil && b > *toBlock) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *MemorySource) Subscribe(ctx context.Context, kind Kind, handler func(Event)) (Subscription, error) {
	s := &memSub{src: m, kind: kind, ctx: ctx, handler: handler, errc: make(chan error)}
	m.mu.Lock()
	if m.subs[kind] == nil {
		m.subs[kind] = make(map[*memSub]struct{})
	}
	m.subs[kind][s] = struct{}{}
	m.mu.Unlock()
	return s, nil
}

// Subscribers reports how many live subscriptions exist for kind.
func (m *MemorySource) Subscribers(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[kind])
}

type memSub struct {
	src     *MemorySource
	kind    Kind
	ctx     context.Context
	handler func(Event)
	errc    chan error
	once    sync.Once
}

func (s *memSub) deliver(ev Event) {
	if s.ctx.Err() != nil {
		s.Unsubscribe()
		return
	}
	s.handler(ev)
}

func (s *memSub) Unsubscribe() {
	s.once.Do(func() {
		s.src.mu.Lock()
		delete(s.src.subs[s.kind], s)
		s.src.mu.Unlock()
		close(s.errc)
	})
}

func (s *memSub) Err() <-chan error { return s.errc }

var _ Source = (*MemorySource)(nil)
