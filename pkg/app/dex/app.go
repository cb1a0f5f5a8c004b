// Package dex is the application root. It owns the event store, wires a
// ledger source into it and serves the derived views.
package dex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	tomb "gopkg.in/tomb.v2"

	"github.com/uhyunpark/dexview/pkg/app/store"
	"github.com/uhyunpark/dexview/pkg/app/views"
	"github.com/uhyunpark/dexview/pkg/ledger"
	"github.com/uhyunpark/dexview/pkg/util"
)

// ErrNotLoaded is returned by the view accessors until all three event
// collections have finished their initial backfill.
var ErrNotLoaded = errors.New("views not loaded")

// Journal persists events per network scope. storage.PebbleStore implements it.
type Journal interface {
	SaveEvents(scope string, events []ledger.Event) error
	LoadEvents(scope string, kind ledger.Kind) ([]ledger.Event, int, error)
	Checkpoint(scope string, kind ledger.Kind) (uint64, bool, error)
	SetCheckpoint(scope string, kind ledger.Kind, block uint64) error
}

type Config struct {
	// FromBlock is the first block backfilled when no checkpoint exists.
	FromBlock uint64
	// Debounce coalesces bursts of events into one recomputation.
	Debounce time.Duration
}

type Options struct {
	Config
	Views   *views.Builder
	Journal Journal // optional
	Clock   util.Clock
	Logger  *zap.SugaredLogger
	// OnUpdate receives the views after every recomputation. It runs on the
	// recompute goroutine and should not block.
	OnUpdate func(Update)
}

// Update is the result of one recomputation.
type Update struct {
	Status    Status
	OrderBook views.OrderBook
	Trades    []views.DecoratedOrder
	Candles   views.CandleSeries
}

type App struct {
	cfg      Config
	store    *store.Store
	views    *views.Builder
	journal  Journal
	clock    util.Clock
	log      *zap.SugaredLogger
	onUpdate func(Update)

	connMu sync.Mutex // serializes Connect and Close

	mu            sync.Mutex
	sess          *session
	diags         []views.Diagnostic
	lastRecompute time.Time

	kick chan struct{}
	loop *tomb.Tomb
}

// session is one Connect: a store generation plus the subscriptions and
// backfills feeding it.
type session struct {
	gen    store.Generation
	scope  string
	cancel context.CancelFunc
	t      *tomb.Tomb
	subs   []ledger.Subscription
	errs   map[ledger.Kind]error
}

func New(opts Options) *App {
	a := &App{
		cfg:      opts.Config,
		store:    store.New(),
		views:    opts.Views,
		journal:  opts.Journal,
		clock:    opts.Clock,
		log:      opts.Logger,
		onUpdate: opts.OnUpdate,
		kick:     make(chan struct{}, 1),
	}
	if a.views == nil {
		a.views = views.NewBuilder(views.Options{Logger: opts.Logger})
	}
	if a.clock == nil {
		a.clock = util.RealClock{}
	}
	if a.log == nil {
		a.log = zap.NewNop().Sugar()
	}
	return a
}

// Connect resets the store and starts reading src. Subscriptions are opened
// before the backfills so no event produced during backfill is missed. scope
// names the network and contract for the journal; empty disables journaling.
// A previous session is cancelled and none of its results reach the store.
func (a *App) Connect(ctx context.Context, src ledger.Source, scope string) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	a.stopSession()

	gen := a.store.Reset()
	sctx, cancel := context.WithCancel(ctx)
	t, tctx := tomb.WithContext(sctx)
	sess := &session{
		gen:    gen,
		scope:  scope,
		cancel: cancel,
		t:      t,
		errs:   make(map[ledger.Kind]error),
	}

	// tctx ends once the backfills are done; subscriptions live for the session
	for _, kind := range ledger.Kinds {
		sub, err := src.Subscribe(sctx, kind, func(ev ledger.Event) { a.onLive(sess, ev) })
		if err != nil {
			for _, s := range sess.subs {
				s.Unsubscribe()
			}
			cancel()
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		sess.subs = append(sess.subs, sub)
	}

	a.mu.Lock()
	a.sess = sess
	a.diags = nil
	a.mu.Unlock()

	a.log.Infow("ledger_connected", "scope", scope, "generation", gen, "from_block", a.cfg.FromBlock)

	for _, kind := range ledger.Kinds {
		t.Go(func() error { return a.backfill(tctx, src, sess, kind) })
	}
	a.schedule()
	return nil
}

// stopSession cancels the current session and waits for its backfills.
func (a *App) stopSession() {
	a.mu.Lock()
	sess := a.sess
	a.sess = nil
	a.mu.Unlock()
	if sess == nil {
		return
	}
	sess.cancel()
	for _, s := range sess.subs {
		s.Unsubscribe()
	}
	_ = sess.t.Wait()
	a.log.Infow("ledger_disconnected", "scope", sess.scope, "generation", sess.gen)
}

func (a *App) backfill(ctx context.Context, src ledger.Source, sess *session, kind ledger.Kind) error {
	from := a.cfg.FromBlock
	var warm []ledger.Event
	if a.journaling(sess) {
		warm, from = a.warmStart(sess.scope, kind, from)
	}

	fetched, err := src.FetchHistory(ctx, kind, from, nil)
	if ctx.Err() != nil {
		// superseded; nothing from this request may reach the store
		return nil
	}
	if err != nil {
		a.mu.Lock()
		sess.errs[kind] = err
		a.mu.Unlock()
		a.log.Errorw("backfill_failed", "kind", kind.String(), "generation", sess.gen, "err", err)
		a.schedule()
		return fmt.Errorf("backfill %s: %w", kind, err)
	}

	events := append(warm, fetched...)
	added, err := a.store.Load(sess.gen, kind, events)
	if errors.Is(err, store.ErrStaleGeneration) {
		a.log.Debugw("backfill_discarded", "kind", kind.String(), "generation", sess.gen)
		return nil
	}
	if err != nil {
		return err
	}

	if a.journaling(sess) {
		a.persist(sess.scope, kind, fetched)
	}
	a.log.Infow("backfill_done",
		"kind", kind.String(),
		"from_block", from,
		"journaled", len(warm),
		"fetched", len(fetched),
		"added", added,
	)
	a.schedule()
	return nil
}

func (a *App) journaling(sess *session) bool {
	return a.journal != nil && sess.scope != ""
}

// warmStart loads journaled events and moves the backfill start past the
// checkpoint. Journal failures fall back to a full backfill.
func (a *App) warmStart(scope string, kind ledger.Kind, from uint64) ([]ledger.Event, uint64) {
	cp, ok, err := a.journal.Checkpoint(scope, kind)
	if err != nil {
		a.log.Warnw("journal_checkpoint_failed", "kind", kind.String(), "err", err)
		return nil, from
	}
	if !ok || cp < from {
		return nil, from
	}

	stored, skipped, err := a.journal.LoadEvents(scope, kind)
	if err != nil {
		a.log.Warnw("journal_load_failed", "kind", kind.String(), "err", err)
		return nil, from
	}
	if skipped > 0 {
		a.log.Warnw("journal_entries_skipped", "kind", kind.String(), "skipped", skipped)
	}
	warm := stored[:0]
	for _, ev := range stored {
		if ev.Base().Meta.BlockNumber >= from {
			warm = append(warm, ev)
		}
	}
	return warm, cp + 1
}

// persist journals a completed backfill and advances the checkpoint to the
// highest block it contained.
func (a *App) persist(scope string, kind ledger.Kind, events []ledger.Event) {
	if len(events) == 0 {
		return
	}
	if err := a.journal.SaveEvents(scope, events); err != nil {
		a.log.Warnw("journal_save_failed", "kind", kind.String(), "err", err)
		return
	}
	var last uint64
	for _, ev := range events {
		if b := ev.Base().Meta.BlockNumber; b > last {
			last = b
		}
	}
	if err := a.journal.SetCheckpoint(scope, kind, last); err != nil {
		a.log.Warnw("journal_checkpoint_failed", "kind", kind.String(), "err", err)
	}
}

func (a *App) onLive(sess *session, ev ledger.Event) {
	added, err := a.store.Append(sess.gen, ev)
	if err != nil {
		a.log.Debugw("live_event_discarded", "kind", ev.Kind().String(), "id", ev.Base().ID, "err", err)
		return
	}
	if !added {
		return
	}
	// Live events never move the checkpoint; a restart refetches past it
	// and the store drops the duplicates.
	if a.journaling(sess) {
		if err := a.journal.SaveEvents(sess.scope, []ledger.Event{ev}); err != nil {
			a.log.Warnw("journal_save_failed", "kind", ev.Kind().String(), "err", err)
		}
	}
	a.schedule()
}

// WaitLoaded blocks until every collection is loaded, a backfill fails or
// ctx is done. A failed backfill ends the session's backfills; live events
// keep flowing but the views stay not loaded until the next Connect.
func (a *App) WaitLoaded(ctx context.Context) error {
	a.mu.Lock()
	sess := a.sess
	a.mu.Unlock()
	if sess == nil {
		return ErrNotLoaded
	}

	ready := a.store.Ready()
	select {
	case <-ready:
		return nil
	case <-sess.t.Dying():
		select {
		case <-ready:
			return nil
		default:
		}
		if err := sess.t.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", ErrNotLoaded, err)
		}
		return fmt.Errorf("session ended before backfill completed: %w", ErrNotLoaded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the current session and stops the recompute loop.
func (a *App) Close() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	a.stopSession()

	a.mu.Lock()
	loop := a.loop
	a.loop = nil
	a.mu.Unlock()
	if loop == nil {
		return nil
	}
	loop.Kill(nil)
	if err := loop.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Scope returns the scope of the current session.
func (a *App) Scope() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return ""
	}
	return a.sess.scope
}

func (a *App) loadedSnapshot() (store.Snapshot, error) {
	snap := a.store.Snapshot()
	if !snap.Loaded() {
		return snap, ErrNotLoaded
	}
	return snap, nil
}

func (a *App) OrderBook() (views.OrderBook, error) {
	snap, err := a.loadedSnapshot()
	if err != nil {
		return views.OrderBook{}, err
	}
	book, _ := a.views.OrderBook(views.OpenOrders(snap.Placed, snap.Cancelled, snap.Filled))
	return book, nil
}

// TradeTape returns every fill, newest first.
func (a *App) TradeTape() ([]views.DecoratedOrder, error) {
	snap, err := a.loadedSnapshot()
	if err != nil {
		return nil, err
	}
	tape, _ := a.views.TradeTape(snap.Filled)
	return tape, nil
}

func (a *App) AccountFilled(account common.Address) ([]views.DecoratedOrder, error) {
	snap, err := a.loadedSnapshot()
	if err != nil {
		return nil, err
	}
	out, _ := a.views.AccountFilled(snap.Filled, account)
	return out, nil
}

func (a *App) AccountOpen(account common.Address) ([]views.DecoratedOrder, error) {
	snap, err := a.loadedSnapshot()
	if err != nil {
		return nil, err
	}
	out, _ := a.views.AccountOpen(views.OpenOrders(snap.Placed, snap.Cancelled, snap.Filled), account)
	return out, nil
}

func (a *App) Candles() (views.CandleSeries, error) {
	snap, err := a.loadedSnapshot()
	if err != nil {
		return views.CandleSeries{}, err
	}
	series, _ := a.views.Candles(snap.Filled)
	return series, nil
}
