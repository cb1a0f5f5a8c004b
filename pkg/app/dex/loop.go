package dex

import (
	"context"

	tomb "gopkg.in/tomb.v2"

	"github.com/uhyunpark/dexview/pkg/app/views"
)

// Start runs the recompute loop until ctx is done or Close is called. Every
// store change schedules a recomputation; changes within the debounce window
// are coalesced.
func (a *App) Start(ctx context.Context) {
	t, _ := tomb.WithContext(ctx)
	a.mu.Lock()
	a.loop = t
	a.mu.Unlock()

	t.Go(func() error { return a.recomputeLoop(t) })
}

func (a *App) schedule() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *App) recomputeLoop(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case <-a.kick:
		}

		if a.cfg.Debounce > 0 {
			select {
			case <-t.Dying():
				return nil
			case <-a.clock.After(a.cfg.Debounce):
			}
			// kicks that landed during the wait are covered by this pass
			select {
			case <-a.kick:
			default:
			}
		}
		a.recompute()
	}
}

// recompute derives every pushed view from one snapshot.
func (a *App) recompute() {
	snap := a.store.Snapshot()
	up := Update{}

	var diags []views.Diagnostic
	if snap.Loaded() {
		open := views.OpenOrders(snap.Placed, snap.Cancelled, snap.Filled)
		book, d1 := a.views.OrderBook(open)
		tape, d2 := a.views.TradeTape(snap.Filled)
		candles, d3 := a.views.Candles(snap.Filled)
		up.OrderBook, up.Trades, up.Candles = book, tape, candles
		diags = append(append(append(diags, d1...), d2...), d3...)
	}

	a.mu.Lock()
	if snap.Loaded() {
		a.diags = diags
	}
	a.lastRecompute = a.clock.Now()
	a.mu.Unlock()

	up.Status = a.statusOf(snap)
	a.log.Debugw("views_recomputed",
		"generation", snap.Generation,
		"loaded", snap.Loaded(),
		"placed", len(snap.Placed),
		"cancelled", len(snap.Cancelled),
		"filled", len(snap.Filled),
		"diagnostics", len(diags),
	)
	if a.onUpdate != nil {
		a.onUpdate(up)
	}
}
