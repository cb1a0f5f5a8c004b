package dex

import (
	"github.com/uhyunpark/dexview/pkg/app/store"
	"github.com/uhyunpark/dexview/pkg/app/views"
	"github.com/uhyunpark/dexview/pkg/ledger"
)

type KindStatus struct {
	Loaded bool   `json:"loaded"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

// Status describes the loading state of the current session.
type Status struct {
	Scope         string                `json:"scope"`
	Generation    store.Generation      `json:"generation"`
	Loaded        bool                  `json:"loaded"`
	Kinds         map[string]KindStatus `json:"kinds"`
	LastRecompute int64                 `json:"lastRecompute,omitempty"` // unix ms
	Diagnostics   []views.Diagnostic    `json:"diagnostics,omitempty"`
}

func (a *App) Status() Status {
	return a.statusOf(a.store.Snapshot())
}

func (a *App) statusOf(snap store.Snapshot) Status {
	counts := map[ledger.Kind]int{
		ledger.KindPlaced:    len(snap.Placed),
		ledger.KindCancelled: len(snap.Cancelled),
		ledger.KindFilled:    len(snap.Filled),
	}

	st := Status{
		Generation: snap.Generation,
		Loaded:     snap.Loaded(),
		Kinds:      make(map[string]KindStatus, len(ledger.Kinds)),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var errs map[ledger.Kind]error
	if a.sess != nil && a.sess.gen == snap.Generation {
		st.Scope = a.sess.scope
		errs = a.sess.errs
	}
	for _, k := range ledger.Kinds {
		ks := KindStatus{Loaded: snap.LoadedKind[k], Count: counts[k]}
		if err := errs[k]; err != nil {
			ks.Error = err.Error()
		}
		st.Kinds[k.String()] = ks
	}
	if !a.lastRecompute.IsZero() {
		st.LastRecompute = a.lastRecompute.UnixMilli()
	}
	st.Diagnostics = append([]views.Diagnostic(nil), a.diags...)
	return st
}
