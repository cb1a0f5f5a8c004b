package views

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// chronological decorates fills and sorts them oldest first.
func (b *Builder) chronological(view string, filled []ledger.Trade, keep func(ledger.Trade) bool) ([]DecoratedOrder, []Diagnostic) {
	out := make([]DecoratedOrder, 0, len(filled))
	var diags []Diagnostic
	for _, t := range filled {
		if keep != nil && !keep(t) {
			continue
		}
		d, err := b.decorateTrade(t)
		if err != nil {
			diags = append(diags, b.reject(view, t.ID, err))
			continue
		}
		out = append(out, d)
	}
	sortByTime(out, false)
	return out, diags
}

// TradeTape returns every fill newest first. TokenPriceClass is computed in
// chronological order: the oldest trade is green, later ones are green when
// their price is at least the previous trade's.
func (b *Builder) TradeTape(filled []ledger.Trade) ([]DecoratedOrder, []Diagnostic) {
	trades, diags := b.chronological("trades", filled, nil)

	var prev *DecoratedOrder
	for i := range trades {
		cur := &trades[i]
		cur.TokenPriceClass = Green
		if prev != nil && cur.TokenPrice.LessThan(prev.TokenPrice) {
			cur.TokenPriceClass = Red
		}
		prev = cur
	}

	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, diags
}

// AccountFilled lists the fills the account took part in, oldest first. The
// side is the account's own: a maker keeps the order's side, a taker gets the
// opposite one.
func (b *Builder) AccountFilled(filled []ledger.Trade, account common.Address) ([]DecoratedOrder, []Diagnostic) {
	trades, diags := b.chronological("account_trades", filled, func(t ledger.Trade) bool {
		return t.User == account || t.UserFill == account
	})

	for i := range trades {
		d := &trades[i]
		if d.User != account {
			d.OrderType = d.OrderType.Opposite()
			d.OrderTypeClass = d.OrderType.Class()
		}
		d.OrderSign = d.OrderType.Sign()
	}
	return trades, diags
}
