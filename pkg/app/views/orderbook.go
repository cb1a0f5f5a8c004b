package views

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// OpenOrders keeps the placed orders whose id appears in neither cancelled
// nor filled, in placed order.
func OpenOrders(placed, cancelled []ledger.Order, filled []ledger.Trade) []ledger.Order {
	closed := make(map[uint64]struct{}, len(cancelled)+len(filled))
	for _, o := range cancelled {
		closed[o.ID] = struct{}{}
	}
	for _, t := range filled {
		closed[t.ID] = struct{}{}
	}

	open := make([]ledger.Order, 0, len(placed))
	for _, o := range placed {
		if _, ok := closed[o.ID]; !ok {
			open = append(open, o)
		}
	}
	return open
}

type OrderBook struct {
	BuyOrders  []DecoratedOrder `json:"buyOrders"`
	SellOrders []DecoratedOrder `json:"sellOrders"`
}

// OrderBook decorates the open orders and splits them by side. Each side is
// sorted by descending price, ties by ascending id.
func (b *Builder) OrderBook(open []ledger.Order) (OrderBook, []Diagnostic) {
	book := OrderBook{
		BuyOrders:  make([]DecoratedOrder, 0),
		SellOrders: make([]DecoratedOrder, 0),
	}
	var diags []Diagnostic

	for _, o := range open {
		d, err := b.Decorate(o)
		if err != nil {
			diags = append(diags, b.reject("orderbook", o.ID, err))
			continue
		}
		d.OrderFillAction = d.OrderType.Opposite()
		if d.OrderType == Buy {
			book.BuyOrders = append(book.BuyOrders, d)
		} else {
			book.SellOrders = append(book.SellOrders, d)
		}
	}

	sortByPrice(book.BuyOrders)
	sortByPrice(book.SellOrders)
	return book, diags
}

func sortByPrice(orders []DecoratedOrder) {
	sort.Slice(orders, func(i, j int) bool {
		if c := orders[i].TokenPrice.Cmp(orders[j].TokenPrice); c != 0 {
			return c > 0
		}
		return orders[i].ID < orders[j].ID
	})
}

// AccountOpen lists the account's open orders as maker, newest first.
func (b *Builder) AccountOpen(open []ledger.Order, account common.Address) ([]DecoratedOrder, []Diagnostic) {
	out := make([]DecoratedOrder, 0)
	var diags []Diagnostic
	for _, o := range open {
		if o.User != account {
			continue
		}
		d, err := b.Decorate(o)
		if err != nil {
			diags = append(diags, b.reject("account_open", o.ID, err))
			continue
		}
		out = append(out, d)
	}
	sortByTime(out, true)
	return out, diags
}

// sortByTime orders by timestamp then id, both ascending unless desc.
func sortByTime(orders []DecoratedOrder, desc bool) {
	sort.Slice(orders, func(i, j int) bool {
		a, c := orders[i], orders[j]
		if desc {
			a, c = c, a
		}
		if a.Timestamp != c.Timestamp {
			return a.Timestamp < c.Timestamp
		}
		return a.ID < c.ID
	})
}
