package views

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// Decorate computes side, amounts, price and timestamp for one order from the
// maker's perspective. It fails with an *InvalidOrderError when either amount
// is missing or non-positive.
func (b *Builder) Decorate(o ledger.Order) (DecoratedOrder, error) {
	if !positive(o.AmountGet.Int) {
		return DecoratedOrder{}, &InvalidOrderError{ID: o.ID, Reason: "non-positive amountGet"}
	}
	if !positive(o.AmountGive.Int) {
		return DecoratedOrder{}, &InvalidOrderError{ID: o.ID, Reason: "non-positive amountGive"}
	}

	var etherWei, tokenWei *big.Int
	side := Sell
	if o.IsBuy() {
		etherWei, tokenWei = o.AmountGive.Int, o.AmountGet.Int
		side = Buy
	} else {
		etherWei, tokenWei = o.AmountGet.Int, o.AmountGive.Int
	}

	etherAmount := decimal.NewFromBigInt(etherWei, -Decimals)
	tokenAmount := decimal.NewFromBigInt(tokenWei, -Decimals)

	return DecoratedOrder{
		Order:              o,
		EtherAmount:        etherAmount,
		TokenAmount:        tokenAmount,
		TokenPrice:         etherAmount.DivRound(tokenAmount, PricePlaces),
		FormattedTimestamp: time.Unix(o.Timestamp, 0).In(b.display).Format(TimestampLayout),
		OrderType:          side,
		OrderTypeClass:     side.Class(),
	}, nil
}

// decorateTrade decorates a fill and attaches the taker.
func (b *Builder) decorateTrade(t ledger.Trade) (DecoratedOrder, error) {
	d, err := b.Decorate(t.Order)
	if err != nil {
		return d, err
	}
	fill := t.UserFill
	d.UserFill = &fill
	return d, nil
}

func positive(n *big.Int) bool { return n != nil && n.Sign() > 0 }
