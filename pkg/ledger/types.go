package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EtherAddress is the reserved token address for the native asset.
var EtherAddress = common.Address{}

// Kind tags the three event streams emitted by the exchange contract.
type Kind uint8

const (
	KindPlaced Kind = iota + 1
	KindCancelled
	KindFilled
)

// Kinds lists every kind in backfill order (cancels and trades first, then orders).
var Kinds = []Kind{KindCancelled, KindFilled, KindPlaced}

func (k Kind) String() string {
	switch k {
	case KindPlaced:
		return "placed"
	case KindCancelled:
		return "cancelled"
	case KindFilled:
		return "filled"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// EventName is the Solidity event name for the kind.
func (k Kind) EventName() string {
	switch k {
	case KindPlaced:
		return "Order"
	case KindCancelled:
		return "Cancel"
	case KindFilled:
		return "Trade"
	default:
		return ""
	}
}

// Meta locates an event in the chain. Zero for events that did not come from a log.
type Meta struct {
	BlockNumber uint64      `json:"blockNumber"`
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
}

// Order is the shared shape of all three events. Amounts are in the smallest
// unit and travel as decimal strings in JSON.
type Order struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  Amount         `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive Amount         `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
	Meta       Meta           `json:"meta"`
}

// IsBuy reports whether the maker gives ether to get tokens.
func (o Order) IsBuy() bool { return o.TokenGive == EtherAddress }

// Trade is a filled order; UserFill is the taker.
type Trade struct {
	Order
	UserFill common.Address `json:"userFill"`
}

// Event is one of Placed, Cancelled or Filled.
type Event interface {
	Kind() Kind
	Base() Order
}

type Placed struct{ Order }

type Cancelled struct{ Order }

type Filled struct{ Trade }

func (Placed) Kind() Kind       { return KindPlaced }
func (e Placed) Base() Order    { return e.Order }
func (Cancelled) Kind() Kind    { return KindCancelled }
func (e Cancelled) Base() Order { return e.Order }
func (Filled) Kind() Kind       { return KindFilled }
func (e Filled) Base() Order    { return e.Trade.Order }

var (
	_ Event = Placed{}
	_ Event = Cancelled{}
	_ Event = Filled{}
)
