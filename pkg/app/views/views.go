// Package views derives display-ready market views from snapshots of the
// event store. Every builder is a pure function of its inputs; a record that
// cannot be decorated is dropped from the view and reported as a Diagnostic.
package views

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

const (
	// Decimals is the denomination of both ether and the traded token.
	Decimals = 18
	// PricePlaces is the rounding applied to tokenPrice.
	PricePlaces = 4
	// TimestampLayout renders as "h:mm:ss A M/D".
	TimestampLayout = "3:04:05 PM 1/2"
)

// ErrInvalidOrder marks an order whose amounts do not define a price.
var ErrInvalidOrder = errors.New("invalid order")

// InvalidOrderError carries the offending order id.
type InvalidOrderError struct {
	ID     uint64
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order %d: %s", e.ID, e.Reason)
}

func (e *InvalidOrderError) Unwrap() error { return ErrInvalidOrder }

// Diagnostic records a record excluded from a view.
type Diagnostic struct {
	View   string `json:"view"`
	ID     uint64 `json:"id"`
	Reason string `json:"reason"`
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite is the counterparty's side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Class returns the display class for the side.
func (s Side) Class() Class {
	if s == Buy {
		return Green
	}
	return Red
}

// Sign is "+" for buys and "-" for sells.
func (s Side) Sign() string {
	if s == Buy {
		return "+"
	}
	return "-"
}

type Class string

const (
	Green Class = "green"
	Red   Class = "red"
)

// DecoratedOrder is a raw event enriched with price and classification.
// The trailing fields are only set by the views that define them.
type DecoratedOrder struct {
	ledger.Order
	UserFill *common.Address `json:"userFill,omitempty"`

	EtherAmount        decimal.Decimal `json:"etherAmount"`
	TokenAmount        decimal.Decimal `json:"tokenAmount"`
	TokenPrice         decimal.Decimal `json:"tokenPrice"`
	FormattedTimestamp string          `json:"formattedTimestamp"`
	OrderType          Side            `json:"orderType"`
	OrderTypeClass     Class           `json:"orderTypeClass"`

	OrderFillAction Side   `json:"orderFillAction,omitempty"` // order book
	TokenPriceClass Class  `json:"tokenPriceClass,omitempty"` // trade tape
	OrderSign       string `json:"orderSign,omitempty"`       // account trades
}

// Options configures a Builder. Nil locations default to UTC.
type Options struct {
	// DisplayLocation is used for FormattedTimestamp.
	DisplayLocation *time.Location
	// BucketLocation defines hour boundaries for candles.
	BucketLocation *time.Location
	Logger         *zap.SugaredLogger
}

// Builder holds the deployment-wide settings shared by all views.
type Builder struct {
	display *time.Location
	buckets *time.Location
	log     *zap.SugaredLogger
}

func NewBuilder(opts Options) *Builder {
	b := &Builder{
		display: opts.DisplayLocation,
		buckets: opts.BucketLocation,
		log:     opts.Logger,
	}
	if b.display == nil {
		b.display = time.UTC
	}
	if b.buckets == nil {
		b.buckets = time.UTC
	}
	if b.log == nil {
		b.log = zap.NewNop().Sugar()
	}
	return b
}

// reject turns a decoration failure into a diagnostic.
func (b *Builder) reject(view string, id uint64, err error) Diagnostic {
	b.log.Warnw("view_record_excluded", "view", view, "id", id, "err", err)
	return Diagnostic{View: view, ID: id, Reason: err.Error()}
}
