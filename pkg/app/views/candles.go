package views

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// Candle summarises the trades of one hour.
type Candle struct {
	BucketStart int64           `json:"bucketStart"` // unix seconds
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"` // token amount
	Trades      int             `json:"trades"`
}

type CandleSeries struct {
	LastPrice       decimal.Decimal `json:"lastPrice"`
	LastPriceChange string          `json:"lastPriceChange"`
	Candles         []Candle        `json:"candles"`
}

// BucketStart returns the start of the hour containing ts in the builder's
// bucket location. The offset in effect at ts is used, so the repeated hour
// of a DST fall-back yields two distinct buckets.
func (b *Builder) BucketStart(ts int64) int64 {
	_, off := time.Unix(ts, 0).In(b.buckets).Zone()
	r := (ts + int64(off)) % 3600
	if r < 0 {
		r += 3600
	}
	return ts - r
}

// Candles buckets fills by hour. Buckets come out ascending by start.
func (b *Builder) Candles(filled []ledger.Trade) (CandleSeries, []Diagnostic) {
	trades, diags := b.chronological("candles", filled, nil)

	buckets := btree.NewBTreeG(func(a, c *Candle) bool {
		return a.BucketStart < c.BucketStart
	})
	for _, t := range trades {
		start := b.BucketStart(t.Timestamp)
		c, ok := buckets.Get(&Candle{BucketStart: start})
		if !ok {
			buckets.Set(&Candle{
				BucketStart: start,
				Open:        t.TokenPrice,
				High:        t.TokenPrice,
				Low:         t.TokenPrice,
				Close:       t.TokenPrice,
				Volume:      t.TokenAmount,
				Trades:      1,
			})
			continue
		}
		if t.TokenPrice.GreaterThan(c.High) {
			c.High = t.TokenPrice
		}
		if t.TokenPrice.LessThan(c.Low) {
			c.Low = t.TokenPrice
		}
		c.Close = t.TokenPrice
		c.Volume = c.Volume.Add(t.TokenAmount)
		c.Trades++
	}

	series := CandleSeries{
		LastPrice:       decimal.Zero,
		LastPriceChange: "+",
		Candles:         make([]Candle, 0, buckets.Len()),
	}
	buckets.Scan(func(c *Candle) bool {
		series.Candles = append(series.Candles, *c)
		return true
	})

	if n := len(trades); n > 0 {
		series.LastPrice = trades[n-1].TokenPrice
		if n >= 2 && trades[n-1].TokenPrice.LessThan(trades[n-2].TokenPrice) {
			series.LastPriceChange = "-"
		}
	}
	return series, diags
}
