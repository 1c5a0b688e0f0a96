package marketdata

import "exchangecore/internal/money"

// Interval is a supported candle bucket width.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// intervalSeconds is the bucket width for each supported interval
// (spec.md §4.3 "bucket = floor(ts / interval)").
var intervalSeconds = map[Interval]int64{
	Interval1m:  60,
	Interval5m:  5 * 60,
	Interval15m: 15 * 60,
	Interval1h:  60 * 60,
	Interval4h:  4 * 60 * 60,
	Interval1d:  24 * 60 * 60,
}

// Intervals lists every supported interval, in ascending width.
var Intervals = []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d}

// bucketStart returns the UTC epoch-second start of the bucket
// containing unixSeconds, per spec.md §4.3's "Buckets align to UTC
// epoch boundaries".
func bucketStart(interval Interval, unixSeconds int64) int64 {
	width := intervalSeconds[interval]
	if width == 0 {
		width = 60
	}
	return (unixSeconds / width) * width
}

// Candle is one OHLCV bucket (spec.md §3 glossary).
type Candle struct {
	BucketStart int64        `json:"bucket_start"`
	Open        money.Amount `json:"open"`
	High        money.Amount `json:"high"`
	Low         money.Amount `json:"low"`
	Close       money.Amount `json:"close"`
	Volume      money.Amount `json:"volume"`

	opened bool
}

// newCandle starts an empty bucket at bucketStart.
func newCandle(bucketStart int64) Candle {
	return Candle{BucketStart: bucketStart}
}

// applyTrade folds one trade into the candle, per spec.md §9: the first
// trade in a bucket sets open=high=low=close=price, volume=quantity;
// later trades in the same bucket extend high/low/close and add volume.
func (c *Candle) applyTrade(price, quantity money.Amount) {
	if !c.opened {
		c.Open = price
		c.High = price
		c.Low = price
		c.Close = price
		c.Volume = quantity
		c.opened = true
		return
	}
	if price.GreaterThan(c.High) {
		c.High = price
	}
	if price.LessThan(c.Low) {
		c.Low = price
	}
	c.Close = price
	c.Volume = c.Volume.Add(quantity)
}
