// FILE: internal/barclock/clock.go
// Package barclock implements spec §4.1: partitioning a tick stream into
// completed, granularity-aligned bars. Grounded on the teacher's
// live.go tick-to-candle handling (applyTickToLastCandle), generalized from
// a single symbol to the multi-symbol consolidated Bar the spec requires.
package barclock

import (
	"sort"

	"github.com/chidi150c/tradekernel/internal/market"
)

// secondBucket collapses same-second ticks before downsampling to the bar.
type secondBucket struct {
	open, high, low, close, volume float64
	order                          int // first-seen order, to recover "earliest" on tie
}

type symbolAccum struct {
	buckets map[int64]*secondBucket
	seq     int
}

// Clock aggregates ticks for a fixed set of symbols into closed bars at a
// single granularity. Not safe for concurrent use: it is driven by exactly
// one goroutine (the BarProcessor), per spec §5.
type Clock struct {
	granularity market.Granularity
	minStart    int64 // ticks before this are discarded (benchmark-end guard)
	stageStart  int64
	staging     map[string]*symbolAccum
	known       map[string]bool // previous bar's symbol set, for flat-bar carry
	lastOHLC    map[string]market.OHLC
}

// New creates a Clock. minStart is the earliest unix-second timestamp that
// will be accepted; ticks older than this are discarded to avoid
// double-counting with the historical bootstrap fetch (spec §4.1).
func New(g market.Granularity, minStart int64) *Clock {
	return &Clock{
		granularity: g,
		minStart:    minStart,
		staging:     make(map[string]*symbolAccum),
		lastOHLC:    make(map[string]market.OHLC),
	}
}

// Ingest feeds one tick into the clock. It returns the just-committed Bar
// and true when this tick crosses a bar boundary, or the zero Bar and false
// otherwise.
func (c *Clock) Ingest(tick market.TickData) (market.Bar, bool) {
	if tick.StartTime < c.minStart {
		return market.Bar{}, false
	}
	if err := tick.Validate(); err != nil {
		return market.Bar{}, false
	}

	aligned := c.granularity.AlignedStart(tick.StartTime)

	if c.stageStart == 0 {
		c.stageStart = aligned
	}

	if aligned == c.stageStart {
		c.appendTick(tick)
		return market.Bar{}, false
	}

	// Boundary crossed: commit the staging bar, then start fresh staging
	// with this tick as the first of the new bar.
	committed := c.commit()
	c.stageStart = aligned
	c.staging = make(map[string]*symbolAccum)
	c.appendTick(tick)
	return committed, true
}

func (c *Clock) appendTick(tick market.TickData) {
	acc, ok := c.staging[tick.Symbol]
	if !ok {
		acc = &symbolAccum{buckets: make(map[int64]*secondBucket)}
		c.staging[tick.Symbol] = acc
	}
	sec := tick.StartTime
	b, ok := acc.buckets[sec]
	if !ok {
		acc.seq++
		b = &secondBucket{open: tick.Open, high: tick.High, low: tick.Low, close: tick.Close, volume: tick.Volume, order: acc.seq}
		acc.buckets[sec] = b
		return
	}
	// Out-of-order ticks within the same second merge into one bucket:
	// open stays the earliest-seen value, close becomes the latest, high/low extend.
	b.close = tick.Close
	b.volume += tick.Volume
	if tick.High > b.high {
		b.high = tick.High
	}
	if tick.Low < b.low {
		b.low = tick.Low
	}
}

func (c *Clock) commit() market.Bar {
	bar := market.Bar{StartTime: c.stageStart, Symbols: make(map[string]market.OHLC)}

	// Every symbol seen in any prior bar must appear in this one too
	// (possibly as a flat bar), per the §4.1 edge case.
	seen := make(map[string]bool)
	for sym, acc := range c.staging {
		seen[sym] = true
		ohlc := collapse(acc)
		bar.Symbols[sym] = ohlc
		c.lastOHLC[sym] = ohlc
	}
	for sym, prev := range c.lastOHLC {
		if !seen[sym] {
			flat := market.OHLC{Open: prev.Close, High: prev.Close, Low: prev.Close, Close: prev.Close}
			bar.Symbols[sym] = flat
			c.lastOHLC[sym] = flat
		}
	}
	return bar
}

func collapse(acc *symbolAccum) market.OHLC {
	secs := make([]int64, 0, len(acc.buckets))
	for s := range acc.buckets {
		secs = append(secs, s)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })

	var ohlc market.OHLC
	for i, s := range secs {
		b := acc.buckets[s]
		if i == 0 {
			ohlc.Open = b.open
			ohlc.High = b.high
			ohlc.Low = b.low
		} else {
			if b.high > ohlc.High {
				ohlc.High = b.high
			}
			if b.low < ohlc.Low {
				ohlc.Low = b.low
			}
		}
		ohlc.Close = b.close
		ohlc.Volume += b.volume
	}
	return ohlc
}
