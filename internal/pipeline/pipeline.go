// FILE: internal/pipeline/pipeline.go
// Package pipeline implements spec §4.3: the indicator/signal pipeline as
// an ordered list of polymorphic Stage units. Grounded on the teacher's
// indicators.go (SMA/RSI/ZScore) and strategy.go (decide's EMA-cross regime
// filter), generalized from one hard-coded strategy into pluggable Stage
// values.
package pipeline

import (
	"fmt"

	"github.com/chidi150c/tradekernel/internal/market"
)

// Kind distinguishes the three fixed stage phases. Ordering between phases
// is fixed (pre-indicators -> indicators -> signals); ordering within a
// phase does not matter, per spec §4.3.
type Kind int

const (
	KindPreIndicator Kind = iota
	KindIndicator
	KindSignal
)

// Stage is a pipeline unit. Fit recomputes its columns over the whole
// table; Update must produce a last row identical to what Fit would have
// produced (the live-incremental invariant spec §8 property 3 tests).
// PatchSymbols lets a stage pick up a new anchor/traded symbol pairing
// without reconstruction.
type Stage interface {
	Name() string
	Kind() Kind
	Fit(t *market.TradingTable, symbol string) error
	Update(t *market.TradingTable, symbol string) error
	PatchSymbols(pair market.SymbolsPair)
}

// Pipeline runs an ordered set of stages over a table, keyed to one symbol
// (normally the SymbolsPair.Anchor).
type Pipeline struct {
	symbol string
	stages []Stage
}

// New builds a pipeline that decorates columns for the given symbol. Stages
// are sorted into the fixed pre-indicator/indicator/signal ordering;
// relative order within a phase is preserved from the input slice.
func New(symbol string, stages ...Stage) *Pipeline {
	ordered := make([]Stage, 0, len(stages))
	for _, k := range []Kind{KindPreIndicator, KindIndicator, KindSignal} {
		for _, s := range stages {
			if s.Kind() == k {
				ordered = append(ordered, s)
			}
		}
	}
	return &Pipeline{symbol: symbol, stages: ordered}
}

// Fit runs every stage's Fit in order over the whole table.
func (p *Pipeline) Fit(t *market.TradingTable) error {
	for _, s := range p.stages {
		if err := s.Fit(t, p.symbol); err != nil {
			return fmt.Errorf("pipeline: stage %s fit: %w", s.Name(), err)
		}
	}
	return nil
}

// Update runs every stage's Update over just the tail row, in order, so a
// later stage (e.g. a signal) sees the earlier stage's (e.g. an indicator)
// freshly-updated tail value.
func (p *Pipeline) Update(t *market.TradingTable) error {
	for _, s := range p.stages {
		if err := s.Update(t, p.symbol); err != nil {
			return fmt.Errorf("pipeline: stage %s update: %w", s.Name(), err)
		}
	}
	return nil
}

// PatchSymbols propagates a new SymbolsPair to every stage and updates the
// pipeline's own anchor-symbol key.
func (p *Pipeline) PatchSymbols(pair market.SymbolsPair) {
	p.symbol = pair.Anchor.Name
	for _, s := range p.stages {
		s.PatchSymbols(pair)
	}
}

// SignalColumns lists the fixed set of 0/1 signal columns the spec defines.
var SignalColumns = []string{"go_long", "go_short", "close_long", "close_short", "close_position", "revert_position"}

func closeSeries(t *market.TradingTable, symbol string) []float64 {
	out := make([]float64, t.Len())
	for i, row := range t.Rows {
		out[i] = row.Symbols[symbol].Close
	}
	return out
}
