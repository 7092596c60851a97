// FILE: internal/market/table.go
package market

import (
	"fmt"
	"math"
)

// Column holds one derived (indicator or signal) series, one value per row,
// aligned 1:1 with Table.Rows by index.
type Column []float64

// TradingTable is the decorated, columnar frame the whole kernel reads and
// writes. Rows are dense in time (no gaps) and strictly increasing in
// StartTime by exactly Granularity.Seconds(). Indicator/signal columns are
// appended by the pipeline; §9 requires only that left-join on StartTime and
// per-column update are O(rows) and tail(1) is O(1) — a row-oriented slice
// of Bars plus a map of parallel Column slices satisfies both without
// requiring any particular storage engine.
type TradingTable struct {
	Granularity Granularity
	Rows        []Bar
	Columns     map[string]Column
}

// NewTradingTable returns an empty table for the given granularity.
func NewTradingTable(g Granularity) *TradingTable {
	return &TradingTable{Granularity: g, Columns: make(map[string]Column)}
}

// Len returns the number of rows.
func (t *TradingTable) Len() int { return len(t.Rows) }

// Tail returns the last row and true, or the zero Bar and false if empty.
// O(1).
func (t *TradingTable) Tail() (Bar, bool) {
	if len(t.Rows) == 0 {
		return Bar{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Append adds a new row, enforcing the monotonic start_time invariant.
// O(1) amortized.
func (t *TradingTable) Append(b Bar) error {
	if len(t.Rows) > 0 {
		prev := t.Rows[len(t.Rows)-1]
		step := t.Granularity.Seconds()
		if b.StartTime != prev.StartTime+step {
			return fmt.Errorf("market: non-monotonic bar append: prev=%d next=%d step=%d", prev.StartTime, b.StartTime, step)
		}
	}
	t.Rows = append(t.Rows, b)
	for name, col := range t.Columns {
		t.Columns[name] = append(col, nan())
	}
	return nil
}

// SetColumn replaces an entire derived column. len(values) must equal
// t.Len(); this is the "join on start_time" operation, O(rows) since the
// column is aligned 1:1 by row index already.
func (t *TradingTable) SetColumn(name string, values Column) error {
	if len(values) != t.Len() {
		return fmt.Errorf("market: column %q length %d != table length %d", name, len(values), t.Len())
	}
	t.Columns[name] = values
	return nil
}

// SetTailValue sets a single column's value on the last row only — the
// Update() fast path, O(1).
func (t *TradingTable) SetTailValue(name string, value float64) error {
	col, ok := t.Columns[name]
	if !ok || len(col) != t.Len() {
		return fmt.Errorf("market: column %q not initialized for tail update", name)
	}
	col[len(col)-1] = value
	return nil
}

// At returns the value of column `name` at row i, or NaN if the column or
// row does not exist.
func (t *TradingTable) At(name string, i int) float64 {
	col, ok := t.Columns[name]
	if !ok || i < 0 || i >= len(col) {
		return nan()
	}
	return col[i]
}

func nan() float64 {
	return math.NaN()
}
