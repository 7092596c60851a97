// FILE: internal/market/table_test.go
package market

import (
	"math"
	"testing"
)

func TestTradingTableAppendMonotonic(t *testing.T) {
	tbl := NewTradingTable(OneMinute)
	step := OneMinute.Seconds()
	base := int64(600)

	if err := tbl.Append(Bar{StartTime: base}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := tbl.Append(Bar{StartTime: base + step}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}

	// Non-monotonic: skip a step.
	if err := tbl.Append(Bar{StartTime: base + 3*step}); err == nil {
		t.Fatal("expected error for non-monotonic append")
	}
	// Still 2 rows; the bad append must not have been recorded.
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d after rejected append, want 2", tbl.Len())
	}
}

func TestTradingTableTail(t *testing.T) {
	tbl := NewTradingTable(OneMinute)
	if _, ok := tbl.Tail(); ok {
		t.Fatal("Tail() on empty table should report ok=false")
	}
	step := OneMinute.Seconds()
	_ = tbl.Append(Bar{StartTime: 60})
	_ = tbl.Append(Bar{StartTime: 60 + step})
	last, ok := tbl.Tail()
	if !ok || last.StartTime != 60+step {
		t.Fatalf("Tail() = %+v, %v, want StartTime=%d", last, ok, 60+step)
	}
}

func TestTradingTableSetColumnLengthMismatch(t *testing.T) {
	tbl := NewTradingTable(OneMinute)
	_ = tbl.Append(Bar{StartTime: 60})
	_ = tbl.Append(Bar{StartTime: 120})
	if err := tbl.SetColumn("sma3", Column{1, 2, 3}); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if err := tbl.SetColumn("sma3", Column{1, 2}); err != nil {
		t.Fatalf("SetColumn with matching length: %v", err)
	}
	if v := tbl.At("sma3", 1); v != 2 {
		t.Fatalf("At(sma3, 1) = %v, want 2", v)
	}
}

func TestTradingTableSetTailValue(t *testing.T) {
	tbl := NewTradingTable(OneMinute)
	_ = tbl.Append(Bar{StartTime: 60})
	_ = tbl.Append(Bar{StartTime: 120})
	_ = tbl.SetColumn("sma3", Column{1, 2})
	if err := tbl.SetTailValue("sma3", 42); err != nil {
		t.Fatalf("SetTailValue: %v", err)
	}
	if v := tbl.At("sma3", 1); v != 42 {
		t.Fatalf("At(sma3, 1) after tail set = %v, want 42", v)
	}
	if err := tbl.SetTailValue("missing", 1); err == nil {
		t.Fatal("expected error for uninitialized column")
	}
}

func TestTradingTableAtOutOfRangeIsNaN(t *testing.T) {
	tbl := NewTradingTable(OneMinute)
	_ = tbl.Append(Bar{StartTime: 60})
	_ = tbl.SetColumn("sma3", Column{1})
	if v := tbl.At("sma3", 5); !math.IsNaN(v) {
		t.Fatalf("At() out of range = %v, want NaN", v)
	}
	if v := tbl.At("nope", 0); !math.IsNaN(v) {
		t.Fatalf("At() missing column = %v, want NaN", v)
	}
}

func TestTickDataValidate(t *testing.T) {
	good := TickData{Symbol: "BTC-USD", StartTime: 60, Open: 100, High: 105, Low: 99, Close: 101}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid tick rejected: %v", err)
	}
	bad := TickData{Symbol: "BTC-USD", StartTime: 60, Open: 100, High: 95, Low: 99, Close: 101}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for high < close")
	}
	neg := TickData{Symbol: "BTC-USD", StartTime: 60, Open: -1, High: 1, Low: -1, Close: 1}
	if err := neg.Validate(); err == nil {
		t.Fatal("expected error for non-positive price")
	}
}
