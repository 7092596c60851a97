// FILE: internal/market/symbol.go
package market

import "github.com/shopspring/decimal"

// Symbol describes an exchange-tradable instrument. Immutable after
// configuration; callers should treat values as read-only.
type Symbol struct {
	Name               string          `json:"name"`
	MinimumOrderSize   decimal.Decimal `json:"minimum_order_size"`
	MaximumOrderSize   decimal.Decimal `json:"maximum_order_size"`
	QuantityPrecision  int32           `json:"quantity_precision"`
	PricePrecision     int32           `json:"price_precision"`
	MaxLeverage        decimal.Decimal `json:"max_leverage"`
	TakerFeeRate       decimal.Decimal `json:"taker_fee_rate"`
	MakerFeeRate       decimal.Decimal `json:"maker_fee_rate"`
}

// SymbolsPair pairs the signal-generating anchor symbol with the symbol the
// Trader capability actually transacts. They may be identical.
type SymbolsPair struct {
	Anchor  Symbol `json:"anchor"`
	Traded  Symbol `json:"traded"`
}

// RoundQuantity truncates units down to the symbol's quantity precision,
// matching spec §4.4's "rounded down to quantity_precision".
func (s Symbol) RoundQuantity(units decimal.Decimal) decimal.Decimal {
	return units.Truncate(s.QuantityPrecision)
}

// RoundPrice truncates a price to the symbol's price precision.
func (s Symbol) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Truncate(s.PricePrecision)
}

// ClampOrderSize clamps units to [MinimumOrderSize, MaximumOrderSize].
func (s Symbol) ClampOrderSize(units decimal.Decimal) decimal.Decimal {
	if units.LessThan(s.MinimumOrderSize) {
		return s.MinimumOrderSize
	}
	if units.GreaterThan(s.MaximumOrderSize) {
		return s.MaximumOrderSize
	}
	return units
}
