// FILE: internal/config/config.go
// Package config holds the kernel's runtime knobs and their env loader.
// Generalized from the teacher's config.go:Config/loadConfigFromEnv (a flat
// struct + getEnv* helpers) from a single spot-product bot to the multi-
// symbol, leveraged kernel this module implements.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/ledger"
	"github.com/chidi150c/tradekernel/internal/market"
)

// Config holds all runtime knobs for trading and operations.
type Config struct {
	AnchorSymbol string
	TradedSymbol string
	Granularity  string

	DryRun           bool
	StartingBalance  decimal.Decimal
	Leverage         decimal.Decimal
	AllocationPct    decimal.Decimal
	TakeProfitPct    float64
	StopLossPct      float64
	TrailingStopPct  float64
	SignalsRevert    bool

	BuyThreshold  float64
	SellThreshold float64
	UseRegimeFilter bool

	BridgeURL        string
	BridgeWSURL      string
	JWTKeyID         string
	JWTSecret        string
	Port             int
	MaxHistoryBars   int
	BootstrapWorkers int

	MetricsAddr string
}

// LoadFromEnv reads the process env (already hydrated by LoadDotEnv) and
// returns a Config with sane defaults if keys are missing.
func LoadFromEnv() Config {
	return Config{
		AnchorSymbol:     getEnv("ANCHOR_SYMBOL", "BTC-USD"),
		TradedSymbol:     getEnv("TRADED_SYMBOL", getEnv("ANCHOR_SYMBOL", "BTC-USD")),
		Granularity:      getEnv("GRANULARITY", "1m"),
		DryRun:           getEnvBool("DRY_RUN", true),
		StartingBalance:  getEnvDecimal("STARTING_BALANCE", decimal.NewFromInt(1000)),
		Leverage:         getEnvDecimal("LEVERAGE", decimal.NewFromInt(1)),
		AllocationPct:    getEnvDecimal("ALLOCATION_PERCENTAGE", decimal.NewFromFloat(0.25)),
		TakeProfitPct:    getEnvFloat("TAKE_PROFIT_PCT", 0.008),
		StopLossPct:      getEnvFloat("STOP_LOSS_PCT", 0.004),
		TrailingStopPct:  getEnvFloat("TRAILING_STOP_PCT", 0),
		SignalsRevert:    getEnvBool("SIGNALS_REVERT_OPPOSITE", false),
		BuyThreshold:     getEnvFloat("BUY_THRESHOLD", 0.55),
		SellThreshold:    getEnvFloat("SELL_THRESHOLD", 0.45),
		UseRegimeFilter:  getEnvBool("USE_REGIME_FILTER", true),
		BridgeURL:        getEnv("BRIDGE_URL", "http://127.0.0.1:8787"),
		BridgeWSURL:      getEnv("BRIDGE_WS_URL", "ws://127.0.0.1:8787"),
		JWTKeyID:         getEnv("JWT_KEY_ID", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		Port:             getEnvInt("PORT", 8080),
		MaxHistoryBars:   getEnvInt("MAX_HISTORY_BARS", 5000),
		BootstrapWorkers: getEnvInt("BOOTSTRAP_WORKERS", 4),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9090"),
	}
}

// TradingSettings projects the subset of Config relevant to the order-state
// machine and benchmark simulator into a ledger.TradingSettings.
func (c Config) TradingSettings() ledger.TradingSettings {
	mods := ledger.PriceLevelModifiers{}
	if c.StopLossPct > 0 {
		v := decimal.NewFromFloat(c.StopLossPct)
		mods.StopLoss = &v
	}
	if c.TakeProfitPct > 0 {
		v := decimal.NewFromFloat(c.TakeProfitPct)
		mods.TakeProfit = &v
	}
	if c.TrailingStopPct > 0 {
		v := decimal.NewFromFloat(c.TrailingStopPct)
		mods.TrailingStopLoss = &v
	}
	return ledger.TradingSettings{
		Leverage:              c.Leverage,
		AllocationPercentage:  c.AllocationPct,
		PriceLevelModifiers:   mods,
		SignalsRevertOpposite: c.SignalsRevert,
	}
}

// ParsedGranularity maps the config's string key to market.Granularity.
func (c Config) ParsedGranularity() (market.Granularity, error) {
	return market.ParseGranularity(c.Granularity)
}

// BootstrapTimeout is the per-page REST timeout used by internal/bootstrap.
func (c Config) BootstrapTimeout() time.Duration { return 5 * time.Second }
