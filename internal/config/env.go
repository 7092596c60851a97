// FILE: internal/config/env.go
// Dependency-free env helpers and an allowlisted .env loader, generalized
// from the teacher's env.go:getEnv*/loadBotEnv. Stdlib-only by design — see
// DESIGN.md's justification (os.Getenv/bufio.Scanner are already the
// idiomatic, dependency-free way the teacher and the rest of the pack read
// process environment; no example repo reaches for a third-party dotenv
// library for this).
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// envKeys is the allowlist of keys LoadDotEnv will inject from a .env file —
// it deliberately ignores any other key (e.g. a broker's PEM/API secret
// meant only for a sidecar process), matching the teacher's loadBotEnv
// ignore-what-we-don't-need design.
var envKeys = map[string]struct{}{
	"ANCHOR_SYMBOL": {}, "TRADED_SYMBOL": {}, "GRANULARITY": {},
	"DRY_RUN": {}, "STARTING_BALANCE": {}, "LEVERAGE": {}, "ALLOCATION_PERCENTAGE": {},
	"TAKE_PROFIT_PCT": {}, "STOP_LOSS_PCT": {}, "TRAILING_STOP_PCT": {}, "SIGNALS_REVERT_OPPOSITE": {},
	"BUY_THRESHOLD": {}, "SELL_THRESHOLD": {}, "USE_REGIME_FILTER": {},
	"BRIDGE_URL": {}, "BRIDGE_WS_URL": {}, "JWT_KEY_ID": {}, "JWT_SECRET": {},
	"PORT": {}, "MAX_HISTORY_BARS": {}, "BOOTSTRAP_WORKERS": {}, "METRICS_ADDR": {},
}

// LoadDotEnv reads .env from "." and ".." and sets ONLY the allowlisted keys,
// never overriding a variable already present in the process environment.
func LoadDotEnv() {
	for _, base := range []string{".", ".."} {
		loadDotEnvFile(filepath.Join(base, ".env"))
	}
}

func loadDotEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(line[len("export "):])
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		if _, ok := envKeys[key]; !ok {
			continue
		}
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		if idx := strings.IndexAny(val, "#"); idx >= 0 {
			val = strings.TrimSpace(val[:idx])
		}
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}
