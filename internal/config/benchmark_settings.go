// FILE: internal/config/benchmark_settings.go
// BenchmarkSettings persists the last-used Benchmark Simulator window and
// symbol selection across restarts, grounded on
// original_source/shared/core/src/config.rs:BenchmarkSettings
// (load_or_default/save_config over a JSON file at a path derived from the
// process's binary name). Reimplemented with Go's encoding/json and an
// atomic temp-file-then-rename write, the idiom the teacher's own state
// persistence (see step.go's lot/ledger snapshot writer) already follows.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// BenchmarkSettings is the subset of configuration that should survive a
// process restart without needing to be re-typed into env vars.
type BenchmarkSettings struct {
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	AnchorSymbol string     `json:"anchor_symbol"`
	TradedSymbol string     `json:"traded_symbol"`
}

func defaultBenchmarkSettings() BenchmarkSettings {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	return BenchmarkSettings{From: &from, To: &now, AnchorSymbol: "BTC-USD", TradedSymbol: "BTC-USD"}
}

func benchmarkSettingsPath() string {
	base := filepath.Base(os.Args[0])
	return filepath.Join("config", base, "benchmark_settings.json")
}

// LoadBenchmarkSettingsOrDefault reads the persisted settings file; any
// error (missing file, malformed JSON) falls back to defaults rather than
// failing boot, matching load_or_default's unwrap_or_default behavior.
func LoadBenchmarkSettingsOrDefault() BenchmarkSettings {
	f, err := os.Open(benchmarkSettingsPath())
	if err != nil {
		return defaultBenchmarkSettings()
	}
	defer f.Close()

	var s BenchmarkSettings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return defaultBenchmarkSettings()
	}
	return s
}

// Save persists the settings atomically: write to a temp file in the same
// directory, then rename over the target, so a crash mid-write never leaves
// a truncated settings file behind.
func (s BenchmarkSettings) Save() error {
	path := benchmarkSettingsPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".benchmark_settings-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	enc := json.NewEncoder(tmp)
	if err := enc.Encode(s); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
