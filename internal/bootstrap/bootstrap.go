// FILE: internal/bootstrap/bootstrap.go
// Package bootstrap implements spec §4.2: the Market History Table bootstrap
// that pages a DataProvider backward in time until each symbol has at least
// the requested number of bars, bounded to a fixed per-symbol concurrency.
// Grounded on the teacher's live.go:fetchHistoryPaged backward-paging loop,
// generalized from one bridge HTTP client to the broker.DataProvider
// capability and from a single productID to N symbols run concurrently.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/chidi150c/tradekernel/internal/broker"
	"github.com/chidi150c/tradekernel/internal/kerrors"
	"github.com/chidi150c/tradekernel/internal/market"
)

// Options configures one bootstrap run.
type Options struct {
	Symbols          []string
	Granularity      market.Granularity
	WantBars         int
	PageLimit        int // capped to 300, matching the teacher's bridge page cap
	MaxConcurrency   int
	PerPageTimeout   time.Duration
}

// Result holds one symbol's deduplicated, time-ascending tick history.
type Result struct {
	Symbol string
	Ticks  []market.TickData
	Err    error
}

// Run fetches history for every symbol with bounded concurrency
// (MaxConcurrency workers over a channel of symbol names, the same
// worker-pool shape the teacher uses for concurrent price polling in
// live.go), returning one Result per symbol in input order.
func Run(ctx context.Context, provider broker.DataProvider, opt Options) []Result {
	if opt.PageLimit <= 0 || opt.PageLimit > 300 {
		opt.PageLimit = 300
	}
	if opt.WantBars <= 0 {
		opt.WantBars = 5000
	}
	if opt.MaxConcurrency <= 0 {
		opt.MaxConcurrency = 4
	}
	if opt.PerPageTimeout <= 0 {
		opt.PerPageTimeout = 5 * time.Second
	}

	type indexed struct {
		i int
		r Result
	}
	jobs := make(chan int, len(opt.Symbols))
	out := make(chan indexed, len(opt.Symbols))

	worker := func() {
		for i := range jobs {
			sym := opt.Symbols[i]
			ticks, err := fetchSymbolPaged(ctx, provider, sym, opt)
			out <- indexed{i, Result{Symbol: sym, Ticks: ticks, Err: err}}
		}
	}

	n := opt.MaxConcurrency
	if n > len(opt.Symbols) {
		n = len(opt.Symbols)
	}
	for w := 0; w < n; w++ {
		go worker()
	}
	for i := range opt.Symbols {
		jobs <- i
	}
	close(jobs)

	results := make([]Result, len(opt.Symbols))
	for range opt.Symbols {
		ix := <-out
		results[ix.i] = ix.r
	}
	return results
}

// fetchSymbolPaged pages backward from "now minus a small settle buffer"
// until WantBars deduplicated ticks are collected or the provider returns an
// empty page, mirroring fetchHistoryPaged's seen-timestamp dedup and
// graceful-stop-on-partial-data behavior.
func fetchSymbolPaged(ctx context.Context, provider broker.DataProvider, symbol string, opt Options) ([]market.TickData, error) {
	step := opt.Granularity.Seconds()
	end := time.Now().UTC().Add(-20 * time.Second).Unix()

	seen := make(map[int64]struct{}, opt.WantBars)
	out := make([]market.TickData, 0, opt.WantBars)

	for len(out) < opt.WantBars {
		start := end - int64(opt.PageLimit+5)*step
		reqCtx, cancel := context.WithTimeout(ctx, opt.PerPageTimeout)
		page, err := provider.FetchHistory(reqCtx, symbol, start*1000, end*1000, opt.PageLimit)
		cancel()
		if err != nil {
			if len(out) > 0 {
				log.Printf("[WARN] bootstrap: %s paging stopped early: %v", symbol, err)
				break
			}
			return nil, kerrors.Network("bootstrap.fetchSymbolPaged", fmt.Errorf("symbol %s: %w", symbol, err))
		}
		if len(page) == 0 {
			break
		}

		added := 0
		for _, t := range page {
			if _, ok := seen[t.StartTime]; ok {
				continue
			}
			seen[t.StartTime] = struct{}{}
			out = append(out, t)
			added++
		}
		if added == 0 {
			break
		}
		end = start
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	if len(out) > opt.WantBars {
		out = out[len(out)-opt.WantBars:]
	}
	return out, nil
}
