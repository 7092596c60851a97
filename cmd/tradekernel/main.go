// FILE: cmd/tradekernel/main.go
// Program entrypoint. Boot sequence mirrors the teacher's main.go:
//   1) config.LoadDotEnv()       - read .env (no shell exports required)
//   2) cfg := config.LoadFromEnv() - build runtime Config
//   3) wire broker/pipeline/ledger components
//   4) start Prometheus /healthz + /metrics server on cfg.Port
//   5) run the Supervisor's fixed boot sequence + main loop
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/chidi150c/tradekernel/internal/broker"
	"github.com/chidi150c/tradekernel/internal/config"
	"github.com/chidi150c/tradekernel/internal/market"
	"github.com/chidi150c/tradekernel/internal/orderstate"
	"github.com/chidi150c/tradekernel/internal/pipeline"
	"github.com/chidi150c/tradekernel/internal/reconcile"
	"github.com/chidi150c/tradekernel/internal/supervisor"
)

func main() {
	var dryRun bool
	var wantBars int
	flag.BoolVar(&dryRun, "paper", false, "force paper trading regardless of .env")
	flag.IntVar(&wantBars, "bars", 5000, "number of history bars to bootstrap")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.LoadFromEnv()
	if dryRun {
		cfg.DryRun = true
	}

	g, err := cfg.ParsedGranularity()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	settings := cfg.TradingSettings()

	var dataProvider broker.DataProvider
	var trader broker.Trader

	if cfg.DryRun {
		data := broker.NewPaperData()
		sym := market.Symbol{
			Name: cfg.TradedSymbol, MinimumOrderSize: cfg.AllocationPct,
			MaximumOrderSize: cfg.StartingBalance, QuantityPrecision: 6, PricePrecision: 2,
			MaxLeverage: cfg.Leverage, TakerFeeRate: defaultFeeRate, MakerFeeRate: defaultFeeRate,
		}
		paperTrader := broker.NewPaperTrader(cfg.StartingBalance, map[string]market.Symbol{cfg.TradedSymbol: sym}, settings)
		dataProvider = data
		trader = paperTrader
	} else {
		var auth *broker.JWTAuthTransport
		if cfg.JWTKeyID != "" {
			auth = broker.NewJWTAuthTransport(cfg.JWTKeyID, []byte(cfg.JWTSecret), 0)
		}
		bridge := broker.NewRESTBridge(cfg.BridgeURL, cfg.BridgeWSURL, auth)
		dataProvider = bridge
		trader = bridge
	}

	table := market.NewTradingTable(g)
	model := pipeline.NewMicroModel(1)
	pl := pipeline.New(cfg.AnchorSymbol,
		&pipeline.SMAStage{Period: 20},
		&pipeline.RSIStage{Period: 14},
		&pipeline.ZScoreStage{Period: 20},
		&pipeline.EMACrossRegimeStage{FastPeriod: 4, SlowPeriod: 8},
		&pipeline.MicroModelSignalStage{
			Model: model, BuyThreshold: cfg.BuyThreshold, SellThreshold: cfg.SellThreshold,
			UseRegimeFilter: cfg.UseRegimeFilter,
		},
	)

	bus := reconcile.NewBus(traderAsResyncer(trader), table)
	machine := &orderstate.Machine{Trader: trader, Settings: settings}

	metricsServer := startMetricsServer(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New(supervisor.Dependencies{
		Data: dataProvider, Trader: trader, Table: table, Pipeline: pl,
		Bus: bus, Symbols: []string{cfg.TradedSymbol}, Machine: machine,
	})

	if err := sup.Run(ctx, g, wantBars); err != nil {
		log.Fatalf("supervisor: %v", err)
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = metricsServer.Shutdown(shutdownCtx)
}

var defaultFeeRate = decimal.NewFromFloat(0.0006)

// traderAsResyncer narrows a broker.Trader down to the reconcile.Resyncer
// capability the Bus needs, rather than importing internal/broker from
// internal/reconcile (which would create an import cycle back through
// capability.go's Trader -> reconcile.Event dependency).
func traderAsResyncer(t broker.Trader) reconcile.Resyncer { return t }

func startMetricsServer(cfg config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("[INFO] serving metrics on :%d/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics server: %v", err)
		}
	}()
	return srv
}
