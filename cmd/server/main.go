package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"exchangecore/internal/api"
	"exchangecore/internal/config"
	"exchangecore/internal/exchange"
	"exchangecore/internal/ledger"
	"exchangecore/internal/ledger/storage"
	"exchangecore/internal/logging"
	"exchangecore/internal/marketdata"
	"exchangecore/internal/matching"
	"exchangecore/internal/metrics"
	"exchangecore/internal/models"
	"exchangecore/internal/money"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "exchangecored",
		Short: "exchangecore — multi-market limit order book trading engine core",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the matching engine, ledger, and market-data fan-out",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	root.AddCommand(serveCmd)

	return root
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info().Str("listen_addr", cfg.Server.ListenAddr).Msg("starting exchangecore")

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	store := storage.NewMemoryStore()
	l := ledger.New(store, log)
	engine := matching.NewEngine()
	fanout := marketdata.New(marketdata.Config{
		RecentTradesCapacity: cfg.MarketData.RecentTradesCapacity,
		SubscriberBuffer:     cfg.MarketData.SubscriberBuffer,
		RollingWindow:        cfg.MarketData.RollingWindow,
	}, collector)

	svc := exchange.New(l, engine, fanout, log, collector)

	for _, mc := range cfg.Markets {
		market, err := toMarket(mc)
		if err != nil {
			return fmt.Errorf("market %s: %w", mc.ID, err)
		}
		if err := svc.RegisterMarket(market); err != nil {
			return fmt.Errorf("register market %s: %w", mc.ID, err)
		}
		log.Info().Str("market", market.ID).Msg("registered market")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	fanout.Start(runCtx, cfg.MarketData.JanitorInterval)
	defer fanout.Shutdown()

	server := api.NewServer(cfg.Server.ListenAddr, registry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		return nil
	}
}

func toMarket(mc config.MarketConfig) (models.Market, error) {
	tick, err := money.Parse(mc.TickSize)
	if err != nil {
		return models.Market{}, err
	}
	step, err := money.Parse(mc.StepSize)
	if err != nil {
		return models.Market{}, err
	}
	minPrice, err := money.Parse(mc.MinPrice)
	if err != nil {
		return models.Market{}, err
	}
	maxPrice, err := money.Parse(mc.MaxPrice)
	if err != nil {
		return models.Market{}, err
	}
	minQty, err := money.Parse(mc.MinQuantity)
	if err != nil {
		return models.Market{}, err
	}
	maxQty, err := money.Parse(mc.MaxQuantity)
	if err != nil {
		return models.Market{}, err
	}
	market := models.Market{
		ID:          mc.ID,
		BaseAsset:   mc.BaseAsset,
		QuoteAsset:  mc.QuoteAsset,
		TickSize:    tick,
		StepSize:    step,
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
		MinQuantity: minQty,
		MaxQuantity: maxQty,
	}
	return market, market.Validate()
}
