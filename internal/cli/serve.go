package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/internal/server"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/aggregator"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/monitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reporting API and the background monitor",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)

	store, err := initStore(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()

	registry, err := newProviderRegistry()
	if err != nil {
		return err
	}

	agg := aggregator.New(store, registry, logger)
	if cfg.Currency.RatesFile != "" {
		agg.LoadRatesFile(cfg.Currency.RatesFile)
	}

	promRegistry := prometheus.NewRegistry()
	mon := monitor.New(
		store,
		initCache(cfg, logger),
		initNotifiers(cfg),
		monitorConfig(cfg),
		monitor.NewMetrics(promRegistry),
		logger,
	)
	mon.Start()
	defer mon.Stop()

	apiServer := server.NewServer(agg, mon, promRegistry, logger)

	readTimeout := cfg.Server.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sentinel started", "listen", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
