package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/internal/config"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/alerts"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/cache"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/monitor"
	"github.com/sentinelops/cloud-cost-sentinel/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Cloud Cost Sentinel - Multi-cloud cost aggregation and monitoring",
	Long: `Cloud Cost Sentinel ingests billing records from AWS, Azure, and GCP,
normalizes them to USD, aggregates them for reporting, and continuously
evaluates spend against thresholds, budgets, and statistical baselines to
raise and retire alerts.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.sentinel/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStore creates the persistent store from config.
func initStore(cfg *config.Config) (storage.Store, error) {
	return storage.NewSQLite(cfg.Storage.Path)
}

// initCache connects the Redis cache when enabled. The cache is a
// best-effort accelerator, so a connection failure only degrades to
// store-only operation.
func initCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	c, err := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "addr", cfg.Cache.Addr, "error", err)
		return nil
	}
	return c
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	return notifiers
}

// configHolder bundles the config, store, and logger a one-shot command needs.
type configHolder struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
}

// openConfigured loads config and opens the store for a one-shot command.
// The caller closes the store.
func openConfigured() (*configHolder, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	return &configHolder{cfg: cfg, store: store, logger: newLogger(cfg)}, nil
}

// monitorConfig maps the host configuration onto the monitor's.
func monitorConfig(cfg *config.Config) monitor.Config {
	mc := monitor.DefaultConfig()
	if cfg.Monitor.Interval > 0 {
		mc.Interval = cfg.Monitor.Interval
	}
	mc.ThresholdDedupWindow = cfg.Monitor.ThresholdDedup
	mc.BudgetDedupWindow = cfg.Monitor.BudgetDedup
	mc.AnomalyDedupWindow = cfg.Monitor.AnomalyDedup
	return mc
}
