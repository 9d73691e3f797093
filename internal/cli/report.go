package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/aggregator"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show aggregated costs per service",
	RunE:  runReport,
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project monthly spend six months forward",
	RunE:  runForecast,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(forecastCmd)

	for _, cmd := range []*cobra.Command{reportCmd, forecastCmd} {
		cmd.Flags().Int("days", 30, "Trailing number of days to report on")
		cmd.Flags().StringSlice("services", nil, "Restrict to these service ids")
	}
	reportCmd.Flags().Bool("summary", false, "Show the period-wide summary instead of per-service rows")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	days, _ := cmd.Flags().GetInt("days")
	services, _ := cmd.Flags().GetStringSlice("services")
	showSummary, _ := cmd.Flags().GetBool("summary")

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	registry, err := newProviderRegistry()
	if err != nil {
		return err
	}

	agg := aggregator.New(store, registry, newLogger(cfg))
	if cfg.Currency.RatesFile != "" {
		agg.LoadRatesFile(cfg.Currency.RatesFile)
	}

	if showSummary {
		summary, err := agg.GetCostSummary(cmd.Context(), start, end)
		if err != nil {
			return fmt.Errorf("cost summary: %w", err)
		}

		fmt.Printf("Total spend (last %d days): $%.2f\n\n", days, summary.TotalCost)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tCOST (USD)")
		for provider, cost := range summary.Breakdown {
			fmt.Fprintf(w, "%s\t%.2f\n", provider, cost)
		}
		fmt.Fprintln(w, "\nSERVICE\tCOST (USD)\tSHARE")
		for _, svc := range summary.TopServices {
			fmt.Fprintf(w, "%s\t%.2f\t%.1f%%\n", svc.ServiceName, svc.Cost, svc.Percentage)
		}
		return w.Flush()
	}

	costs, err := agg.GetAggregatedCosts(cmd.Context(), start, end, services)
	if err != nil {
		return fmt.Errorf("aggregated costs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tTOTAL (USD)\tCHANGE\tRECOMMENDATIONS")
	for _, c := range costs {
		fmt.Fprintf(w, "%s\t%.2f\t%+.1f%%\t%d\n",
			c.ServiceName, c.TotalCost, c.Trend.ChangePercent, len(c.Recommendations))
	}
	return w.Flush()
}

func runForecast(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	days, _ := cmd.Flags().GetInt("days")
	services, _ := cmd.Flags().GetStringSlice("services")

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	registry, err := newProviderRegistry()
	if err != nil {
		return err
	}

	agg := aggregator.New(store, registry, newLogger(cfg))
	forecasts, err := agg.GetCostForecasts(cmd.Context(), start, end, services)
	if err != nil {
		return fmt.Errorf("cost forecasts: %w", err)
	}
	if len(forecasts) == 0 {
		fmt.Println("Not enough monthly history to forecast (need at least 2 months).")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tFORECAST (USD)\tCONFIDENCE")
	for _, f := range forecasts {
		fmt.Fprintf(w, "%s\t%.2f\t%.0f%%\n", f.Month, f.ForecastCost, f.Confidence*100)
	}
	return w.Flush()
}
