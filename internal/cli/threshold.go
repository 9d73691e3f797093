package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

var thresholdCmd = &cobra.Command{
	Use:   "threshold",
	Short: "Manage cost threshold rules",
}

var thresholdSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a threshold rule",
	RunE:  runThresholdSet,
}

var thresholdListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threshold rules",
	RunE:  runThresholdList,
}

func init() {
	rootCmd.AddCommand(thresholdCmd)
	thresholdCmd.AddCommand(thresholdSetCmd)
	thresholdCmd.AddCommand(thresholdListCmd)

	thresholdSetCmd.Flags().String("id", "", "Rule id (omit to create a new rule)")
	thresholdSetCmd.Flags().StringP("service", "s", "", "Service id the rule applies to")
	thresholdSetCmd.Flags().StringP("metric", "m", "daily", "Metric window (hourly, daily, monthly)")
	thresholdSetCmd.Flags().Float64P("value", "v", 0, "Threshold value")
	thresholdSetCmd.Flags().StringP("operator", "o", "greater_than", "Comparison (greater_than, less_than, percent_increase)")
	thresholdSetCmd.Flags().Int("baseline-days", 7, "Baseline period in days (percent_increase only)")
	thresholdSetCmd.Flags().Bool("disabled", false, "Create the rule disabled")
	_ = thresholdSetCmd.MarkFlagRequired("service")
	_ = thresholdSetCmd.MarkFlagRequired("value")
}

func runThresholdSet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, _ := cmd.Flags().GetString("id")
	service, _ := cmd.Flags().GetString("service")
	metric, _ := cmd.Flags().GetString("metric")
	value, _ := cmd.Flags().GetFloat64("value")
	operator, _ := cmd.Flags().GetString("operator")
	baselineDays, _ := cmd.Flags().GetInt("baseline-days")
	disabled, _ := cmd.Flags().GetBool("disabled")

	threshold := &model.CostThreshold{
		ID:                 id,
		ServiceID:          service,
		MetricType:         model.MetricType(metric),
		ThresholdValue:     value,
		ComparisonOperator: model.ComparisonOperator(operator),
		BaselinePeriodDays: baselineDays,
		Enabled:            !disabled,
	}

	if err := store.SetThreshold(cmd.Context(), threshold); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}

	fmt.Printf("Threshold %s: %s %s %s %.2f\n",
		threshold.ID, service, metric, operator, value)
	return nil
}

func runThresholdList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	thresholds, err := store.ListThresholds(cmd.Context())
	if err != nil {
		return fmt.Errorf("list thresholds: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tMETRIC\tOPERATOR\tVALUE\tENABLED")
	for _, t := range thresholds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%v\n",
			t.ID, t.ServiceID, t.MetricType, t.ComparisonOperator, t.ThresholdValue, t.Enabled)
	}
	return w.Flush()
}
