package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/model"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage spending budgets",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a budget",
	RunE:  runBudgetSet,
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List budgets",
	RunE:  runBudgetList,
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetSetCmd)
	budgetCmd.AddCommand(budgetListCmd)

	budgetSetCmd.Flags().StringP("name", "n", "default", "Budget name")
	budgetSetCmd.Flags().Float64P("amount", "a", 0, "Budget amount")
	budgetSetCmd.Flags().String("currency", "USD", "Budget currency")
	budgetSetCmd.Flags().StringP("period", "P", "monthly", "Budget period (monthly, quarterly, yearly)")
	budgetSetCmd.Flags().StringP("service", "s", "", "Scope to a service id (exclusive with --team)")
	budgetSetCmd.Flags().StringP("team", "t", "", "Scope to a team id (exclusive with --service)")
	budgetSetCmd.Flags().Float64("warn-at", 80, "Warning threshold percentage")
	budgetSetCmd.Flags().Float64("critical-at", 95, "Critical threshold percentage")
	budgetSetCmd.Flags().Bool("disabled", false, "Create the budget disabled")
	_ = budgetSetCmd.MarkFlagRequired("amount")
}

func runBudgetSet(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	name, _ := cmd.Flags().GetString("name")
	amount, _ := cmd.Flags().GetFloat64("amount")
	currency, _ := cmd.Flags().GetString("currency")
	period, _ := cmd.Flags().GetString("period")
	service, _ := cmd.Flags().GetString("service")
	team, _ := cmd.Flags().GetString("team")
	warnAt, _ := cmd.Flags().GetFloat64("warn-at")
	criticalAt, _ := cmd.Flags().GetFloat64("critical-at")
	disabled, _ := cmd.Flags().GetBool("disabled")

	budget := &model.Budget{
		Name:      name,
		ServiceID: service,
		TeamID:    team,
		Amount:    amount,
		Currency:  currency,
		Period:    model.BudgetPeriod(period),
		Thresholds: model.BudgetThresholds{
			Warning:  warnAt,
			Critical: criticalAt,
		},
		Enabled: !disabled,
	}

	if err := store.SetBudget(cmd.Context(), budget); err != nil {
		return fmt.Errorf("set budget: %w", err)
	}

	fmt.Printf("Budget set:\n")
	fmt.Printf("  Name:     %s\n", name)
	fmt.Printf("  Amount:   %.2f %s per %s\n", amount, currency, period)
	if budget.ScopeID() != "" {
		fmt.Printf("  Scope:    %s\n", budget.ScopeID())
	}
	fmt.Printf("  Warning:  %.0f%%  Critical: %.0f%%\n", warnAt, criticalAt)
	return nil
}

func runBudgetList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	budgets, err := store.ListBudgets(cmd.Context())
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAMOUNT\tPERIOD\tSCOPE\tWARN\tCRITICAL\tENABLED")
	for _, b := range budgets {
		scope := b.ScopeID()
		if scope == "" {
			scope = "-"
		}
		fmt.Fprintf(w, "%s\t%.2f %s\t%s\t%s\t%.0f%%\t%.0f%%\t%v\n",
			b.Name, b.Amount, b.Currency, b.Period, scope,
			b.Thresholds.Warning, b.Thresholds.Critical, b.Enabled)
	}
	return w.Flush()
}
