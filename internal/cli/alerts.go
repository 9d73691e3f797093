package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/monitor"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and resolve alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active alerts, newest first",
	RunE:  runAlertsList,
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsResolve,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsResolveCmd)

	alertsListCmd.Flags().StringP("service", "s", "", "Filter by service id")
}

// newMonitor wires a monitor for one-shot CLI use; it is never started,
// so no background cycles run.
func newMonitor(cfg *configHolder) *monitor.Monitor {
	return monitor.New(cfg.store, nil, nil, monitorConfig(cfg.cfg), nil, cfg.logger)
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	holder, err := openConfigured()
	if err != nil {
		return err
	}
	defer holder.store.Close()

	service, _ := cmd.Flags().GetString("service")

	mon := newMonitor(holder)
	active, err := mon.GetActiveAlerts(cmd.Context(), service)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tTYPE\tSEVERITY\tTITLE\tCREATED")
	for _, a := range active {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.ServiceID, a.Type, a.Severity, a.Title,
			a.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAlertsResolve(cmd *cobra.Command, args []string) error {
	holder, err := openConfigured()
	if err != nil {
		return err
	}
	defer holder.store.Close()

	mon := newMonitor(holder)
	if err := mon.ResolveAlert(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}

	fmt.Printf("Alert %s resolved\n", args[0])
	return nil
}
