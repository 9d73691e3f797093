package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelops/cloud-cost-sentinel/pkg/ingest"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull billing records from registered provider clients",
	Long: `Sync fetches daily cost records from every registered provider client
and upserts them into the store. Provider clients wrap each vendor's billing
API and are registered by the embedding host; the standalone binary has none
and will report that nothing was synced.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Int("days", 1, "Trailing number of days to sync")
}

func runSync(cmd *cobra.Command, _ []string) error {
	holder, err := openConfigured()
	if err != nil {
		return err
	}
	defer holder.store.Close()

	registry, err := newProviderRegistry()
	if err != nil {
		return err
	}
	if len(registry.List()) == 0 {
		fmt.Println("No provider clients registered; nothing to sync.")
		return nil
	}

	days, _ := cmd.Flags().GetInt("days")
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	syncer := ingest.NewSyncer(registry, holder.store, holder.logger)
	syncer.SyncDailyCosts(cmd.Context(), start, end)
	return nil
}
