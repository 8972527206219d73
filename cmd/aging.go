package cmd

import (
	"github.com/spf13/cobra"

	"github.com/NOVASWAY/Seth2.0-sub005/services/billing-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/config"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

var refreshAgingCmd = &cobra.Command{
	Use:   "refresh-aging",
	Short: "Recompute days overdue and aging buckets of open receivables",
	Long: `Recompute days_overdue, aging_bucket and status of every unpaid
accounts-receivable row against today's date. Intended to run once a day
from cron.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.WithComponent("aging")

		db, err := config.ConnectDB(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		store := models.NewBillingStore(db, cfg.Billing.VATRate, cfg.Billing.DueDays)
		updated, err := store.RefreshAging(cmd.Context())
		if err != nil {
			return err
		}

		log.Info().Int("updated", updated).Msg("Receivable aging refreshed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshAgingCmd)
}
