package cmd

import (
	"github.com/spf13/cobra"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/config"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create every table, index and sequence the services need and seed the
role catalogue. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		db, err := config.ConnectDB(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		return database.Migrate(cmd.Context(), db)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
