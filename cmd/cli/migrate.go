package main

import (
	"os"

	"github.com/nimasrn/sms-credits/internal/app"
	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/nimasrn/sms-credits/migrations"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"github.com/spf13/cobra"
)

var migrateDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply pending goose migrations to the write database.

Migrations are embedded in the binary. Pass --dir to run the .sql files of a
directory instead.

Examples:
  cli migrate --env=.env
  cli migrate status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, write := app.PostgresConfigs(config.Get())
		if migrateDir != "" {
			return pg.Migrate(write, os.DirFS(migrateDir), ".")
		}
		return pg.Migrate(write, migrations.FS, ".")
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, write := app.PostgresConfigs(config.Get())
		return pg.MigrationStatus(write, migrations.FS, ".")
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "", "run migrations from this directory instead of the embedded ones")
	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
