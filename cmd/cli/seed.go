package main

import (
	"fmt"

	"github.com/nimasrn/sms-credits/internal/app"
	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/repository"
	"github.com/spf13/cobra"
)

var seedPlansCmd = &cobra.Command{
	Use:   "seed-plans",
	Short: "Insert the default plan catalog, skipping plans that exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := app.OpenDB(config.Get())
		if err != nil {
			return err
		}

		added, err := repository.NewPlanRepository(db).Seed(cmd.Context(), model.DefaultPlans())
		if err != nil {
			return fmt.Errorf("seed plans: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d plans\n", added)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedPlansCmd)
}
