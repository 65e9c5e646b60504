package main

import (
	"fmt"
	"os"

	"github.com/nimasrn/sms-credits/internal/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	envPath string
)

var rootCmd = &cobra.Command{
	Use:           "cli",
	Short:         "Operational commands for the sms credits service",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load(envPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "path to a .env file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
