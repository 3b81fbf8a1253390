package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagUser     string
	flagPassword string
	flagConfig   string
)

var rootCmd = &cobra.Command{
	Use:           "financeflow",
	Short:         "Personal finance tracker",
	Long:          "Track accounts and transactions, sync bank feeds, watch budgets and export monthly reports.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if flagConfig != "" {
			os.Setenv("FINANCEFLOW_CONFIG", flagConfig)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "Username to act as")
	rootCmd.PersistentFlags().StringVar(&flagPassword, "password", "", "Password (default $FINANCEFLOW_PASSWORD)")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "TOML config file (default $FINANCEFLOW_CONFIG)")
}
