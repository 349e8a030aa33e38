package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reconciliation",
	Short: "Payment reconciliation microservice",
	Long:  "A reconciliation microservice for gateway webhooks, webhook retries, and condominium ledger postings.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
