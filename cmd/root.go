// Package cmd defines the CLI commands for the saasdir executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saasdir",
		Short: "Scrapes a SaaS company directory into structured records",
		Long: `saasdir crawls a paginated SaaS company directory, extracts one
record per company, and enriches each record from its detail page through a
bounded worker pool. Request pacing adapts to anti-bot responses so a run
degrades gracefully instead of getting the session banned.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars and defaults apply without one)")
	cmd.AddCommand(newScrapeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
