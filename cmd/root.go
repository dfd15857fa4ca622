// Package cmd defines and implements the CLI commands for the
// pagalgana-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagalgana-crawler",
		Short: "A resumable crawler for the pagalgana.com music catalogue.",
		Long: `pagalgana-crawler walks pagalgana.com breadth-first from the site root,
expands the click-to-load-more category listings through a headless browser,
collects song page URLs, and extracts per-song metadata. All state is
checkpointed to JSON so an interrupted crawl resumes where it left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults apply when omitted")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
