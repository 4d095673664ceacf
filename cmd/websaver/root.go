package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for websaver.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websaver",
		Short: "Save a website as HTML, Markdown or PDF",
		Long: `websaver crawls a website starting from a seed URL and saves every page
within the seed's scope as HTML, Markdown or PDF files.

Pages are rendered in headless Chromium by default, so content produced by
JavaScript is captured. Use --engine http for static sites.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
