package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/websaver/internal/config"
	"github.com/nao1215/websaver/internal/database"
	"github.com/nao1215/websaver/internal/model"
	"github.com/nao1215/websaver/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show recorded crawl runs",
		Long: `History lists the crawl runs recorded in the history database.

Every crawl is recorded unless --no-history is given. Runs are listed newest
first, optionally limited to one host. Use --run to show a single run with
its per-page results.

Examples:
  # List every recorded run
  websaver history

  # List runs of one host
  websaver history example.com

  # List the hosts that have recorded runs
  websaver history --hosts

  # Show one run, including every page
  websaver history --run 0f8e1c2a-... --pages

  # Show one run as JSON
  websaver history --run 0f8e1c2a-... --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("hosts", "L", false,
		"List the hosts that have recorded runs")
	cmd.Flags().StringP("run", "r", "",
		"Show the run with this ID")
	cmd.Flags().Bool("pages", false,
		"With --run, also list every recorded page")
	cmd.Flags().BoolP("json", "j", false,
		"With --run, output the run summary as JSON")
	cmd.Flags().BoolP("markdown", "m", false,
		"With --run, output the run summary as Markdown")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	listHosts, err := flags.GetBool("hosts")
	if err != nil {
		return err
	}
	runID, err := flags.GetString("run")
	if err != nil {
		return err
	}
	showPages, err := flags.GetBool("pages")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate before opening the database so bad invocations don't
	// create an empty one.
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	if listHosts && runID != "" {
		return errors.New("--hosts and --run cannot be combined")
	}
	var host string
	if len(args) > 0 {
		host = strings.ToLower(strings.TrimSpace(args[0]))
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case listHosts:
		return listRecordedHosts(ctx, out, db)
	case runID != "":
		return showRun(ctx, out, db, runID, showPages, jsonOutput, markdownOutput)
	default:
		return listRunHistory(ctx, out, db, host)
	}
}

// listRecordedHosts lists every host that has recorded runs.
func listRecordedHosts(ctx context.Context, out io.Writer, db *database.CrawlDB) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}
	if len(hosts) == 0 {
		fmt.Fprintln(out, "No crawl history found.")
		fmt.Fprintln(out, "\nUse 'websaver crawl <url>' to save a website.")
		return nil
	}

	fmt.Fprintf(out, "Crawled hosts (%d):\n\n", len(hosts))
	for _, h := range hosts {
		fmt.Fprintf(out, "  • %s\n", h)
	}
	fmt.Fprintln(out, "\nUse 'websaver history <host>' to see the runs of a host.")
	return nil
}

// listRunHistory prints a table of recorded runs, newest first.
func listRunHistory(ctx context.Context, out io.Writer, db *database.CrawlDB, host string) error {
	runs, err := db.ListRuns(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get crawl history: %w", err)
	}
	if len(runs) == 0 {
		if host != "" {
			fmt.Fprintf(out, "No crawl history found for %s\n", host)
		} else {
			fmt.Fprintln(out, "No crawl history found.")
		}
		fmt.Fprintln(out, "\nUse 'websaver crawl <url>' to save a website.")
		return nil
	}

	if host != "" {
		fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", host, len(runs))
	} else {
		fmt.Fprintf(out, "Crawl history (%d runs):\n\n", len(runs))
	}
	fmt.Fprintf(out, "  %-36s  %-19s  %-14s  %-9s  %7s  %6s  %s\n",
		"ID", "Started", "", "Outcome", "Visited", "Failed", "Seed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 110))

	for _, meta := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %-14s  %-9s  %7d  %6d  %s\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			"("+humanize.Time(meta.StartedAt)+")",
			meta.Outcome,
			meta.Visited,
			meta.Failed,
			meta.Seed,
		)
	}

	fmt.Fprintln(out, "\nUse 'websaver history --run <id>' to see the details of a run.")
	return nil
}

// showRun prints a stored run using the report writers.
func showRun(ctx context.Context, out io.Writer, db *database.CrawlDB, runID string, showPages, jsonOutput, markdownOutput bool) error {
	summary, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if summary == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	if _, err := w.Write(summary); err != nil {
		return err
	}
	if !showPages || jsonOutput {
		return nil
	}

	pages, err := db.GetPages(ctx, runID)
	if err != nil {
		return err
	}
	writePageTable(out, pages)
	return nil
}

// writePageTable prints one line per recorded page.
func writePageTable(out io.Writer, pages []model.PageRecord) {
	fmt.Fprintf(out, "\nPages (%d):\n\n", len(pages))
	fmt.Fprintf(out, "  %-6s  %5s  %6s  %9s  %s\n", "State", "Depth", "Status", "Time", "URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))
	for _, p := range pages {
		status := "-"
		if p.StatusCode != 0 {
			status = fmt.Sprintf("%d", p.StatusCode)
		}
		fmt.Fprintf(out, "  %-6s  %5d  %6s  %9s  %s\n",
			p.State, p.Depth, status, p.Duration.Round(time.Millisecond), p.URL)
		for _, f := range p.Failures {
			fmt.Fprintf(out, "          %s: %s\n", f.Kind, f.Reason)
		}
	}
}
