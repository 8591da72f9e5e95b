package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/allergenscan/internal/config"
	"github.com/nao1215/allergenscan/internal/database"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [chain-name]",
		Short: "Show past crawl runs",
		Long: `History lists the crawl runs recorded by find and crawl, newest first.

Give a chain name to list only its runs. Use --run to print the full report
of one run again, or --latest to print the newest run of the chain.

Examples:
  # List every recorded run
  allergenscan history

  # List the runs of one chain
  allergenscan history すき家

  # Show the newest report of a chain as Markdown
  allergenscan history --latest --markdown すき家

  # Show one run by ID
  allergenscan history --run 6f1c1f2e-0000-4000-8000-000000000001`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("run", "",
		"Print the report of the run with this ID")
	cmd.Flags().BoolP("latest", "l", false,
		"Print the report of the newest run (of the given chain)")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	var chain string
	if len(args) > 0 {
		chain = args[0]
	}

	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	latest, err := cmd.Flags().GetBool("latest")
	if err != nil {
		return err
	}
	if runID != "" && latest {
		return errors.New("--run and --latest cannot be used together")
	}

	cfg := config.NewConfig()
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.DBPath()); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "No crawl history yet. Run 'allergenscan find' or 'allergenscan crawl' first.")
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
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
	case runID != "":
		return showRun(ctx, db, cfg, runID, out)
	case latest:
		summary, err := db.LatestRun(ctx, chain)
		if err != nil {
			return fmt.Errorf("failed to get latest run: %w", err)
		}
		if summary == nil {
			fmt.Fprintln(out, noHistoryMessage(chain))
			return nil
		}
		return showRun(ctx, db, cfg, summary.ID, out)
	default:
		return listRuns(ctx, db, chain, cfg.JSONReport, out)
	}
}

// showRun prints the stored report of one run.
func showRun(ctx context.Context, db *database.CrawlDB, cfg *config.Config, runID string, out io.Writer) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return outputReport(cfg, run, out)
}

// listRuns prints one line per run, newest first.
func listRuns(ctx context.Context, db *database.CrawlDB, chain string, asJSON bool, out io.Writer) error {
	runs, err := db.ListRuns(ctx, chain)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if asJSON {
		if runs == nil {
			runs = []database.RunSummary{}
		}
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, noHistoryMessage(chain))
		return nil
	}

	if chain != "" {
		fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", chain, len(runs))
	} else {
		fmt.Fprintf(out, "Crawl history (%d runs):\n\n", len(runs))
	}
	fmt.Fprintf(out, "  %-36s  %-19s  %4s  %-10s  %s\n", "ID", "Date", "PDFs", "Status", "Site")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))

	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %4d  %-10s  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.HitCount,
			summaryStatus(r),
			r.SeedURL,
		)
	}

	fmt.Fprintln(out, "\nUse 'allergenscan history --run <id>' to show a report again.")
	return nil
}

func summaryStatus(r database.RunSummary) string {
	switch {
	case r.TimedOut:
		return "timed out"
	case r.Error != "":
		return "error"
	default:
		return "complete"
	}
}

func noHistoryMessage(chain string) string {
	if chain == "" {
		return "No crawl history found."
	}
	return fmt.Sprintf("No crawl history found for %s.", chain)
}
