package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nao1215/allergenscan/internal/log"
)

// NewRootCmd creates the root command for AllergenScan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allergenscan",
		Short: "Find allergen information PDFs on restaurant chain sites",
		Long: `AllergenScan finds the allergen information PDFs that restaurant chains
publish on their official sites.

It looks up the official site of a chain, reads robots.txt, and scans the
top page, the sitemap and the first level of subpages for PDF links whose
text or URL mentions allergens or ingredients.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	cmd.AddCommand(NewFindCmd())
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

// getBoolFlag reads a flag from the command or, failing that, from the
// root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// setupLogger picks the log handler: JSON when asked, colored output on a
// terminal, plain text otherwise. Every handler is wrapped to redact
// credentials.
func setupLogger(w io.Writer, verbose, jsonLogs bool) *slog.Logger {
	if jsonLogs {
		return log.NewSecureJSONLogger(w, verbose)
	}
	if isTerminal(w) {
		return log.NewSecureTintLogger(w, verbose, false)
	}
	return log.NewSecureLogger(w, verbose)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
