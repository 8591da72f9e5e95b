package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/allergenscan/internal/model"
)

// SimpleWriter outputs a plain text report for the terminal: a short
// header and a numbered list of the PDFs found. The numbers are the ones
// accepted by --pick.
type SimpleWriter struct {
	baseWriter

	// verbose adds the source page and phase of each hit.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the source page and phase lines.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run in human-readable form.
func (w *SimpleWriter) Write(run *model.CrawlRun) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, run)
	w.writeHits(&sb, run)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.CrawlRun) {
	sb.WriteString("AllergenScan Report\n")
	sb.WriteString("===================\n")
	if run.Chain != "" {
		fmt.Fprintf(sb, "Chain:    %s\n", run.Chain)
	}
	fmt.Fprintf(sb, "Site:     %s\n", run.SeedURL)
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if d := run.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration: %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(sb, "Status:   %s\n", status(run))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeHits(sb *strings.Builder, run *model.CrawlRun) {
	hits := run.RecordedHits()
	if len(hits) == 0 {
		sb.WriteString("No allergen PDF found.\n")
		return
	}

	fmt.Fprintf(sb, "Found %d allergen PDF(s):\n", len(hits))
	for i, h := range hits {
		text := h.Text
		if text == "" {
			text = "(no link text)"
		}
		fmt.Fprintf(sb, "%3d. %s\n", i+1, text)
		fmt.Fprintf(sb, "     %s\n", h.URL)
		if w.verbose {
			fmt.Fprintf(sb, "     found on %s (%s)\n", h.Source, h.Phase)
		}
	}
}
