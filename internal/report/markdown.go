package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/allergenscan/internal/model"
)

// MarkdownWriter outputs GitHub-flavored Markdown, suited to sharing a
// chain's allergen documents in an issue or wiki page.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// phaseTitles are the section headings per phase.
var phaseTitles = map[model.Phase]string{
	model.PhaseSeed:    "Top page",
	model.PhaseSitemap: "Sitemap",
	model.PhaseSubpage: "Subpages",
}

// Write outputs the run in Markdown format.
func (w *MarkdownWriter) Write(run *model.CrawlRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeAlert(md, run)
	w.writeHits(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.CrawlRun) {
	title := "AllergenScan Report"
	if run.Chain != "" {
		title += ": " + run.Chain
	}
	md.H1(title)
	md.PlainText("")

	rows := [][]string{
		{"Official Site", run.SeedURL},
		{"Scan Date", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", run.Duration().Round(time.Millisecond).String()},
		{"PDFs Found", strconv.Itoa(run.HitCount())},
		{"Status", status(run)},
	}
	if run.ID != "" {
		rows = append(rows, []string{"Run ID", "`" + run.ID + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.CrawlRun) {
	switch {
	case run.TimedOut:
		md.Warningf("The crawl was cancelled. %d PDF(s) were found before it stopped.", run.HitCount())
	case run.ErrorMessage != "":
		md.Cautionf("The crawl stopped early: %s", run.ErrorMessage)
	case run.HitCount() == 0:
		md.Note("No allergen PDF was found. The site may publish allergen information as HTML instead.")
	default:
		md.Tip("Always check the official site for the latest allergen information.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeHits(md *markdown.Markdown, run *model.CrawlRun) {
	md.H2("Allergen PDFs")
	md.PlainText("")

	if run.HitCount() == 0 {
		md.PlainText("No allergen PDF found.")
		md.PlainText("")
		return
	}

	if run.HitCount() > 1 {
		w.writePieChart(md, run)
	}

	index := 1
	for _, phase := range model.Phases {
		hits := run.PhaseHits(phase)
		if len(hits) == 0 {
			continue
		}

		md.H3(phaseTitles[phase])
		md.PlainText("")

		rows := make([][]string, len(hits))
		for i, h := range hits {
			rows[i] = []string{
				strconv.Itoa(index),
				orDash(truncateString(h.Text, 40)),
				h.URL,
				h.Source,
			}
			index++
		}
		md.Table(markdown.TableSet{
			Header: []string{"#", "Link Text", "PDF", "Found On"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writePieChart shows how the hits split across phases.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, run *model.CrawlRun) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("PDFs by discovery phase"),
		piechart.WithShowData(true),
	)
	for _, phase := range model.Phases {
		if n := len(run.PhaseHits(phase)); n > 0 {
			chart.LabelAndIntValue(phaseTitles[phase], uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [AllergenScan](https://github.com/nao1215/allergenscan)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString shortens s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
