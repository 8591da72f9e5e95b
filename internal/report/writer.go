package report

import (
	"io"

	"github.com/nao1215/allergenscan/internal/model"
)

// Writer renders a crawl run.
type Writer interface {
	// Write outputs the run and returns the number of bytes written.
	Write(run *model.CrawlRun) (int, error)
}

// Format selects a report format.
type Format string

const (
	// FormatText is the plain terminal report.
	FormatText Format = "text"
	// FormatJSON is the machine-readable report.
	FormatJSON Format = "json"
	// FormatMarkdown is the GitHub-flavored Markdown report.
	FormatMarkdown Format = "markdown"
)

// New returns the Writer for format. Unknown formats fall back to text.
func New(format Format, output io.Writer, version string) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint(), WithVersion(version))
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output)
	}
}

// MultiWriter writes a run to several Writers, such as the terminal and a
// report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to every Writer, stopping at the first error.
func (m *MultiWriter) Write(run *model.CrawlRun) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// status summarizes how the run ended.
func status(run *model.CrawlRun) string {
	switch {
	case run.TimedOut:
		return "Timed out (partial results)"
	case run.ErrorMessage != "":
		return "Error - " + run.ErrorMessage
	default:
		return "Complete"
	}
}
