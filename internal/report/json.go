package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/allergenscan/internal/model"
)

// JSONWriter outputs the run as a single JSON document.
type JSONWriter struct {
	baseWriter

	indentPrefix string
	indentString string
	indent       bool
	version      string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	Version string `json:"version,omitempty"`
	*model.CrawlRun
	DurationMS int64               `json:"duration_ms"`
	Status     string              `json:"status"`
	HitCount   int                 `json:"hit_count"`
	Hits       []model.RecordedHit `json:"hits"`
}

// NewJSONReport wraps run for encoding.
func NewJSONReport(run *model.CrawlRun, version string) *JSONReport {
	return &JSONReport{
		Version:    version,
		CrawlRun:   run,
		DurationMS: run.Duration().Milliseconds(),
		Status:     status(run),
		HitCount:   run.HitCount(),
		Hits:       run.RecordedHits(),
	}
}

// Write outputs the run as JSON followed by a newline.
func (w *JSONWriter) Write(run *model.CrawlRun) (int, error) {
	return w.writeJSON(NewJSONReport(run, w.version))
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	return w.output.Write(append(data, '\n'))
}
