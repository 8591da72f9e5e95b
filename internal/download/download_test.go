package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
)

// pdfBody carries an Info dictionary whose title is UTF-16BE "アレルギー一覧".
const pdfBody = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n" +
	"2 0 obj\n<< /Title <FEFF30A230EC30EB30AE30FC4E0089A7> /ModDate (D:20261001090000+09'00') >>\nendobj\n" +
	"trailer\n<< /Info 2 0 R >>\n%%EOF\n"

func newPDFServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/allergy.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(pdfBody))
	})
	mux.HandleFunc("/octet.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(pdfBody))
	})
	mux.HandleFunc("/page.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>moved</html>"))
	})
	mux.HandleFunc("/missing.pdf", http.NotFound)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDownloader(dir string) *Downloader {
	d := New(fetch.New(), dir, WithRate(0))
	d.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	return d
}

func TestNormalizeChainName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "すき家", want: "すき家"},
		{in: "  Mos Burger ", want: "mos_burger"},
		{in: "ＭＯＳ　ＢＵＲＧＥＲ", want: "mos_burger"},
		{in: "a/b\\c:d", want: "a_b_c_d"},
		{in: "KFC -- Japan", want: "kfc_japan"},
		{in: "../..", want: "allergen"},
		{in: "", want: "allergen"},
	}
	for _, tt := range tests {
		if got := NormalizeChainName(tt.in); got != tt.want {
			t.Errorf("NormalizeChainName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	srv := newPDFServer(t)

	t.Run("pdf content type", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "a.pdf")
		n, err := newTestDownloader("").Download(context.Background(), srv.URL+"/allergy.pdf", dest)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != int64(len(pdfBody)) {
			t.Errorf("expected %d bytes, got %d", len(pdfBody), n)
		}
		data, _ := os.ReadFile(dest)
		if string(data) != pdfBody {
			t.Errorf("unexpected file content %q", data)
		}
	})

	t.Run("pdf magic with generic content type", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "b.pdf")
		if _, err := newTestDownloader("").Download(context.Background(), srv.URL+"/octet.pdf", dest); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("html is rejected", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "c.pdf")
		_, err := newTestDownloader("").Download(context.Background(), srv.URL+"/page.pdf", dest)
		if !errors.Is(err, ErrNotPDF) {
			t.Fatalf("expected ErrNotPDF, got %v", err)
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Error("expected no file for rejected download")
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "d.pdf")
		_, err := newTestDownloader("").Download(context.Background(), srv.URL+"/missing.pdf", dest)
		if !errors.Is(err, fetch.ErrUnexpectedStatus) {
			t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
		}
	})

	t.Run("rate limit respects context deadline", func(t *testing.T) {
		t.Parallel()

		d := New(fetch.New(), t.TempDir(), WithRate(1.0/3600))
		dir := d.Dir()
		if _, err := d.Download(context.Background(), srv.URL+"/allergy.pdf", filepath.Join(dir, "1.pdf")); err != nil {
			t.Fatalf("first download should use the burst: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := d.Download(ctx, srv.URL+"/allergy.pdf", filepath.Join(dir, "2.pdf")); err == nil {
			t.Error("expected rate limit error before the next token")
		}
	})
}

func TestSave(t *testing.T) {
	t.Parallel()

	srv := newPDFServer(t)

	t.Run("names files by chain and time with collision suffix", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "pdf")
		d := newTestDownloader(dir)
		hit := model.PdfHit{URL: srv.URL + "/allergy.pdf", Text: "アレルギー"}

		first, err := d.Save(context.Background(), "Mos Burger", hit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := d.Save(context.Background(), "Mos Burger", hit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if filepath.Base(first.Path) != "mos_burger_20261015T093000.pdf" {
			t.Errorf("unexpected first name %q", filepath.Base(first.Path))
		}
		if filepath.Base(second.Path) != "mos_burger_20261015T093000_2.pdf" {
			t.Errorf("unexpected second name %q", filepath.Base(second.Path))
		}
		if first.Size != int64(len(pdfBody)) {
			t.Errorf("expected size %d, got %d", len(pdfBody), first.Size)
		}
		if first.Info.Title != "アレルギー一覧" {
			t.Errorf("expected title from the info dictionary, got %q", first.Info.Title)
		}
		if first.Hit.Text != "アレルギー" {
			t.Errorf("expected hit to be kept, got %+v", first.Hit)
		}
	})

	t.Run("failed download leaves no file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		d := newTestDownloader(dir)
		if _, err := d.Save(context.Background(), "chain", model.PdfHit{URL: srv.URL + "/page.pdf"}); err == nil {
			t.Fatal("expected error")
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("expected empty directory, got %d entries", len(entries))
		}
	})

	t.Run("no directory", func(t *testing.T) {
		t.Parallel()

		if _, err := newTestDownloader("").Save(context.Background(), "chain", model.PdfHit{}); !errors.Is(err, ErrNoDirectory) {
			t.Errorf("expected ErrNoDirectory, got %v", err)
		}
	})
}

func TestSaveAll(t *testing.T) {
	t.Parallel()

	srv := newPDFServer(t)
	d := newTestDownloader(t.TempDir())

	saved, err := d.SaveAll(context.Background(), "すき家", []model.PdfHit{
		{URL: srv.URL + "/allergy.pdf"},
		{URL: srv.URL + "/missing.pdf"},
		{URL: srv.URL + "/octet.pdf"},
	})
	if err == nil {
		t.Fatal("expected joined error for the missing PDF")
	}
	if !strings.Contains(err.Error(), "/missing.pdf") {
		t.Errorf("expected failing URL in error, got %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved files, got %d", len(saved))
	}
	if !strings.HasPrefix(filepath.Base(saved[0].Path), "すき家_") {
		t.Errorf("unexpected name %q", filepath.Base(saved[0].Path))
	}
}

func TestSaveReadsGeneratedPDF(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("アレルギー一覧", true)
	doc.SetCreationDate(created)
	doc.AddPage()
	doc.AddPage()

	var body bytes.Buffer
	if err := doc.Output(&body); err != nil {
		t.Fatalf("failed to generate PDF: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body.Bytes())
	}))
	t.Cleanup(srv.Close)

	saved, err := newTestDownloader(t.TempDir()).Save(context.Background(), "すき家", model.PdfHit{URL: srv.URL + "/a.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved.Info.Title != "アレルギー一覧" {
		t.Errorf("expected UTF-16 title decoded, got %q", saved.Info.Title)
	}
	if !saved.Info.Updated().Equal(created) {
		t.Errorf("expected %v, got %v", created, saved.Info.Updated())
	}
	if saved.Info.Pages != 2 {
		t.Errorf("expected 2 pages, got %d", saved.Info.Pages)
	}
	if saved.Size != int64(body.Len()) {
		t.Errorf("expected size %d, got %d", body.Len(), saved.Size)
	}
}
