package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/allergenscan/internal/model"
)

// DBFileName is the database file created inside the data directory.
const DBFileName = "allergenscan.db"

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("crawl run not found")

// CrawlDB stores the history of crawl runs and the PDFs each one found.
type CrawlDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if needed.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		mode = "rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	// busy_timeout lets a second process wait for the writer instead of
	// failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite", dbPath+"?mode="+mode+"&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		chain TEXT NOT NULL DEFAULT '',
		seed_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		hit_count INTEGER NOT NULL DEFAULT 0,
		phases TEXT NOT NULL DEFAULT '',
		timed_out INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_chain ON crawl_runs(chain);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	CREATE TABLE IF NOT EXISTS pdf_hits (
		run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		phase TEXT NOT NULL,
		url TEXT NOT NULL,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_hits_url ON pdf_hits(url);
	`
	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunSummary is one row of crawl_runs.
type RunSummary struct {
	ID         string    `json:"id"`
	Chain      string    `json:"chain,omitempty"`
	SeedURL    string    `json:"seed_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	HitCount   int       `json:"hit_count"`
	Phases     string    `json:"phases"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// SaveRun stores run and its hits in one transaction. A run without an ID
// is given a new UUID, which is written back to run.ID.
func (cdb *CrawlDB) SaveRun(ctx context.Context, run *model.CrawlRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (id, chain, seed_url, started_at, finished_at, hit_count, phases, timed_out, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Chain,
		run.SeedURL,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		run.HitCount(),
		joinPhases(run.PerformedPhases),
		run.TimedOut,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert crawl run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO pdf_hits (run_id, position, phase, url, text, source)
	VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare hit insert: %w", err)
	}
	defer stmt.Close()

	pos := 0
	for _, phase := range model.Phases {
		for _, h := range run.PhaseHits(phase) {
			if _, err := stmt.ExecContext(ctx, run.ID, pos, string(phase), h.URL, h.Text, h.Source); err != nil {
				return fmt.Errorf("failed to insert hit %s: %w", h.URL, err)
			}
			pos++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit crawl run: %w", err)
	}
	return nil
}

const runColumns = `id, chain, seed_url, started_at, finished_at, hit_count, phases, timed_out, error`

// ListRuns returns runs newest first. An empty chain lists every run.
func (cdb *CrawlDB) ListRuns(ctx context.Context, chain string) ([]RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs`
	args := []any{}
	if chain != "" {
		query += ` WHERE chain = ?`
		args = append(args, chain)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *s)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run for chain, or nil if there is none.
func (cdb *CrawlDB) LatestRun(ctx context.Context, chain string) (*RunSummary, error) {
	row := cdb.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM crawl_runs WHERE chain = ? ORDER BY started_at DESC LIMIT 1`, chain)
	s, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// GetHits returns the hits of a run in their original order.
func (cdb *CrawlDB) GetHits(ctx context.Context, runID string) ([]model.RecordedHit, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT phase, url, text, source FROM pdf_hits
	WHERE run_id = ?
	ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get hits: %w", err)
	}
	defer rows.Close()

	hits := make([]model.RecordedHit, 0)
	for rows.Next() {
		var h model.RecordedHit
		var phase string
		if err := rows.Scan(&phase, &h.URL, &h.Text, &h.Source); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		h.Phase = model.Phase(phase)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GetRun rebuilds a stored run with its hits. It returns ErrRunNotFound
// for an unknown ID.
func (cdb *CrawlDB) GetRun(ctx context.Context, runID string) (*model.CrawlRun, error) {
	row := cdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM crawl_runs WHERE id = ?`, runID)
	s, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	hits, err := cdb.GetHits(ctx, runID)
	if err != nil {
		return nil, err
	}

	run := model.NewCrawlRun(s.SeedURL)
	run.ID = s.ID
	run.Chain = s.Chain
	run.StartedAt = s.StartedAt
	run.FinishedAt = s.FinishedAt
	run.PerformedPhases = splitPhases(s.Phases)
	run.TimedOut = s.TimedOut
	run.ErrorMessage = s.Error
	for _, h := range hits {
		run.AddHits(h.Phase, h.PdfHit)
	}
	return run, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunSummary, error) {
	var s RunSummary
	var started, finished string
	err := row.Scan(&s.ID, &s.Chain, &s.SeedURL, &started, &finished, &s.HitCount, &s.Phases, &s.TimedOut, &s.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan crawl run: %w", err)
	}
	s.StartedAt = parseTimestamp(started)
	s.FinishedAt = parseTimestamp(finished)
	return &s, nil
}

// timestampLayout has a fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats are tried in order when reading timestamps back.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp parses s with the known formats, or returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func joinPhases(phases []string) string {
	return strings.Join(phases, ",")
}

func splitPhases(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
