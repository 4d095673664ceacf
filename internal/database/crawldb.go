package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/websaver/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "websaver.db"

// CrawlDB provides SQLite-based storage for crawl history.
// It is safe for concurrent use; writes are serialized on one connection.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// busy_timeout lets history queries wait for a running crawl's writes.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

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

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Runs hold one finished crawl each
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL,
		host TEXT NOT NULL,
		output_dir TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		outcome TEXT NOT NULL,
		visited INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		discovered INTEGER NOT NULL DEFAULT 0,
		scope_rejected INTEGER NOT NULL DEFAULT 0,
		artifact_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Pages are recorded as their pipelines finish
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		state TEXT NOT NULL,
		status_code INTEGER,
		title TEXT,
		hash TEXT,
		duration_ms INTEGER,
		timestamp TEXT NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		format TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);

	CREATE TABLE IF NOT EXISTS failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		format TEXT,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		attempts INTEGER,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RecordPage stores a finished page with its artifacts and failures.
// Recording the same page of a run twice replaces the earlier record.
func (cdb *CrawlDB) RecordPage(ctx context.Context, rec *model.PageRecord) (err error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM artifacts WHERE run_id = ? AND url = ?`,
		`DELETE FROM failures WHERE run_id = ? AND url = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, rec.RunID, rec.URL); err != nil {
			return fmt.Errorf("failed to clear page record: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO pages (run_id, url, depth, state, status_code, title, hash, duration_ms, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		depth = excluded.depth,
		state = excluded.state,
		status_code = excluded.status_code,
		title = excluded.title,
		hash = excluded.hash,
		duration_ms = excluded.duration_ms,
		timestamp = excluded.timestamp
	`,
		rec.RunID,
		rec.URL,
		rec.Depth,
		string(rec.State),
		rec.StatusCode,
		rec.Title,
		rec.Hash,
		rec.Duration.Milliseconds(),
		formatTimestamp(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page record: %w", err)
	}

	for _, a := range rec.Artifacts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO artifacts (run_id, url, format, path, size) VALUES (?, ?, ?, ?, ?)`,
			rec.RunID, a.URL, string(a.Format), a.Path, a.Size,
		)
		if err != nil {
			return fmt.Errorf("failed to insert artifact: %w", err)
		}
	}

	for _, f := range rec.Failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO failures (run_id, url, format, kind, reason, attempts, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, f.URL, string(f.Format), string(f.Kind), f.Reason, f.Attempts, formatTimestamp(f.Time),
		)
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page record: %w", err)
	}
	return nil
}

// SaveRun stores the summary of a finished run.
// Saving a run again replaces the stored summary.
func (cdb *CrawlDB) SaveRun(ctx context.Context, summary *model.RunSummary) error {
	if summary.RunID == "" {
		return errors.New("run summary has no run id")
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := `
	INSERT INTO runs (id, seed, host, output_dir, started_at, finished_at, outcome,
		visited, failed, discovered, scope_rejected, artifact_count, failure_count, summary_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		finished_at = excluded.finished_at,
		outcome = excluded.outcome,
		visited = excluded.visited,
		failed = excluded.failed,
		discovered = excluded.discovered,
		scope_rejected = excluded.scope_rejected,
		artifact_count = excluded.artifact_count,
		failure_count = excluded.failure_count,
		summary_json = excluded.summary_json
	`

	_, err = cdb.db.ExecContext(ctx, query,
		summary.RunID,
		summary.Seed,
		hostOf(summary.Seed),
		summary.OutputDir,
		formatTimestamp(summary.StartedAt),
		formatTimestamp(summary.FinishedAt),
		string(summary.Outcome()),
		summary.Visited,
		summary.Failed,
		summary.Discovered,
		summary.ScopeRejected,
		len(summary.Artifacts),
		len(summary.Failures),
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RunMetadata contains summary information about a stored run.
// It is used for listing history without loading full summaries.
type RunMetadata struct {
	ID            string
	Seed          string
	Host          string
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcome       model.Outcome
	Visited       int
	Failed        int
	Discovered    int
	ScopeRejected int
	Artifacts     int
	Failures      int
}

// Duration returns the wall time of the run.
func (m RunMetadata) Duration() time.Duration {
	if m.FinishedAt.IsZero() {
		return 0
	}
	return m.FinishedAt.Sub(m.StartedAt)
}

// ListRuns returns stored runs, newest first. An empty host lists runs of
// every host.
func (cdb *CrawlDB) ListRuns(ctx context.Context, host string) ([]RunMetadata, error) {
	query := `
	SELECT id, seed, host, started_at, finished_at, outcome,
		visited, failed, discovered, scope_rejected, artifact_count, failure_count
	FROM runs
	`
	var args []any
	if host != "" {
		query += " WHERE host = ?"
		args = append(args, strings.ToLower(host))
	}
	query += " ORDER BY started_at DESC"

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var (
			meta       RunMetadata
			startedAt  string
			finishedAt sql.NullString
			outcome    string
		)
		if err := rows.Scan(
			&meta.ID, &meta.Seed, &meta.Host, &startedAt, &finishedAt, &outcome,
			&meta.Visited, &meta.Failed, &meta.Discovered, &meta.ScopeRejected,
			&meta.Artifacts, &meta.Failures,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		if finishedAt.Valid {
			meta.FinishedAt = parseTimestamp(finishedAt.String)
		}
		meta.Outcome = model.Outcome(outcome)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListHosts returns every host that has stored runs, sorted.
func (cdb *CrawlDB) ListHosts(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT host FROM runs ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// GetRun returns the stored summary of a run, or nil if it doesn't exist.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*model.RunSummary, error) {
	var summaryJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT summary_json FROM runs WHERE id = ?`, id).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var summary model.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &summary, nil
}

// GetLatestRun returns the newest stored run of host, or nil if there is none.
func (cdb *CrawlDB) GetLatestRun(ctx context.Context, host string) (*model.RunSummary, error) {
	var id string
	err := cdb.db.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE host = ? ORDER BY started_at DESC LIMIT 1`,
		strings.ToLower(host),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return cdb.GetRun(ctx, id)
}

// GetPages returns the pages recorded for a run, ordered by depth then URL,
// with their artifacts and failures.
func (cdb *CrawlDB) GetPages(ctx context.Context, runID string) ([]model.PageRecord, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT url, depth, state, status_code, title, hash, duration_ms, timestamp
	FROM pages
	WHERE run_id = ?
	ORDER BY depth, url
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	var (
		pages []model.PageRecord
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			rec        model.PageRecord
			state      string
			statusCode sql.NullInt64
			title      sql.NullString
			hash       sql.NullString
			durationMS sql.NullInt64
			timestamp  string
		)
		if err := rows.Scan(&rec.URL, &rec.Depth, &state, &statusCode, &title, &hash, &durationMS, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		rec.RunID = runID
		rec.State = model.PageState(state)
		rec.StatusCode = int(statusCode.Int64)
		rec.Title = title.String
		rec.Hash = hash.String
		rec.Duration = time.Duration(durationMS.Int64) * time.Millisecond
		rec.Timestamp = parseTimestamp(timestamp)
		index[rec.URL] = len(pages)
		pages = append(pages, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := cdb.attachArtifacts(ctx, runID, pages, index); err != nil {
		return nil, err
	}
	if err := cdb.attachFailures(ctx, runID, pages, index); err != nil {
		return nil, err
	}
	return pages, nil
}

func (cdb *CrawlDB) attachArtifacts(ctx context.Context, runID string, pages []model.PageRecord, index map[string]int) error {
	rows, err := cdb.db.QueryContext(ctx,
		`SELECT url, format, path, size FROM artifacts WHERE run_id = ? ORDER BY url, format`, runID)
	if err != nil {
		return fmt.Errorf("failed to get artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a      model.ArtifactRecord
			format string
		)
		if err := rows.Scan(&a.URL, &format, &a.Path, &a.Size); err != nil {
			return fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Format = model.Format(format)
		if i, ok := index[a.URL]; ok {
			pages[i].Artifacts = append(pages[i].Artifacts, a)
		}
	}
	return rows.Err()
}

func (cdb *CrawlDB) attachFailures(ctx context.Context, runID string, pages []model.PageRecord, index map[string]int) error {
	rows, err := cdb.db.QueryContext(ctx,
		`SELECT url, format, kind, reason, attempts, timestamp FROM failures WHERE run_id = ? ORDER BY url, format`, runID)
	if err != nil {
		return fmt.Errorf("failed to get failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f         model.Failure
			format    sql.NullString
			kind      string
			attempts  sql.NullInt64
			timestamp string
		)
		if err := rows.Scan(&f.URL, &format, &kind, &f.Reason, &attempts, &timestamp); err != nil {
			return fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Format = model.Format(format.String)
		f.Kind = model.FailureKind(kind)
		f.Attempts = int(attempts.Int64)
		f.Time = parseTimestamp(timestamp)
		if i, ok := index[f.URL]; ok {
			pages[i].Failures = append(pages[i].Failures, f)
		}
	}
	return rows.Err()
}

// hostOf returns the lower-cased host of a seed URL.
func hostOf(seed string) string {
	u, err := url.Parse(seed)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(seed)
	}
	return strings.ToLower(u.Hostname())
}

// formatTimestamp stores times in UTC with nanosecond precision so that
// text ordering matches time ordering.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02T15:04:05.000000000Z",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
