package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/websaver/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testSummary(id, seed string, started time.Time) *model.RunSummary {
	return &model.RunSummary{
		RunID:      id,
		Seed:       seed,
		OutputDir:  "download/example.com",
		Formats:    []model.Format{model.FormatMarkdown},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Visited:    2,
		Failed:     1,
		Discovered: 3,
		Artifacts: []model.ArtifactRecord{
			{URL: seed, Format: model.FormatMarkdown, Path: "index.md", Size: 10},
			{URL: seed + "a", Format: model.FormatMarkdown, Path: "a.md", Size: 20},
		},
		Failures: []model.Failure{
			{URL: seed + "b", Kind: model.FailureFetch, Reason: "status 404", Attempts: 1, Time: started},
		},
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error when database does not exist")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	summary := testSummary("run-1", "https://example.com/", started)

	if err := db.SaveRun(ctx, summary); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := db.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetRun() returned nil")
	}
	if got.Seed != summary.Seed || got.Visited != 2 || got.Failed != 1 {
		t.Errorf("GetRun() = %+v", got)
	}
	if len(got.Artifacts) != 2 || len(got.Failures) != 1 {
		t.Errorf("GetRun() artifacts=%d failures=%d", len(got.Artifacts), len(got.Failures))
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	t.Run("missing run", func(t *testing.T) {
		got, err := db.GetRun(ctx, "nope")
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got != nil {
			t.Errorf("GetRun() = %+v, want nil", got)
		}
	})

	t.Run("empty run id", func(t *testing.T) {
		if err := db.SaveRun(ctx, &model.RunSummary{Seed: "https://example.com/"}); err == nil {
			t.Error("SaveRun() should reject a summary without run id")
		}
	})

	t.Run("save again replaces", func(t *testing.T) {
		updated := testSummary("run-1", "https://example.com/", started)
		updated.Visited = 5
		if err := db.SaveRun(ctx, updated); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
		got, err := db.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.Visited != 5 {
			t.Errorf("Visited = %d, want 5", got.Visited)
		}
	})
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	runs := []*model.RunSummary{
		testSummary("old", "https://example.com/", base),
		testSummary("new", "https://Example.com/docs", base.Add(time.Hour)),
		testSummary("other", "https://other.example/", base.Add(30*time.Minute)),
	}
	for _, r := range runs {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", r.RunID, err)
		}
	}

	t.Run("by host newest first", func(t *testing.T) {
		got, err := db.ListRuns(ctx, "EXAMPLE.com")
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
			t.Fatalf("ListRuns() = %+v", got)
		}
		if got[0].Outcome != model.OutcomePartial {
			t.Errorf("Outcome = %q", got[0].Outcome)
		}
		if got[0].Artifacts != 2 || got[0].Failures != 1 {
			t.Errorf("counts = %d/%d", got[0].Artifacts, got[0].Failures)
		}
		if got[0].Duration() != 3*time.Second {
			t.Errorf("Duration() = %v", got[0].Duration())
		}
	})

	t.Run("all hosts", func(t *testing.T) {
		got, err := db.ListRuns(ctx, "")
		if err != nil {
			t.Fatalf("ListRuns() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("ListRuns() returned %d runs, want 3", len(got))
		}
	})

	t.Run("hosts", func(t *testing.T) {
		got, err := db.ListHosts(ctx)
		if err != nil {
			t.Fatalf("ListHosts() error = %v", err)
		}
		if len(got) != 2 || got[0] != "example.com" || got[1] != "other.example" {
			t.Errorf("ListHosts() = %v", got)
		}
	})

	t.Run("latest", func(t *testing.T) {
		got, err := db.GetLatestRun(ctx, "example.com")
		if err != nil {
			t.Fatalf("GetLatestRun() error = %v", err)
		}
		if got == nil || got.RunID != "new" {
			t.Errorf("GetLatestRun() = %+v", got)
		}

		none, err := db.GetLatestRun(ctx, "unknown.example")
		if err != nil {
			t.Fatalf("GetLatestRun() error = %v", err)
		}
		if none != nil {
			t.Errorf("GetLatestRun() = %+v, want nil", none)
		}
	})
}

func TestRecordPage(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []*model.PageRecord{
		{
			RunID:      "run-1",
			URL:        "https://example.com/",
			Depth:      0,
			State:      model.PageDone,
			StatusCode: 200,
			Title:      "Home",
			Hash:       "abc",
			Duration:   1500 * time.Millisecond,
			Timestamp:  now,
			Artifacts: []model.ArtifactRecord{
				{URL: "https://example.com/", Format: model.FormatHTML, Path: "index.html", Size: 100},
				{URL: "https://example.com/", Format: model.FormatMarkdown, Path: "index.md", Size: 40},
			},
		},
		{
			RunID:     "run-1",
			URL:       "https://example.com/broken",
			Depth:     1,
			State:     model.PageFailed,
			Timestamp: now,
			Failures: []model.Failure{
				{URL: "https://example.com/broken", Kind: model.FailureFetch, Reason: "timed out", Attempts: 2, Time: now},
			},
		},
		{
			RunID:     "run-2",
			URL:       "https://example.com/",
			State:     model.PageDone,
			Timestamp: now,
		},
	}
	for _, rec := range records {
		if err := db.RecordPage(ctx, rec); err != nil {
			t.Fatalf("RecordPage(%s) error = %v", rec.URL, err)
		}
	}

	pages, err := db.GetPages(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetPages() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("GetPages() returned %d pages, want 2", len(pages))
	}

	home := pages[0]
	if home.URL != "https://example.com/" || home.Title != "Home" || home.StatusCode != 200 {
		t.Errorf("home = %+v", home)
	}
	if home.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", home.Duration)
	}
	if len(home.Artifacts) != 2 || home.Artifacts[0].Format != model.FormatHTML {
		t.Errorf("Artifacts = %+v", home.Artifacts)
	}

	broken := pages[1]
	if broken.State != model.PageFailed || len(broken.Failures) != 1 {
		t.Fatalf("broken = %+v", broken)
	}
	if f := broken.Failures[0]; f.Kind != model.FailureFetch || f.Attempts != 2 || !f.Time.Equal(now) {
		t.Errorf("failure = %+v", f)
	}

	t.Run("recording again replaces", func(t *testing.T) {
		again := *records[0]
		again.Artifacts = again.Artifacts[:1]
		if err := db.RecordPage(ctx, &again); err != nil {
			t.Fatalf("RecordPage() error = %v", err)
		}
		pages, err := db.GetPages(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetPages() error = %v", err)
		}
		if len(pages) != 2 || len(pages[0].Artifacts) != 1 {
			t.Errorf("pages = %+v", pages)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{name: "stored format", input: formatTimestamp(want), want: want},
		{name: "rfc3339", input: "2026-01-02T03:04:05Z", want: want},
		{name: "sqlite default", input: "2026-01-02 03:04:05", want: want},
		{name: "invalid", input: "yesterday", want: time.Time{}},
		{name: "empty", input: "", want: time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
