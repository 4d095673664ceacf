package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/websaver/internal/model"
)

// createTestSummary creates a summary with sample data for testing.
func createTestSummary() *model.RunSummary {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.RunSummary{
		RunID:         "3f1c2d4e-0000-4000-8000-000000000001",
		Seed:          "https://example.com/",
		OutputDir:     "download/example.com",
		Formats:       []model.Format{model.FormatHTML, model.FormatMarkdown},
		StartedAt:     started,
		FinishedAt:    started.Add(2500 * time.Millisecond),
		Visited:       2,
		Failed:        1,
		Discovered:    3,
		ScopeRejected: 4,
		Artifacts: []model.ArtifactRecord{
			{URL: "https://example.com/", Format: model.FormatHTML, Path: "index.html", Size: 2048},
			{URL: "https://example.com/", Format: model.FormatMarkdown, Path: "index.md", Size: 512},
			{URL: "https://example.com/a", Format: model.FormatHTML, Path: "a.html", Size: 1024},
		},
		Failures: []model.Failure{
			{URL: "https://example.com/a", Format: model.FormatMarkdown, Kind: model.FailureConversion, Reason: "empty document"},
			{URL: "https://example.com/b", Kind: model.FailureFetch, Reason: "https://example.com/b returned status 404 Not Found", Attempts: 1},
		},
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and counts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"WEBSAVER REPORT",
			"https://example.com/",
			"Completed with failures",
			"Pages saved:      2",
			"Links rejected:   4",
			"html, markdown",
			"Duration:   2.5s",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})

	t.Run("groups failures by kind", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		fetch := strings.Index(output, "Fetch failures (1)")
		conversion := strings.Index(output, "Conversion failures (1)")
		if fetch < 0 || conversion < 0 || fetch > conversion {
			t.Errorf("expected fetch failures before conversion failures\n%s", output)
		}
		if !strings.Contains(output, "https://example.com/a [markdown]") {
			t.Errorf("expected failure format in output\n%s", output)
		}
	})

	t.Run("artifacts only in verbose mode", func(t *testing.T) {
		t.Parallel()

		var quiet, verbose bytes.Buffer
		if _, err := NewSimpleWriter(&quiet).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if _, err := NewSimpleWriter(&verbose, WithVerbose(true)).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(quiet.String(), "ARTIFACTS") {
			t.Error("expected no artifact list without verbose")
		}
		if !strings.Contains(verbose.String(), "index.md") {
			t.Error("expected artifact list in verbose mode")
		}
	})

	t.Run("complete run has no failure section", func(t *testing.T) {
		t.Parallel()

		summary := createTestSummary()
		summary.Failures = nil
		summary.Failed = 0

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(summary); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "FAILURES") {
			t.Error("expected no failure section")
		}
		if !strings.Contains(buf.String(), "Status:     Complete") {
			t.Errorf("expected complete status\n%s", buf.String())
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestSummary())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero byte count")
		}

		output := buf.String()
		for _, want := range []string{
			"# websaver Report",
			"## Summary",
			"## Artifacts",
			"## Failures",
			"`index.md`",
			"conversion_failed",
			"```mermaid",
			"[!IMPORTANT]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})

	tests := []struct {
		name  string
		edit  func(*model.RunSummary)
		alert string
	}{
		{
			name: "complete",
			edit: func(s *model.RunSummary) {
				s.Failures = nil
				s.Failed = 0
			},
			alert: "[!TIP]",
		},
		{
			name:  "cancelled",
			edit:  func(s *model.RunSummary) { s.Cancelled = true },
			alert: "[!WARNING]",
		},
		{
			name: "no pages",
			edit: func(s *model.RunSummary) {
				s.Visited = 0
				s.Artifacts = nil
			},
			alert: "[!CAUTION]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+" alert", func(t *testing.T) {
			t.Parallel()

			summary := createTestSummary()
			tt.edit(summary)

			var buf bytes.Buffer
			if _, err := NewMarkdownWriter(&buf).Write(summary); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.alert) {
				t.Errorf("expected %s alert\n%s", tt.alert, buf.String())
			}
		})
	}
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithVersion("1.2.3"))
		if _, err := w.Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if got.Version != "1.2.3" {
			t.Errorf("Version = %q", got.Version)
		}
		if got.Outcome != model.OutcomePartial {
			t.Errorf("Outcome = %q", got.Outcome)
		}
		if got.DurationMS != 2500 {
			t.Errorf("DurationMS = %d", got.DurationMS)
		}
		if got.Summary == nil || got.Summary.Visited != 2 || len(got.Summary.Failures) != 2 {
			t.Errorf("Summary = %+v", got.Summary)
		}
	})

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected single line output")
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestSummary()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "\n  \"outcome\"") {
			t.Errorf("expected indented output\n%s", buf.String())
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*model.RunSummary) (int, error) {
	return 0, errors.New("write failed")
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var buf1, buf2 bytes.Buffer
		multi := NewMultiWriter(NewSimpleWriter(&buf1), NewJSONWriter(&buf2))

		if _, err := multi.Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf1.Len() == 0 || buf2.Len() == 0 {
			t.Error("expected both buffers to have content")
		}
		if strings.HasPrefix(buf1.String(), "{") {
			t.Error("expected buf1 (simple) to not be JSON")
		}
		if !strings.HasPrefix(buf2.String(), "{") {
			t.Error("expected buf2 (JSON) to be JSON")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		multi := NewMultiWriter(failingWriter{}, NewSimpleWriter(&buf))
		if _, err := multi.Write(createTestSummary()); err == nil {
			t.Error("expected error")
		}
		if buf.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

// TestTruncateString tests the truncateString helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
		{"日本語のテキスト", 5, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
