package model

import (
	"sort"
	"time"
)

// FailureKind classifies a per-page failure.
type FailureKind string

const (
	// FailureFetch means the page could not be rendered: network error,
	// timeout or non-success status.
	FailureFetch FailureKind = "fetch_failed"

	// FailureConversion means one format could not be produced for a
	// page that rendered fine.
	FailureConversion FailureKind = "conversion_failed"

	// FailureWrite means an artifact could not be persisted.
	FailureWrite FailureKind = "write_failed"
)

// Failure is a recorded per-page error. Failures never abort a run.
type Failure struct {
	// URL is the canonical key of the affected page.
	URL string `json:"url"`

	// Format is set for conversion and write failures.
	Format Format `json:"format,omitempty"`

	// Kind classifies the failure.
	Kind FailureKind `json:"kind"`

	// Reason is the error message.
	Reason string `json:"reason"`

	// Attempts is how many times the page was rendered.
	Attempts int `json:"attempts,omitempty"`

	// Time is when the failure was recorded.
	Time time.Time `json:"time"`
}

// ArtifactRecord describes an artifact that was written to disk.
type ArtifactRecord struct {
	URL    string `json:"url"`
	Format Format `json:"format"`
	// Path is relative to the output root.
	Path string `json:"path"`
	Size int    `json:"size"`
}

// PageState is the terminal state of a page within a run.
type PageState string

const (
	// PageDone means the page rendered; individual formats may still have failed.
	PageDone PageState = "done"
	// PageFailed means the page could not be rendered.
	PageFailed PageState = "failed"
)

// PageRecord is emitted once per page when its pipeline finishes.
type PageRecord struct {
	RunID      string           `json:"run_id"`
	URL        string           `json:"url"`
	Depth      int              `json:"depth"`
	State      PageState        `json:"state"`
	StatusCode int              `json:"status_code,omitempty"`
	Title      string           `json:"title,omitempty"`
	Hash       string           `json:"hash,omitempty"`
	Artifacts  []ArtifactRecord `json:"artifacts,omitempty"`
	Failures   []Failure        `json:"failures,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Outcome is the overall result of a run.
type Outcome string

const (
	// OutcomeComplete means every visited page produced every format.
	OutcomeComplete Outcome = "complete"
	// OutcomePartial means some pages or formats failed.
	OutcomePartial Outcome = "partial"
	// OutcomeNoPages means not even the seed could be rendered.
	OutcomeNoPages Outcome = "no-pages"
	// OutcomeCancelled means the run was interrupted.
	OutcomeCancelled Outcome = "cancelled"
)

// RunSummary reports what a crawl run did.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Seed       string    `json:"seed"`
	OutputDir  string    `json:"output_dir,omitempty"`
	Formats    []Format  `json:"formats"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Visited counts pages rendered successfully.
	Visited int `json:"visited"`
	// Failed counts pages that could not be rendered.
	Failed int `json:"failed"`
	// Discovered counts distinct in-scope URLs admitted to the frontier.
	Discovered int `json:"discovered"`
	// ScopeRejected counts links dropped by normalization or scope rules.
	ScopeRejected int `json:"scope_rejected"`

	Artifacts []ArtifactRecord `json:"artifacts"`
	Failures  []Failure        `json:"failures"`
	Cancelled bool             `json:"cancelled"`
}

// Outcome classifies the run.
func (s *RunSummary) Outcome() Outcome {
	switch {
	case s.Cancelled:
		return OutcomeCancelled
	case s.Visited == 0:
		return OutcomeNoPages
	case len(s.Failures) > 0:
		return OutcomePartial
	default:
		return OutcomeComplete
	}
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailuresByKind returns the failures of the given kind.
func (s *RunSummary) FailuresByKind(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range s.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Sort orders artifacts and failures by URL then format so reports are
// stable regardless of completion order.
func (s *RunSummary) Sort() {
	sort.SliceStable(s.Artifacts, func(i, j int) bool {
		a, b := s.Artifacts[i], s.Artifacts[j]
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Format < b.Format
	})
	sort.SliceStable(s.Failures, func(i, j int) bool {
		a, b := s.Failures[i], s.Failures[j]
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Format < b.Format
	})
}
