package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nao1215/websaver/internal/model"
)

// ManifestFile is the manifest name inside the output root.
const ManifestFile = "manifest.json"

// ManifestVersion is bumped when the manifest layout changes.
const ManifestVersion = 1

// Manifest maps every saved URL to its artifact paths.
type Manifest struct {
	Version    int                                `json:"version"`
	RunID      string                             `json:"run_id"`
	Seed       string                             `json:"seed"`
	Outcome    model.Outcome                      `json:"outcome"`
	StartedAt  time.Time                          `json:"started_at"`
	FinishedAt time.Time                          `json:"finished_at"`
	Formats    []model.Format                     `json:"formats"`
	Pages      map[string]map[model.Format]string `json:"pages"`
	Failures   []model.Failure                    `json:"failures,omitempty"`
}

// NewManifest builds the manifest of a run.
func NewManifest(summary *model.RunSummary) *Manifest {
	m := &Manifest{
		Version:    ManifestVersion,
		RunID:      summary.RunID,
		Seed:       summary.Seed,
		Outcome:    summary.Outcome(),
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Formats:    summary.Formats,
		Pages:      make(map[string]map[model.Format]string),
		Failures:   append([]model.Failure(nil), summary.Failures...),
	}
	for _, a := range summary.Artifacts {
		paths, ok := m.Pages[a.URL]
		if !ok {
			paths = make(map[model.Format]string)
			m.Pages[a.URL] = paths
		}
		paths[a.Format] = a.Path
	}
	sort.SliceStable(m.Failures, func(i, j int) bool {
		return m.Failures[i].URL < m.Failures[j].URL
	})
	return m
}

// WriteManifest writes manifest.json for summary into root and returns its path.
func WriteManifest(root string, summary *model.RunSummary) (string, error) {
	data, err := json.MarshalIndent(NewManifest(summary), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	dest := filepath.Join(root, ManifestFile)
	if err := writeFileAtomic(dest, append(data, '\n')); err != nil {
		return "", err
	}
	return dest, nil
}

// ReadManifest loads manifest.json from root.
func ReadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile)) //nolint:gosec // root is the configured output directory
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
