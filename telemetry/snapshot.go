package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the population state needed to restart a run.
type Snapshot struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id,omitempty"`
	Seed    int64  `json:"seed"`

	Step   int    `json:"step"`
	NextID uint32 `json:"next_id"`

	Schools []SchoolState `json:"schools"`
}

// SchoolState holds one school's complete state. Weight is in grams per
// individual, as in the initial schools configuration.
type SchoolState struct {
	ID           uint32  `json:"id"`
	Species      string  `json:"species"`
	Abundance    float64 `json:"abundance"`
	Weight       float64 `json:"weight"`
	Length       float64 `json:"length"`
	AgeDt        int     `json:"age_dt"`
	TrophicLevel float64 `json:"trophic_level"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Out          bool    `json:"out,omitempty"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Step))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s: version %d, want %d", path, snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
