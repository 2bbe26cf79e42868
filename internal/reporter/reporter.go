// Package reporter writes the normalized triage output: the merged
// timeline as JSONL and CSV, and a machine-readable run summary.
package reporter

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/collector"
	"github.com/forenlab/regtriage/internal/filter"
	"github.com/forenlab/regtriage/internal/sigma"
	"github.com/forenlab/regtriage/internal/winevt"
)

// csvHeader is the fixed column set of timeline.csv.
var csvHeader = []string{"timestamp", "type", "source", "path", "name", "value", "host", "baseline"}

// CollectionFailure records one collector that could not produce
// evidence.
type CollectionFailure struct {
	CollectorID string `json:"collector_id"`
	Error       string `json:"error"`
	FailureKind string `json:"failure_kind"`
}

// Summary is the run-level report written to summary.json.
type Summary struct {
	Hostname           string               `json:"hostname"`
	Mode               string               `json:"mode"` // live | offline
	GeneratedAt        time.Time            `json:"generated_at"`
	ToolVersion        string               `json:"tool_version"`
	WindowSince        time.Time            `json:"window_since,omitzero"`
	WindowUntil        time.Time            `json:"window_until,omitzero"`
	TotalArtifacts     int                  `json:"total_artifacts"`
	Undated            int                  `json:"undated_artifacts"`
	ExcludedByWindow   int                  `json:"excluded_by_window"`
	BySource           map[string]int       `json:"by_source"`
	ByType             map[string]int       `json:"by_type"`
	FilterStats        filter.Stats         `json:"filter"`
	SigmaMatches       []sigma.Match        `json:"sigma_matches,omitempty"`
	EvtxFiles          []winevt.ReadStats   `json:"evtx_files,omitempty"`
	SamAccounts        int                  `json:"sam_accounts"`
	BootKeyFingerprint string               `json:"bootkey_fingerprint,omitempty"`
	CollectionFailures []CollectionFailure  `json:"collection_failures,omitempty"`
	EvidenceHashes     []collector.FileHash `json:"evidence_hashes,omitempty"`
	Duration           string               `json:"duration"`
}

// WriteJSONL writes one artifact per line to timeline.jsonl.
func WriteJSONL(outputDir string, arts []artifacts.Artifact) (string, error) {
	path := filepath.Join(outputDir, "timeline.jsonl")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range arts {
		if err := enc.Encode(&arts[i]); err != nil {
			return "", fmt.Errorf("encode artifact: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush %s: %w", path, err)
	}
	return path, nil
}

// WriteCSV writes the fixed-column timeline.csv. Fields that do not
// fit the column set stay in the JSONL output only.
func WriteCSV(outputDir string, arts []artifacts.Artifact) (string, error) {
	path := filepath.Join(outputDir, "timeline.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for i := range arts {
		art := &arts[i]
		ts := ""
		if !art.Timestamp.IsZero() {
			ts = art.Timestamp.UTC().Format(time.RFC3339)
		}
		row := []string{
			ts,
			art.Type,
			art.Source,
			art.Path,
			art.Name,
			art.Value,
			art.Host,
			strconv.FormatBool(art.Baseline),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// WriteSummary writes summary.json.
func WriteSummary(outputDir string, summary *Summary) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	path := filepath.Join(outputDir, "summary.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}
