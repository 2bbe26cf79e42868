package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/config"
	"github.com/forenlab/regtriage/internal/reporter"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Sources: config.SourcesConfig{HiveDir: t.TempDir()},
		Output: config.OutputConfig{
			Dir:     t.TempDir(),
			Format:  "both",
			KeepRaw: true,
		},
	}
}

// swapSeams replaces the machine and collector constructors for the
// duration of one test.
func swapSeams(t *testing.T, cols []artifacts.Collector) {
	t.Helper()
	origOpen := openOfflineMachine
	origCols := registryCollectors
	openOfflineMachine = func(dir string) (*artifacts.Machine, error) {
		return &artifacts.Machine{Host: "WS-FINANCE-07"}, nil
	}
	registryCollectors = func() []artifacts.Collector { return cols }
	t.Cleanup(func() {
		openOfflineMachine = origOpen
		registryCollectors = origCols
	})
}

func goodCollector(id string) artifacts.Collector {
	return artifacts.Collector{
		ID:      id,
		Name:    id,
		Timeout: 5 * time.Second,
		Run: func(ctx context.Context, m *artifacts.Machine) ([]artifacts.Artifact, error) {
			return []artifacts.Artifact{{
				Type:      "autostart",
				Source:    id,
				Name:      "Updater",
				Value:     `C:\Windows\System32\updater.exe`,
				Timestamp: time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC),
			}}, nil
		},
	}
}

func badCollector(id string) artifacts.Collector {
	return artifacts.Collector{
		ID:      id,
		Name:    id,
		Timeout: 5 * time.Second,
		Run: func(ctx context.Context, m *artifacts.Machine) ([]artifacts.Artifact, error) {
			return nil, errors.New("Access is denied.")
		},
	}
}

// outputDir finds the timestamped directory Run created under base.
func outputDir(t *testing.T, base string) string {
	t.Helper()
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("read output base: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(base, e.Name())
		}
	}
	t.Fatal("no output directory created")
	return ""
}

func TestRun_NoSourcesConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.HiveDir = ""

	err := New(cfg, Options{}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error when no sources are configured")
	}
}

func TestRun_CollectOnlyStopsAfterEvidence(t *testing.T) {
	cfg := testConfig(t)
	swapSeams(t, []artifacts.Collector{goodCollector("run_keys")})

	err := New(cfg, Options{CollectOnly: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dir := outputDir(t, cfg.Output.Dir)
	for _, want := range []string{"run_keys.json", "collection_meta.json", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Errorf("missing evidence file %s: %v", want, err)
		}
	}
	for _, absent := range []string{"timeline.jsonl", "timeline.csv", "summary.json"} {
		if _, err := os.Stat(filepath.Join(dir, absent)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist in collect-only mode", absent)
		}
	}
}

func TestRun_PartialFailureStillReports(t *testing.T) {
	cfg := testConfig(t)
	swapSeams(t, []artifacts.Collector{
		goodCollector("run_keys"),
		badCollector("services"),
	})

	err := New(cfg, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("a failing collector must not abort the run: %v", err)
	}

	dir := outputDir(t, cfg.Output.Dir)
	data, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	if err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	var s reporter.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if s.Hostname != "WS-FINANCE-07" || s.Mode != "offline" {
		t.Errorf("summary host/mode = %s/%s", s.Hostname, s.Mode)
	}
	if len(s.CollectionFailures) != 1 {
		t.Fatalf("got %d collection failures, want 1", len(s.CollectionFailures))
	}
	f := s.CollectionFailures[0]
	if f.CollectorID != "services" || f.FailureKind != "permission_denied" {
		t.Errorf("failure = %+v", f)
	}
	if s.TotalArtifacts != 1 {
		t.Errorf("TotalArtifacts = %d, want 1", s.TotalArtifacts)
	}
	if len(s.EvidenceHashes) == 0 {
		t.Error("summary carries no evidence hashes")
	}

	if _, err := os.Stat(filepath.Join(dir, "timeline.jsonl")); err != nil {
		t.Errorf("timeline.jsonl missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "timeline.csv")); err != nil {
		t.Errorf("timeline.csv missing: %v", err)
	}
	if _, err := os.Stat(dir + ".zip"); err != nil {
		t.Errorf("evidence package missing: %v", err)
	}
}

func TestRun_HostStampedFromMachine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Format = "jsonl"
	swapSeams(t, []artifacts.Collector{goodCollector("run_keys")})

	if err := New(cfg, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dir := outputDir(t, cfg.Output.Dir)
	data, err := os.ReadFile(filepath.Join(dir, "timeline.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	var art artifacts.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		t.Fatalf("unmarshal timeline line: %v", err)
	}
	if art.Host != "WS-FINANCE-07" {
		t.Errorf("Host = %q, want the machine's computer name", art.Host)
	}
	if _, err := os.Stat(filepath.Join(dir, "timeline.csv")); !os.IsNotExist(err) {
		t.Error("csv written despite jsonl-only format")
	}
}

func TestRun_KeepRawFalsePrunesEvidence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.KeepRaw = false
	swapSeams(t, []artifacts.Collector{goodCollector("run_keys")})

	if err := New(cfg, Options{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dir := outputDir(t, cfg.Output.Dir)
	if _, err := os.Stat(filepath.Join(dir, "run_keys.json")); !os.IsNotExist(err) {
		t.Error("raw evidence kept despite keep_raw=false")
	}
	for _, want := range []string{"timeline.jsonl", "summary.json", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Errorf("%s must survive pruning: %v", want, err)
		}
	}
}

func TestSelected(t *testing.T) {
	o := New(testConfig(t), Options{})
	if !o.selected("sam") {
		t.Error("empty --only must select everything")
	}
	o = New(testConfig(t), Options{Only: []string{"run_keys", "evtx"}})
	if o.selected("sam") || !o.selected("evtx") {
		t.Error("--only filter not applied to pseudo-sources")
	}
}
