// Package orchestrator coordinates the collect → filter → match →
// report pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/collector"
	"github.com/forenlab/regtriage/internal/config"
	"github.com/forenlab/regtriage/internal/filter"
	"github.com/forenlab/regtriage/internal/reporter"
	"github.com/forenlab/regtriage/internal/sam"
	"github.com/forenlab/regtriage/internal/sigma"
	"github.com/forenlab/regtriage/internal/timeline"
	"github.com/forenlab/regtriage/internal/winevt"
)

// Options holds CLI flags for the orchestrator.
type Options struct {
	CollectOnly bool
	Only        []string
	Verbose     bool
	Version     string
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	cfg  *config.Config
	opts Options
}

// Machine and collector constructors, indirected so tests can drive the
// pipeline with fakes.
var (
	openLiveMachine    = artifacts.NewLiveMachine
	openOfflineMachine = artifacts.NewOfflineMachine
	registryCollectors = artifacts.Collectors
)

// New creates an Orchestrator with validated config.
func New(cfg *config.Config, opts Options) *Orchestrator {
	return &Orchestrator{cfg: cfg, opts: opts}
}

// selected reports whether a pseudo-source (sam, evtx) survives the
// --only filter.
func (o *Orchestrator) selected(id string) bool {
	if len(o.opts.Only) == 0 {
		return true
	}
	for _, s := range o.opts.Only {
		if s == id {
			return true
		}
	}
	return false
}

// Run executes the full pipeline.
func (o *Orchestrator) Run(ctx context.Context) error {
	mode := "offline"
	if o.cfg.Sources.Live {
		mode = "live"
	}
	if !o.cfg.Sources.Live && o.cfg.Sources.HiveDir == "" && len(o.cfg.Sources.EVTX) == 0 {
		return fmt.Errorf("no sources configured: set sources.live, sources.hive_dir, or sources.evtx")
	}

	since, until, err := o.cfg.ParseWindow()
	if err != nil {
		return err
	}

	startTime := time.Now()
	outputDir := collector.GenerateOutputDir(o.cfg.Output.Dir)
	if o.opts.Verbose {
		fmt.Fprintf(os.Stderr, "[orchestrator] output: %s\n", outputDir)
	}
	writer, err := collector.NewWriter(outputDir)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}

	// --- Stage 1: Registry collection ---
	var machine *artifacts.Machine
	var results []collector.Result
	hostname := ""

	if o.cfg.Sources.Live {
		hostname, _ = os.Hostname()
		machine, err = openLiveMachine(hostname)
	} else if o.cfg.Sources.HiveDir != "" {
		machine, err = openOfflineMachine(o.cfg.Sources.HiveDir)
	}
	if err != nil {
		return fmt.Errorf("open registry sources: %w", err)
	}
	if machine != nil {
		defer machine.Close()

		cols := registryCollectors()
		cols = artifacts.FilterEnabled(cols, o.cfg.Artifacts)
		cols = artifacts.FilterOnly(cols, o.opts.Only)

		fmt.Fprintf(os.Stderr, "[*] Collecting registry artifacts (%d collectors, %s mode)...\n", len(cols), mode)
		coll := collector.New(writer, o.opts.Verbose)
		results = coll.Collect(ctx, machine, cols)

		succeeded := 0
		for _, r := range results {
			if r.Error == nil {
				succeeded++
			}
		}
		fmt.Fprintf(os.Stderr, "[*] %d/%d collectors succeeded\n", succeeded, len(results))

		// Offline hives carry the computer name; live mode already
		// knows it.
		if hostname == "" {
			hostname = machine.Host
		}
	}

	// --- Stage 2: SAM accounts (offline hives only) ---
	var accounts []sam.Account
	bootKeyFP := ""
	if machine != nil && machine.SamHive() != nil && o.selected("sam") && enabled(o.cfg.Artifacts, "sam") {
		accounts, err = sam.Accounts(machine.SamHive())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[orchestrator] warning: sam: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "[*] SAM: %d local accounts\n", len(accounts))
			if data, err := marshalAccounts(accounts); err == nil {
				if err := writer.SaveFile("sam.json", data); err != nil {
					fmt.Fprintf(os.Stderr, "[orchestrator] warning: %v\n", err)
				}
			}
		}
		if system := machine.SystemHive(); system != nil {
			if key, err := sam.BootKey(system); err == nil {
				bootKeyFP = sam.BootKeyFingerprint(key)
			} else if o.opts.Verbose {
				fmt.Fprintf(os.Stderr, "[orchestrator] bootkey: %v\n", err)
			}
		}
	}

	// --- Stage 3: Event logs ---
	var eventArts []artifacts.Artifact
	var evtxStats []winevt.ReadStats
	if len(o.cfg.Sources.EVTX) > 0 && o.selected("evtx") {
		files, err := winevt.Expand(o.cfg.Sources.EVTX)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "[*] Parsing %d event log file(s)...\n", len(files))
		for _, file := range files {
			arts, stats, err := winevt.ReadFile(ctx, file)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[orchestrator] warning: %v\n", err)
				continue
			}
			evtxStats = append(evtxStats, stats)
			eventArts = append(eventArts, arts...)
			if o.opts.Verbose {
				fmt.Fprintf(os.Stderr, "[orchestrator] %s: %d records, %d skipped\n",
					file, stats.Records, stats.Skipped)
			}
			if data, err := marshalArtifacts(arts); err == nil {
				name := "events_" + filepath.Base(file) + ".json"
				if err := writer.SaveFile(name, data); err != nil {
					fmt.Fprintf(os.Stderr, "[orchestrator] warning: %v\n", err)
				}
			}
		}
		fmt.Fprintf(os.Stderr, "[*] Event logs: %d records\n", len(eventArts))
	}

	// Save collection metadata and evidence hash manifest
	meta := collector.BuildMeta(hostname, mode, startTime, results)
	if err := writer.SaveMeta(meta); err != nil {
		fmt.Fprintf(os.Stderr, "[orchestrator] warning: %v\n", err)
	}
	if err := writer.SaveManifest(hostname); err != nil {
		fmt.Fprintf(os.Stderr, "[orchestrator] warning: manifest: %v\n", err)
	}

	if o.opts.CollectOnly {
		fmt.Printf("Collection results saved to: %s\n", outputDir)
		return nil
	}

	// --- Stage 4: Filter ---
	all := make([]artifacts.Artifact, 0, len(eventArts))
	for _, r := range results {
		all = append(all, r.Artifacts...)
	}
	all = append(all, sam.ToArtifacts(accounts)...)
	all = append(all, eventArts...)
	stampHost(all, hostname)

	flt := filter.New(o.cfg.Baseline, o.cfg.Sigma.MinLevel)
	kept, filterStats := flt.Apply(all)
	if o.opts.Verbose {
		fmt.Fprintf(os.Stderr, "[orchestrator] filter: %d in, %d dropped, %d baselined\n",
			filterStats.Input, filterStats.Dropped+filterStats.Suppressed, filterStats.Baselined)
	}

	// --- Stage 5: Sigma matching ---
	var matches []sigma.Match
	engine, sigmaErr := sigma.NewDefault(o.cfg.Sigma.RulesDir)
	if sigmaErr != nil {
		fmt.Fprintf(os.Stderr, "[orchestrator] warning: sigma engine init: %v\n", sigmaErr)
	} else {
		matches = engine.MatchAll(ctx, kept)
		if len(matches) > 0 {
			fmt.Fprintf(os.Stderr, "[*] Sigma: %d rule match(es) detected\n", len(matches))
		}
	}

	// --- Stage 6: Timeline + report ---
	tl := timeline.Build(since, until, kept)
	fmt.Fprintf(os.Stderr, "[*] Timeline: %d artifacts (%d outside window, %d undated)\n",
		len(tl.Artifacts), tl.Excluded, tl.Undated)

	if o.cfg.Output.Format == "jsonl" || o.cfg.Output.Format == "both" {
		if _, err := reporter.WriteJSONL(outputDir, tl.Artifacts); err != nil {
			return err
		}
	}
	if o.cfg.Output.Format == "csv" || o.cfg.Output.Format == "both" {
		if _, err := reporter.WriteCSV(outputDir, tl.Artifacts); err != nil {
			return err
		}
	}

	var failures []reporter.CollectionFailure
	for _, r := range results {
		if r.Error != nil {
			failures = append(failures, reporter.CollectionFailure{
				CollectorID: r.CollectorID,
				Error:       r.Error.Error(),
				FailureKind: r.FailureKind.String(),
			})
		}
	}

	summary := &reporter.Summary{
		Hostname:           hostname,
		Mode:               mode,
		GeneratedAt:        time.Now().UTC(),
		ToolVersion:        o.opts.Version,
		WindowSince:        since,
		WindowUntil:        until,
		TotalArtifacts:     len(tl.Artifacts),
		Undated:            tl.Undated,
		ExcludedByWindow:   tl.Excluded,
		BySource:           tl.BySource,
		ByType:             tl.ByType,
		FilterStats:        filterStats,
		SigmaMatches:       matches,
		EvtxFiles:          evtxStats,
		SamAccounts:        len(accounts),
		BootKeyFingerprint: bootKeyFP,
		CollectionFailures: failures,
		EvidenceHashes:     writer.Hashes(),
		Duration:           time.Since(startTime).String(),
	}
	summaryPath, err := reporter.WriteSummary(outputDir, summary)
	if err != nil {
		return err
	}

	if !o.cfg.Output.KeepRaw {
		pruneRawEvidence(outputDir)
	}

	zipPath, zipErr := reporter.ExportEvidence(outputDir, hostname, mode, o.opts.Version)
	if zipErr != nil {
		fmt.Fprintf(os.Stderr, "[orchestrator] warning: evidence export: %v\n", zipErr)
	}

	fmt.Fprintf(os.Stderr, "[*] Total time: %s\n", time.Since(startTime))

	fmt.Printf("\n=== regtriage summary ===\n")
	fmt.Printf("Host: %s (%s)\n", hostname, mode)
	fmt.Printf("Artifacts: %d | Sigma matches: %d | Failures: %d\n",
		len(tl.Artifacts), len(matches), len(failures))
	fmt.Printf("Summary: %s\n", summaryPath)
	if zipErr == nil {
		fmt.Printf("Evidence: %s\n", zipPath)
	}
	return nil
}

// stampHost fills in the hostname on artifacts that have none of their
// own (event log records carry the computer name already).
func stampHost(arts []artifacts.Artifact, hostname string) {
	if hostname == "" {
		return
	}
	for i := range arts {
		if arts[i].Host == "" {
			arts[i].Host = hostname
		}
	}
}

// pruneRawEvidence removes the per-collector raw JSON files, keeping
// the timeline exports, metadata, and summary.
func pruneRawEvidence(outputDir string) {
	keep := map[string]bool{
		"timeline.jsonl":       true,
		"timeline.csv":         true,
		"summary.json":         true,
		"collection_meta.json": true,
		"manifest.json":        true,
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && !keep[e.Name()] {
			os.Remove(filepath.Join(outputDir, e.Name()))
		}
	}
}

func enabled(m map[string]bool, id string) bool {
	if m == nil {
		return true
	}
	on, exists := m[id]
	return !exists || on
}

func marshalAccounts(accounts []sam.Account) ([]byte, error) {
	return json.MarshalIndent(accounts, "", "  ")
}

func marshalArtifacts(arts []artifacts.Artifact) ([]byte, error) {
	return json.MarshalIndent(arts, "", "  ")
}
