// Package filter applies relevance filtering to collected artifacts:
// baseline known-good annotation and noise suppression. Baseline hits
// are annotated, never dropped, so the evidence record stays complete;
// only content-free records are removed.
package filter

import (
	"strings"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/config"
)

// Stats summarizes one filter pass.
type Stats struct {
	Input      int `json:"input"`
	Dropped    int `json:"dropped"`
	Baselined  int `json:"baselined"`
	Suppressed int `json:"suppressed_by_level"`
}

// Filter evaluates artifacts against the configured baseline.
type Filter struct {
	knownPaths     []string
	knownAccounts  map[string]bool
	knownProcesses map[string]bool
	minLevel       int
}

// New builds a Filter from the baseline and sigma config sections.
func New(baseline config.BaselineConfig, minLevel int) *Filter {
	f := &Filter{
		knownAccounts:  make(map[string]bool, len(baseline.KnownAccounts)),
		knownProcesses: make(map[string]bool, len(baseline.KnownProcesses)),
		minLevel:       minLevel,
	}
	for _, p := range baseline.KnownPaths {
		f.knownPaths = append(f.knownPaths, strings.ToLower(p))
	}
	for _, a := range baseline.KnownAccounts {
		f.knownAccounts[strings.ToLower(a)] = true
	}
	for _, p := range baseline.KnownProcesses {
		f.knownProcesses[strings.ToLower(p)] = true
	}
	return f
}

// Apply annotates and prunes the artifact slice, returning the kept
// records and the pass statistics.
func (f *Filter) Apply(arts []artifacts.Artifact) ([]artifacts.Artifact, Stats) {
	stats := Stats{Input: len(arts)}
	kept := make([]artifacts.Artifact, 0, len(arts))

	for _, art := range arts {
		if f.isNoise(&art) {
			stats.Dropped++
			continue
		}
		if f.belowMinLevel(&art) {
			stats.Suppressed++
			continue
		}
		if f.isBaseline(&art) {
			art.Baseline = true
			stats.Baselined++
		}
		kept = append(kept, art)
	}
	return kept, stats
}

// isNoise drops records with no investigative content.
func (f *Filter) isNoise(art *artifacts.Artifact) bool {
	if art.Name == "" && art.Value == "" && len(art.Fields) == 0 {
		return true
	}
	// LangID-style pure metadata survives some collectors when read
	// from older hive layouts.
	if strings.EqualFold(art.Name, "LangID") {
		return true
	}
	return false
}

// belowMinLevel suppresses plain event-log records above the configured
// Windows level number (higher number = less severe; 4 is
// informational).
func (f *Filter) belowMinLevel(art *artifacts.Artifact) bool {
	if f.minLevel <= 0 || art.Type != "event_log" {
		return false
	}
	level, ok := art.Fields["level"]
	if !ok {
		return false
	}
	n, ok := toInt(level)
	if !ok {
		return false
	}
	return n > f.minLevel
}

// isBaseline reports whether the artifact matches the operator's
// known-good baseline.
func (f *Filter) isBaseline(art *artifacts.Artifact) bool {
	if art.Type == "sam_account" && f.knownAccounts[strings.ToLower(art.Name)] {
		return true
	}
	for _, candidate := range []string{art.Value, art.Name} {
		if candidate == "" {
			continue
		}
		lower := strings.ToLower(candidate)
		for _, prefix := range f.knownPaths {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
		if f.knownProcesses[baseName(executablePath(lower))] {
			return true
		}
	}
	return false
}

// baseName returns the final path element regardless of separator.
// Registry image paths use backslashes even when regtriage runs on a
// non-Windows analysis host.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// executablePath strips quotes and arguments from a command line so
// the process-name baseline matches the binary, not its flags.
func executablePath(cmdline string) string {
	s := strings.TrimSpace(strings.Trim(cmdline, `"`))
	if i := strings.Index(s, ".exe"); i >= 0 {
		return s[:i+4]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
