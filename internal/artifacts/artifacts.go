// Package artifacts defines the normalized artifact record and the
// table of registry artifact collectors.
package artifacts

import (
	"context"
	"time"
)

// Artifact is the normalized record every collector and log reader
// emits. Timestamp is always UTC; the zero value means the source
// carries no timestamp for this record.
type Artifact struct {
	// Type classifies the artifact (system_info, user_assist,
	// sysmon_process_create, ...).
	Type string `json:"type"`
	// Source is the collector ID or event log channel that produced it.
	Source string `json:"source"`
	// Path is the registry key path or log file the record came from.
	Path string `json:"path,omitempty"`
	// Name is the value name, account name, or event provider.
	Name string `json:"name,omitempty"`
	// Value is the normalized string form of the data.
	Value string `json:"value,omitempty"`
	// Timestamp is the artifact's own time (execution time, last write,
	// event time) in UTC.
	Timestamp time.Time `json:"timestamp,omitzero"`
	// Host is the computer the artifact belongs to, when known.
	Host string `json:"host,omitempty"`
	// Baseline marks artifacts matching the configured known-good
	// baseline. They are kept but annotated.
	Baseline bool `json:"baseline,omitempty"`
	// Fields carries source-specific extras (event data, account
	// flags, interface values).
	Fields map[string]any `json:"fields,omitempty"`
}

// Collector describes one registry artifact collector.
type Collector struct {
	// ID is the unique identifier matching config artifact keys.
	ID string
	// Name is the human-readable display name.
	Name string
	// Description explains what the artifact records.
	Description string
	// RequiresAdmin indicates elevated privileges are needed for live
	// collection.
	RequiresAdmin bool
	// Timeout bounds one collector run.
	Timeout time.Duration
	// Run parses the artifact from the machine's registry view.
	Run func(ctx context.Context, m *Machine) ([]Artifact, error)
}

// Collectors returns the registry artifact collectors in stable order.
func Collectors() []Collector {
	return []Collector{
		{
			ID:          "system_info",
			Name:        "Basic system information",
			Description: "Computer name, Windows version/build, registered owner, install time",
			Timeout:     15 * time.Second,
			Run:         collectSystemInfo,
		},
		{
			ID:          "network",
			Name:        "Network adapter configuration",
			Description: "Per-interface TCP/IP parameters: addresses, DHCP server, gateway, DNS",
			Timeout:     15 * time.Second,
			Run:         collectNetwork,
		},
		{
			ID:          "user_assist",
			Name:        "UserAssist execution history",
			Description: "ROT13-obfuscated GUI program execution counts with last-run times",
			Timeout:     30 * time.Second,
			Run:         collectUserAssist,
		},
		{
			ID:            "bam",
			Name:          "Background Activity Moderator",
			Description:   "Per-SID program execution times recorded by the bam service",
			RequiresAdmin: true,
			Timeout:       30 * time.Second,
			Run:           collectBAM,
		},
		{
			ID:          "recent_docs",
			Name:        "Recently opened documents",
			Description: "Explorer RecentDocs MRU entries per file extension",
			Timeout:     30 * time.Second,
			Run:         collectRecentDocs,
		},
		{
			ID:          "mui_cache",
			Name:        "MUICache executed applications",
			Description: "Friendly names cached for executables the user has run",
			Timeout:     15 * time.Second,
			Run:         collectMUICache,
		},
		{
			ID:          "run_keys",
			Name:        "Run/RunOnce autostarts",
			Description: "Programs started at boot or logon via CurrentVersion Run keys",
			Timeout:     15 * time.Second,
			Run:         collectRunKeys,
		},
		{
			ID:            "services",
			Name:          "Installed services",
			Description:   "Service image paths and start types, flagging auto-start binaries outside system directories",
			RequiresAdmin: true,
			Timeout:       60 * time.Second,
			Run:           collectServices,
		},
		{
			ID:          "environment",
			Name:        "System environment variables",
			Description: "Session Manager environment block",
			Timeout:     15 * time.Second,
			Run:         collectEnvironment,
		},
	}
}

// FilterOnly returns only collectors whose IDs are in the allowed list.
// An empty list keeps everything.
func FilterOnly(cols []Collector, allowed []string) []Collector {
	if len(allowed) == 0 {
		return cols
	}
	set := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	var filtered []Collector
	for _, c := range cols {
		if set[c.ID] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// FilterEnabled drops collectors explicitly disabled in the config map.
// Collectors missing from the map stay enabled.
func FilterEnabled(cols []Collector, enabled map[string]bool) []Collector {
	if enabled == nil {
		return cols
	}
	var filtered []Collector
	for _, c := range cols {
		on, exists := enabled[c.ID]
		if !exists || on {
			filtered = append(filtered, c)
		}
	}
	return filtered
}
