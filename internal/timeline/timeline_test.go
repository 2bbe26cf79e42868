package timeline

import (
	"testing"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
)

func at(h int) time.Time {
	return time.Date(2023, 6, 1, h, 0, 0, 0, time.UTC)
}

func TestBuild_OrdersDatedFirst(t *testing.T) {
	registry := []artifacts.Artifact{
		{Type: "autostart", Source: "run_keys", Timestamp: at(12)},
		{Type: "recent_doc", Source: "recent_docs"}, // undated
	}
	events := []artifacts.Artifact{
		{Type: "sysmon_process_create", Source: "Microsoft-Windows-Sysmon/Operational", Timestamp: at(9)},
		{Type: "event_log", Source: "Security", Timestamp: at(15)},
	}

	tl := Build(time.Time{}, time.Time{}, registry, events)
	if len(tl.Artifacts) != 4 {
		t.Fatalf("got %d artifacts, want 4", len(tl.Artifacts))
	}
	if tl.Undated != 1 {
		t.Errorf("Undated = %d, want 1", tl.Undated)
	}

	wantOrder := []time.Time{at(9), at(12), at(15), {}}
	for i, want := range wantOrder {
		got := tl.Artifacts[i].Timestamp
		if !got.Equal(want) {
			t.Errorf("position %d: %v, want %v", i, got, want)
		}
	}
	if tl.BySource["run_keys"] != 1 || tl.ByType["event_log"] != 1 {
		t.Errorf("counts: BySource=%v ByType=%v", tl.BySource, tl.ByType)
	}
}

func TestBuild_WindowExcludesOnlyDated(t *testing.T) {
	arts := []artifacts.Artifact{
		{Source: "a", Timestamp: at(8)},  // before window
		{Source: "b", Timestamp: at(12)}, // inside
		{Source: "c", Timestamp: at(20)}, // after window
		{Source: "d"},                    // undated, always kept
	}

	tl := Build(at(10), at(18), arts)
	if len(tl.Artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(tl.Artifacts))
	}
	if tl.Excluded != 2 {
		t.Errorf("Excluded = %d, want 2", tl.Excluded)
	}
	if tl.Undated != 1 {
		t.Errorf("Undated = %d, want 1", tl.Undated)
	}
	if tl.Artifacts[0].Source != "b" || tl.Artifacts[1].Source != "d" {
		t.Errorf("order = %s,%s", tl.Artifacts[0].Source, tl.Artifacts[1].Source)
	}
}

func TestBuild_TieBreaksBySourceThenPath(t *testing.T) {
	ts := at(12)
	arts := []artifacts.Artifact{
		{Source: "services", Path: "z", Timestamp: ts},
		{Source: "bam", Path: "b", Timestamp: ts},
		{Source: "bam", Path: "a", Timestamp: ts},
	}

	tl := Build(time.Time{}, time.Time{}, arts)
	got := []string{
		tl.Artifacts[0].Source + "/" + tl.Artifacts[0].Path,
		tl.Artifacts[1].Source + "/" + tl.Artifacts[1].Path,
		tl.Artifacts[2].Source + "/" + tl.Artifacts[2].Path,
	}
	want := []string{"bam/a", "bam/b", "services/z"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBuild_InclusiveBounds(t *testing.T) {
	arts := []artifacts.Artifact{
		{Source: "a", Timestamp: at(10)},
		{Source: "b", Timestamp: at(18)},
	}
	tl := Build(at(10), at(18), arts)
	if len(tl.Artifacts) != 2 || tl.Excluded != 0 {
		t.Errorf("window bounds must be inclusive: kept %d, excluded %d", len(tl.Artifacts), tl.Excluded)
	}
}
