// Package timeline merges registry artifacts and event log records
// into one UTC-ordered stream.
package timeline

import (
	"sort"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
)

// Timeline is the merged, ordered artifact stream plus its counts.
type Timeline struct {
	Artifacts []artifacts.Artifact
	// Undated is the number of kept artifacts without a timestamp;
	// they sort after everything dated.
	Undated int
	// Excluded is the number of artifacts dropped by the time window.
	Excluded int
	// BySource counts kept artifacts per source.
	BySource map[string]int
	// ByType counts kept artifacts per type.
	ByType map[string]int
}

// Build merges the inputs, applies the [since, until] window, and
// sorts. A zero bound means unbounded on that side. Undated artifacts
// are always kept: missing timestamps are themselves evidence, and the
// window only constrains records that claim a time.
func Build(since, until time.Time, groups ...[]artifacts.Artifact) *Timeline {
	tl := &Timeline{
		BySource: make(map[string]int),
		ByType:   make(map[string]int),
	}

	for _, group := range groups {
		for _, art := range group {
			if !art.Timestamp.IsZero() {
				if !since.IsZero() && art.Timestamp.Before(since) {
					tl.Excluded++
					continue
				}
				if !until.IsZero() && art.Timestamp.After(until) {
					tl.Excluded++
					continue
				}
			} else {
				tl.Undated++
			}
			tl.Artifacts = append(tl.Artifacts, art)
			tl.BySource[art.Source]++
			tl.ByType[art.Type]++
		}
	}

	sort.SliceStable(tl.Artifacts, func(i, j int) bool {
		a, b := &tl.Artifacts[i], &tl.Artifacts[j]
		switch {
		case a.Timestamp.IsZero() != b.Timestamp.IsZero():
			return !a.Timestamp.IsZero() // dated records first
		case !a.Timestamp.Equal(b.Timestamp):
			return a.Timestamp.Before(b.Timestamp)
		case a.Source != b.Source:
			return a.Source < b.Source
		default:
			return a.Path < b.Path
		}
	})
	return tl
}
