// Package collector runs registry artifact collectors in parallel and
// saves the normalized results evidence-first.
package collector

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
	"github.com/forenlab/regtriage/internal/regio"
)

// FailureKind classifies why a collector failed.
type FailureKind int

const (
	FailureNone       FailureKind = iota // collector completed
	FailureTimeout                       // killed by timeout
	FailurePermission                    // registry access denied
	FailureNotFound                      // key, value, or hive absent
	FailureParse                         // data present but undecodable
	FailureUnknown                       // unclassified error
)

// String returns a short human-readable label for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailurePermission:
		return "permission_denied"
	case FailureNotFound:
		return "not_found"
	case FailureParse:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Result holds the output of a single collector run.
type Result struct {
	// CollectorID is the unique identifier of the collector.
	CollectorID string
	// Artifacts are the normalized records the collector produced.
	Artifacts []artifacts.Artifact
	// Duration is the actual execution time.
	Duration time.Duration
	// Error is non-nil if the collector failed.
	Error error
	// TimedOut is true if the collector hit its timeout.
	TimedOut bool
	// FailureKind classifies the reason for failure.
	FailureKind FailureKind
	// CollectedAt is the UTC timestamp when collection started.
	CollectedAt time.Time
}

// classifyFailure maps a collector error onto a FailureKind.
func classifyFailure(err error, timedOut bool) FailureKind {
	switch {
	case timedOut:
		return FailureTimeout
	case err == nil:
		return FailureNone
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, regio.ErrKeyNotFound),
		errors.Is(err, regio.ErrValueNotFound),
		errors.Is(err, artifacts.ErrHiveUnavailable),
		errors.Is(err, os.ErrNotExist):
		return FailureNotFound
	case errors.Is(err, os.ErrPermission):
		return FailurePermission
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access is denied") || strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "permission denied") {
		return FailurePermission
	}
	if strings.Contains(msg, "parse") || strings.Contains(msg, "short") || strings.Contains(msg, "decode") {
		return FailureParse
	}
	return FailureUnknown
}
