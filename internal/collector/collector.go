package collector

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/forenlab/regtriage/internal/artifacts"
)

const verboseIDWidth = 20 // column width for collector ID in verbose log

// Collector runs artifact collectors in parallel and saves results.
type Collector struct {
	writer  *Writer
	verbose bool
}

// New creates a Collector with a result writer.
func New(writer *Writer, verbose bool) *Collector {
	return &Collector{writer: writer, verbose: verbose}
}

// Collect runs all collectors against the machine in parallel and
// returns the results in input order. Failed collectors are recorded
// but never stop the others.
func (c *Collector) Collect(ctx context.Context, m *artifacts.Machine, cols []artifacts.Collector) []Result {
	results := make([]Result, len(cols))
	var wg sync.WaitGroup

	for i, col := range cols {
		wg.Add(1)
		go func(idx int, col artifacts.Collector) {
			defer wg.Done()

			if c.verbose {
				fmt.Fprintf(os.Stderr, "[collector] start: %-*s  %s\n", verboseIDWidth, col.ID, col.Name)
			}

			result := runOne(ctx, m, col)
			results[idx] = result

			// Evidence-first: save result to disk immediately
			if saveErr := c.writer.SaveResult(result); saveErr != nil {
				fmt.Fprintf(os.Stderr, "[collector] warning: failed to save %s: %v\n", col.ID, saveErr)
			}

			if c.verbose {
				fmt.Fprintf(os.Stderr, "[collector] done:  %-*s  %s  %s (%d artifacts)\n",
					verboseIDWidth, col.ID, result.Duration.Round(time.Millisecond),
					result.FailureKind.String(), len(result.Artifacts))
			}
		}(i, col)
	}

	wg.Wait()
	return results
}

// runOne executes a single collector with its own timeout.
func runOne(ctx context.Context, m *artifacts.Machine, col artifacts.Collector) Result {
	start := time.Now()
	result := Result{
		CollectorID: col.ID,
		CollectedAt: start.UTC(),
	}

	timeout := col.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	arts, err := col.Run(ctx, m)
	result.Duration = time.Since(start)
	result.Artifacts = arts

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Error = fmt.Errorf("timeout after %s", timeout)
		result.FailureKind = FailureTimeout
		return result
	}
	if err != nil {
		result.Error = fmt.Errorf("%s: %w", col.ID, err)
		result.FailureKind = classifyFailure(err, false)
		return result
	}
	result.FailureKind = FailureNone
	return result
}

// BuildMeta creates a CollectionMeta from the results.
func BuildMeta(hostname, mode string, startedAt time.Time, results []Result) CollectionMeta {
	now := time.Now().UTC()
	meta := CollectionMeta{
		Hostname:        hostname,
		Mode:            mode,
		StartedAt:       startedAt,
		CompletedAt:     now,
		Duration:        now.Sub(startedAt).String(),
		TotalCollectors: len(results),
	}

	for _, r := range results {
		cm := CollectorMeta{
			ID:          r.CollectorID,
			Duration:    r.Duration.String(),
			TimedOut:    r.TimedOut,
			FailureKind: r.FailureKind.String(),
			Artifacts:   len(r.Artifacts),
		}
		if r.Error != nil {
			cm.Error = r.Error.Error()
			if r.TimedOut {
				meta.TimedOut++
			} else {
				meta.Failed++
			}
		} else {
			meta.Succeeded++
		}
		meta.Collectors = append(meta.Collectors, cm)
	}

	return meta
}
