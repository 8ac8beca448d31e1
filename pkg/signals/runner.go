package signals

import (
	"fmt"
	"time"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
)

// Runner executes the extractors concurrently, each under its own timeout.
// A timed-out or failing extractor contributes an empty confidence map; the
// runner itself never blocks past the per-extractor budget.
type Runner struct {
	extractors []Extractor
	timeout    time.Duration
}

// NewRunner builds the standard four-extractor runner from config.
func NewRunner(cfg *config.EngineConfig) (*Runner, error) {
	keyword, err := NewKeywordExtractor(cfg.Categories, cfg.Signals)
	if err != nil {
		return nil, fmt.Errorf("keyword extractor: %w", err)
	}
	contextClue, err := NewContextClueExtractor(cfg.Signals)
	if err != nil {
		return nil, fmt.Errorf("context clue extractor: %w", err)
	}

	return &Runner{
		extractors: []Extractor{
			keyword,
			contextClue,
			NewEnvironmentExtractor(cfg.Signals),
			NewHistoryExtractor(cfg.Signals),
		},
		timeout: time.Duration(cfg.Signals.ExtractorTimeoutMs) * time.Millisecond,
	}, nil
}

// NewRunnerWith builds a runner over explicit extractors. Used by tests to
// inject failing or slow extractors.
func NewRunnerWith(timeout time.Duration, extractors ...Extractor) *Runner {
	return &Runner{extractors: extractors, timeout: timeout}
}

// Run executes every extractor concurrently and collects one Result each.
// Results are returned in extractor registration order so downstream fusion
// is deterministic.
func (r *Runner) Run(req *Request) []Result {
	type slot struct {
		ch chan Result
	}

	slots := make([]slot, len(r.extractors))
	for i, ext := range r.extractors {
		slots[i].ch = make(chan Result, 1)
		go func(ext Extractor, ch chan<- Result) {
			start := time.Now()
			confidences, err := ext.Extract(req)
			ch <- Result{
				Signal:      ext.Name(),
				Confidences: confidences,
				Err:         err,
				Latency:     time.Since(start),
			}
		}(ext, slots[i].ch)
	}

	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()

	results := make([]Result, len(r.extractors))
	for i := range slots {
		select {
		case res := <-slots[i].ch:
			results[i] = res
		case <-deadline.C:
			// Budget exhausted: this and all remaining extractors report
			// whatever has already arrived, or a timeout.
			results[i] = r.drain(slots[i].ch, r.extractors[i].Name())
			for j := i + 1; j < len(slots); j++ {
				results[j] = r.drain(slots[j].ch, r.extractors[j].Name())
			}
			r.record(results)
			return results
		}
	}

	r.record(results)
	return results
}

// drain collects a result that raced the deadline, or synthesizes a timeout.
// The losing goroutine writes into a buffered channel and exits; nothing
// leaks.
func (r *Runner) drain(ch <-chan Result, name string) Result {
	select {
	case res := <-ch:
		return res
	default:
		return Result{
			Signal:      name,
			Confidences: make(ConfidenceMap),
			TimedOut:    true,
			Latency:     r.timeout,
		}
	}
}

func (r *Runner) record(results []Result) {
	for _, res := range results {
		metrics.RecordSignalExtraction(res.Signal, res.Latency.Seconds())
		switch {
		case res.TimedOut:
			metrics.RecordSignalFailure(res.Signal, "timeout")
			logging.Warnf("Signal extractor %q timed out after %v", res.Signal, r.timeout)
		case res.Err != nil:
			metrics.RecordSignalFailure(res.Signal, "error")
			logging.Warnf("Signal extractor %q failed: %v", res.Signal, res.Err)
		}
	}
}

// AllFailed reports whether every extractor timed out or errored, which the
// fallback controller treats as a detection failure.
func AllFailed(results []Result) bool {
	if len(results) == 0 {
		return true
	}
	for _, res := range results {
		if !res.Failed() {
			return false
		}
	}
	return true
}
