package signals

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExtractor is a controllable extractor for runner tests.
type stubExtractor struct {
	name  string
	out   ConfidenceMap
	err   error
	delay time.Duration
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(_ *Request) (ConfidenceMap, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.out, s.err
}

func TestRunnerCollectsAllResults(t *testing.T) {
	r := NewRunnerWith(100*time.Millisecond,
		&stubExtractor{name: "keyword", out: ConfidenceMap{"git": 0.9}},
		&stubExtractor{name: "context", out: ConfidenceMap{"db": 0.8}},
	)

	results := r.Run(&Request{Query: "x"})
	require.Len(t, results, 2)

	// Registration order is preserved.
	assert.Equal(t, "keyword", results[0].Signal)
	assert.Equal(t, "context", results[1].Signal)
	assert.Equal(t, ConfidenceMap{"git": 0.9}, results[0].Confidences)
	assert.False(t, results[0].Failed())
}

func TestRunnerTimeoutYieldsPartialResults(t *testing.T) {
	r := NewRunnerWith(20*time.Millisecond,
		&stubExtractor{name: "fast", out: ConfidenceMap{"git": 0.9}},
		&stubExtractor{name: "slow", out: ConfidenceMap{"db": 0.8}, delay: 500 * time.Millisecond},
	)

	start := time.Now()
	results := r.Run(&Request{Query: "x"})
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	assert.False(t, results[0].Failed(), "fast extractor result must survive the timeout")
	assert.True(t, results[1].TimedOut)
	assert.Empty(t, results[1].Confidences)

	// The runner must not wait for the slow extractor.
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestRunnerExtractorError(t *testing.T) {
	r := NewRunnerWith(100*time.Millisecond,
		&stubExtractor{name: "ok", out: ConfidenceMap{"git": 0.9}},
		&stubExtractor{name: "broken", err: errors.New("boom")},
	)

	results := r.Run(&Request{Query: "x"})
	require.Len(t, results, 2)
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.False(t, AllFailed(results))
}

func TestAllFailed(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    bool
	}{
		{"empty", nil, true},
		{"one ok", []Result{{Signal: "a"}}, false},
		{"all timed out", []Result{{Signal: "a", TimedOut: true}, {Signal: "b", TimedOut: true}}, true},
		{"all errored", []Result{{Signal: "a", Err: errors.New("x")}}, true},
		{"mixed", []Result{{Signal: "a", TimedOut: true}, {Signal: "b"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AllFailed(tt.results))
		})
	}
}
