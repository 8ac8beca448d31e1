// Package recovery classifies pipeline errors into the failure taxonomy and
// executes a bounded, kind-specific strategy before a fallback level is
// finalized. No strategy may exceed the sub-second recovery budget.
package recovery

import (
	"context"
	"errors"
	"strings"
)

// Kind is one failure class of the error taxonomy.
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindNetworkFailure   Kind = "network_failure"
	KindMemoryPressure   Kind = "memory_pressure"
	KindVersionMismatch  Kind = "version_mismatch"
	KindDetectionFailure Kind = "detection_failure"
	KindSystemOverload   Kind = "system_overload"
)

// Sentinel errors for components that know their failure kind.
var (
	ErrTimeout          = errors.New("evaluation timed out")
	ErrNetworkFailure   = errors.New("environment snapshot fetch failed")
	ErrMemoryPressure   = errors.New("memory pressure")
	ErrVersionMismatch  = errors.New("catalog/weights schema mismatch")
	ErrDetectionFailure = errors.New("signal detection failed")
	ErrSystemOverload   = errors.New("system overloaded")
)

// Classify maps an error to its failure kind. Unknown errors classify as
// detection failures, the most conservative internal-fault bucket.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindDetectionFailure
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNetworkFailure):
		return KindNetworkFailure
	case errors.Is(err, ErrMemoryPressure):
		return KindMemoryPressure
	case errors.Is(err, ErrVersionMismatch):
		return KindVersionMismatch
	case errors.Is(err, ErrSystemOverload):
		return KindSystemOverload
	case errors.Is(err, ErrDetectionFailure):
		return KindDetectionFailure
	}

	// Message heuristics for errors from outside the pipeline.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"),
		strings.Contains(msg, "unreachable"):
		return KindNetworkFailure
	case strings.Contains(msg, "memory"), strings.Contains(msg, "oom"):
		return KindMemoryPressure
	case strings.Contains(msg, "version"), strings.Contains(msg, "schema"):
		return KindVersionMismatch
	case strings.Contains(msg, "overload"), strings.Contains(msg, "too many"):
		return KindSystemOverload
	default:
		return KindDetectionFailure
	}
}
