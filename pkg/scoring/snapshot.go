// Package scoring fuses the per-signal confidence maps into one calibrated
// score per category. Weights and calibration curves live in immutable
// snapshots published atomically, so live decisions always read a
// fully-formed version while the learning collector retunes out-of-band.
package scoring

import (
	"sync/atomic"
	"time"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
)

// Snapshot is one immutable generation of learned parameters. Never mutate
// a published snapshot; build a new one and publish it.
type Snapshot struct {
	// Version increments on every publication.
	Version int64

	CreatedAt time.Time

	// SignalWeights are the global per-signal-type weights.
	SignalWeights map[string]float64

	// Modifiers maps category → signal type → fixed multiplier.
	Modifiers map[string]map[string]float64

	// Calibration maps category → sorted piecewise-linear curve.
	Calibration map[string][]config.CalibrationPoint
}

// Weight returns the weight for a signal type, defaulting to 1.0.
func (s *Snapshot) Weight(signal string) float64 {
	if w, ok := s.SignalWeights[signal]; ok {
		return w
	}
	return 1.0
}

// Modifier returns the category×signal multiplier, defaulting to 1.0.
func (s *Snapshot) Modifier(category, signal string) float64 {
	if m, ok := s.Modifiers[category]; ok {
		if f, ok := m[signal]; ok {
			return f
		}
	}
	return 1.0
}

// Clone returns a deep copy safe to mutate before republication.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		SignalWeights: make(map[string]float64, len(s.SignalWeights)),
		Modifiers:     make(map[string]map[string]float64, len(s.Modifiers)),
		Calibration:   make(map[string][]config.CalibrationPoint, len(s.Calibration)),
	}
	for k, v := range s.SignalWeights {
		out.SignalWeights[k] = v
	}
	for cat, mods := range s.Modifiers {
		inner := make(map[string]float64, len(mods))
		for sig, f := range mods {
			inner[sig] = f
		}
		out.Modifiers[cat] = inner
	}
	for cat, points := range s.Calibration {
		copied := make([]config.CalibrationPoint, len(points))
		copy(copied, points)
		out.Calibration[cat] = copied
	}
	return out
}

// SnapshotFromConfig builds the initial snapshot from static configuration.
func SnapshotFromConfig(cfg config.ScoringConfig) *Snapshot {
	snap := &Snapshot{
		Version:       1,
		CreatedAt:     time.Now(),
		SignalWeights: make(map[string]float64, len(cfg.SignalWeights)),
		Modifiers:     make(map[string]map[string]float64),
		Calibration:   make(map[string][]config.CalibrationPoint, len(cfg.Calibration)),
	}
	for k, v := range cfg.SignalWeights {
		snap.SignalWeights[k] = v
	}
	for _, mod := range cfg.Modifiers {
		if snap.Modifiers[mod.Category] == nil {
			snap.Modifiers[mod.Category] = make(map[string]float64)
		}
		snap.Modifiers[mod.Category][mod.Signal] = mod.Factor
	}
	for cat, points := range cfg.Calibration {
		copied := make([]config.CalibrationPoint, len(points))
		copy(copied, points)
		snap.Calibration[cat] = copied
	}
	return snap
}

// Store holds the currently published snapshot. Readers never see a partial
// update; Publish is a single pointer swap.
type Store struct {
	ptr atomic.Pointer[Snapshot]
}

// NewStore creates a store seeded with the given snapshot.
func NewStore(initial *Snapshot) *Store {
	st := &Store{}
	st.ptr.Store(initial)
	st.export(initial)
	return st
}

// Current returns the latest published snapshot.
func (st *Store) Current() *Snapshot {
	return st.ptr.Load()
}

// Publish atomically replaces the current snapshot. The new snapshot's
// version is set to the successor of the published one.
func (st *Store) Publish(snap *Snapshot) {
	prev := st.ptr.Load()
	if prev != nil {
		snap.Version = prev.Version + 1
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	st.ptr.Store(snap)
	st.export(snap)
}

func (st *Store) export(snap *Snapshot) {
	for signal, weight := range snap.SignalWeights {
		metrics.SignalWeightGauge.WithLabelValues(signal).Set(weight)
	}
}
