// Package learning implements the offline learning loop: it collects
// (predicted, later-observed-used) category pairs in a bounded ring buffer
// and periodically retunes signal weights and calibration curves, strictly
// out of the request path. Updates are bounded per batch and published as
// immutable snapshots; the previous snapshot is retained for rollback.
package learning

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/observability/logging"
	"github.com/capgate-project/capgate/pkg/observability/metrics"
	"github.com/capgate-project/capgate/pkg/scoring"
)

// Record is one outcome sample.
type Record struct {
	// ID ties the record to the decision that produced it.
	ID string

	// Predicted is the category set the decision chose.
	Predicted []string

	// Observed is the category set actually used downstream. Empty until
	// reported via Observe.
	Observed []string

	observedSet bool

	// Failure marks records produced by a detection-failure (L4) path.
	Failure bool

	// Level is the fallback level of the decision ("L1".."L5").
	Level string

	// Scores is the fused score vector at decision time.
	Scores scoring.ScoreVector

	// SignalHits maps signal type to the categories it fired for, used to
	// attribute accuracy per signal.
	SignalHits map[string][]string

	At time.Time
}

// Stats summarizes retuning history for the status API.
type Stats struct {
	RecordsBuffered int       `json:"records_buffered"`
	FailureRecords  int       `json:"failure_records"`
	BatchesRun      int       `json:"batches_run"`
	LastBatchAt     time.Time `json:"last_batch_at,omitempty"`
	Precision       float64   `json:"precision"`
	Recall          float64   `json:"recall"`
	F1              float64   `json:"f1"`
	OverInclusion   float64   `json:"avg_over_inclusion"`
	UnderInclusion  float64   `json:"avg_under_inclusion"`
	SnapshotVersion int64     `json:"snapshot_version"`
}

// Collector owns the ring buffer and the background retuner.
type Collector struct {
	cfg      config.LearningConfig
	store    *scoring.Store
	interval time.Duration

	mu      sync.Mutex
	ring    []*Record
	next    int
	filled  bool
	stats   Stats
	prev    *scoring.Snapshot // rollback snapshot

	stopChan     chan struct{}
	running      bool
	runningMutex sync.Mutex
}

// NewCollector creates a collector publishing into the given snapshot store.
func NewCollector(cfg config.LearningConfig, store *scoring.Store) *Collector {
	interval, err := time.ParseDuration(cfg.BatchInterval)
	if err != nil || interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		cfg:      cfg,
		store:    store,
		interval: interval,
		ring:     make([]*Record, cfg.BufferSize),
	}
}

// NewRecordID returns a fresh record/decision identifier.
func NewRecordID() string {
	return uuid.NewString()
}

// Add appends a record to the ring buffer, evicting the oldest when full.
// It is cheap and safe to call from the request path.
func (c *Collector) Add(rec *Record) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring[c.next] = rec
	c.next++
	if c.next == len(c.ring) {
		c.next = 0
		c.filled = true
	}
}

// Observe reports the categories actually used for an earlier decision.
// Records that scrolled out of the ring are silently dropped.
func (c *Collector) Observe(id string, used []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.ring {
		if rec != nil && rec.ID == id {
			rec.Observed = append([]string(nil), used...)
			rec.observedSet = true
			return
		}
	}
}

// Start begins the background retune loop.
func (c *Collector) Start() {
	c.runningMutex.Lock()
	defer c.runningMutex.Unlock()

	if c.running || !c.cfg.Enabled {
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Retune()
			case <-c.stopChan:
				return
			}
		}
	}()

	logging.Infof("Learning collector started: interval=%v, buffer=%d, max_weight_delta=%.3f",
		c.interval, c.cfg.BufferSize, c.cfg.MaxWeightDelta)
}

// Stop stops the background loop.
func (c *Collector) Stop() {
	c.runningMutex.Lock()
	defer c.runningMutex.Unlock()
	if !c.running {
		return
	}
	close(c.stopChan)
	c.running = false
}

// Rollback republishes the snapshot that preceded the last retune, undoing
// a batch that overfit to recent traffic.
func (c *Collector) Rollback() bool {
	c.mu.Lock()
	prev := c.prev
	c.prev = nil
	c.mu.Unlock()

	if prev == nil {
		return false
	}
	c.store.Publish(prev.Clone())
	logging.Warnf("Learning snapshot rolled back to version %d lineage", prev.Version)
	return true
}

// Stats returns current collector statistics.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.RecordsBuffered, stats.FailureRecords = c.countLocked()
	stats.SnapshotVersion = c.store.Current().Version
	return stats
}

func (c *Collector) countLocked() (total, failures int) {
	for _, rec := range c.ring {
		if rec == nil {
			continue
		}
		total++
		if rec.Failure {
			failures++
		}
	}
	return total, failures
}

// Retune runs one batch: computes accuracy metrics over observed records and
// nudges weights and calibration by bounded steps, publishing a new snapshot.
// Exported so operators (and tests) can trigger a batch directly.
func (c *Collector) Retune() {
	batch := c.takeBatch()
	if len(batch) < c.cfg.MinBatch {
		// Too few observed outcomes; put them back for the next cycle.
		for _, rec := range batch {
			c.Add(rec)
		}
		metrics.LearningBatchesTotal.WithLabelValues("skipped").Inc()
		logging.Debugf("Learning batch skipped: %d records < min %d", len(batch), c.cfg.MinBatch)
		return
	}

	stats := computeBatchStats(batch)
	snap := c.store.Current().Clone()
	retuneWeights(snap, batch, c.cfg.MaxWeightDelta)
	retuneCalibration(snap, batch, c.cfg.MaxCalibrationDelta)

	c.mu.Lock()
	c.prev = c.store.Current()
	c.stats.BatchesRun++
	c.stats.LastBatchAt = time.Now()
	c.stats.Precision = stats.Precision
	c.stats.Recall = stats.Recall
	c.stats.F1 = stats.F1
	c.stats.OverInclusion = stats.OverInclusion
	c.stats.UnderInclusion = stats.UnderInclusion
	c.mu.Unlock()

	c.store.Publish(snap)
	metrics.LearningBatchesTotal.WithLabelValues("published").Inc()
	logging.Infof("Learning batch published: records=%d precision=%.2f recall=%.2f f1=%.2f version=%d",
		len(batch), stats.Precision, stats.Recall, stats.F1, snap.Version)
}

// takeBatch drains all records whose outcome has been observed.
func (c *Collector) takeBatch() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []*Record
	for i, rec := range c.ring {
		if rec != nil && rec.observedSet {
			batch = append(batch, rec)
			c.ring[i] = nil
		}
	}
	return batch
}
