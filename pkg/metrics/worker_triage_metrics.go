package metrics

import (
	"sync"
	"time"
)

// TriageMetrics counts verdicts and tracks triage and scorer latency.
// The zero value is not usable; call NewTriageMetrics.
type TriageMetrics struct {
	mu       sync.Mutex
	decided  map[string]int64 // category name -> count
	reviews  map[string]int64 // review reason -> count
	scorer   map[string]int64 // "used" / "skipped"
	failures int64

	triage        *LatencyTracker
	scorerLatency *LatencyTracker
}

func NewTriageMetrics(windowSize int) *TriageMetrics {
	return &TriageMetrics{
		decided:       make(map[string]int64),
		reviews:       make(map[string]int64),
		scorer:        make(map[string]int64),
		triage:        NewLatencyTracker(windowSize),
		scorerLatency: NewLatencyTracker(windowSize),
	}
}

// ObserveDecided records one verdict assigning category.
func (m *TriageMetrics) ObserveDecided(category string, took time.Duration) {
	m.mu.Lock()
	m.decided[category]++
	m.mu.Unlock()
	m.triage.Record(took)
}

// ObserveReview records one verdict routed to human review.
func (m *TriageMetrics) ObserveReview(reason string, took time.Duration) {
	m.mu.Lock()
	m.reviews[reason]++
	m.mu.Unlock()
	m.triage.Record(took)
}

// ObserveScorer records one scorer call. used is false when the scorer
// failed or timed out and the resolver fell back to keywords.
func (m *TriageMetrics) ObserveScorer(used bool, took time.Duration) {
	key := "skipped"
	if used {
		key = "used"
	}
	m.mu.Lock()
	m.scorer[key]++
	m.mu.Unlock()
	m.scorerLatency.Record(took)
}

// ObserveFailure records a triage call that returned an error.
func (m *TriageMetrics) ObserveFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Decided       map[string]int64 `json:"decided"`
	NeedsReview   map[string]int64 `json:"needs_review"`
	Scorer        map[string]int64 `json:"scorer"`
	Failures      int64            `json:"failures"`
	Total         int64            `json:"total"`
	Latency       map[string]any   `json:"latency"`
	ScorerLatency map[string]any   `json:"scorer_latency"`
}

func (m *TriageMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		Decided:     copyCounts(m.decided),
		NeedsReview: copyCounts(m.reviews),
		Scorer:      copyCounts(m.scorer),
		Failures:    m.failures,
	}
	m.mu.Unlock()

	for _, n := range snap.Decided {
		snap.Total += n
	}
	for _, n := range snap.NeedsReview {
		snap.Total += n
	}
	snap.Latency = m.triage.Stats().ToMap()
	snap.ScorerLatency = m.scorerLatency.Stats().ToMap()
	return snap
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
