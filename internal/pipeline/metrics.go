package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/gioe/aiq/internal/dedup"
	"github.com/gioe/aiq/internal/question"
	"github.com/gioe/aiq/internal/report"
	"github.com/gioe/aiq/internal/store"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFatal          Status = "fatal"

	// StatusUnavailable means dispatch stopped because every generation
	// provider's circuit was open.
	StatusUnavailable Status = "unavailable"
)

// ExitCode maps s to the process exit code reported to the scheduler.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartialSuccess:
		return 1
	case StatusUnavailable:
		return 5
	default:
		return 2
	}
}

// Stage names a step of the per-item chain.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageEvaluate Stage = "evaluate"
	StageDedup    Stage = "dedup"
	StageStore    Stage = "store"
)

// Rejection reasons recorded in RunMetrics.Rejections.
const (
	ReasonLowScore          = "low_score"
	ReasonEvaluationFailed  = "evaluation_failed"
	ReasonGenerationFailed  = "generation_failed"
	ReasonDuplicateExact    = "duplicate_exact"
	ReasonDuplicateSemantic = "duplicate_semantic"
	ReasonStoreFailed       = "store_failed"
	ReasonCancelled         = "cancelled"
)

// Latency accumulates timings for one stage.
type Latency struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average observed duration.
func (l Latency) Mean() time.Duration {
	if l.Count == 0 {
		return 0
	}
	return l.Total / time.Duration(l.Count)
}

// RunMetrics aggregates the outcome of a run. Workers update it through its
// methods; once Run returns the fields can be read directly.
type RunMetrics struct {
	mu sync.Mutex

	RunID     string
	DryRun    bool
	StartedAt time.Time
	Duration  time.Duration

	Requested int

	// Generated counts items a provider produced.
	Generated int
	// Approved counts items the judge approved.
	Approved int
	// Rejected counts generated items that did not reach storage.
	Rejected int

	DuplicatesExact    int
	DuplicatesSemantic int

	// Unique counts approved items that passed dedup. Outside dry runs
	// they are inserted unless storage fails.
	Unique   int
	Inserted int

	// ByStratum counts inserted questions per type and difficulty.
	ByStratum map[question.Stratum]int

	GenerationFailures int
	EvaluationFailures int
	StoreFailures      int
	Cancelled          int

	// NotStarted counts items never dispatched after a fatal halt.
	NotStarted int

	SemanticSkipped int
	CostUSD         float64

	Latency    map[Stage]Latency
	ByProvider map[string]int
	Rejections map[string]int

	Status      Status
	FatalReason string

	providersDown bool
}

func newRunMetrics(runID string, requested int, dryRun bool, start time.Time) *RunMetrics {
	return &RunMetrics{
		RunID:      runID,
		DryRun:     dryRun,
		StartedAt:  start,
		Requested:  requested,
		ByStratum:  make(map[question.Stratum]int),
		Latency:    make(map[Stage]Latency),
		ByProvider: make(map[string]int),
		Rejections: make(map[string]int),
	}
}

// Duplicates returns exact plus semantic duplicates.
func (m *RunMetrics) Duplicates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DuplicatesExact + m.DuplicatesSemantic
}

// Terminal returns the number of items that reached Stored or Rejected.
func (m *RunMetrics) Terminal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.Inserted
	for _, c := range m.Rejections {
		n += c
	}
	if m.DryRun {
		n += m.Unique
	}
	return n
}

func (m *RunMetrics) observe(s Stage, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.Latency[s]
	l.Count++
	l.Total += d
	if d > l.Max {
		l.Max = d
	}
	m.Latency[s] = l
}

func (m *RunMetrics) addCost(usd float64) {
	m.mu.Lock()
	m.CostUSD += usd
	m.mu.Unlock()
}

func (m *RunMetrics) generated(provider string, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Generated++
	m.ByProvider[provider]++
	m.CostUSD += cost
}

func (m *RunMetrics) generationFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerationFailures++
	m.Rejections[ReasonGenerationFailed]++
}

func (m *RunMetrics) evaluated(approved bool, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case approved:
		m.Approved++
	case failed:
		m.EvaluationFailures++
		m.Rejected++
		m.Rejections[ReasonEvaluationFailed]++
	default:
		m.Rejected++
		m.Rejections[ReasonLowScore]++
	}
}

func (m *RunMetrics) deduplicated(res dedup.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.SemanticSkipped {
		m.SemanticSkipped++
	}
	switch {
	case !res.IsDuplicate:
		m.Unique++
	case res.Method == dedup.MethodExact:
		m.DuplicatesExact++
		m.Rejected++
		m.Rejections[ReasonDuplicateExact]++
	default:
		m.DuplicatesSemantic++
		m.Rejected++
		m.Rejections[ReasonDuplicateSemantic]++
	}
}

// lostInsertRace moves a unique item to the exact duplicates after storage
// reported a text-hash collision.
func (m *RunMetrics) lostInsertRace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unique--
	m.DuplicatesExact++
	m.Rejected++
	m.Rejections[ReasonDuplicateExact]++
}

func (m *RunMetrics) stored(s question.Stratum) {
	m.mu.Lock()
	m.Inserted++
	m.ByStratum[s]++
	m.mu.Unlock()
}

func (m *RunMetrics) storeFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreFailures++
	m.Rejected++
	m.Rejections[ReasonStoreFailed]++
}

// cancelled records an item that ended because the run was cancelled.
// wasGenerated is true once a provider produced it.
func (m *RunMetrics) cancelled(wasGenerated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled++
	m.Rejections[ReasonCancelled]++
	if wasGenerated {
		m.Rejected++
	}
}

func (m *RunMetrics) notStarted(n int) {
	m.mu.Lock()
	m.NotStarted += n
	m.mu.Unlock()
}

// halt records the first fatal reason. It reports whether this call set it.
func (m *RunMetrics) halt(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FatalReason != "" {
		return false
	}
	m.FatalReason = reason
	return true
}

// unavailable records that every generation circuit is open. Like halt it
// reports whether this call set the reason.
func (m *RunMetrics) unavailable(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FatalReason != "" {
		return false
	}
	m.FatalReason = reason
	m.providersDown = true
	return true
}

func (m *RunMetrics) finish(end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Duration = end.Sub(m.StartedAt)
	switch {
	case m.providersDown:
		m.Status = StatusUnavailable
	case m.FatalReason != "":
		m.Status = StatusFatal
	case m.GenerationFailures+m.EvaluationFailures+m.StoreFailures+m.Cancelled > 0:
		m.Status = StatusPartialSuccess
	default:
		m.Status = StatusSuccess
	}
}

// Providers returns the providers that produced items, sorted by name.
func (m *RunMetrics) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.ByProvider))
	for p := range m.ByProvider {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Summary converts the metrics into the reporter payload.
func (m *RunMetrics) Summary() report.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return report.Summary{
		RunID:      m.RunID,
		Generated:  m.Generated,
		Approved:   m.Approved,
		Rejected:   m.Rejected,
		Duplicates: m.DuplicatesExact + m.DuplicatesSemantic,
		Inserted:   m.Inserted,
		Cost:       m.CostUSD,
		DurationMs: m.Duration.Milliseconds(),
		Status:     string(m.Status),
	}
}

// Record converts the metrics into the stored run history row.
func (m *RunMetrics) Record() store.RunRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return store.RunRecord{
		RunID:       m.RunID,
		StartedAt:   m.StartedAt,
		DurationMs:  m.Duration.Milliseconds(),
		Status:      string(m.Status),
		FatalReason: m.FatalReason,
		DryRun:      m.DryRun,
		Requested:   m.Requested,
		Generated:   m.Generated,
		Approved:    m.Approved,
		Rejected:    m.Rejected,
		Duplicates:  m.DuplicatesExact + m.DuplicatesSemantic,
		Inserted:    m.Inserted,
		Failed:      m.GenerationFailures + m.EvaluationFailures + m.StoreFailures,
		CostUSD:     m.CostUSD,
	}
}
