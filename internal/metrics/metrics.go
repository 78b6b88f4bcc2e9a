package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
)

type Metrics struct {
	mutex         sync.RWMutex
	calls         map[string]int64
	successes     map[string]int64
	failures      map[string]int64
	timeouts      map[string]int64
	rejections    map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalCalls   int64                        `json:"total_calls"`
	Uptime       time.Duration                `json:"uptime"`
	Dependencies map[string]DependencyMetrics `json:"dependencies"`
}

type DependencyMetrics struct {
	Calls       int64                  `json:"calls"`
	Successes   int64                  `json:"successes"`
	Failures    int64                  `json:"failures"`
	Timeouts    int64                  `json:"timeouts"`
	Rejections  int64                  `json:"rejections"`
	Healthy     bool                   `json:"healthy"`
	AvgResponse time.Duration          `json:"avg_response"`
	P50Response time.Duration          `json:"p50_response"`
	P95Response time.Duration          `json:"p95_response"`
	P99Response time.Duration          `json:"p99_response"`
	StatusCodes map[int]int64          `json:"status_codes"`
	Breaker     circuitbreaker.Metrics `json:"breaker"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		calls:         make(map[string]int64),
		successes:     make(map[string]int64),
		failures:      make(map[string]int64),
		timeouts:      make(map[string]int64),
		rejections:    make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func (m *Metrics) RecordSuccess(dependency string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls[dependency]++
	m.successes[dependency]++
}

func (m *Metrics) RecordFailure(dependency string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls[dependency]++
	m.failures[dependency]++
}

func (m *Metrics) RecordTimeout(dependency string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls[dependency]++
	m.failures[dependency]++
	m.timeouts[dependency]++
}

func (m *Metrics) RecordRejection(dependency string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections[dependency]++
}

func (m *Metrics) RecordResponse(dependency string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[dependency] = append(m.responseTimes[dependency], duration)

	if len(m.responseTimes[dependency]) > 1000 {
		m.responseTimes[dependency] = m.responseTimes[dependency][1:]
	}

	if m.statusCodes[dependency] == nil {
		m.statusCodes[dependency] = make(map[int]int64)
	}
	m.statusCodes[dependency][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(dependency string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[dependency] = healthy
}

// Snapshot merges the collector's own aggregates with the per-breaker
// snapshots from the registry.
func (m *Metrics) Snapshot(registry *circuitbreaker.Registry) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:       time.Since(m.startTime),
		Dependencies: make(map[string]DependencyMetrics),
	}

	// Collect all dependency names seen anywhere.
	all := make(map[string]bool)
	for dep := range m.calls {
		all[dep] = true
	}
	for dep := range m.rejections {
		all[dep] = true
	}
	for dep := range m.healthStatus {
		all[dep] = true
	}
	if registry != nil {
		for dep := range registry.Stats() {
			all[dep] = true
		}
	}

	for dep := range all {
		snap.TotalCalls += m.calls[dep]

		dm := DependencyMetrics{
			Calls:       m.calls[dep],
			Successes:   m.successes[dep],
			Failures:    m.failures[dep],
			Timeouts:    m.timeouts[dep],
			Rejections:  m.rejections[dep],
			Healthy:     m.healthStatus[dep],
			StatusCodes: m.statusCodes[dep],
		}

		if registry != nil {
			dm.Breaker = registry.Metrics(dep)
		}

		durations := m.responseTimes[dep]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			dm.AvgResponse = average(sorted)
			dm.P50Response = percentile(sorted, 0.50)
			dm.P95Response = percentile(sorted, 0.95)
			dm.P99Response = percentile(sorted, 0.99)
		}

		snap.Dependencies[dep] = dm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
