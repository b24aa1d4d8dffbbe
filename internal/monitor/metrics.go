package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks pipeline throughput and latency for the operator API.
type Metrics struct {
	SignalLatency *LatencyHistogram
	APILatency    *LatencyHistogram

	signalsProcessed uint64
	ordersSubmitted  uint64
	ordersFilled     uint64
	ordersRejected   uint64
	emergencyCloses  uint64
	riskAlerts       uint64
	apiRequests      uint64
	apiErrors        uint64
}

// LatencyHistogram tracks latency samples over a sliding window. Stats are
// recomputed lazily, only when samples changed since the last read.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// LatencyStats holds computed latency statistics in milliseconds.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	SignalLatency    LatencyStats `json:"signal_latency"`
	APILatency       LatencyStats `json:"api_latency"`
	SignalsProcessed uint64       `json:"signals_processed"`
	OrdersSubmitted  uint64       `json:"orders_submitted"`
	OrdersFilled     uint64       `json:"orders_filled"`
	OrdersRejected   uint64       `json:"orders_rejected"`
	EmergencyCloses  uint64       `json:"emergency_closes"`
	RiskAlerts       uint64       `json:"risk_alerts"`
	APIRequests      uint64       `json:"api_requests"`
	APIErrors        uint64       `json:"api_errors"`
	GoroutineCount   int          `json:"goroutine_count"`
	HeapAlloc        uint64       `json:"heap_alloc_bytes"`
	Timestamp        time.Time    `json:"timestamp"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		SignalLatency: NewLatencyHistogram(1000),
		APILatency:    NewLatencyHistogram(1000),
	}
}

func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts a duration to milliseconds and records it.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99 over the window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

func (m *Metrics) IncrementSignals()         { atomic.AddUint64(&m.signalsProcessed, 1) }
func (m *Metrics) IncrementSubmitted()       { atomic.AddUint64(&m.ordersSubmitted, 1) }
func (m *Metrics) IncrementFilled()          { atomic.AddUint64(&m.ordersFilled, 1) }
func (m *Metrics) IncrementRejected()        { atomic.AddUint64(&m.ordersRejected, 1) }
func (m *Metrics) IncrementEmergencyCloses() { atomic.AddUint64(&m.emergencyCloses, 1) }
func (m *Metrics) IncrementRiskAlerts()      { atomic.AddUint64(&m.riskAlerts, 1) }
func (m *Metrics) IncrementAPI()             { atomic.AddUint64(&m.apiRequests, 1) }
func (m *Metrics) IncrementAPIErrors()       { atomic.AddUint64(&m.apiErrors, 1) }

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return Snapshot{
		SignalLatency:    m.SignalLatency.Stats(),
		APILatency:       m.APILatency.Stats(),
		SignalsProcessed: atomic.LoadUint64(&m.signalsProcessed),
		OrdersSubmitted:  atomic.LoadUint64(&m.ordersSubmitted),
		OrdersFilled:     atomic.LoadUint64(&m.ordersFilled),
		OrdersRejected:   atomic.LoadUint64(&m.ordersRejected),
		EmergencyCloses:  atomic.LoadUint64(&m.emergencyCloses),
		RiskAlerts:       atomic.LoadUint64(&m.riskAlerts),
		APIRequests:      atomic.LoadUint64(&m.apiRequests),
		APIErrors:        atomic.LoadUint64(&m.apiErrors),
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Timestamp:        time.Now(),
	}
}

// Timer measures one operation and records into a histogram on Stop.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
