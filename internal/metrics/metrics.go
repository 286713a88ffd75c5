package metrics

import (
	"math"
	"sync"
	"time"
)

// MetricType represents different types of metrics
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeTimer   MetricType = "timer"
)

// Metric names recorded by the controller
const (
	MetricPolls        = "status_polls"
	MetricPollErrors   = "status_poll_errors"
	MetricPollLatency  = "status_poll_latency"
	MetricTestDuration = "test_duration"
	MetricLiveSpeed    = "live_speed_mbps"
	MetricFeedbackSent = "feedback_sent"
)

// Metric represents a single metric
type Metric struct {
	Name        string     `json:"name"`
	Type        MetricType `json:"type"`
	Value       float64    `json:"value"`
	Count       int64      `json:"count"`
	LastUpdated time.Time  `json:"last_updated"`
}

// ResultSample is one finished test kept in the sliding window
type ResultSample struct {
	Timestamp time.Time `json:"timestamp"`
	Download  float64   `json:"download"`
	Upload    float64   `json:"upload"`
	Ping      float64   `json:"ping"`
}

// SlidingWindow keeps the most recent result samples within a time window
type SlidingWindow struct {
	samples    []ResultSample
	maxSize    int
	windowSize time.Duration
	mu         sync.RWMutex
}

// SessionStats summarizes every test run in this process
type SessionStats struct {
	TestsStarted    int64     `json:"tests_started"`
	TestsCompleted  int64     `json:"tests_completed"`
	TestsSuccessful int64     `json:"tests_successful"`
	TestsFailed     int64     `json:"tests_failed"`
	TestsTimedOut   int64     `json:"tests_timed_out"`
	AverageDownload float64   `json:"average_download"`
	PeakDownload    float64   `json:"peak_download"`
	AverageUpload   float64   `json:"average_upload"`
	AveragePing     float64   `json:"average_ping"`
	MinPing         float64   `json:"min_ping"`
	MaxPing         float64   `json:"max_ping"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Metrics collects controller counters, timers and result statistics
type Metrics struct {
	mu       sync.RWMutex
	metrics  map[string]*Metric
	window   *SlidingWindow
	stats    *SessionStats
	download []float64
	upload   []float64
	ping     []float64
}

// New creates a new metrics collector
func New() *Metrics {
	return &Metrics{
		metrics: make(map[string]*Metric),
		window:  NewSlidingWindow(50, time.Hour),
		stats:   &SessionStats{MinPing: math.MaxFloat64},
	}
}

// NewSlidingWindow creates a new sliding window
func NewSlidingWindow(maxSize int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		samples:    make([]ResultSample, 0, maxSize),
		maxSize:    maxSize,
		windowSize: windowSize,
	}
}

// getOrCreate must be called with the lock held
func (m *Metrics) getOrCreate(name string, t MetricType) *Metric {
	metric, exists := m.metrics[name]
	if !exists {
		metric = &Metric{Name: name, Type: t}
		m.metrics[name] = metric
	}
	return metric
}

// RecordCounter increments a counter metric
func (m *Metrics) RecordCounter(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric := m.getOrCreate(name, MetricTypeCounter)
	metric.Value += value
	metric.Count++
	metric.LastUpdated = time.Now()
}

// RecordGauge sets a gauge metric value
func (m *Metrics) RecordGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric := m.getOrCreate(name, MetricTypeGauge)
	metric.Value = value
	metric.Count++
	metric.LastUpdated = time.Now()
}

// RecordTimer folds a duration into a running average, in seconds
func (m *Metrics) RecordTimer(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric := m.getOrCreate(name, MetricTypeTimer)
	totalValue := metric.Value * float64(metric.Count)
	metric.Count++
	metric.Value = (totalValue + duration.Seconds()) / float64(metric.Count)
	metric.LastUpdated = time.Now()
}

// RecordTestStart records the start of a test
func (m *Metrics) RecordTestStart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TestsStarted++
	m.stats.LastUpdated = time.Now()
}

// RecordTestFailure records a test that ended in an error banner
func (m *Metrics) RecordTestFailure(timedOut bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TestsCompleted++
	m.stats.TestsFailed++
	if timedOut {
		m.stats.TestsTimedOut++
	}
	m.stats.LastUpdated = time.Now()
}

// RecordResult records a successful test and its measurements
func (m *Metrics) RecordResult(download, upload, ping float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window.AddSample(ResultSample{
		Timestamp: time.Now(),
		Download:  download,
		Upload:    upload,
		Ping:      ping,
	})

	m.stats.TestsCompleted++
	m.stats.TestsSuccessful++

	m.download = append(m.download, download)
	m.upload = append(m.upload, upload)
	m.ping = append(m.ping, ping)

	if download > m.stats.PeakDownload {
		m.stats.PeakDownload = download
	}
	if ping < m.stats.MinPing {
		m.stats.MinPing = ping
	}
	if ping > m.stats.MaxPing {
		m.stats.MaxPing = ping
	}

	m.stats.AverageDownload = mean(m.download)
	m.stats.AverageUpload = mean(m.upload)
	m.stats.AveragePing = mean(m.ping)
	m.stats.LastUpdated = time.Now()
}

// GetMetric returns a copy of a metric, or nil if it was never recorded
func (m *Metrics) GetMetric(name string) *Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metric, exists := m.metrics[name]; exists {
		c := *metric
		return &c
	}
	return nil
}

// GetAllMetrics returns copies of all metrics
func (m *Metrics) GetAllMetrics() map[string]*Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Metric, len(m.metrics))
	for name, metric := range m.metrics {
		c := *metric
		result[name] = &c
	}
	return result
}

// GetSessionStats returns current session statistics.
// MinPing is zero until a result has been recorded.
func (m *Metrics) GetSessionStats() *SessionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := *m.stats
	if len(m.ping) == 0 {
		s.MinPing = 0
	}
	return &s
}

// GetSmoothedDownload returns the recency-weighted download average
func (m *Metrics) GetSmoothedDownload() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window.GetSmoothedDownload()
}

// GetRecentSamples returns recent result samples
func (m *Metrics) GetRecentSamples(count int) []ResultSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.window.GetRecentSamples(count)
}

// Reset clears all metrics and statistics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics = make(map[string]*Metric)
	m.window = NewSlidingWindow(m.window.maxSize, m.window.windowSize)
	m.stats = &SessionStats{MinPing: math.MaxFloat64}
	m.download = nil
	m.upload = nil
	m.ping = nil
}

// AddSample adds a sample and drops samples older than the window
func (sw *SlidingWindow) AddSample(sample ResultSample) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.samples = append(sw.samples, sample)

	cutoff := sample.Timestamp.Add(-sw.windowSize)
	drop := 0
	for drop < len(sw.samples) && !sw.samples[drop].Timestamp.After(cutoff) {
		drop++
	}
	sw.samples = sw.samples[drop:]

	if len(sw.samples) > sw.maxSize {
		sw.samples = sw.samples[len(sw.samples)-sw.maxSize:]
	}
}

// GetSmoothedDownload weights later samples more heavily
func (sw *SlidingWindow) GetSmoothedDownload() float64 {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if len(sw.samples) == 0 {
		return 0
	}

	totalWeight := 0.0
	weightedSum := 0.0
	for i, sample := range sw.samples {
		weight := float64(i+1) / float64(len(sw.samples))
		weightedSum += sample.Download * weight
		totalWeight += weight
	}

	return weightedSum / totalWeight
}

// GetRecentSamples returns the most recent samples, oldest first
func (sw *SlidingWindow) GetRecentSamples(count int) []ResultSample {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if count <= 0 || len(sw.samples) == 0 {
		return []ResultSample{}
	}

	start := len(sw.samples) - count
	if start < 0 {
		start = 0
	}

	result := make([]ResultSample, len(sw.samples)-start)
	copy(result, sw.samples[start:])
	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
