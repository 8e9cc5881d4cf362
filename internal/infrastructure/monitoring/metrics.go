package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Storage metrics
	StorageOps        *prometheus.CounterVec
	StorageDuration   *prometheus.HistogramVec
	StorageQueueDepth *prometheus.GaugeVec
	StorageResources  prometheus.Gauge

	// Window metrics
	WindowsOpen  prometheus.Gauge
	WindowsTotal prometheus.Counter

	// IPC metrics
	IPCInvocations *prometheus.CounterVec
	IPCDuration    *prometheus.HistogramVec
	WSConnections  prometheus.Gauge
	WSMessages     *prometheus.CounterVec

	// Updater metrics
	UpdateEvents        *prometheus.CounterVec
	UpdateDownloadBytes prometheus.Counter

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the health endpoint
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	StorageResources  int64   `json:"storage_resources"`
	StorageOps        int64   `json:"storage_ops"`
	StorageErrors     int64   `json:"storage_errors"`
	OpenWindows       int64   `json:"open_windows"`
	ActiveConnections int64   `json:"active_connections"`
	AvgRequestSeconds float64 `json:"avg_request_seconds"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector registered on reg. A nil reg gets a
// fresh registry, so independent collectors never collide.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostkit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostkit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostkit_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostkit_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Storage metrics
		StorageOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostkit_storage_operations_total",
				Help: "Total number of storage reads and writes",
			},
			[]string{"op", "status"},
		),
		StorageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostkit_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds, excluding queue wait",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
		StorageQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hostkit_storage_queue_depth",
				Help: "Outstanding operations per storage resource",
			},
			[]string{"resource"},
		),
		StorageResources: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostkit_storage_resources",
				Help: "Number of registered storage resources",
			},
		),

		// Window metrics
		WindowsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostkit_windows_open",
				Help: "Number of registered windows",
			},
		),
		WindowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hostkit_windows_total",
				Help: "Total number of windows created",
			},
		),

		// IPC metrics
		IPCInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostkit_ipc_invocations_total",
				Help: "Total number of relayed IPC invocations",
			},
			[]string{"channel", "status"},
		),
		IPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hostkit_ipc_invocation_duration_seconds",
				Help:    "Time until the first reply of an IPC invocation",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"channel"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hostkit_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostkit_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// Updater metrics
		UpdateEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hostkit_update_events_total",
				Help: "Total number of updater events",
			},
			[]string{"event"},
		),
		UpdateDownloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "hostkit_update_download_bytes_total",
				Help: "Bytes of update artifacts downloaded",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hostkit_uptime_seconds",
			Help: "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// ObserveStorageOp records one completed storage read or write
func (m *Metrics) ObserveStorageOp(op, status string, duration time.Duration) {
	m.StorageOps.WithLabelValues(op, status).Inc()
	m.StorageDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.StorageOps++
	if status != "ok" {
		m.snapshot.StorageErrors++
	}
	m.mu.Unlock()
}

// SetStorageQueueDepth sets the number of outstanding operations for a resource
func (m *Metrics) SetStorageQueueDepth(resource string, depth int) {
	m.StorageQueueDepth.WithLabelValues(resource).Set(float64(depth))
}

// SetStorageResources sets the number of registered resources
func (m *Metrics) SetStorageResources(count int) {
	m.StorageResources.Set(float64(count))
	m.mu.Lock()
	m.snapshot.StorageResources = int64(count)
	m.mu.Unlock()
}

// SetWindowsOpen sets the number of registered windows
func (m *Metrics) SetWindowsOpen(count int) {
	m.WindowsOpen.Set(float64(count))
	m.mu.Lock()
	m.snapshot.OpenWindows = int64(count)
	m.mu.Unlock()
}

// IncWindowsTotal increments the windows created counter
func (m *Metrics) IncWindowsTotal() {
	m.WindowsTotal.Inc()
}

// ObserveIPCInvoke records a relayed invocation
func (m *Metrics) ObserveIPCInvoke(channel, status string, duration time.Duration) {
	m.IPCInvocations.WithLabelValues(channel, status).Inc()
	m.IPCDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordUpdateEvent counts an updater event by name
func (m *Metrics) RecordUpdateEvent(event string) {
	m.UpdateEvents.WithLabelValues(event).Inc()
}

// AddUpdateDownloadBytes adds to the downloaded artifact byte count
func (m *Metrics) AddUpdateDownloadBytes(n int64) {
	m.UpdateDownloadBytes.Add(float64(n))
}

// Snapshot returns the current summary values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.TotalRequests > 0 {
		s.AvgRequestSeconds = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
