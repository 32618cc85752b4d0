package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	WindowsActive prometheus.Gauge
	ViewsActive   prometheus.Gauge
	ViewsCreated  prometheus.Counter
	ModeSwitches  *prometheus.CounterVec

	// Download metrics
	DownloadsActive prometheus.Gauge
	DownloadsTotal  prometheus.Counter
	ScanResults     *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shellhost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shellhost_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shellhost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Session metrics
		WindowsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_windows_active",
				Help: "Number of registered windows",
			},
		),
		ViewsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_views_active",
				Help: "Number of live views across all windows",
			},
		),
		ViewsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_views_created_total",
				Help: "Total number of views created",
			},
		),
		ModeSwitches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_mode_switches_total",
				Help: "Total number of display mode switches",
			},
			[]string{"mode"},
		),

		// Download metrics
		DownloadsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_downloads_active",
				Help: "Number of downloads currently in progress",
			},
		),
		DownloadsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shellhost_downloads_total",
				Help: "Total number of downloads registered",
			},
		),
		ScanResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_scan_results_total",
				Help: "Total number of integrity scan results by verdict",
			},
			[]string{"verdict"},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shellhost_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shellhost_uptime_seconds",
				Help: "Shell host uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetWindowsActive sets the number of registered windows
func (m *Metrics) SetWindowsActive(count int) {
	m.WindowsActive.Set(float64(count))
}

// SetViewsActive sets the number of live views
func (m *Metrics) SetViewsActive(count int) {
	m.ViewsActive.Set(float64(count))
}

// IncViewsCreated increments the views created counter
func (m *Metrics) IncViewsCreated() {
	m.ViewsCreated.Inc()
}

// IncModeSwitch increments the mode switch counter
func (m *Metrics) IncModeSwitch(mode string) {
	m.ModeSwitches.WithLabelValues(mode).Inc()
}

// SetDownloadsActive sets the number of in-progress downloads
func (m *Metrics) SetDownloadsActive(count int) {
	m.DownloadsActive.Set(float64(count))
}

// IncDownloadsTotal increments the downloads registered counter
func (m *Metrics) IncDownloadsTotal() {
	m.DownloadsTotal.Inc()
}

// IncScanResult increments the scan result counter for a verdict
func (m *Metrics) IncScanResult(verdict string) {
	m.ScanResults.WithLabelValues(verdict).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
