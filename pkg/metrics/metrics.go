package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = false
	mu                 sync.RWMutex

	// Report metrics
	ReportRunsTotal  *prometheus.CounterVec
	ReportDuration   prometheus.Histogram
	ReportOwners     prometheus.Gauge
	RecordsTotal     *prometheus.CounterVec
	SourceRowsTotal  *prometheus.CounterVec
	CampaignsFlagged prometheus.Gauge

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge

	// HTTP metrics
	HTTPRateLimited *prometheus.CounterVec
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		ReportRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callreport_report_runs_total",
				Help: "Total number of report runs",
			},
			[]string{"status"},
		)

		ReportDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callreport_report_duration_seconds",
				Help:    "Time taken to fetch records and build a report",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
		)

		ReportOwners = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callreport_report_owners",
				Help: "Number of tracked owners with activity in the last report",
			},
		)

		RecordsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callreport_records_total",
				Help: "Records seen by the aggregation engine by outcome",
			},
			[]string{"kind", "outcome"},
		)

		SourceRowsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callreport_source_rows_total",
				Help: "Rows read from record files by outcome",
			},
			[]string{"kind", "outcome"},
		)

		CampaignsFlagged = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callreport_campaigns_flagged",
				Help: "Number of qualifying campaign templates in the last report",
			},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callreport_amqp_published_messages_total",
				Help: "Total number of reports published to AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "callreport_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		HTTPRateLimited = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callreport_http_rate_limited_total",
				Help: "Total number of HTTP requests rejected by the rate limiter",
			},
			[]string{"path"},
		)

		registry.MustRegister(
			ReportRunsTotal,
			ReportDuration,
			ReportOwners,
			RecordsTotal,
			SourceRowsTotal,
			CampaignsFlagged,
			AMQPPublishedMessages,
			AMQPConnectionStatus,
			HTTPRateLimited,

			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry, nil before Init
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return metricsEnabled && registry != nil
}

// Handler returns the Prometheus HTTP handler for the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          registry,
		},
	)
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if IsMetricsEnabled() {
		mux.Handle(defaultMetricsPath, Handler())
	}
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// RecordReportRun records a finished report run
func RecordReportRun(status string) {
	if IsMetricsEnabled() {
		ReportRunsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveReport returns a function that records the report duration when called
func ObserveReport() func() {
	start := time.Now()
	return func() {
		if IsMetricsEnabled() {
			ReportDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// SetReportGauges records the size of the last report
func SetReportGauges(owners, campaigns int) {
	if IsMetricsEnabled() {
		ReportOwners.Set(float64(owners))
		CampaignsFlagged.Set(float64(campaigns))
	}
}

// RecordRecords adds n records of a kind with the given classification outcome
func RecordRecords(kind, outcome string, n int) {
	if IsMetricsEnabled() && n > 0 {
		RecordsTotal.WithLabelValues(kind, outcome).Add(float64(n))
	}
}

// RecordSourceRows adds n rows read from a record file with the given outcome
func RecordSourceRows(kind, outcome string, n int) {
	if IsMetricsEnabled() && n > 0 {
		SourceRowsTotal.WithLabelValues(kind, outcome).Add(float64(n))
	}
}

// RecordAMQPPublish records an AMQP publish attempt
func RecordAMQPPublish(queue, status string) {
	if IsMetricsEnabled() {
		AMQPPublishedMessages.WithLabelValues(queue, status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection gauge
func SetAMQPConnectionStatus(connected bool) {
	if IsMetricsEnabled() {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}

// RecordRateLimited records a request rejected by the HTTP rate limiter
func RecordRateLimited(path string) {
	if IsMetricsEnabled() {
		HTTPRateLimited.WithLabelValues(path).Inc()
	}
}
