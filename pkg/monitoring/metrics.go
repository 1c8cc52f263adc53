package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "service"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "service"},
	)

	// Appointment lifecycle metrics
	appointmentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_operations_total",
			Help: "Total number of appointment store operations",
		},
		[]string{"operation", "status", "service"},
	)

	// Slot claim metrics
	slotClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slot_claims_total",
			Help: "Total number of slot claim attempts",
		},
		[]string{"result", "service"},
	)

	// Durable store rewrite metrics
	storeRewritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_rewrites_total",
			Help: "Total number of durable store rewrites",
		},
		[]string{"status", "service"},
	)

	storeRewriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_rewrite_duration_seconds",
			Help:    "Duration of durable store rewrites in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"service"},
	)

	// Dispensation metrics
	dispensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispensations_total",
			Help: "Total number of prescription dispensations",
		},
		[]string{"status", "service"},
	)
)

// MetricsCollector handles Prometheus metrics collection
type MetricsCollector struct {
	serviceName string
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		appointmentOperationsTotal,
		slotClaimsTotal,
		storeRewritesTotal,
		storeRewriteDuration,
		dispensationsTotal,
	)

	return &MetricsCollector{
		serviceName: serviceName,
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordAppointmentOperation records a store operation outcome
func (m *MetricsCollector) RecordAppointmentOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	appointmentOperationsTotal.WithLabelValues(operation, status, m.serviceName).Inc()
}

// RecordSlotClaim records the result of a slot claim attempt
func (m *MetricsCollector) RecordSlotClaim(result string) {
	slotClaimsTotal.WithLabelValues(result, m.serviceName).Inc()
}

// RecordStoreRewrite records a durable store rewrite
func (m *MetricsCollector) RecordStoreRewrite(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	storeRewritesTotal.WithLabelValues(status, m.serviceName).Inc()
	storeRewriteDuration.WithLabelValues(m.serviceName).Observe(duration.Seconds())
}

// RecordDispensation records a dispensation attempt
func (m *MetricsCollector) RecordDispensation(err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	dispensationsTotal.WithLabelValues(status, m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware creates middleware for HTTP request metrics
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		statusCode := strconv.Itoa(wrapper.statusCode)
		m.RecordHTTPRequest(r.Method, r.URL.Path, statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
