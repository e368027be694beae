package monitoring

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Guardrail metrics
	guardDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpsl_guard_decisions_total",
			Help: "Total number of guardrail decisions",
		},
		[]string{"kind", "allowed"},
	)

	// Ladder metrics
	ladderComputationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpsl_ladder_computations_total",
			Help: "Total number of ladder policy computations",
		},
		[]string{"class"},
	)

	// Calibration metrics
	calibrationLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpsl_calibration_lines_total",
			Help: "Outcome log lines read by calibration, by parse result",
		},
		[]string{"result"},
	)

	calibrationEstimate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tpsl_calibration_estimate_bps",
			Help: "Latest stop-loss distance estimate in basis points",
		},
		[]string{"symbol"},
	)

	// Order lifecycle metrics
	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpsl_order_transitions_total",
			Help: "Total number of protective order state transitions",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(guardDecisionsTotal)
	prometheus.MustRegister(ladderComputationsTotal)
	prometheus.MustRegister(calibrationLinesTotal)
	prometheus.MustRegister(calibrationEstimate)
	prometheus.MustRegister(orderTransitionsTotal)
}

// MetricsHandler serves the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordDecision records one guardrail decision
func RecordDecision(kind string, allowed bool) {
	guardDecisionsTotal.WithLabelValues(kind, strconv.FormatBool(allowed)).Inc()
}

// RecordLadder records a ladder policy computation
func RecordLadder(class string) {
	ladderComputationsTotal.WithLabelValues(class).Inc()
}

// RecordCalibrationLines adds parsed-line counts keyed by result
func RecordCalibrationLines(counts map[string]int) {
	for result, n := range counts {
		calibrationLinesTotal.WithLabelValues(result).Add(float64(n))
	}
}

// UpdateCalibrationEstimate stores the latest estimate for a symbol
func UpdateCalibrationEstimate(symbol string, bps float64) {
	calibrationEstimate.WithLabelValues(symbol).Set(bps)
}

// RecordOrderTransition records an order entering state
func RecordOrderTransition(state string) {
	orderTransitionsTotal.WithLabelValues(state).Inc()
}
