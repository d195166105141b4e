package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zombor/bill-check/internal/analysis"
)

// Analysis outcomes reported on bill_check_analyses_total
const (
	OutcomeSuccess          = "success"
	OutcomeInvalidBill      = "invalid_bill"
	OutcomeUnsupportedImage = "unsupported_image"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeError            = "error"
)

// Metrics holds the service collectors
type Metrics struct {
	analyses  *prometheus.CounterVec
	lineItems *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_check",
			Name:      "analyses_total",
			Help:      "Bills analyzed, by source and outcome.",
		}, []string{"source", "outcome"}),
		lineItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_check",
			Name:      "line_items_total",
			Help:      "Analyzed line items, by price tier.",
		}, []string{"tier"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bill_check",
			Name:      "analysis_duration_seconds",
			Help:      "Time from submission to stored report.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
	}
}

func (m *Metrics) observe(source Source, outcome string, started time.Time, report *analysis.Report) {
	m.analyses.WithLabelValues(string(source), outcome).Inc()
	m.duration.WithLabelValues(string(source)).Observe(time.Since(started).Seconds())
	if report == nil {
		return
	}
	for _, item := range report.Items {
		m.lineItems.WithLabelValues(string(item.Comparison.Tier)).Inc()
	}
}
