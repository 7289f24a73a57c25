package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Calculations        *prometheus.CounterVec
	CalculationDuration prometheus.Histogram
	RecordsWritten      *prometheus.CounterVec
	RecordsPaid         prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Calculations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upline_commission_calculations_total",
			Help: "Commission calculation attempts by outcome",
		}, []string{"outcome"}),
		CalculationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "upline_commission_calculation_duration_seconds",
			Help:    "Wall time of per-order commission calculations",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		RecordsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "upline_commission_records_written_total",
			Help: "Commission records written by hierarchy level",
		}, []string{"level"}),
		RecordsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upline_commission_records_paid_total",
			Help: "Commission records transitioned to paid",
		}),
	}
}

func (m *Metrics) ObserveCalculation(outcome string, seconds float64) {
	m.Calculations.WithLabelValues(outcome).Inc()
	m.CalculationDuration.Observe(seconds)
}

func (m *Metrics) AddRecordsWritten(level string, n int) {
	m.RecordsWritten.WithLabelValues(level).Add(float64(n))
}

func (m *Metrics) IncRecordsPaid() {
	m.RecordsPaid.Inc()
}
