package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

type PipelineMetrics struct {
	service  string
	registry *prometheus.Registry

	documentTotal    *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	assignmentTotal  *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	documentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorter",
			Subsystem: "pipeline",
			Name:      "document_total",
			Help:      "Total documents handled by type and outcome.",
		},
		[]string{"service", "type", "outcome"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sorter",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Per-document pipeline duration in seconds by type and outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "type", "outcome"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sorter",
			Subsystem: "pipeline",
			Name:      "document_in_flight",
			Help:      "Number of documents currently in the pipeline.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	assignmentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorter",
			Subsystem: "pipeline",
			Name:      "assignment_total",
			Help:      "Category assignments by category and how they were reached.",
		},
		[]string{"service", "category", "outcome"},
	)

	registry.MustRegister(documentTotal, documentDuration, inFlight, assignmentTotal)

	return &PipelineMetrics{
		service:          service,
		registry:         registry,
		documentTotal:    documentTotal,
		documentDuration: documentDuration,
		inFlight:         inFlight,
		assignmentTotal:  assignmentTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(docType domain.DocumentType, outcome string, duration time.Duration) {
	m.inFlight.Dec()

	m.documentTotal.WithLabelValues(m.service, string(docType), outcome).Inc()
	m.documentDuration.WithLabelValues(m.service, string(docType), outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveAssignment(category string, outcome domain.AssignmentOutcome) {
	m.assignmentTotal.WithLabelValues(m.service, category, string(outcome)).Inc()
}
