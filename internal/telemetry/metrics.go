// Package telemetry exposes application-level prometheus instruments,
// scraped from /metrics alongside the gorm plugin collectors.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	pointsReceived *prometheus.CounterVec
	pointsIngested *prometheus.CounterVec
	queriesRun     *prometheus.CounterVec
	segmentEvals   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		pointsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "points_received_total",
			Help:      "Metric points received by the ingest endpoint.",
		}, []string{"source"}),
		pointsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "points_ingested_total",
			Help:      "Metric points upserted after validation.",
		}, []string{"source"}),
		queriesRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "queries_total",
			Help:      "Aggregation queries executed, by aggregation function and outcome.",
		}, []string{"agg", "outcome"}),
		segmentEvals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "segment_evaluations_total",
			Help:      "Segment rule evaluations, by rule kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordIngest(source string, received, ingested int) {
	if m == nil {
		return
	}
	if source == "" {
		source = "api"
	}
	m.pointsReceived.WithLabelValues(source).Add(float64(received))
	m.pointsIngested.WithLabelValues(source).Add(float64(ingested))
}

func (m *Metrics) RecordQuery(agg string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.queriesRun.WithLabelValues(agg, outcome).Inc()
}

func (m *Metrics) RecordSegmentEvaluation(kind string) {
	if m == nil {
		return
	}
	m.segmentEvals.WithLabelValues(kind).Inc()
}
