// Package metrics registers the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram

	ChunksIngested prometheus.Counter
	ChunksRejected prometheus.Counter
	ChunksDropped  prometheus.Counter

	TranscriptEvents *prometheus.CounterVec
	SummaryEvents    prometheus.Counter
	ErrorEvents      *prometheus.CounterVec

	OutboundEventsSent    prometheus.Counter
	OutboundEventsDropped prometheus.Counter
}

// New creates and registers all collectors on the default registry.
// Call once per process.
func New() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamnote_sessions_active",
			Help: "Current number of active sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_sessions_closed_total",
			Help: "Total number of sessions closed",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamnote_session_duration_seconds",
			Help:    "Session lifetime from create to close",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
		ChunksIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_audio_chunks_ingested_total",
			Help: "Total audio chunks accepted from client sockets",
		}),
		ChunksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_audio_chunks_rejected_total",
			Help: "Total audio chunks rejected as malformed or out of protocol",
		}),
		ChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_audio_chunks_dropped_total",
			Help: "Total audio chunks dropped under backpressure",
		}),
		TranscriptEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamnote_transcript_events_total",
			Help: "Transcript events dispatched, by finality",
		}, []string{"final"}),
		SummaryEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_summary_events_total",
			Help: "Summary events dispatched",
		}),
		ErrorEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streamnote_error_events_total",
			Help: "Error events dispatched, by kind",
		}, []string{"kind"}),
		OutboundEventsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_outbound_events_total",
			Help: "Total events queued for client channels",
		}),
		OutboundEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamnote_outbound_events_dropped_total",
			Help: "Total events dropped because a client queue was full",
		}),
	}
}
