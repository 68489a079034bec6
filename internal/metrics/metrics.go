// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PDUsSentTotal counts user invocations written to the provider
	PDUsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_pdus_sent_total",
			Help: "Total number of SLE PDUs sent to the provider",
		},
		[]string{"operation"},
	)

	// PDUsReceivedTotal counts decoded provider PDUs by registry key
	PDUsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_pdus_received_total",
			Help: "Total number of SLE PDUs received from the provider",
		},
		[]string{"kind"},
	)

	// DispatchErrorsTotal counts PDUs that could not be handled
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_dispatch_errors_total",
			Help: "Total number of inbound PDU dispatch failures",
		},
		[]string{"kind", "reason"},
	)

	// FramesReceivedTotal counts annotated frames extracted from transfer buffers
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_frames_received_total",
			Help: "Total number of transfer frames received",
		},
		[]string{"spacecraft", "virtual_channel"},
	)

	// FramesDroppedTotal counts frames that were not forwarded
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_frames_dropped_total",
			Help: "Total number of transfer frames dropped before forwarding",
		},
		[]string{"reason"},
	)

	// FrameDelaySeconds measures earth receive time to forwarding delay
	FrameDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sle_frame_delay_seconds",
			Help:    "Delay between earth receive time and local forwarding in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
	)

	// SyncNotificationsTotal counts sync notifications by type
	SyncNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_sync_notifications_total",
			Help: "Total number of sync notifications received",
		},
		[]string{"type"},
	)

	// SessionState tracks the current bind state (see session.State)
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sle_session_state",
			Help: "Current SLE bind state (0=unbound, 1=bind-pending, 2=ready, 3=start-pending, 4=active, 5=stop-pending, 6=unbind-pending)",
		},
	)

	// ProviderFramesDelivered mirrors the last status report from the provider
	ProviderFramesDelivered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sle_provider_frames_delivered",
			Help: "Number of frames delivered according to the last provider status report",
		},
	)

	// SinkBatchSize tracks the number of frames written per sink batch
	SinkBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sle_sink_batch_size",
			Help:    "Number of frames sent per sink batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1, 2, 4, ..., 2048
		},
		[]string{"sink"},
	)

	// SinkFramesTotal counts frames delivered by each sink
	SinkFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_sink_frames_total",
			Help: "Total number of frames delivered by sinks",
		},
		[]string{"sink"},
	)

	// SinkErrorsTotal counts sink errors by name and error type
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sle_sink_errors_total",
			Help: "Total number of sink errors",
		},
		[]string{"sink", "error_type"},
	)
)
