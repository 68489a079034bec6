// Package plugin defines the frame sink contract and the sink factory
// registry.
package plugin

import (
	"context"

	"firestige.xyz/sle/internal/core"
)

// Plugin is the lifecycle shared by every sink. Init receives the sink's
// configuration entry, including its "type" key. Sinks start before the
// provider connection opens and stop after it has closed.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// FrameSink delivers decoded telemetry frames to an external system.
type FrameSink interface {
	Plugin
	Send(ctx context.Context, frame *core.TelemetryFrame) error
	Flush(ctx context.Context) error
}

// BatchSink is an optional interface for sinks that write several frames in
// one call (e.g. Kafka). Sinks without it receive frames one by one.
type BatchSink interface {
	FrameSink
	SendBatch(ctx context.Context, frames []*core.TelemetryFrame) error
}
