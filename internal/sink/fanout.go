// Package sink fans decoded telemetry frames out to the configured frame
// sink plugins.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/pkg/plugin"
)

// DefaultSinks is used when no sink is configured: UDP to localhost:3076.
func DefaultSinks() []map[string]any {
	return []map[string]any{{"type": "udp", "address": "localhost:3076"}}
}

// Fanout forwards every frame to all sinks. Forward never blocks and never
// reports sink failures to the caller.
type Fanout struct {
	sinks    []plugin.FrameSink
	wrappers []*wrapper
	opts     Options

	// mu guards started against Forward racing Stop.
	mu      sync.RWMutex
	started bool
}

// New creates a fan-out over already initialised sinks.
func New(opts Options, sinks ...plugin.FrameSink) *Fanout {
	return &Fanout{sinks: sinks, opts: opts.withDefaults()}
}

// Build creates and initialises one sink per config entry. Each entry names
// its plugin in "type"; the whole map is handed to the plugin's Init.
func Build(cfgs []map[string]any, opts Options) (*Fanout, error) {
	if len(cfgs) == 0 {
		cfgs = DefaultSinks()
	}
	sinks := make([]plugin.FrameSink, 0, len(cfgs))
	for i, cfg := range cfgs {
		typ, _ := cfg["type"].(string)
		if typ == "" {
			return nil, fmt.Errorf("%w: sinks[%d] has no type", core.ErrConfigInvalid, i)
		}
		factory, err := plugin.GetSinkFactory(typ)
		if err != nil {
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		s := factory()
		if err := s.Init(cfg); err != nil {
			return nil, fmt.Errorf("%w: sink %s: %w", core.ErrPluginInitFailed, typ, err)
		}
		sinks = append(sinks, s)
	}
	return New(opts, sinks...), nil
}

// Names returns the sink names in configuration order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Start starts every sink and its batching loop. Sinks started before a
// failure are stopped again.
func (f *Fanout) Start(ctx context.Context) error {
	for i, s := range f.sinks {
		if err := s.Start(ctx); err != nil {
			for _, started := range f.sinks[:i] {
				_ = started.Stop(ctx)
			}
			return fmt.Errorf("start sink %s: %w", s.Name(), err)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wrappers = make([]*wrapper, len(f.sinks))
	for i, s := range f.sinks {
		f.wrappers[i] = newWrapper(s, f.opts)
		f.wrappers[i].start(ctx)
	}
	f.started = true
	slog.Info("frame sinks started", "sinks", f.Names())
	return nil
}

// Forward queues frame on every sink. Frames forwarded before Start or
// after Stop are dropped.
func (f *Fanout) Forward(frame *core.TelemetryFrame) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.started {
		metrics.FramesDroppedTotal.WithLabelValues("stopped").Inc()
		return
	}
	for _, w := range f.wrappers {
		if !w.enqueue(frame) {
			metrics.FramesDroppedTotal.WithLabelValues("queue_full").Inc()
			slog.Warn("frame sink queue full, frame dropped", "sink", w.sink.Name())
		}
	}
}

// Stop drains the queues, flushes and stops every sink.
func (f *Fanout) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = false
	for _, w := range f.wrappers {
		w.close()
	}
	f.mu.Unlock()

	var errs []error
	for _, s := range f.sinks {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush sink %s: %w", s.Name(), err))
		}
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
