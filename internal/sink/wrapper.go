package sink

import (
	"context"
	"log/slog"
	"time"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/pkg/plugin"
)

const (
	defaultBatchSize    = 64
	defaultBatchTimeout = 50 * time.Millisecond
	defaultQueueSize    = 4096
)

// Options controls the per-sink batching queue.
type Options struct {
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = defaultBatchTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	return o
}

// wrapper decouples one sink from the receive goroutine:
//
//	Fanout.Forward → wrapper.enqueue → batchLoop → BatchSink.SendBatch()/Send()
type wrapper struct {
	sink plugin.FrameSink
	opts Options

	queue chan *core.TelemetryFrame
	done  chan struct{}
}

func newWrapper(s plugin.FrameSink, opts Options) *wrapper {
	return &wrapper{
		sink:  s,
		opts:  opts,
		queue: make(chan *core.TelemetryFrame, opts.QueueSize),
		done:  make(chan struct{}),
	}
}

func (w *wrapper) start(ctx context.Context) {
	go w.batchLoop(ctx)
}

// enqueue never blocks; a full queue drops the frame.
func (w *wrapper) enqueue(f *core.TelemetryFrame) bool {
	select {
	case w.queue <- f:
		return true
	default:
		metrics.SinkErrorsTotal.WithLabelValues(w.sink.Name(), "queue_full").Inc()
		return false
	}
}

// close drains the queue and waits for the last batch.
func (w *wrapper) close() {
	close(w.queue)
	<-w.done
}

func (w *wrapper) batchLoop(ctx context.Context) {
	defer close(w.done)

	batch := make([]*core.TelemetryFrame, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.sendBatch(ctx, batch); err != nil {
			slog.Warn("frame sink batch failed",
				"sink", w.sink.Name(),
				"batch_size", len(batch),
				"error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case f, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, f)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// sendBatch prefers BatchSink and falls back to one Send per frame.
func (w *wrapper) sendBatch(ctx context.Context, batch []*core.TelemetryFrame) error {
	name := w.sink.Name()
	metrics.SinkBatchSize.WithLabelValues(name).Observe(float64(len(batch)))

	if bs, ok := w.sink.(plugin.BatchSink); ok {
		if err := bs.SendBatch(ctx, batch); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(name, "batch").Inc()
			return err
		}
		metrics.SinkFramesTotal.WithLabelValues(name).Add(float64(len(batch)))
		return nil
	}

	var lastErr error
	for _, f := range batch {
		if err := w.sink.Send(ctx, f); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(name, "send").Inc()
			lastErr = err
			continue
		}
		metrics.SinkFramesTotal.WithLabelValues(name).Inc()
	}
	return lastErr
}
