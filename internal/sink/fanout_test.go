package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/pkg/plugin"
)

// mockSink records every frame it is asked to send.
type mockSink struct {
	name    string
	initCfg map[string]any
	sendErr error

	mu      sync.Mutex
	frames  []*core.TelemetryFrame
	started bool
	stopped bool
	flushed bool
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Init(cfg map[string]any) error {
	m.initCfg = cfg
	return nil
}

func (m *mockSink) Start(ctx context.Context) error {
	m.started = true
	return nil
}

func (m *mockSink) Stop(ctx context.Context) error {
	m.stopped = true
	return nil
}

func (m *mockSink) Flush(ctx context.Context) error {
	m.flushed = true
	return nil
}

func (m *mockSink) Send(ctx context.Context, f *core.TelemetryFrame) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	return nil
}

func (m *mockSink) sent() []*core.TelemetryFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*core.TelemetryFrame, len(m.frames))
	copy(cp, m.frames)
	return cp
}

// mockBatchSink implements BatchSink.
type mockBatchSink struct {
	mockSink
	batchCalls []int
}

func (m *mockBatchSink) SendBatch(ctx context.Context, fs []*core.TelemetryFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls = append(m.batchCalls, len(fs))
	m.frames = append(m.frames, fs...)
	return nil
}

type failingStartSink struct{ mockSink }

func (m *failingStartSink) Start(ctx context.Context) error { return errors.New("refused") }

// --- Tests ---

func TestFanoutForwardsToEverySink(t *testing.T) {
	a := &mockSink{name: "a"}
	b := &mockSink{name: "b"}
	f := New(Options{BatchSize: 1}, a, b)

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		f.Forward(&core.TelemetryFrame{FrameCount: uint32(i)})
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, s := range []*mockSink{a, b} {
		got := s.sent()
		if len(got) != 3 {
			t.Fatalf("sink %s: expected 3 frames, got %d", s.name, len(got))
		}
		for i, fr := range got {
			if fr.FrameCount != uint32(i) {
				t.Errorf("sink %s: frame %d out of order (count %d)", s.name, i, fr.FrameCount)
			}
		}
		if !s.started || !s.flushed || !s.stopped {
			t.Errorf("sink %s lifecycle incomplete: started=%v flushed=%v stopped=%v",
				s.name, s.started, s.flushed, s.stopped)
		}
	}
}

func TestFanoutPrefersBatchSink(t *testing.T) {
	bs := &mockBatchSink{mockSink: mockSink{name: "batch"}}
	f := New(Options{BatchSize: 5, BatchTimeout: time.Second}, bs)

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 10; i++ {
		f.Forward(&core.TelemetryFrame{})
	}
	_ = f.Stop(ctx)

	total := 0
	for _, n := range bs.batchCalls {
		total += n
	}
	if total != 10 {
		t.Errorf("expected 10 frames across batches, got %d in %v", total, bs.batchCalls)
	}
}

func TestFanoutFlushesOnTimeout(t *testing.T) {
	s := &mockSink{name: "slow"}
	f := New(Options{BatchSize: 1000, BatchTimeout: 20 * time.Millisecond}, s)

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop(ctx) //nolint:errcheck

	f.Forward(&core.TelemetryFrame{})
	deadline := time.Now().Add(2 * time.Second)
	for len(s.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(s.sent()) != 1 {
		t.Errorf("expected frame flushed by timeout, got %d", len(s.sent()))
	}
}

func TestFanoutSinkErrorsDoNotPropagate(t *testing.T) {
	bad := &mockSink{name: "bad", sendErr: fmt.Errorf("unreachable")}
	good := &mockSink{name: "good"}
	f := New(Options{BatchSize: 1}, bad, good)

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.Forward(&core.TelemetryFrame{})
	_ = f.Stop(ctx)

	if len(good.sent()) != 1 {
		t.Errorf("healthy sink should still receive the frame")
	}
}

func TestFanoutStartFailureStopsStartedSinks(t *testing.T) {
	first := &mockSink{name: "first"}
	broken := &failingStartSink{mockSink{name: "broken"}}
	f := New(Options{}, first, broken)

	if err := f.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !first.stopped {
		t.Error("already started sink should be stopped")
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestFanoutForwardAfterStopIsDropped(t *testing.T) {
	s := &mockSink{name: "late"}
	f := New(Options{BatchSize: 1}, s)

	ctx := context.Background()
	f.Forward(&core.TelemetryFrame{}) // before Start
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f.Forward(&core.TelemetryFrame{})
	if got := len(s.sent()); got != 0 {
		t.Errorf("expected no frames delivered outside Start/Stop, got %d", got)
	}
}

func TestFanoutStopWhileForwarding(t *testing.T) {
	s := &mockSink{name: "busy"}
	f := New(Options{BatchSize: 8, BatchTimeout: time.Millisecond}, s)

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				f.Forward(&core.TelemetryFrame{FrameCount: uint32(j)})
			}
		}()
	}
	time.Sleep(time.Millisecond)
	if err := f.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
	wg.Wait()

	if !s.stopped {
		t.Error("sink should be stopped")
	}
	if got := len(s.sent()); got > 2000 {
		t.Errorf("delivered %d frames, more than forwarded", got)
	}
}

func TestBuild(t *testing.T) {
	created := map[string]*mockSink{}
	plugin.RegisterSink("fanout-test", func() plugin.FrameSink {
		s := &mockSink{name: "fanout-test"}
		created["fanout-test"] = s
		return s
	})

	f, err := Build([]map[string]any{{"type": "fanout-test", "address": "x"}}, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := f.Names(); len(got) != 1 || got[0] != "fanout-test" {
		t.Errorf("Names = %v", got)
	}
	if created["fanout-test"].initCfg["address"] != "x" {
		t.Errorf("Init did not receive the sink config: %v", created["fanout-test"].initCfg)
	}

	tests := []struct {
		name string
		cfgs []map[string]any
		want error
	}{
		{"missing type", []map[string]any{{"address": "x"}}, core.ErrConfigInvalid},
		{"unknown type", []map[string]any{{"type": "carrier-pigeon"}}, core.ErrPluginNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfgs, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultSinksIsLocalUDP(t *testing.T) {
	d := DefaultSinks()
	if len(d) != 1 || d[0]["type"] != "udp" || d[0]["address"] != "localhost:3076" {
		t.Errorf("unexpected default sinks: %v", d)
	}
}
