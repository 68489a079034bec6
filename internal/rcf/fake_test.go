package rcf

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/session"
	"firestige.xyz/sle/pkg/ccsds"
)

// fakeSession records what the service sends and replays inbound PDUs.
type fakeSession struct {
	mu        sync.Mutex
	auth      session.AuthLevel
	nextID    int
	credCalls int
	state     session.State
	sendErr   error
	peerErr   error
	closed    bool
	sent      []pdu.UserPdu
	inbound   [][]byte

	// onSend runs inside Send, as a receive loop answering immediately would.
	onSend func(p pdu.UserPdu)
}

func (f *fakeSession) AuthLevel() session.AuthLevel { return f.auth }

func (f *fakeSession) MakeCredentials() []byte {
	f.credCalls++
	return []byte{0xC0, byte(f.credCalls)}
}

func (f *fakeSession) NextInvokeID() int {
	id := f.nextID
	f.nextID++
	return id
}

func (f *fakeSession) EncodePDU(p pdu.UserPdu) ([]byte, error) {
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.mu.Unlock()
	return pdu.Encode(p)
}

func (f *fakeSession) Send([]byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.onSend != nil {
		f.onSend(f.lastSent())
	}
	return nil
}

func (f *fakeSession) Receive(_ context.Context, fn func([]byte)) error {
	for _, b := range f.inbound {
		fn(b)
	}
	return nil
}

func (f *fakeSession) VerifyPeer(pdu.Credentials) error { return f.peerErr }

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) SetState(st session.State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
}

func (f *fakeSession) WaitState(ctx context.Context, want ...session.State) (session.State, error) {
	cur := f.State()
	for _, w := range want {
		if cur == w {
			return cur, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return cur, err
	}
	return cur, core.ErrNotConnected
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) lastSent() pdu.UserPdu {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// passthroughDecoder treats the whole annotated frame as data field.
type passthroughDecoder struct{}

func (passthroughDecoder) DecodeFrame(b []byte) (*ccsds.TransferFrame, error) {
	return &ccsds.TransferFrame{SpacecraftID: 42, VirtualChannelID: 3, DataField: b}, nil
}

type recordingForwarder struct {
	mu     sync.Mutex
	frames []*core.TelemetryFrame
}

func (r *recordingForwarder) Forward(f *core.TelemetryFrame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

// logBuffer collects text log output for assertions.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func (l *logBuffer) count(level string) int {
	return strings.Count(l.String(), "level="+level)
}

func testLogger() (*slog.Logger, *logBuffer) {
	lb := &logBuffer{}
	return slog.New(slog.NewTextHandler(lb, &slog.HandlerOptions{Level: slog.LevelDebug})), lb
}

func intp(v int) *int { return &v }

func testSII(t *testing.T) pdu.ServiceInstanceID {
	t.Helper()
	sii, err := pdu.ParseServiceInstanceID("sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1")
	if err != nil {
		t.Fatal(err)
	}
	return sii
}

type serviceOpts struct {
	decoder   FrameDecoder
	forwarder FrameForwarder
}

func newTestService(t *testing.T, fs *fakeSession, opts serviceOpts) (*Service, *logBuffer) {
	t.Helper()
	logger, lb := testLogger()
	if opts.decoder == nil {
		opts.decoder = passthroughDecoder{}
	}
	if opts.forwarder == nil {
		opts.forwarder = &recordingForwarder{}
	}
	s := NewService(ServiceConfig{
		Session:   fs,
		Defaults:  Defaults{SpacecraftID: intp(42), FrameVersion: intp(0)},
		Bind:      BindParams{InitiatorID: "LSE", ResponderPortID: "TMPORT", ServiceInstanceID: testSII(t)},
		Decoder:   opts.decoder,
		Forwarder: opts.forwarder,
		Logger:    logger,
	})
	return s, lb
}
