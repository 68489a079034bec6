package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/sle/isp1"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/tml"
)

// peer reads everything the session writes from the other end of a pipe.
type peer struct {
	conn net.Conn
	msgs chan tml.Message
}

func newPeer(conn net.Conn) *peer {
	p := &peer{conn: conn, msgs: make(chan tml.Message, 64)}
	go func() {
		defer close(p.msgs)
		for {
			m, err := tml.ReadMessage(conn, 0)
			if err != nil {
				return
			}
			p.msgs <- m
		}
	}()
	return p
}

func (p *peer) next(t *testing.T) tml.Message {
	t.Helper()
	select {
	case m, ok := <-p.msgs:
		require.True(t, ok, "peer connection closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return tml.Message{}
}

func attached(t *testing.T, cfg Config) (*Session, *peer) {
	t.Helper()
	local, remote := net.Pipe()
	p := newPeer(remote)
	s := New(cfg, nil)
	require.NoError(t, s.Attach(local))
	t.Cleanup(func() {
		s.Close()
		remote.Close()
	})
	return s, p
}

func TestAttachSendsContextMessage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.DeadFactor = 4
	_, p := attached(t, cfg)

	m := p.next(t)
	assert.Equal(t, tml.TypeContext, m.Type)
	assert.Equal(t, tml.Context{HeartbeatInterval: 0, DeadFactor: 4}, m.Context)
}

func TestSendWritesPDUMessage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	s, p := attached(t, cfg)
	p.next(t) // context

	b, err := s.EncodePDU(pdu.StopInvocation{Envelope: pdu.NewInvokeEnvelope(pdu.Unused(), 1)})
	require.NoError(t, err)
	require.NoError(t, s.Send(b))

	m := p.next(t)
	assert.Equal(t, tml.TypePDU, m.Type)
	assert.Equal(t, b, m.Body)
}

func TestHeartbeatsAreSent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	_, p := attached(t, cfg)

	m := p.next(t)
	assert.Equal(t, uint16(1), m.Context.HeartbeatInterval, "rounded up to one second")
	assert.Equal(t, tml.TypeHeartbeat, p.next(t).Type)
}

func TestReceiveDeliversPDUsAndSkipsHeartbeats(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(Config{DeadFactor: 2}, nil)
	s.conn = local
	defer s.Close()

	go func() {
		_ = tml.WriteHeartbeat(remote)
		_ = tml.WritePDU(remote, []byte{0x01})
		_ = tml.WriteHeartbeat(remote)
		_ = tml.WritePDU(remote, []byte{0x02, 0x03})
		remote.Close()
	}()

	var got [][]byte
	err := s.Receive(context.Background(), func(b []byte) { got = append(got, b) })
	assert.ErrorIs(t, err, core.ErrNotConnected)
	assert.Equal(t, [][]byte{{0x01}, {0x02, 0x03}}, got)
}

func TestReceiveDetectsDeadPeer(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(Config{HeartbeatInterval: 10 * time.Millisecond, DeadFactor: 2}, nil)
	s.conn = local
	defer s.Close()

	err := s.Receive(context.Background(), func([]byte) {})
	assert.ErrorIs(t, err, core.ErrPeerDead)
}

func TestReceiveStopsOnContextCancel(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(Config{}, nil)
	s.conn = local
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err := s.Receive(ctx, func([]byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReceiveReturnsNilAfterClose(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(Config{}, nil)
	s.conn = local

	time.AfterFunc(20*time.Millisecond, func() { s.Close() })
	assert.NoError(t, s.Receive(context.Background(), func([]byte) {}))
}

func TestReceiveRejectsContextFromResponder(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := New(Config{}, nil)
	s.conn = local
	defer s.Close()

	go func() { _ = tml.WriteContext(remote, tml.Context{}) }()
	err := s.Receive(context.Background(), func([]byte) {})
	assert.ErrorIs(t, err, core.ErrBadTMLMessage)
}

func TestNextInvokeIDIsMonotonic(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, 0, s.NextInvokeID())
	assert.Equal(t, 1, s.NextInvokeID())
	assert.Equal(t, 2, s.NextInvokeID())
}

func TestStateAndWaitState(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, StateUnbound, s.State())

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.SetState(StateBindPending)
		s.SetState(StateReady)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.WaitState(ctx, StateReady, StateActive)
	require.NoError(t, err)
	assert.Equal(t, StateReady, st)

	short, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = s.WaitState(short, StateActive)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendWithoutConnection(t *testing.T) {
	s := New(Config{}, nil)
	assert.ErrorIs(t, s.Send([]byte{0x00}), core.ErrNotConnected)
}

func TestMakeCredentialsVerifiesAgainstLocalIdentity(t *testing.T) {
	s := New(Config{AuthLevel: AuthAll, Username: "LSE", Password: []byte{0xAB}}, nil)
	assert.Equal(t, AuthAll, s.AuthLevel())
	_, err := isp1.Verify(s.MakeCredentials(), "LSE", []byte{0xAB})
	assert.NoError(t, err)
}

func TestVerifyPeer(t *testing.T) {
	gen := isp1.NewGenerator("PROVIDER", []byte{0x01})
	s := New(Config{PeerUsername: "PROVIDER", PeerPassword: []byte{0x01}}, nil)
	assert.NoError(t, s.VerifyPeer(pdu.Used(gen.Make())))
	assert.ErrorIs(t, s.VerifyPeer(pdu.Unused()), isp1.ErrMismatch)

	assert.NoError(t, New(Config{}, nil).VerifyPeer(pdu.Unused()), "no peer identity configured")
}

func TestParseAuthLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthLevel
		wantErr bool
	}{
		{"none", AuthNone, false},
		{"", AuthNone, false},
		{"ALL", AuthAll, false},
		{"bind", AuthNone, true},
	}
	for _, tt := range tests {
		got, err := ParseAuthLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
