// Package session owns one SLE association: the TCP connection with its TML
// framing and heartbeats, the bind state, the invoke id counter and the
// local ISP1 identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/sle/isp1"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/tml"
)

// Config describes the provider endpoint and the local identity.
type Config struct {
	Address           string
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration // 0 disables heartbeats
	DeadFactor        int
	MaxPDULength      uint32

	AuthLevel AuthLevel
	Username  string
	Password  []byte

	// Peer identity used to verify provider credentials, optional.
	PeerUsername string
	PeerPassword []byte
}

// DefaultConfig returns the ISP1 defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		DeadFactor:        5,
		MaxPDULength:      tml.DefaultMaxPDULength,
	}
}

// Session is safe for concurrent Send calls; Receive must run on a single
// goroutine.
type Session struct {
	cfg    Config
	logger *slog.Logger
	creds  *isp1.Generator

	conn    net.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	changed chan struct{}

	invokeID atomic.Int64
	closed   atomic.Bool
	done     chan struct{}
	once     sync.Once
}

// New creates an unconnected session.
func New(cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DeadFactor <= 0 {
		cfg.DeadFactor = DefaultConfig().DeadFactor
	}
	return &Session{
		cfg:     cfg,
		logger:  logger,
		creds:   isp1.NewGenerator(cfg.Username, cfg.Password),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Connect dials the provider and opens the TML connection.
func (s *Session) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.Address, err)
	}
	if err := s.Attach(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Attach uses an established connection: it sends the context message and
// starts the heartbeat ticker.
func (s *Session) Attach(conn net.Conn) error {
	s.conn = conn
	hb := uint16(0)
	if s.cfg.HeartbeatInterval > 0 {
		hb = uint16(max(1, int(s.cfg.HeartbeatInterval.Round(time.Second)/time.Second)))
	}
	err := s.write(func(w io.Writer) error {
		return tml.WriteContext(w, tml.Context{HeartbeatInterval: hb, DeadFactor: uint16(s.cfg.DeadFactor)})
	})
	if err != nil {
		return fmt.Errorf("send context message: %w", err)
	}
	s.logger.Info("tml connection established",
		"remote", conn.RemoteAddr().String(),
		"heartbeat", s.cfg.HeartbeatInterval,
		"dead_factor", s.cfg.DeadFactor)

	if s.cfg.HeartbeatInterval > 0 {
		go s.heartbeat()
	}
	return nil
}

func (s *Session) heartbeat() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(tml.WriteHeartbeat); err != nil {
				if !s.closed.Load() {
					s.logger.Warn("heartbeat failed", "error", err)
				}
				return
			}
		}
	}
}

func (s *Session) write(fn func(io.Writer) error) error {
	if s.conn == nil {
		return core.ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return fn(s.conn)
}

// NextInvokeID returns the next invoke id; ids start at 0 and never repeat
// within a session.
func (s *Session) NextInvokeID() int {
	return int(s.invokeID.Add(1) - 1)
}

// AuthLevel returns the configured authentication level.
func (s *Session) AuthLevel() AuthLevel { return s.cfg.AuthLevel }

// MakeCredentials returns fresh ISP1 credentials for the local identity.
func (s *Session) MakeCredentials() []byte { return s.creds.Make() }

// EncodePDU returns the wire encoding of p.
func (s *Session) EncodePDU(p pdu.UserPdu) ([]byte, error) { return pdu.Encode(p) }

// Send writes one encoded PDU.
func (s *Session) Send(b []byte) error {
	if s.closed.Load() {
		return core.ErrNotConnected
	}
	return s.write(func(w io.Writer) error { return tml.WritePDU(w, b) })
}

// VerifyPeer checks provider credentials when a peer identity is configured.
func (s *Session) VerifyPeer(c pdu.Credentials) error {
	if s.cfg.PeerUsername == "" {
		return nil
	}
	if !c.IsUsed() {
		return fmt.Errorf("%w: provider sent no credentials", isp1.ErrMismatch)
	}
	_, err := isp1.Verify(c.Value(), s.cfg.PeerUsername, s.cfg.PeerPassword)
	return err
}

// State returns the current bind state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the association to st and wakes WaitState callers.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug("session state changed", "from", prev.String(), "to", st.String())
	}
}

// WaitState blocks until the state is one of want, the session closes or
// ctx is done.
func (s *Session) WaitState(ctx context.Context, want ...State) (State, error) {
	for {
		s.mu.Lock()
		cur, ch := s.state, s.changed
		s.mu.Unlock()
		for _, w := range want {
			if cur == w {
				return cur, nil
			}
		}
		select {
		case <-ch:
		case <-s.done:
			return s.State(), core.ErrNotConnected
		case <-ctx.Done():
			return cur, ctx.Err()
		}
	}
}

// Receive reads TML messages until the connection ends and hands every PDU
// body to fn. Heartbeats only refresh the dead-factor deadline. A clean local
// Close returns nil.
func (s *Session) Receive(ctx context.Context, fn func([]byte)) error {
	if s.conn == nil {
		return core.ErrNotConnected
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	dead := time.Duration(s.cfg.DeadFactor) * s.cfg.HeartbeatInterval
	for {
		if dead > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(dead))
		}
		msg, err := tml.ReadMessage(s.conn, s.cfg.MaxPDULength)
		if err != nil {
			return s.receiveError(ctx, err)
		}

		switch msg.Type {
		case tml.TypeHeartbeat:
			continue
		case tml.TypeContext:
			return fmt.Errorf("%w: context message from responder", core.ErrBadTMLMessage)
		case tml.TypePDU:
			fn(msg.Body)
		}
	}
}

func (s *Session) receiveError(ctx context.Context, err error) error {
	switch {
	case s.closed.Load():
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: nothing received for %s", core.ErrPeerDead,
			time.Duration(s.cfg.DeadFactor)*s.cfg.HeartbeatInterval)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", core.ErrNotConnected, err)
	case errors.Is(err, tml.ErrBadHeader), errors.Is(err, tml.ErrBadContext),
		errors.Is(err, tml.ErrPDUTooLarge), errors.Is(err, tml.ErrUnexpectedType),
		errors.Is(err, tml.ErrHeartbeatLength):
		return fmt.Errorf("%w: %w", core.ErrBadTMLMessage, err)
	}
	return err
}

// Close stops heartbeats and closes the connection.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}
