// Package udp implements the UDP frame sink: one datagram per frame,
// carrying the primary data segment.
package udp

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/pkg/plugin"
)

const (
	// DefaultAddress is where frames go when nothing is configured.
	DefaultAddress = "localhost:3076"

	payloadData  = "data"
	payloadFrame = "frame"
)

// UDPSink writes frames as UDP datagrams.
type UDPSink struct {
	name   string
	config Config

	conns []*net.UDPConn

	sentCount  atomic.Uint64
	errorCount atomic.Uint64
}

// Config represents UDP sink configuration.
type Config struct {
	// Address is a single host:port target.
	Address string `mapstructure:"address"`
	// Servers lists several targets; a virtual channel always maps to the
	// same server.
	Servers []string `mapstructure:"servers"`
	// Payload selects the datagram body: "data" (primary data segment,
	// default) or "frame" (the complete transfer frame).
	Payload string `mapstructure:"payload"`
}

// NewUDPSink creates a new UDP sink.
func NewUDPSink() plugin.FrameSink {
	return &UDPSink{name: "udp"}
}

// Name returns the plugin name.
func (s *UDPSink) Name() string { return s.name }

// Init parses the configuration. A nil or empty map selects DefaultAddress.
func (s *UDPSink) Init(config map[string]any) error {
	var cfg Config
	if err := mapstructure.WeakDecode(config, &cfg); err != nil {
		return fmt.Errorf("udp sink: %w", err)
	}
	if cfg.Address != "" {
		cfg.Servers = append([]string{cfg.Address}, cfg.Servers...)
	}
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{DefaultAddress}
	}
	switch cfg.Payload {
	case "":
		cfg.Payload = payloadData
	case payloadData, payloadFrame:
	default:
		return fmt.Errorf("udp sink: invalid payload %q (want data or frame)", cfg.Payload)
	}
	s.config = cfg
	return nil
}

// Start resolves and connects every server.
func (s *UDPSink) Start(_ context.Context) error {
	s.conns = make([]*net.UDPConn, 0, len(s.config.Servers))
	for _, srv := range s.config.Servers {
		addr, err := net.ResolveUDPAddr("udp", srv)
		if err != nil {
			s.closeConns()
			return fmt.Errorf("udp sink: resolve %q: %w", srv, err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			s.closeConns()
			return fmt.Errorf("udp sink: dial %q: %w", srv, err)
		}
		s.conns = append(s.conns, conn)
	}
	slog.Info("udp sink started",
		"servers", s.config.Servers,
		"payload", s.config.Payload,
	)
	return nil
}

// Stop closes the sockets.
func (s *UDPSink) Stop(_ context.Context) error {
	s.closeConns()
	slog.Info("udp sink stopped",
		"sent", s.sentCount.Load(),
		"errors", s.errorCount.Load(),
	)
	return nil
}

func (s *UDPSink) closeConns() {
	for _, c := range s.conns {
		if c != nil {
			_ = c.Close()
		}
	}
	s.conns = nil
}

// Send writes one datagram.
func (s *UDPSink) Send(_ context.Context, f *core.TelemetryFrame) error {
	if f == nil {
		return fmt.Errorf("udp sink: nil frame")
	}
	if len(s.conns) == 0 {
		return fmt.Errorf("udp sink: %w", core.ErrNotConnected)
	}
	payload := f.Data
	if s.config.Payload == payloadFrame && len(f.Raw) > 0 {
		payload = f.Raw
	}

	conn := s.selectConn(f)
	if _, err := conn.Write(payload); err != nil {
		s.errorCount.Add(1)
		return fmt.Errorf("udp sink: send to %s: %w", conn.RemoteAddr(), err)
	}
	s.sentCount.Add(1)
	return nil
}

// Flush is a no-op; every Send is a datagram.
func (s *UDPSink) Flush(_ context.Context) error { return nil }

// selectConn hashes the channel identity so one virtual channel always
// lands on the same server and keeps its frame order.
func (s *UDPSink) selectConn(f *core.TelemetryFrame) *net.UDPConn {
	if len(s.conns) == 1 {
		return s.conns[0]
	}

	h := fnv.New32a()
	var key [4]byte
	binary.BigEndian.PutUint16(key[0:2], f.SpacecraftID)
	key[2] = f.Version
	key[3] = f.VirtualChannel
	_, _ = h.Write(key[:])

	return s.conns[h.Sum32()%uint32(len(s.conns))]
}
