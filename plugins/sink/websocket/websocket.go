// Package websocket implements a frame sink that streams frames to a
// WebSocket endpoint, one message per frame.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/pkg/plugin"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultDialTimeout  = 10 * time.Second

	formatBinary = "binary"
	formatJSON   = "json"
)

// WebSocketSink writes frames to a WebSocket server. A failed write drops
// the connection; the next Send dials again.
type WebSocketSink struct {
	name   string
	config Config

	mu   sync.Mutex
	conn *websocket.Conn

	sentCount  atomic.Uint64
	errorCount atomic.Uint64
}

// Config represents WebSocket sink configuration.
type Config struct {
	URL          string        `mapstructure:"url"`           // required, ws:// or wss://
	Format       string        `mapstructure:"format"`        // binary (primary data segment) | json
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // optional, default 5s
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`  // optional, default 10s
}

// message is the JSON form of a frame.
type message struct {
	SpacecraftID     uint16    `json:"spacecraft_id"`
	VirtualChannel   uint8     `json:"virtual_channel"`
	FrameCount       uint32    `json:"frame_count"`
	EarthReceiveTime time.Time `json:"earth_receive_time"`
	Data             []byte    `json:"data"`
}

// NewWebSocketSink creates a new WebSocket sink.
func NewWebSocketSink() plugin.FrameSink {
	return &WebSocketSink{name: "websocket"}
}

// Name returns the plugin name.
func (s *WebSocketSink) Name() string { return s.name }

// Init parses the configuration.
func (s *WebSocketSink) Init(config map[string]any) error {
	cfg := Config{
		Format:       formatBinary,
		WriteTimeout: defaultWriteTimeout,
		DialTimeout:  defaultDialTimeout,
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("websocket sink: %w", err)
	}
	if cfg.URL == "" {
		return fmt.Errorf("websocket sink: url is required")
	}
	if cfg.Format != formatBinary && cfg.Format != formatJSON {
		return fmt.Errorf("websocket sink: invalid format %q", cfg.Format)
	}
	s.config = cfg
	return nil
}

// Start dials the endpoint.
func (s *WebSocketSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dial(ctx); err != nil {
		return err
	}
	slog.Info("websocket sink started", "url", s.config.URL, "format", s.config.Format)
	return nil
}

// dial must be called with mu held.
func (s *WebSocketSink) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.config.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket sink: dial %s: %w", s.config.URL, err)
	}
	// Nothing is expected from the server; CloseRead keeps control frames
	// flowing.
	conn.CloseRead(context.Background())
	s.conn = conn
	return nil
}

// Stop closes the connection.
func (s *WebSocketSink) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "sink stopped")
		s.conn = nil
	}
	slog.Info("websocket sink stopped",
		"sent", s.sentCount.Load(),
		"errors", s.errorCount.Load(),
	)
	return nil
}

// Send writes one frame as one WebSocket message.
func (s *WebSocketSink) Send(ctx context.Context, f *core.TelemetryFrame) error {
	if f == nil {
		return fmt.Errorf("websocket sink: nil frame")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.dial(ctx); err != nil {
			s.errorCount.Add(1)
			return err
		}
	}

	wctx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
	defer cancel()

	var err error
	if s.config.Format == formatJSON {
		err = wsjson.Write(wctx, s.conn, message{
			SpacecraftID:     f.SpacecraftID,
			VirtualChannel:   f.VirtualChannel,
			FrameCount:       f.FrameCount,
			EarthReceiveTime: f.EarthReceiveTime,
			Data:             f.Data,
		})
	} else {
		err = s.conn.Write(wctx, websocket.MessageBinary, f.Data)
	}
	if err != nil {
		s.errorCount.Add(1)
		_ = s.conn.Close(websocket.StatusInternalError, "write failed")
		s.conn = nil
		return fmt.Errorf("websocket sink: write: %w", err)
	}
	s.sentCount.Add(1)
	return nil
}

// Flush is a no-op.
func (s *WebSocketSink) Flush(_ context.Context) error { return nil }
