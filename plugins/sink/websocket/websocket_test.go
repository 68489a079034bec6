package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"firestige.xyz/sle/internal/core"
)

type received struct {
	typ  websocket.MessageType
	data []byte
}

// server starts an in-process WebSocket server and returns its ws:// URL and
// the stream of messages it reads.
func server(t *testing.T) (string, <-chan received) {
	t.Helper()
	ch := make(chan received, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("server accept failed: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			ch <- received{typ: typ, data: data}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), ch
}

func next(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return received{}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{"missing url", map[string]any{}, true},
		{"invalid format", map[string]any{"url": "ws://x", "format": "xml"}, true},
		{"invalid timeout", map[string]any{"url": "ws://x", "write_timeout": "soon"}, true},
		{"valid", map[string]any{"url": "ws://x", "format": "json", "write_timeout": "1s"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &WebSocketSink{}
			err := s.Init(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSendBinary(t *testing.T) {
	url, ch := server(t)

	s := NewWebSocketSink()
	if err := s.Init(map[string]any{"url": url}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx) //nolint:errcheck

	if err := s.Send(ctx, &core.TelemetryFrame{Data: []byte{0x01, 0x02, 0x03}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	m := next(t, ch)
	if m.typ != websocket.MessageBinary {
		t.Errorf("message type = %v, want binary", m.typ)
	}
	if string(m.data) != "\x01\x02\x03" {
		t.Errorf("payload = % x, want 01 02 03", m.data)
	}
}

func TestSendJSON(t *testing.T) {
	url, ch := server(t)

	s := NewWebSocketSink()
	if err := s.Init(map[string]any{"url": url, "format": "json"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx) //nolint:errcheck

	if err := s.Send(ctx, &core.TelemetryFrame{SpacecraftID: 42, VirtualChannel: 1, Data: []byte{0xFF}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	m := next(t, ch)
	if m.typ != websocket.MessageText {
		t.Errorf("message type = %v, want text", m.typ)
	}
	if !strings.Contains(string(m.data), `"spacecraft_id":42`) || !strings.Contains(string(m.data), `"data":"/w=="`) {
		t.Errorf("unexpected JSON %s", m.data)
	}
}

func TestStartFailsWithoutServer(t *testing.T) {
	s := NewWebSocketSink()
	if err := s.Init(map[string]any{"url": "ws://127.0.0.1:1", "dial_timeout": "200ms"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected dial error")
	}
}
