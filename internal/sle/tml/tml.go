// Package tml implements the transport mapping layer messages of the SLE
// ISP1 TCP mapping: PDU, context and heartbeat messages.
package tml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageType is the first header octet.
type MessageType uint8

const (
	TypePDU       MessageType = 0x01
	TypeContext   MessageType = 0x02
	TypeHeartbeat MessageType = 0x03
)

func (t MessageType) String() string {
	switch t {
	case TypePDU:
		return "pdu"
	case TypeContext:
		return "context"
	case TypeHeartbeat:
		return "heartbeat"
	}
	return fmt.Sprintf("type(%#02x)", uint8(t))
}

const (
	HeaderLength = 8

	contextBodyLength = 12
	protocolID        = "ISP1"
	protocolVersion   = 1

	// DefaultMaxPDULength bounds the body of an inbound PDU message.
	DefaultMaxPDULength = 16 * 1024 * 1024
)

var (
	ErrBadHeader       = errors.New("tml: malformed message header")
	ErrBadContext      = errors.New("tml: malformed context message")
	ErrPDUTooLarge     = errors.New("tml: pdu exceeds maximum length")
	ErrUnexpectedType  = errors.New("tml: unexpected message type")
	ErrHeartbeatLength = errors.New("tml: heartbeat with non-zero length")
)

// Context is the body of a context message.
type Context struct {
	HeartbeatInterval uint16 // seconds, 0 disables heartbeats
	DeadFactor        uint16
}

// Message is one TML message. Body is the PDU for TypePDU.
type Message struct {
	Type    MessageType
	Body    []byte
	Context Context
}

func header(t MessageType, n int) []byte {
	h := make([]byte, HeaderLength)
	h[0] = byte(t)
	binary.BigEndian.PutUint32(h[4:8], uint32(n))
	return h
}

// WritePDU writes one PDU message. The header and body go out in a single
// Write call.
func WritePDU(w io.Writer, pdu []byte) error {
	buf := append(header(TypePDU, len(pdu)), pdu...)
	_, err := w.Write(buf)
	return err
}

// WriteContext writes the ISP1 context message that opens a connection.
func WriteContext(w io.Writer, c Context) error {
	buf := header(TypeContext, contextBodyLength)
	buf = append(buf, protocolID...)
	buf = append(buf, 0, 0, 0, protocolVersion)
	buf = binary.BigEndian.AppendUint16(buf, c.HeartbeatInterval)
	buf = binary.BigEndian.AppendUint16(buf, c.DeadFactor)
	_, err := w.Write(buf)
	return err
}

// WriteHeartbeat writes one heartbeat message.
func WriteHeartbeat(w io.Writer) error {
	_, err := w.Write(header(TypeHeartbeat, 0))
	return err
}

// ReadMessage reads the next message from r.
func ReadMessage(r io.Reader, maxPDU uint32) (Message, error) {
	var h [HeaderLength]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Message{}, err
	}
	if h[1] != 0 || h[2] != 0 || h[3] != 0 {
		return Message{}, fmt.Errorf("%w: % x", ErrBadHeader, h[:])
	}
	t := MessageType(h[0])
	n := binary.BigEndian.Uint32(h[4:8])

	switch t {
	case TypeHeartbeat:
		if n != 0 {
			return Message{}, ErrHeartbeatLength
		}
		return Message{Type: t}, nil
	case TypeContext:
		if n != contextBodyLength {
			return Message{}, fmt.Errorf("%w: length %d", ErrBadContext, n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return Message{}, err
		}
		c, err := parseContext(body)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: t, Body: body, Context: c}, nil
	case TypePDU:
		if maxPDU > 0 && n > maxPDU {
			return Message{}, fmt.Errorf("%w: %d > %d", ErrPDUTooLarge, n, maxPDU)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return Message{}, err
		}
		return Message{Type: t, Body: body}, nil
	}
	return Message{}, fmt.Errorf("%w: %v", ErrUnexpectedType, t)
}

func parseContext(b []byte) (Context, error) {
	if string(b[0:4]) != protocolID {
		return Context{}, fmt.Errorf("%w: protocol id %q", ErrBadContext, b[0:4])
	}
	if b[4] != 0 || b[5] != 0 || b[6] != 0 || b[7] != protocolVersion {
		return Context{}, fmt.Errorf("%w: version % x", ErrBadContext, b[4:8])
	}
	return Context{
		HeartbeatInterval: binary.BigEndian.Uint16(b[8:10]),
		DeadFactor:        binary.BigEndian.Uint16(b[10:12]),
	}, nil
}
