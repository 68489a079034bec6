package tml

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteContextLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteContext(&buf, Context{HeartbeatInterval: 25, DeadFactor: 5}))
	want := []byte{
		0x02, 0, 0, 0, 0, 0, 0, 12,
		'I', 'S', 'P', '1',
		0, 0, 0, 1,
		0, 25,
		0, 5,
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestWriteHeartbeatLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeartbeat(&buf))
	assert.Equal(t, []byte{0x03, 0, 0, 0, 0, 0, 0, 0}, buf.Bytes())
}

func TestReadMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteContext(&buf, Context{HeartbeatInterval: 30, DeadFactor: 3}))
	require.NoError(t, WritePDU(&buf, []byte{0xA2, 0x00}))
	require.NoError(t, WriteHeartbeat(&buf))

	m, err := ReadMessage(&buf, DefaultMaxPDULength)
	require.NoError(t, err)
	assert.Equal(t, TypeContext, m.Type)
	assert.Equal(t, Context{HeartbeatInterval: 30, DeadFactor: 3}, m.Context)

	m, err = ReadMessage(&buf, DefaultMaxPDULength)
	require.NoError(t, err)
	assert.Equal(t, TypePDU, m.Type)
	assert.Equal(t, []byte{0xA2, 0x00}, m.Body)

	m, err = ReadMessage(&buf, DefaultMaxPDULength)
	require.NoError(t, err)
	assert.Equal(t, TypeHeartbeat, m.Type)

	_, err = ReadMessage(&buf, DefaultMaxPDULength)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		max  uint32
		want error
	}{
		{"reserved bytes", []byte{0x01, 0, 1, 0, 0, 0, 0, 0}, 0, ErrBadHeader},
		{"unknown type", []byte{0x07, 0, 0, 0, 0, 0, 0, 0}, 0, ErrUnexpectedType},
		{"heartbeat with body", []byte{0x03, 0, 0, 0, 0, 0, 0, 1}, 0, ErrHeartbeatLength},
		{"pdu too large", []byte{0x01, 0, 0, 0, 0, 0, 0x10, 0}, 1024, ErrPDUTooLarge},
		{"context wrong length", []byte{0x02, 0, 0, 0, 0, 0, 0, 4}, 0, ErrBadContext},
		{
			"context wrong protocol",
			[]byte{0x02, 0, 0, 0, 0, 0, 0, 12, 'I', 'S', 'P', '2', 0, 0, 0, 1, 0, 0, 0, 0},
			0, ErrBadContext,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(tt.data), tt.max)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadTruncatedPDU(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{0x01, 0, 0, 0, 0, 0, 0, 4, 0xAA}), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
