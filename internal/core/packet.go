// Package core defines core data structures with zero external dependencies.
package core

import "time"

// TelemetryFrame is the record handed to frame sinks after a transfer frame
// has been extracted from an annotated-frame entry and decoded.
type TelemetryFrame struct {
	// Envelope
	SessionID        string
	EarthReceiveTime time.Time
	ReceivedAt       time.Time

	// Channel identity, taken from the decoded frame header
	Version        uint8
	SpacecraftID   uint16
	VirtualChannel uint8
	FrameCount     uint32

	// Provider annotation
	AntennaID          string
	DataLinkContinuity int

	Labels Labels

	// Data is the primary data segment (transfer frame data field).
	Data []byte
	// Raw is the complete frame as delivered by the provider (optional).
	Raw []byte
}
