package core

import "errors"

// Sentinel errors. Callers match them with errors.Is.
var (
	// Validation errors are returned before anything reaches the wire.
	ErrValidation          = errors.New("sle: validation failed")
	ErrNoChannelSelection  = errors.New("sle: no channel selection, need master channel or virtual channel")
	ErrAmbiguousChannel    = errors.New("sle: master channel and virtual channel are mutually exclusive")
	ErrMissingSpacecraftID = errors.New("sle: missing spacecraft id")
	ErrMissingFrameVersion = errors.New("sle: missing transfer frame version number")
	ErrInvalidChannel      = errors.New("sle: invalid channel identifier")
	ErrUnknownReportType   = errors.New("sle: unknown report type")
	ErrMissingCycle        = errors.New("sle: periodic report requires a reporting cycle")
	ErrCycleOutOfRange     = errors.New("sle: reporting cycle out of range")
	ErrUnknownParameter    = errors.New("sle: unknown parameter")

	// Session errors
	ErrInvalidState  = errors.New("sle: operation not allowed in current state")
	ErrNotConnected  = errors.New("sle: not connected")
	ErrPeerDead      = errors.New("sle: peer heartbeat timeout")
	ErrPeerAborted   = errors.New("sle: association aborted by peer")
	ErrBadTMLMessage = errors.New("sle: malformed TML message")

	// PDU codec errors
	ErrMalformedPDU = errors.New("sle: malformed PDU")

	// Dispatch errors are logged and the offending PDU is dropped.
	ErrNoHandler        = errors.New("sle: no handler registered")
	ErrMissingFrameData = errors.New("sle: annotated frame carries no data")
	ErrFrameDecode      = errors.New("sle: transfer frame decode failed")

	// Plugin errors
	ErrPluginNotFound   = errors.New("sle: plugin not found")
	ErrPluginInitFailed = errors.New("sle: plugin init failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("sle: invalid configuration")
)
