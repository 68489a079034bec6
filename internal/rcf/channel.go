// Package rcf implements the Return Channel Frames user: operation
// builders, the inbound dispatch table and the frame and notification
// handlers.
package rcf

import (
	"fmt"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/sle/pdu"
)

// Channel identifier limits of the GVCID.
const (
	MaxSpacecraftID   = 1023
	MaxFrameVersion   = 1
	MaxVirtualChannel = 63
)

// Defaults are the session level fallbacks for a start request.
type Defaults struct {
	SpacecraftID *int
	FrameVersion *int
}

func invalid(err error, format string, args ...any) error {
	if format == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	return fmt.Errorf("%w: %w: %s", core.ErrValidation, err, fmt.Sprintf(format, args...))
}

// SelectChannel resolves the requested global virtual channel. Exactly one
// of master and vc must be given; spacecraft id and frame version fall back
// to d when nil.
func SelectChannel(scid, tfvn *int, master bool, vc *int, d Defaults) (pdu.GvcID, error) {
	if !master && vc == nil {
		return pdu.GvcID{}, invalid(core.ErrNoChannelSelection, "")
	}
	if master && vc != nil {
		return pdu.GvcID{}, invalid(core.ErrAmbiguousChannel, "")
	}

	id, ok := resolve(scid, d.SpacecraftID)
	if !ok {
		return pdu.GvcID{}, invalid(core.ErrMissingSpacecraftID, "")
	}
	version, ok := resolve(tfvn, d.FrameVersion)
	if !ok {
		return pdu.GvcID{}, invalid(core.ErrMissingFrameVersion, "")
	}

	if id < 0 || id > MaxSpacecraftID {
		return pdu.GvcID{}, invalid(core.ErrInvalidChannel, "spacecraft id %d not in 0..%d", id, MaxSpacecraftID)
	}
	if version < 0 || version > MaxFrameVersion {
		return pdu.GvcID{}, invalid(core.ErrInvalidChannel, "frame version %d not in 0..%d", version, MaxFrameVersion)
	}

	g := pdu.GvcID{
		SpacecraftID:  uint16(id),
		Version:       uint8(version),
		MasterChannel: master,
	}
	if !master {
		if *vc < 0 || *vc > MaxVirtualChannel {
			return pdu.GvcID{}, invalid(core.ErrInvalidChannel, "virtual channel %d not in 0..%d", *vc, MaxVirtualChannel)
		}
		g.VirtualChannel = uint8(*vc)
	}
	return g, nil
}

func resolve(arg, def *int) (int, bool) {
	switch {
	case arg != nil:
		return *arg, true
	case def != nil:
		return *def, true
	}
	return 0, false
}
