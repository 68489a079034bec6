package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestTelemetryFrameZeroValue(t *testing.T) {
	var f TelemetryFrame
	if f.Data != nil {
		t.Errorf("expected Data=nil, got %v", f.Data)
	}
	if !f.EarthReceiveTime.IsZero() {
		t.Errorf("expected zero EarthReceiveTime, got %v", f.EarthReceiveTime)
	}
	if f.Labels != nil {
		t.Errorf("expected Labels=nil, got %v", f.Labels)
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrValidation, ErrNoChannelSelection)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected errors.Is(err, ErrValidation)")
	}
	if !errors.Is(err, ErrNoChannelSelection) {
		t.Errorf("expected errors.Is(err, ErrNoChannelSelection)")
	}
	if errors.Is(err, ErrMissingSpacecraftID) {
		t.Errorf("unexpected match for ErrMissingSpacecraftID")
	}
}

func TestSentinelErrorsDistinct(t *testing.T) {
	all := []error{
		ErrValidation, ErrNoChannelSelection, ErrAmbiguousChannel,
		ErrMissingSpacecraftID, ErrMissingFrameVersion, ErrInvalidChannel,
		ErrUnknownReportType, ErrMissingCycle, ErrCycleOutOfRange,
		ErrUnknownParameter, ErrInvalidState, ErrNotConnected, ErrPeerDead,
		ErrPeerAborted, ErrBadTMLMessage, ErrMalformedPDU,
		ErrNoHandler, ErrMissingFrameData, ErrFrameDecode,
		ErrPluginNotFound, ErrPluginInitFailed, ErrConfigInvalid,
	}
	seen := make(map[string]bool, len(all))
	for _, e := range all {
		if seen[e.Error()] {
			t.Errorf("duplicate error message %q", e.Error())
		}
		seen[e.Error()] = true
	}
}
