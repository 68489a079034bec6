package rcf

import (
	"context"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/pkg/ccsds"
)

// FrameDecoder turns the octets of an annotated frame into a transfer frame.
type FrameDecoder interface {
	DecodeFrame(b []byte) (*ccsds.TransferFrame, error)
}

// FrameForwarder hands a frame to the telemetry sinks. Forward must not
// block the receive goroutine.
type FrameForwarder interface {
	Forward(f *core.TelemetryFrame)
}

// processTransferBuffer redispatches every entry in wire order.
func (s *Service) processTransferBuffer(ctx context.Context, tb pdu.TransferBuffer) error {
	var errs []error
	for _, e := range tb.Entries {
		if err := s.table.Dispatch(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// forwardFrame decodes an annotated frame and forwards its primary data
// segment. Frames without data or that fail to decode are dropped with a
// warning.
func (s *Service) forwardFrame(_ context.Context, af pdu.AnnotatedFrame) error {
	if len(af.Data) == 0 {
		metrics.FramesDroppedTotal.WithLabelValues("no_data").Inc()
		s.logger.Warn("transfer buffer received but frame data cannot be located, skipping",
			"error", core.ErrMissingFrameData)
		return nil
	}

	tf, err := s.decoder.DecodeFrame(af.Data)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues("decode").Inc()
		s.logger.Warn("dropping undecodable transfer frame",
			"bytes", len(af.Data),
			"error", errors.Join(core.ErrFrameDecode, err))
		return nil
	}

	now := time.Now()
	frame := &core.TelemetryFrame{
		SessionID:          s.sessionID,
		EarthReceiveTime:   af.EarthReceiveTime,
		ReceivedAt:         now,
		Version:            tf.Version,
		SpacecraftID:       tf.SpacecraftID,
		VirtualChannel:     tf.VirtualChannelID,
		FrameCount:         tf.VCFrameCount,
		AntennaID:          af.AntennaID,
		DataLinkContinuity: af.DataLinkContinuity,
		Labels:             s.frameLabels(tf, af),
		Data:               tf.PrimaryDataSegment(),
		Raw:                af.Data,
	}

	metrics.FramesReceivedTotal.WithLabelValues(
		strconv.Itoa(int(tf.SpacecraftID)), strconv.Itoa(int(tf.VirtualChannelID))).Inc()
	if !af.EarthReceiveTime.IsZero() {
		metrics.FrameDelaySeconds.Observe(now.Sub(af.EarthReceiveTime).Seconds())
	}
	s.framesForwarded.Add(1)

	s.logger.Debug("forwarding transfer frame",
		"bytes", len(frame.Data),
		"scid", frame.SpacecraftID,
		"vcid", frame.VirtualChannel,
		"count", frame.FrameCount)
	s.forwarder.Forward(frame)
	return nil
}

func (s *Service) frameLabels(tf *ccsds.TransferFrame, af pdu.AnnotatedFrame) core.Labels {
	labels := core.Labels{core.LabelFrameKind: tf.Kind()}
	if s.sessionID != "" {
		labels[core.LabelServiceInstance] = s.sessionID
	}
	if len(tf.OCF) > 0 {
		labels[core.LabelFrameOCF] = hex.EncodeToString(tf.OCF)
	}
	if len(af.PrivateAnnotation) > 0 {
		labels[core.LabelPrivateAnnot] = hex.EncodeToString(af.PrivateAnnotation)
	}
	return labels
}
