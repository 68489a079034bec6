package ccsds

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Transfer frame version numbers as carried in the first two bits.
const (
	VersionTM  uint8 = 0 // CCSDS 132.0 TM transfer frame (version 1)
	VersionAOS uint8 = 1 // CCSDS 732.0 AOS transfer frame (version 2)
)

// PrimaryHeaderLength is the same for TM and AOS frames.
const PrimaryHeaderLength = 6

const (
	ocfLength  = 4
	fecfLength = 2
	fhecLength = 2
)

// LayerTypeTransferFrame is the gopacket layer type of a CCSDS transfer frame.
var LayerTypeTransferFrame = gopacket.RegisterLayerType(1958, gopacket.LayerTypeMetadata{
	Name:    "CCSDSTransferFrame",
	Decoder: gopacket.DecodeFunc(decodeTransferFrame),
})

// FrameOptions describes the managed parameters of the physical channel that
// cannot be read from the frame itself.
type FrameOptions struct {
	// FECF is true when frames end with a 2-byte frame error control field.
	FECF bool
	// AOSOCF is true when AOS frames carry an operational control field.
	// TM frames signal it in the header.
	AOSOCF bool
	// AOSHeaderErrorControl is true when AOS frames carry the optional
	// 2-byte frame header error control field.
	AOSHeaderErrorControl bool
}

// DefaultFrameOptions matches the common ground-station setup.
var DefaultFrameOptions = FrameOptions{FECF: true}

// TransferFrame is a decoded TM or AOS transfer frame.
type TransferFrame struct {
	layers.BaseLayer

	Version          uint8
	SpacecraftID     uint16
	VirtualChannelID uint8
	OCFFlag          bool

	// TM counters; AOS frames only use VCFrameCount (24 bits).
	MCFrameCount uint8
	VCFrameCount uint32

	// TM data field status
	SecondaryHeaderFlag bool
	SyncFlag            bool
	PacketOrderFlag     bool
	SegmentLengthID     uint8
	FirstHeaderPointer  uint16

	// AOS signaling field
	ReplayFlag bool

	SecondaryHeader []byte
	DataField       []byte
	OCF             []byte
	FECF            []byte

	opts FrameOptions
}

// NewTransferFrame returns an empty frame that decodes with opts.
func NewTransferFrame(opts FrameOptions) *TransferFrame {
	return &TransferFrame{opts: opts}
}

// LayerType implements gopacket.Layer.
func (f *TransferFrame) LayerType() gopacket.LayerType { return LayerTypeTransferFrame }

// CanDecode implements gopacket.DecodingLayer.
func (f *TransferFrame) CanDecode() gopacket.LayerClass { return LayerTypeTransferFrame }

// NextLayerType implements gopacket.DecodingLayer.
func (f *TransferFrame) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// PrimaryDataSegment returns the transfer frame data field.
func (f *TransferFrame) PrimaryDataSegment() []byte { return f.DataField }

// Kind returns "tm" or "aos".
func (f *TransferFrame) Kind() string {
	if f.Version == VersionAOS {
		return "aos"
	}
	return "tm"
}

// DecodeFromBytes implements gopacket.DecodingLayer.
func (f *TransferFrame) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < PrimaryHeaderLength {
		df.SetTruncated()
		return fmt.Errorf("ccsds: %d bytes, need at least %d", len(data), PrimaryHeaderLength)
	}
	opts := f.opts
	*f = TransferFrame{opts: opts}
	f.Version = data[0] >> 6

	switch f.Version {
	case VersionTM:
		return f.decodeTM(data, df)
	case VersionAOS:
		return f.decodeAOS(data, df)
	default:
		return fmt.Errorf("ccsds: unsupported transfer frame version %d", f.Version)
	}
}

func (f *TransferFrame) decodeTM(data []byte, df gopacket.DecodeFeedback) error {
	f.SpacecraftID = uint16(data[0]&0x3F)<<4 | uint16(data[1]>>4)
	f.VirtualChannelID = (data[1] >> 1) & 0x07
	f.OCFFlag = data[1]&0x01 != 0
	f.MCFrameCount = data[2]
	f.VCFrameCount = uint32(data[3])

	status := binary.BigEndian.Uint16(data[4:6])
	f.SecondaryHeaderFlag = status&0x8000 != 0
	f.SyncFlag = status&0x4000 != 0
	f.PacketOrderFlag = status&0x2000 != 0
	f.SegmentLengthID = uint8(status>>11) & 0x03
	f.FirstHeaderPointer = status & 0x07FF

	start := PrimaryHeaderLength
	if f.SecondaryHeaderFlag {
		if len(data) <= start {
			df.SetTruncated()
			return fmt.Errorf("ccsds: secondary header flag set but frame ends at header")
		}
		shLen := int(data[start]&0x3F) + 1
		if len(data) < start+shLen {
			df.SetTruncated()
			return fmt.Errorf("ccsds: secondary header of %d bytes exceeds frame", shLen)
		}
		f.SecondaryHeader = data[start : start+shLen]
		start += shLen
	}
	return f.splitTrailer(data, start, f.OCFFlag, df)
}

func (f *TransferFrame) decodeAOS(data []byte, df gopacket.DecodeFeedback) error {
	f.SpacecraftID = uint16(data[0]&0x3F)<<2 | uint16(data[1]>>6)
	f.VirtualChannelID = data[1] & 0x3F
	f.VCFrameCount = uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])
	f.ReplayFlag = data[5]&0x80 != 0
	f.OCFFlag = f.opts.AOSOCF

	start := PrimaryHeaderLength
	if f.opts.AOSHeaderErrorControl {
		start += fhecLength
	}
	return f.splitTrailer(data, start, f.opts.AOSOCF, df)
}

func (f *TransferFrame) splitTrailer(data []byte, start int, ocf bool, df gopacket.DecodeFeedback) error {
	end := len(data)
	if f.opts.FECF {
		end -= fecfLength
	}
	if ocf {
		end -= ocfLength
	}
	if end < start {
		df.SetTruncated()
		return fmt.Errorf("ccsds: frame of %d bytes too short for header and trailer", len(data))
	}
	f.DataField = data[start:end]
	if ocf {
		f.OCF = data[end : end+ocfLength]
	}
	if f.opts.FECF {
		f.FECF = data[len(data)-fecfLength:]
	}
	f.Contents = data[:start]
	f.Payload = f.DataField
	return nil
}

func decodeTransferFrame(data []byte, p gopacket.PacketBuilder) error {
	f := NewTransferFrame(DefaultFrameOptions)
	if err := f.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(f)
	return p.NextDecoder(gopacket.LayerTypePayload)
}

// FrameDecoder decodes raw frame octets delivered by the provider.
type FrameDecoder struct {
	Options FrameOptions
}

// NewFrameDecoder returns a decoder for the given channel parameters.
func NewFrameDecoder(opts FrameOptions) *FrameDecoder {
	return &FrameDecoder{Options: opts}
}

// DecodeFrame decodes b into a new TransferFrame. The frame references b.
func (d *FrameDecoder) DecodeFrame(b []byte) (*TransferFrame, error) {
	f := NewTransferFrame(d.Options)
	if err := f.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return f, nil
}
