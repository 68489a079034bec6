package pdu

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"

	"firestige.xyz/sle/internal/core"
)

// DefaultBindVersion is the RCF service version offered in bind.
const DefaultBindVersion = 5

// UserPdu is an operation invocation sent from the user to the provider.
type UserPdu interface {
	// OperationName is the ASN.1 alternative name, e.g. "rcfStartInvocation".
	OperationName() string
	InvokerCredentials() Credentials
	Invoke() (int, bool)
	packet() (*ber.Packet, error)
}

// BindInvocation is rcfBindInvocation [100].
type BindInvocation struct {
	Envelope
	InitiatorID       string
	ResponderPortID   string
	ServiceType       ApplicationID
	VersionNumber     int
	ServiceInstanceID ServiceInstanceID
}

func (BindInvocation) OperationName() string { return "rcfBindInvocation" }

func (b BindInvocation) packet() (*ber.Packet, error) {
	if len(b.ServiceInstanceID) == 0 {
		return nil, fmt.Errorf("%w: bind without service instance identifier", core.ErrValidation)
	}
	return ctxConstructed(100, b.OperationName(),
		credentialsPacket(b.Credentials),
		visible(b.InitiatorID, "initiatorIdentifier"),
		visible(b.ResponderPortID, "responderPortIdentifier"),
		integer(int64(b.ServiceType), "serviceType"),
		integer(int64(b.VersionNumber), "versionNumber"),
		b.ServiceInstanceID.packet(),
	), nil
}

// UnbindInvocation is rcfUnbindInvocation [102].
type UnbindInvocation struct {
	Envelope
	Reason UnbindReason
}

func (UnbindInvocation) OperationName() string { return "rcfUnbindInvocation" }

func (u UnbindInvocation) packet() (*ber.Packet, error) {
	return ctxConstructed(102, u.OperationName(),
		credentialsPacket(u.Credentials),
		integer(int64(u.Reason), "unbindReason"),
	), nil
}

// StartInvocation is rcfStartInvocation [0].
type StartInvocation struct {
	Envelope
	StartTime ConditionalTime
	StopTime  ConditionalTime
	GvcID     GvcID
}

func (StartInvocation) OperationName() string { return "rcfStartInvocation" }

func (s StartInvocation) packet() (*ber.Packet, error) {
	return ctxConstructed(0, s.OperationName(),
		credentialsPacket(s.Credentials),
		integer(int64(s.InvokeID), "invokeId"),
		conditionalTimePacket(s.StartTime, "startTime"),
		conditionalTimePacket(s.StopTime, "stopTime"),
		gvcIDPacket(s.GvcID),
	), nil
}

// StopInvocation is rcfStopInvocation [2].
type StopInvocation struct {
	Envelope
}

func (StopInvocation) OperationName() string { return "rcfStopInvocation" }

func (s StopInvocation) packet() (*ber.Packet, error) {
	return ctxConstructed(2, s.OperationName(),
		credentialsPacket(s.Credentials),
		integer(int64(s.InvokeID), "invokeId"),
	), nil
}

// ScheduleStatusReportInvocation is rcfScheduleStatusReportInvocation [4].
type ScheduleStatusReportInvocation struct {
	Envelope
	Report ReportRequest
}

func (ScheduleStatusReportInvocation) OperationName() string {
	return "rcfScheduleStatusReportInvocation"
}

func (s ScheduleStatusReportInvocation) packet() (*ber.Packet, error) {
	var rt *ber.Packet
	switch s.Report.Type {
	case ReportImmediately:
		rt = ctxNull(0, "immediately")
	case ReportPeriodically:
		rt = ctxInt(1, int64(s.Report.Cycle), "periodically")
	case ReportStop:
		rt = ctxNull(2, "stop")
	default:
		return nil, fmt.Errorf("%w: %v", core.ErrUnknownReportType, s.Report.Type)
	}
	return ctxConstructed(4, s.OperationName(),
		credentialsPacket(s.Credentials),
		integer(int64(s.InvokeID), "invokeId"),
		rt,
	), nil
}

// GetParameterInvocation is rcfGetParameterInvocation [6].
type GetParameterInvocation struct {
	Envelope
	Parameter ParameterName
}

func (GetParameterInvocation) OperationName() string { return "rcfGetParameterInvocation" }

func (g GetParameterInvocation) packet() (*ber.Packet, error) {
	return ctxConstructed(6, g.OperationName(),
		credentialsPacket(g.Credentials),
		integer(int64(g.InvokeID), "invokeId"),
		integer(int64(g.Parameter), "rcfParameter"),
	), nil
}

// PeerAbort is rcfPeerAbortInvocation [104]. The PDU itself carries only
// the diagnostic; the envelope still records the credentials selection.
type PeerAbort struct {
	Envelope
	Diagnostic PeerAbortDiagnostic
}

func (PeerAbort) OperationName() string { return "rcfPeerAbortInvocation" }

func (p PeerAbort) packet() (*ber.Packet, error) {
	return ctxInt(104, int64(p.Diagnostic), p.OperationName()), nil
}

func conditionalTimePacket(t ConditionalTime, desc string) *ber.Packet {
	if !t.Known {
		return ctxNull(0, desc+".undefined")
	}
	return ctxConstructed(1, desc+".known",
		ctxOctets(0, t.Time[:], "ccsdsFormat"),
	)
}

func gvcIDPacket(g GvcID) *ber.Packet {
	var vc *ber.Packet
	if g.MasterChannel {
		vc = ctxNull(0, "masterChannel")
	} else {
		vc = ctxInt(1, int64(g.VirtualChannel), "virtualChannel")
	}
	return sequence("requestedGvcId",
		integer(int64(g.SpacecraftID), "spacecraftId"),
		integer(int64(g.Version), "versionNumber"),
		vc,
	)
}

// Encode returns the BER encoding of a user PDU.
func Encode(p UserPdu) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pdu", core.ErrValidation)
	}
	pkt, err := p.packet()
	if err != nil {
		return nil, err
	}
	return pkt.Bytes(), nil
}
