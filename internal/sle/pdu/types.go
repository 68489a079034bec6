// Package pdu defines the SLE RCF protocol data units and their BER
// encoding.
//
// The model follows the CCSDS 911.2 ASN.1 modules with IMPLICIT tagging:
// user-to-provider PDUs are encoded, provider-to-user PDUs are decoded.
// Every PDU value is immutable once built.
package pdu

import (
	"fmt"

	"firestige.xyz/sle/pkg/ccsds"
)

// Credentials is the invoker/performer credentials CHOICE.
type Credentials struct {
	used  bool
	value []byte
}

// Unused returns the "unused" credentials marker.
func Unused() Credentials { return Credentials{} }

// Used wraps an encoded ISP1 credentials value.
func Used(value []byte) Credentials {
	v := make([]byte, len(value))
	copy(v, value)
	return Credentials{used: true, value: v}
}

// IsUsed reports whether credentials are present.
func (c Credentials) IsUsed() bool { return c.used }

// Value returns a copy of the credential octets, nil when unused.
func (c Credentials) Value() []byte {
	if !c.used {
		return nil
	}
	v := make([]byte, len(c.value))
	copy(v, c.value)
	return v
}

func (c Credentials) String() string {
	if c.used {
		return fmt.Sprintf("used(%d bytes)", len(c.value))
	}
	return "unused"
}

// Envelope holds the fields every RCF operation invocation shares.
type Envelope struct {
	Credentials Credentials
	InvokeID    int
	hasInvokeID bool
}

// NewEnvelope builds an envelope without an invoke id.
func NewEnvelope(creds Credentials) Envelope {
	return Envelope{Credentials: creds}
}

// NewInvokeEnvelope builds an envelope carrying an invoke id.
func NewInvokeEnvelope(creds Credentials, invokeID int) Envelope {
	return Envelope{Credentials: creds, InvokeID: invokeID, hasInvokeID: true}
}

// InvokerCredentials returns the credentials selected for the operation.
func (e Envelope) InvokerCredentials() Credentials { return e.Credentials }

// Invoke returns the invoke id and whether the operation carries one.
func (e Envelope) Invoke() (int, bool) { return e.InvokeID, e.hasInvokeID }

// ConditionalTime is either undefined or a known CCSDS time.
type ConditionalTime struct {
	Known bool
	Time  ccsds.CDS
}

// KnownTime returns a defined ConditionalTime.
func KnownTime(c ccsds.CDS) ConditionalTime { return ConditionalTime{Known: true, Time: c} }

func (t ConditionalTime) String() string {
	if !t.Known {
		return "undefined"
	}
	return t.Time.String()
}

// GvcID is the global virtual channel identifier.
type GvcID struct {
	SpacecraftID   uint16
	Version        uint8
	MasterChannel  bool
	VirtualChannel uint8 // meaningful only when MasterChannel is false
}

func (g GvcID) String() string {
	if g.MasterChannel {
		return fmt.Sprintf("scid=%d tfvn=%d mc", g.SpacecraftID, g.Version)
	}
	return fmt.Sprintf("scid=%d tfvn=%d vc=%d", g.SpacecraftID, g.Version, g.VirtualChannel)
}

// ApplicationID is the SLE service type carried in a bind invocation.
type ApplicationID int

// Service types.
const (
	RtnAllFrames ApplicationID = 0
	RtnInsert    ApplicationID = 1
	RtnChFrames  ApplicationID = 2
)

// UnbindReason values.
type UnbindReason int

const (
	UnbindEnd                UnbindReason = 0
	UnbindSuspend            UnbindReason = 1
	UnbindVersionUnsupported UnbindReason = 2
	UnbindOther              UnbindReason = 127
)

// PeerAbortDiagnostic values.
type PeerAbortDiagnostic int

const (
	AbortAccessDenied           PeerAbortDiagnostic = 0
	AbortUnexpectedResponderID  PeerAbortDiagnostic = 1
	AbortOperationalRequirement PeerAbortDiagnostic = 2
	AbortProtocolError          PeerAbortDiagnostic = 3
	AbortCommunicationsFailure  PeerAbortDiagnostic = 4
	AbortEncodingError          PeerAbortDiagnostic = 5
	AbortReturnTimeout          PeerAbortDiagnostic = 6
	AbortEndOfServiceProvision  PeerAbortDiagnostic = 7
	AbortUnsolicitedInvokeID    PeerAbortDiagnostic = 8
	AbortOtherReason            PeerAbortDiagnostic = 127
)

var peerAbortNames = map[PeerAbortDiagnostic]string{
	AbortAccessDenied:           "accessDenied",
	AbortUnexpectedResponderID:  "unexpectedResponderId",
	AbortOperationalRequirement: "operationalRequirement",
	AbortProtocolError:          "protocolError",
	AbortCommunicationsFailure:  "communicationsFailure",
	AbortEncodingError:          "encodingError",
	AbortReturnTimeout:          "returnTimeout",
	AbortEndOfServiceProvision:  "endOfServiceProvisionPeriod",
	AbortUnsolicitedInvokeID:    "unsolicitedInvokeId",
	AbortOtherReason:            "otherReason",
}

func (d PeerAbortDiagnostic) String() string {
	if s, ok := peerAbortNames[d]; ok {
		return s
	}
	return fmt.Sprintf("peerAbortDiagnostic(%d)", int(d))
}

// ReportType selects the status report schedule.
type ReportType int

const (
	ReportImmediately ReportType = iota
	ReportPeriodically
	ReportStop
)

func (r ReportType) String() string {
	switch r {
	case ReportImmediately:
		return "immediately"
	case ReportPeriodically:
		return "periodically"
	case ReportStop:
		return "stop"
	}
	return fmt.Sprintf("reportType(%d)", int(r))
}

// ReportRequest is the reportType CHOICE of a schedule-status-report.
type ReportRequest struct {
	Type  ReportType
	Cycle int // seconds, only for ReportPeriodically
}

// ParameterName is the RCF parameter requested by get-parameter.
type ParameterName int

const (
	ParamBufferSize          ParameterName = 4
	ParamDeliveryMode        ParameterName = 6
	ParamLatencyLimit        ParameterName = 15
	ParamPermittedGvcIDSet   ParameterName = 24
	ParamReportingCycle      ParameterName = 26
	ParamRequestedGvcID      ParameterName = 28
	ParamReturnTimeoutPeriod ParameterName = 29
)

var parameterNames = map[ParameterName]string{
	ParamBufferSize:          "bufferSize",
	ParamDeliveryMode:        "deliveryMode",
	ParamLatencyLimit:        "latencyLimit",
	ParamPermittedGvcIDSet:   "permittedGvcidSet",
	ParamReportingCycle:      "reportingCycle",
	ParamRequestedGvcID:      "requestedGvcid",
	ParamReturnTimeoutPeriod: "returnTimeoutPeriod",
}

func (p ParameterName) String() string {
	if s, ok := parameterNames[p]; ok {
		return s
	}
	return fmt.Sprintf("parameter(%d)", int(p))
}

// ParseParameterName maps a parameter name such as "bufferSize" to its value.
func ParseParameterName(name string) (ParameterName, bool) {
	for k, v := range parameterNames {
		if v == name {
			return k, true
		}
	}
	return 0, false
}

// LockStatus is shared by the carrier, sub-carrier and symbol lock reports.
type LockStatus int

const (
	InLock      LockStatus = 0
	OutOfLock   LockStatus = 1
	NotInUse    LockStatus = 2
	LockUnknown LockStatus = 3
)

func (l LockStatus) String() string {
	switch l {
	case InLock:
		return "inLock"
	case OutOfLock:
		return "outOfLock"
	case NotInUse:
		return "notInUse"
	case LockUnknown:
		return "unknown"
	}
	return fmt.Sprintf("lockStatus(%d)", int(l))
}

// FrameSyncLockStatus has a flywheel state in place of notInUse.
type FrameSyncLockStatus int

const (
	FrameSyncInLock    FrameSyncLockStatus = 0
	FrameSyncFlywheel  FrameSyncLockStatus = 1
	FrameSyncOutOfLock FrameSyncLockStatus = 2
	FrameSyncUnknown   FrameSyncLockStatus = 3
)

func (l FrameSyncLockStatus) String() string {
	switch l {
	case FrameSyncInLock:
		return "inLock"
	case FrameSyncFlywheel:
		return "flywheel"
	case FrameSyncOutOfLock:
		return "outOfLock"
	case FrameSyncUnknown:
		return "unknown"
	}
	return fmt.Sprintf("frameSyncLockStatus(%d)", int(l))
}

// ProductionStatus of the RCF service provider.
type ProductionStatus int

const (
	ProductionRunning     ProductionStatus = 0
	ProductionInterrupted ProductionStatus = 1
	ProductionHalted      ProductionStatus = 2
)

// Diagnostic is the negative result of a confirmed operation.
type Diagnostic struct {
	Specific bool // false: common diagnostic
	Code     int
}

var commonDiagnostics = map[int]string{
	100: "duplicateInvokeId",
	127: "otherReason",
}

func (d Diagnostic) String() string {
	if !d.Specific {
		if s, ok := commonDiagnostics[d.Code]; ok {
			return s
		}
		return fmt.Sprintf("common(%d)", d.Code)
	}
	return fmt.Sprintf("specific(%d)", d.Code)
}

// Result is the outcome of a confirmed operation.
type Result struct {
	Positive   bool
	Diagnostic Diagnostic
}

func (r Result) String() string {
	if r.Positive {
		return "positive"
	}
	return "negative: " + r.Diagnostic.String()
}

// BindDiagnostic values returned in a negative bind return.
type BindDiagnostic int

var bindDiagnostics = map[BindDiagnostic]string{
	0:   "accessDenied",
	1:   "serviceTypeNotSupported",
	2:   "versionNotSupported",
	3:   "noSuchServiceInstance",
	4:   "alreadyBound",
	5:   "siNotAccessibleToThisInitiator",
	6:   "inconsistentServiceType",
	7:   "invalidTime",
	8:   "outOfService",
	127: "otherReason",
}

func (d BindDiagnostic) String() string {
	if s, ok := bindDiagnostics[d]; ok {
		return s
	}
	return fmt.Sprintf("bindDiagnostic(%d)", int(d))
}
