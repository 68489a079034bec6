package pdu

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a provider-to-user PDU variant.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindBindReturn
	KindUnbindReturn
	KindStartReturn
	KindStopReturn
	KindScheduleStatusReportReturn
	KindGetParameterReturn
	KindStatusReportInvocation
	KindTransferBuffer
	KindAnnotatedFrame
	KindSyncNotification
	KindPeerAbortInvocation

	// NumKinds is the number of Kind values.
	NumKinds
)

var kindNames = [NumKinds]string{
	KindUnrecognized:               "Unrecognized",
	KindBindReturn:                 "BindReturn",
	KindUnbindReturn:               "UnbindReturn",
	KindStartReturn:                "StartReturn",
	KindStopReturn:                 "StopReturn",
	KindScheduleStatusReportReturn: "ScheduleStatusReportReturn",
	KindGetParameterReturn:         "GetParameterReturn",
	KindStatusReportInvocation:     "StatusReportInvocation",
	KindTransferBuffer:             "TransferBuffer",
	KindAnnotatedFrame:             "AnnotatedFrame",
	KindSyncNotification:           "SyncNotification",
	KindPeerAbortInvocation:        "PeerAbortInvocation",
}

// String returns the handler registry name, e.g. "StartReturn".
func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// VariantName returns the wire variant name, e.g. "startReturn".
func (k Kind) VariantName() string {
	s := k.String()
	return strings.ToLower(s[:1]) + s[1:]
}

// KindByName resolves a registry name. Both the upper camel form and the
// wire variant name are accepted.
func KindByName(name string) (Kind, bool) {
	for k := KindUnrecognized + 1; k < NumKinds; k++ {
		if kindNames[k] == name || k.VariantName() == name {
			return k, true
		}
	}
	return KindUnrecognized, false
}

// ProviderPdu is a decoded provider-to-user PDU.
type ProviderPdu interface {
	Kind() Kind
	// VariantName is the lower camel wire name, used for dispatch.
	VariantName() string
}

// BindReturn is rcfBindReturn [101].
type BindReturn struct {
	Credentials Credentials
	ResponderID string
	Positive    bool
	Version     int            // positive result
	Diagnostic  BindDiagnostic // negative result
}

func (BindReturn) Kind() Kind { return KindBindReturn }
func (BindReturn) VariantName() string { return KindBindReturn.VariantName() }

// UnbindReturn is rcfUnbindReturn [103].
type UnbindReturn struct {
	Credentials Credentials
}

func (UnbindReturn) Kind() Kind { return KindUnbindReturn }
func (UnbindReturn) VariantName() string { return KindUnbindReturn.VariantName() }

// StartReturn is rcfStartReturn [1].
type StartReturn struct {
	Credentials Credentials
	InvokeID    int
	Result      Result
}

func (StartReturn) Kind() Kind { return KindStartReturn }
func (StartReturn) VariantName() string { return KindStartReturn.VariantName() }

// StopReturn is rcfStopReturn [3].
type StopReturn struct {
	Credentials Credentials
	InvokeID    int
	Result      Result
}

func (StopReturn) Kind() Kind { return KindStopReturn }
func (StopReturn) VariantName() string { return KindStopReturn.VariantName() }

// ScheduleStatusReportReturn is rcfScheduleStatusReportReturn [5].
type ScheduleStatusReportReturn struct {
	Credentials Credentials
	InvokeID    int
	Result      Result
}

func (ScheduleStatusReportReturn) Kind() Kind { return KindScheduleStatusReportReturn }
func (ScheduleStatusReportReturn) VariantName() string {
	return KindScheduleStatusReportReturn.VariantName()
}

// GetParameterReturn is rcfGetParameterReturn [7].
type GetParameterReturn struct {
	Credentials Credentials
	InvokeID    int
	Result      Result
	Parameter   ParameterName
	// Value is a printable rendering of the returned parameter value.
	Value string
}

func (GetParameterReturn) Kind() Kind { return KindGetParameterReturn }
func (GetParameterReturn) VariantName() string { return KindGetParameterReturn.VariantName() }

// StatusReportInvocation is rcfStatusReportInvocation [9].
type StatusReportInvocation struct {
	Credentials      Credentials
	FramesDelivered  int
	FrameSyncLock    FrameSyncLockStatus
	SymbolSyncLock   LockStatus
	SubcarrierLock   LockStatus
	CarrierLock      LockStatus
	ProductionStatus ProductionStatus
}

func (StatusReportInvocation) Kind() Kind { return KindStatusReportInvocation }
func (StatusReportInvocation) VariantName() string { return KindStatusReportInvocation.VariantName() }

// TransferBuffer is rcfTransferBuffer [8]; entries keep their wire order.
type TransferBuffer struct {
	Entries []ProviderPdu
}

func (TransferBuffer) Kind() Kind { return KindTransferBuffer }
func (TransferBuffer) VariantName() string { return KindTransferBuffer.VariantName() }

// AnnotatedFrame is a transfer buffer entry carrying one frame.
type AnnotatedFrame struct {
	Credentials        Credentials
	EarthReceiveTime   time.Time
	AntennaID          string
	DataLinkContinuity int
	PrivateAnnotation  []byte
	Data               []byte
}

func (AnnotatedFrame) Kind() Kind { return KindAnnotatedFrame }
func (AnnotatedFrame) VariantName() string { return KindAnnotatedFrame.VariantName() }

// NotificationType is the alternative chosen in a sync notification.
type NotificationType int

const (
	NotificationLossFrameSync NotificationType = iota
	NotificationProductionStatusChange
	NotificationExcessiveDataBacklog
	NotificationEndOfData
	NotificationUnknown
)

var notificationNames = map[NotificationType]string{
	NotificationLossFrameSync:          "lossFrameSync",
	NotificationProductionStatusChange: "productionStatusChange",
	NotificationExcessiveDataBacklog:   "excessiveDataBacklog",
	NotificationEndOfData:              "endOfData",
}

func (n NotificationType) String() string {
	if s, ok := notificationNames[n]; ok {
		return s
	}
	return "unknown"
}

// LossFrameSync is the lossFrameSync notification body.
type LossFrameSync struct {
	Time           time.Time
	CarrierLock    LockStatus
	SubcarrierLock LockStatus
	SymbolLock     LockStatus
}

// Notification is the notification CHOICE of a sync notification.
type Notification struct {
	Type             NotificationType
	LossFrameSync    LossFrameSync    // NotificationLossFrameSync
	ProductionStatus ProductionStatus // NotificationProductionStatusChange
	// Name holds the raw alternative name for NotificationUnknown.
	Name string
}

// SyncNotification is a transfer buffer entry carrying a notification.
type SyncNotification struct {
	Credentials  Credentials
	Notification Notification
}

func (SyncNotification) Kind() Kind { return KindSyncNotification }
func (SyncNotification) VariantName() string { return KindSyncNotification.VariantName() }

// PeerAbortInvocation is a provider initiated rcfPeerAbortInvocation [104].
type PeerAbortInvocation struct {
	Diagnostic PeerAbortDiagnostic
}

func (PeerAbortInvocation) Kind() Kind { return KindPeerAbortInvocation }
func (PeerAbortInvocation) VariantName() string { return KindPeerAbortInvocation.VariantName() }

// Unrecognized is a well formed PDU whose tag this client does not handle.
type Unrecognized struct {
	Tag int
}

func (Unrecognized) Kind() Kind { return KindUnrecognized }

func (u Unrecognized) VariantName() string { return fmt.Sprintf("tag%d", u.Tag) }
