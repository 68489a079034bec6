package pdu

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	ber "github.com/go-asn1-ber/asn1-ber"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/pkg/ccsds"
)

// Provider-to-user context tags of RcfProviderToUserPdu.
const (
	tagStartReturn                = 1
	tagStopReturn                 = 3
	tagScheduleStatusReportReturn = 5
	tagGetParameterReturn         = 7
	tagTransferBuffer             = 8
	tagStatusReportInvocation     = 9
	tagBindReturn                 = 101
	tagUnbindReturn               = 103
	tagPeerAbortInvocation        = 104
)

// Transfer buffer entry tags.
const (
	tagAnnotatedFrame   = 0
	tagSyncNotification = 1
)

// DecodeProvider decodes one provider-to-user PDU. Well formed PDUs with an
// unknown tag decode to Unrecognized.
func DecodeProvider(b []byte) (ProviderPdu, error) {
	pkt, err := ber.DecodePacketErr(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedPDU, err)
	}
	if pkt.ClassType != ber.ClassContext {
		return nil, fmt.Errorf("%w: top level tag is not context specific", core.ErrMalformedPDU)
	}

	switch pkt.Tag {
	case tagBindReturn:
		return decodeBindReturn(pkt)
	case tagUnbindReturn:
		return decodeUnbindReturn(pkt)
	case tagStartReturn:
		sr, err := decodeConfirmedReturn(pkt, "startReturn")
		if err != nil {
			return nil, err
		}
		return StartReturn(sr), nil
	case tagStopReturn:
		sr, err := decodeConfirmedReturn(pkt, "stopReturn")
		if err != nil {
			return nil, err
		}
		return StopReturn(sr), nil
	case tagScheduleStatusReportReturn:
		sr, err := decodeConfirmedReturn(pkt, "scheduleStatusReportReturn")
		if err != nil {
			return nil, err
		}
		return ScheduleStatusReportReturn(sr), nil
	case tagGetParameterReturn:
		return decodeGetParameterReturn(pkt)
	case tagTransferBuffer:
		return decodeTransferBuffer(pkt)
	case tagStatusReportInvocation:
		return decodeStatusReport(pkt)
	case tagPeerAbortInvocation:
		v, err := readInt(pkt, "peerAbortDiagnostic")
		if err != nil {
			return nil, err
		}
		return PeerAbortInvocation{Diagnostic: PeerAbortDiagnostic(v)}, nil
	}
	return Unrecognized{Tag: int(pkt.Tag)}, nil
}

func constructed(p *ber.Packet, field string) error {
	if p.TagType != ber.TypeConstructed {
		return fmt.Errorf("%w: %s is not constructed", core.ErrMalformedPDU, field)
	}
	return nil
}

func decodeBindReturn(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "bindReturn"); err != nil {
		return nil, err
	}
	var br BindReturn
	c, err := child(pkt, 0, "performerCredentials")
	if err != nil {
		return nil, err
	}
	if br.Credentials, err = readCredentials(c); err != nil {
		return nil, err
	}
	c, err = child(pkt, 1, "responderIdentifier")
	if err != nil {
		return nil, err
	}
	br.ResponderID = string(content(c))

	c, err = child(pkt, 2, "result")
	if err != nil {
		return nil, err
	}
	v, err := readInt(c, "result")
	if err != nil {
		return nil, err
	}
	switch {
	case isContext(c, 0):
		br.Positive = true
		br.Version = int(v)
	case isContext(c, 1):
		br.Diagnostic = BindDiagnostic(v)
	default:
		return nil, fmt.Errorf("%w: bind result tag [%d]", core.ErrMalformedPDU, c.Tag)
	}
	return br, nil
}

func decodeUnbindReturn(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "unbindReturn"); err != nil {
		return nil, err
	}
	c, err := child(pkt, 0, "responderCredentials")
	if err != nil {
		return nil, err
	}
	creds, err := readCredentials(c)
	if err != nil {
		return nil, err
	}
	return UnbindReturn{Credentials: creds}, nil
}

type confirmedReturn struct {
	Credentials Credentials
	InvokeID    int
	Result      Result
}

// decodeConfirmedReturn reads { credentials, invokeId, result } returns.
func decodeConfirmedReturn(pkt *ber.Packet, name string) (confirmedReturn, error) {
	var r confirmedReturn
	if err := constructed(pkt, name); err != nil {
		return r, err
	}
	c, err := child(pkt, 0, "performerCredentials")
	if err != nil {
		return r, err
	}
	if r.Credentials, err = readCredentials(c); err != nil {
		return r, err
	}
	id, err := childInt(pkt, 1, "invokeId")
	if err != nil {
		return r, err
	}
	r.InvokeID = int(id)

	c, err = child(pkt, 2, "result")
	if err != nil {
		return r, err
	}
	r.Result, err = readResult(c)
	return r, err
}

func readResult(c *ber.Packet) (Result, error) {
	switch {
	case isContext(c, 0):
		return Result{Positive: true}, nil
	case isContext(c, 1):
		d, err := readDiagnostic(c)
		return Result{Diagnostic: d}, err
	}
	return Result{}, fmt.Errorf("%w: result tag [%d]", core.ErrMalformedPDU, c.Tag)
}

// readDiagnostic accepts both a bare Diagnostics INTEGER and the
// { common [100], specific [101] } CHOICE.
func readDiagnostic(c *ber.Packet) (Diagnostic, error) {
	if c.TagType == ber.TypePrimitive {
		v, err := readInt(c, "diagnostic")
		return Diagnostic{Code: int(v)}, err
	}
	inner, err := child(c, 0, "diagnostic")
	if err != nil {
		return Diagnostic{}, err
	}
	v, err := readInt(inner, "diagnostic")
	if err != nil {
		return Diagnostic{}, err
	}
	return Diagnostic{Specific: isContext(inner, 101), Code: int(v)}, nil
}

func decodeGetParameterReturn(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "getParameterReturn"); err != nil {
		return nil, err
	}
	var gr GetParameterReturn
	c, err := child(pkt, 0, "performerCredentials")
	if err != nil {
		return nil, err
	}
	if gr.Credentials, err = readCredentials(c); err != nil {
		return nil, err
	}
	id, err := childInt(pkt, 1, "invokeId")
	if err != nil {
		return nil, err
	}
	gr.InvokeID = int(id)

	c, err = child(pkt, 2, "result")
	if err != nil {
		return nil, err
	}
	if isContext(c, 1) {
		d, err := readDiagnostic(c)
		if err != nil {
			return nil, err
		}
		gr.Result = Result{Diagnostic: d}
		return gr, nil
	}
	if !isContext(c, 0) {
		return nil, fmt.Errorf("%w: result tag [%d]", core.ErrMalformedPDU, c.Tag)
	}
	gr.Result = Result{Positive: true}

	// positiveResult [0] RcfGetParameter, each alternative a
	// SEQUENCE { parameterName, parameterValue }
	alt, err := child(c, 0, "rcfGetParameter")
	if err != nil {
		return nil, err
	}
	name, err := childInt(alt, 0, "parameterName")
	if err != nil {
		return nil, err
	}
	gr.Parameter = ParameterName(name)
	if len(alt.Children) > 1 {
		gr.Value = render(alt.Children[1])
	}
	return gr, nil
}

// render prints an arbitrary BER value for logging.
func render(p *ber.Packet) string {
	if p.TagType == ber.TypeConstructed {
		parts := make([]string, 0, len(p.Children))
		for _, c := range p.Children {
			parts = append(parts, render(c))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	b := content(p)
	if len(b) == 0 {
		return "null"
	}
	if p.ClassType == ber.ClassUniversal && p.Tag == ber.TagVisibleString {
		return string(b)
	}
	if len(b) <= 8 {
		if v, err := ber.ParseInt64(b); err == nil {
			return strconv.FormatInt(v, 10)
		}
	}
	return hex.EncodeToString(b)
}

func decodeStatusReport(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "statusReportInvocation"); err != nil {
		return nil, err
	}
	var sr StatusReportInvocation
	c, err := child(pkt, 0, "invokerCredentials")
	if err != nil {
		return nil, err
	}
	if sr.Credentials, err = readCredentials(c); err != nil {
		return nil, err
	}
	fields := []string{
		"numberOfFramesDelivered",
		"frameSyncLockStatus",
		"symbolSyncLockStatus",
		"subcarrierLockStatus",
		"carrierLockStatus",
		"productionStatus",
	}
	vals := make([]int, len(fields))
	for i, f := range fields {
		v, err := childInt(pkt, i+1, f)
		if err != nil {
			return nil, err
		}
		vals[i] = int(v)
	}
	sr.FramesDelivered = vals[0]
	sr.FrameSyncLock = FrameSyncLockStatus(vals[1])
	sr.SymbolSyncLock = LockStatus(vals[2])
	sr.SubcarrierLock = LockStatus(vals[3])
	sr.CarrierLock = LockStatus(vals[4])
	sr.ProductionStatus = ProductionStatus(vals[5])
	return sr, nil
}

func decodeTransferBuffer(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "transferBuffer"); err != nil {
		return nil, err
	}
	tb := TransferBuffer{Entries: make([]ProviderPdu, 0, len(pkt.Children))}
	for _, c := range pkt.Children {
		var (
			entry ProviderPdu
			err   error
		)
		switch {
		case isContext(c, tagAnnotatedFrame):
			entry, err = decodeAnnotatedFrame(c)
		case isContext(c, tagSyncNotification):
			entry, err = decodeSyncNotification(c)
		default:
			entry = Unrecognized{Tag: int(c.Tag)}
		}
		if err != nil {
			return nil, err
		}
		tb.Entries = append(tb.Entries, entry)
	}
	return tb, nil
}

func readTime(p *ber.Packet, field string) (time.Time, error) {
	if !isContext(p, 0) && !isContext(p, 1) {
		return time.Time{}, fmt.Errorf("%w: %s tag [%d]", core.ErrMalformedPDU, field, p.Tag)
	}
	t, err := ccsds.DecodeCDS(content(p))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", core.ErrMalformedPDU, field, err)
	}
	return t, nil
}

func decodeAnnotatedFrame(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "annotatedFrame"); err != nil {
		return nil, err
	}
	var af AnnotatedFrame
	c, err := child(pkt, 0, "invokerCredentials")
	if err != nil {
		return nil, err
	}
	if af.Credentials, err = readCredentials(c); err != nil {
		return nil, err
	}
	c, err = child(pkt, 1, "earthReceiveTime")
	if err != nil {
		return nil, err
	}
	if af.EarthReceiveTime, err = readTime(c, "earthReceiveTime"); err != nil {
		return nil, err
	}
	c, err = child(pkt, 2, "antennaId")
	if err != nil {
		return nil, err
	}
	if af.AntennaID, err = readAntennaID(c); err != nil {
		return nil, err
	}
	v, err := childInt(pkt, 3, "dataLinkContinuity")
	if err != nil {
		return nil, err
	}
	af.DataLinkContinuity = int(v)

	if len(pkt.Children) > 4 {
		if c := pkt.Children[4]; isContext(c, 1) {
			af.PrivateAnnotation = bytes.Clone(content(c))
		}
	}
	// A missing data field is reported by the frame handler.
	if len(pkt.Children) > 5 {
		af.Data = bytes.Clone(content(pkt.Children[5]))
	}
	return af, nil
}

func readAntennaID(p *ber.Packet) (string, error) {
	switch {
	case isContext(p, 0):
		arcs, err := decodeOID(content(p))
		if err != nil {
			return "", err
		}
		return ber.OIDToString(arcs), nil
	case isContext(p, 1):
		b := content(p)
		for _, c := range b {
			if c < 0x20 || c > 0x7E {
				return hex.EncodeToString(b), nil
			}
		}
		return string(b), nil
	}
	return "", fmt.Errorf("%w: antennaId tag [%d]", core.ErrMalformedPDU, p.Tag)
}

func decodeSyncNotification(pkt *ber.Packet) (ProviderPdu, error) {
	if err := constructed(pkt, "syncNotification"); err != nil {
		return nil, err
	}
	var sn SyncNotification
	c, err := child(pkt, 0, "invokerCredentials")
	if err != nil {
		return nil, err
	}
	if sn.Credentials, err = readCredentials(c); err != nil {
		return nil, err
	}
	n, err := child(pkt, 1, "notification")
	if err != nil {
		return nil, err
	}
	if n.ClassType != ber.ClassContext {
		sn.Notification = Notification{Type: NotificationUnknown, Name: fmt.Sprintf("notification%d", n.Tag)}
		return sn, nil
	}

	switch n.Tag {
	case 0:
		lfs, err := decodeLossFrameSync(n)
		if err != nil {
			return nil, err
		}
		sn.Notification = Notification{Type: NotificationLossFrameSync, LossFrameSync: lfs}
	case 1:
		v, err := readInt(n, "productionStatusChange")
		if err != nil {
			return nil, err
		}
		sn.Notification = Notification{Type: NotificationProductionStatusChange, ProductionStatus: ProductionStatus(v)}
	case 2:
		sn.Notification = Notification{Type: NotificationExcessiveDataBacklog}
	case 3:
		sn.Notification = Notification{Type: NotificationEndOfData}
	default:
		sn.Notification = Notification{Type: NotificationUnknown, Name: fmt.Sprintf("notification%d", n.Tag)}
	}
	return sn, nil
}

func decodeLossFrameSync(n *ber.Packet) (LossFrameSync, error) {
	var lfs LossFrameSync
	if err := constructed(n, "lossFrameSync"); err != nil {
		return lfs, err
	}
	c, err := child(n, 0, "time")
	if err != nil {
		return lfs, err
	}
	if lfs.Time, err = readTime(c, "time"); err != nil {
		return lfs, err
	}
	carrier, err := childInt(n, 1, "carrierLockStatus")
	if err != nil {
		return lfs, err
	}
	subcarrier, err := childInt(n, 2, "subcarrierLockStatus")
	if err != nil {
		return lfs, err
	}
	symbol, err := childInt(n, 3, "symbolSyncLockStatus")
	if err != nil {
		return lfs, err
	}
	lfs.CarrierLock = LockStatus(carrier)
	lfs.SubcarrierLock = LockStatus(subcarrier)
	lfs.SymbolLock = LockStatus(symbol)
	return lfs, nil
}
