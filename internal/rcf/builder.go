package rcf

import (
	"fmt"
	"time"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/pkg/ccsds"
)

// Cycle limits of a periodic status report, in seconds.
const (
	MinReportCycle = 2
	MaxReportCycle = 600
)

// InvokeSource hands out invoke ids and credentials.
type InvokeSource interface {
	CredentialSource
	NextInvokeID() int
}

// BindParams identify the service instance to bind to.
type BindParams struct {
	InitiatorID       string
	ResponderPortID   string
	ServiceInstanceID pdu.ServiceInstanceID
	Version           int
}

// StartRequest selects the data to deliver. A zero Start or Stop leaves
// that bound undefined.
type StartRequest struct {
	Start          time.Time
	Stop           time.Time
	SpacecraftID   *int
	FrameVersion   *int
	MasterChannel  bool
	VirtualChannel *int
}

// Builder turns RCF operations into user PDUs. A failed validation consumes
// no invoke id.
type Builder struct {
	src      InvokeSource
	defaults Defaults
	bind     BindParams
}

// NewBuilder returns a builder drawing ids and credentials from src.
func NewBuilder(src InvokeSource, defaults Defaults, bind BindParams) *Builder {
	if bind.Version == 0 {
		bind.Version = pdu.DefaultBindVersion
	}
	return &Builder{src: src, defaults: defaults, bind: bind}
}

// Bind builds the bind invocation for the configured service instance.
func (b *Builder) Bind() (pdu.BindInvocation, error) {
	if len(b.bind.ServiceInstanceID) == 0 {
		return pdu.BindInvocation{}, fmt.Errorf("%w: no service instance identifier", core.ErrValidation)
	}
	return pdu.BindInvocation{
		Envelope:          pdu.NewEnvelope(SelectCredentials(b.src)),
		InitiatorID:       b.bind.InitiatorID,
		ResponderPortID:   b.bind.ResponderPortID,
		ServiceType:       pdu.RtnChFrames,
		VersionNumber:     b.bind.Version,
		ServiceInstanceID: b.bind.ServiceInstanceID,
	}, nil
}

// Unbind builds an unbind invocation.
func (b *Builder) Unbind(reason pdu.UnbindReason) pdu.UnbindInvocation {
	return pdu.UnbindInvocation{
		Envelope: pdu.NewEnvelope(SelectCredentials(b.src)),
		Reason:   reason,
	}
}

// Start builds a start invocation.
func (b *Builder) Start(req StartRequest) (pdu.StartInvocation, error) {
	gvcid, err := SelectChannel(req.SpacecraftID, req.FrameVersion, req.MasterChannel, req.VirtualChannel, b.defaults)
	if err != nil {
		return pdu.StartInvocation{}, err
	}
	creds := SelectCredentials(b.src)
	return pdu.StartInvocation{
		Envelope:  pdu.NewInvokeEnvelope(creds, b.src.NextInvokeID()),
		StartTime: conditionalTime(req.Start),
		StopTime:  conditionalTime(req.Stop),
		GvcID:     gvcid,
	}, nil
}

func conditionalTime(t time.Time) pdu.ConditionalTime {
	if t.IsZero() {
		return pdu.ConditionalTime{}
	}
	return pdu.KnownTime(ccsds.EncodeDays(t))
}

// Stop builds a stop invocation.
func (b *Builder) Stop() pdu.StopInvocation {
	creds := SelectCredentials(b.src)
	return pdu.StopInvocation{Envelope: pdu.NewInvokeEnvelope(creds, b.src.NextInvokeID())}
}

// ParseReportRequest validates a report schedule given as "immediately",
// "periodically" (with cycle) or "stop".
func ParseReportRequest(reportType string, cycle *int) (pdu.ReportRequest, error) {
	switch reportType {
	case "immediately":
		return pdu.ReportRequest{Type: pdu.ReportImmediately}, nil
	case "stop":
		return pdu.ReportRequest{Type: pdu.ReportStop}, nil
	case "periodically":
		if cycle == nil {
			return pdu.ReportRequest{}, invalid(core.ErrMissingCycle, "")
		}
		if *cycle < MinReportCycle || *cycle > MaxReportCycle {
			return pdu.ReportRequest{}, invalid(core.ErrCycleOutOfRange, "%d not in %d..%d", *cycle, MinReportCycle, MaxReportCycle)
		}
		return pdu.ReportRequest{Type: pdu.ReportPeriodically, Cycle: *cycle}, nil
	}
	return pdu.ReportRequest{}, invalid(core.ErrUnknownReportType, "%q", reportType)
}

// ScheduleStatusReport builds a schedule status report invocation.
func (b *Builder) ScheduleStatusReport(reportType string, cycle *int) (pdu.ScheduleStatusReportInvocation, error) {
	req, err := ParseReportRequest(reportType, cycle)
	if err != nil {
		return pdu.ScheduleStatusReportInvocation{}, err
	}
	creds := SelectCredentials(b.src)
	return pdu.ScheduleStatusReportInvocation{
		Envelope: pdu.NewInvokeEnvelope(creds, b.src.NextInvokeID()),
		Report:   req,
	}, nil
}

// GetParameter builds a get parameter invocation for a parameter name such
// as "bufferSize" or "reportingCycle".
func (b *Builder) GetParameter(name string) (pdu.GetParameterInvocation, error) {
	param, ok := pdu.ParseParameterName(name)
	if !ok {
		return pdu.GetParameterInvocation{}, invalid(core.ErrUnknownParameter, "%q", name)
	}
	creds := SelectCredentials(b.src)
	return pdu.GetParameterInvocation{
		Envelope:  pdu.NewInvokeEnvelope(creds, b.src.NextInvokeID()),
		Parameter: param,
	}, nil
}

// PeerAbort builds a peer abort invocation.
func (b *Builder) PeerAbort(reason pdu.PeerAbortDiagnostic) pdu.PeerAbort {
	return pdu.PeerAbort{
		Envelope:   pdu.NewEnvelope(SelectCredentials(b.src)),
		Diagnostic: reason,
	}
}
