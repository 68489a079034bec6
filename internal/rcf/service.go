package rcf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/session"
)

// Session is the association the service runs on; *session.Session
// implements it.
type Session interface {
	InvokeSource
	EncodePDU(p pdu.UserPdu) ([]byte, error)
	Send(b []byte) error
	Receive(ctx context.Context, fn func([]byte)) error
	VerifyPeer(c pdu.Credentials) error
	State() session.State
	SetState(st session.State)
	WaitState(ctx context.Context, want ...session.State) (session.State, error)
	Close() error
}

// ServiceConfig contains everything a Service needs.
type ServiceConfig struct {
	Session   Session
	Defaults  Defaults
	Bind      BindParams
	Decoder   FrameDecoder
	Forwarder FrameForwarder
	Logger    *slog.Logger
}

// Service is an RCF user bound to one session. Operations validate, check
// the bind state, send and move the session into the pending state; the
// matching return handler completes the transition.
type Service struct {
	sess      Session
	builder   *Builder
	table     *Table
	decoder   FrameDecoder
	forwarder FrameForwarder
	logger    *slog.Logger
	sessionID string

	framesForwarded atomic.Uint64
	aborted         atomic.Bool

	endOfData chan struct{}
	endOnce   sync.Once

	mu         sync.Mutex
	lastReport *pdu.StatusReportInvocation
	parameters map[string]string
}

// NewService builds the handler table and registers the default handlers.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		sess:       cfg.Session,
		builder:    NewBuilder(cfg.Session, cfg.Defaults, cfg.Bind),
		table:      NewTable(logger),
		decoder:    cfg.Decoder,
		forwarder:  cfg.Forwarder,
		logger:     logger,
		sessionID:  cfg.Bind.ServiceInstanceID.String(),
		endOfData:  make(chan struct{}),
		parameters: make(map[string]string),
	}
	s.registerHandlers()
	return s
}

// Table returns the dispatch table so callers can add handlers before Run.
func (s *Service) Table() *Table { return s.table }

// EndOfData is closed when the provider reports end of data.
func (s *Service) EndOfData() <-chan struct{} { return s.endOfData }

// State returns the bind state.
func (s *Service) State() session.State { return s.sess.State() }

// Await blocks until the bind state is one of want.
func (s *Service) Await(ctx context.Context, want ...session.State) (session.State, error) {
	return s.sess.WaitState(ctx, want...)
}

func (s *Service) setState(st session.State) {
	s.sess.SetState(st)
	metrics.SessionState.Set(float64(st))
}

func (s *Service) require(op string, allowed ...session.State) error {
	cur := s.sess.State()
	for _, st := range allowed {
		if cur == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", core.ErrInvalidState, op, cur)
}

func (s *Service) send(p pdu.UserPdu) error {
	b, err := s.sess.EncodePDU(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.OperationName(), err)
	}
	if err := s.sess.Send(b); err != nil {
		return fmt.Errorf("send %s: %w", p.OperationName(), err)
	}
	metrics.PDUsSentTotal.WithLabelValues(p.OperationName()).Inc()
	return nil
}

// sendPending enters pending before sending so a return handled by Run
// cannot be overwritten. A failed send restores the previous state.
func (s *Service) sendPending(p pdu.UserPdu, pending session.State) error {
	prev := s.sess.State()
	s.setState(pending)
	if err := s.send(p); err != nil {
		s.setState(prev)
		return err
	}
	return nil
}

// Bind requests an association with the configured service instance.
func (s *Service) Bind() error {
	if err := s.require("bind", session.StateUnbound); err != nil {
		return err
	}
	p, err := s.builder.Bind()
	if err != nil {
		return err
	}
	s.logger.Info("sending bind invocation",
		"service_instance", s.sessionID,
		"initiator", p.InitiatorID,
		"responder_port", p.ResponderPortID,
		"version", p.VersionNumber)
	return s.sendPending(p, session.StateBindPending)
}

// Unbind releases the association.
func (s *Service) Unbind(reason pdu.UnbindReason) error {
	if err := s.require("unbind", session.StateReady); err != nil {
		return err
	}
	p := s.builder.Unbind(reason)
	s.logger.Info("sending unbind invocation", "reason", int(reason))
	return s.sendPending(p, session.StateUnbindPending)
}

// Start requests frame delivery.
func (s *Service) Start(req StartRequest) error {
	if err := s.require("start", session.StateReady); err != nil {
		return err
	}
	p, err := s.builder.Start(req)
	if err != nil {
		return err
	}
	s.logger.Info("sending start invocation",
		"invoke_id", p.InvokeID,
		"start", p.StartTime.String(),
		"stop", p.StopTime.String(),
		"gvcid", p.GvcID.String())
	return s.sendPending(p, session.StateStartPending)
}

// Stop ends frame delivery.
func (s *Service) Stop() error {
	if err := s.require("stop", session.StateActive); err != nil {
		return err
	}
	p := s.builder.Stop()
	s.logger.Info("sending stop invocation", "invoke_id", p.InvokeID)
	return s.sendPending(p, session.StateStopPending)
}

// ScheduleStatusReport asks the provider for status reports.
func (s *Service) ScheduleStatusReport(reportType string, cycle *int) error {
	if err := s.require("schedule status report", session.StateReady, session.StateActive); err != nil {
		return err
	}
	p, err := s.builder.ScheduleStatusReport(reportType, cycle)
	if err != nil {
		return err
	}
	s.logger.Info("scheduling status report",
		"invoke_id", p.InvokeID,
		"type", p.Report.Type.String(),
		"cycle", p.Report.Cycle)
	return s.send(p)
}

// GetParameter asks the provider for the value of a service parameter.
func (s *Service) GetParameter(name string) error {
	if err := s.require("get parameter", session.StateReady, session.StateActive); err != nil {
		return err
	}
	p, err := s.builder.GetParameter(name)
	if err != nil {
		return err
	}
	s.logger.Info("sending get parameter invocation", "invoke_id", p.InvokeID, "parameter", p.Parameter.String())
	return s.send(p)
}

// PeerAbort aborts the association and closes the connection. No response
// is expected.
func (s *Service) PeerAbort(reason pdu.PeerAbortDiagnostic) error {
	if s.sess.State() == session.StateUnbound {
		return fmt.Errorf("%w: peer abort in state %s", core.ErrInvalidState, session.StateUnbound)
	}
	p := s.builder.PeerAbort(reason)
	s.logger.Warn("sending peer abort", "reason", reason.String())
	err := s.send(p)
	s.setState(session.StateUnbound)
	if cerr := s.sess.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run receives and dispatches provider PDUs until the connection ends. It
// returns ErrPeerAborted when the provider aborted the association.
func (s *Service) Run(ctx context.Context) error {
	err := s.sess.Receive(ctx, func(b []byte) { s.handle(ctx, b) })
	if s.aborted.Load() {
		return core.ErrPeerAborted
	}
	return err
}

// handle decodes and dispatches one PDU. Errors are logged by the table.
func (s *Service) handle(ctx context.Context, b []byte) {
	p, err := pdu.DecodeProvider(b)
	if err != nil {
		metrics.DispatchErrorsTotal.WithLabelValues("", "decode").Inc()
		s.logger.Warn("dropping undecodable pdu", "bytes", len(b), "error", err)
		return
	}
	metrics.PDUsReceivedTotal.WithLabelValues(p.Kind().String()).Inc()
	_ = s.table.Dispatch(ctx, p)
}

// Status is a snapshot for the status endpoint.
type Status struct {
	ServiceInstance string            `json:"service_instance"`
	State           string            `json:"state"`
	FramesForwarded uint64            `json:"frames_forwarded"`
	ProviderReport  *ProviderReport   `json:"provider_report,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

// ProviderReport is the last status report received from the provider.
type ProviderReport struct {
	FramesDelivered  int    `json:"frames_delivered"`
	FrameSyncLock    string `json:"frame_sync_lock"`
	SymbolSyncLock   string `json:"symbol_sync_lock"`
	SubcarrierLock   string `json:"subcarrier_lock"`
	CarrierLock      string `json:"carrier_lock"`
	ProductionStatus string `json:"production_status"`
}

// Status returns the current service status.
func (s *Service) Status() Status {
	st := Status{
		ServiceInstance: s.sessionID,
		State:           s.sess.State().String(),
		FramesForwarded: s.framesForwarded.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.lastReport; r != nil {
		st.ProviderReport = &ProviderReport{
			FramesDelivered:  r.FramesDelivered,
			FrameSyncLock:    r.FrameSyncLock.String(),
			SymbolSyncLock:   r.SymbolSyncLock.String(),
			SubcarrierLock:   r.SubcarrierLock.String(),
			CarrierLock:      r.CarrierLock.String(),
			ProductionStatus: ProductionStatusLabel(r.ProductionStatus),
		}
	}
	if len(s.parameters) > 0 {
		st.Parameters = make(map[string]string, len(s.parameters))
		for k, v := range s.parameters {
			st.Parameters[k] = v
		}
	}
	return st
}
