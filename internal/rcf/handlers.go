package rcf

import (
	"context"
	"fmt"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/session"
)

func (s *Service) registerHandlers() {
	t := s.table
	t.Register(pdu.KindBindReturn, On(s.onBindReturn))
	t.Register(pdu.KindUnbindReturn, On(s.onUnbindReturn))
	t.Register(pdu.KindStartReturn, On(s.onStartReturn))
	t.Register(pdu.KindStopReturn, On(s.onStopReturn))
	t.Register(pdu.KindScheduleStatusReportReturn, On(s.onScheduleStatusReportReturn))
	t.Register(pdu.KindStatusReportInvocation, On(s.onStatusReport))
	t.Register(pdu.KindGetParameterReturn, On(s.onGetParameterReturn))
	t.Register(pdu.KindTransferBuffer, On(s.processTransferBuffer))
	t.Register(pdu.KindAnnotatedFrame, On(s.forwardFrame))
	t.Register(pdu.KindSyncNotification, On(s.onSyncNotification))
	t.Register(pdu.KindPeerAbortInvocation, On(s.onPeerAbort))
}

// verify checks provider credentials on a return.
func (s *Service) verify(kind pdu.Kind, c pdu.Credentials) error {
	if err := s.sess.VerifyPeer(c); err != nil {
		return fmt.Errorf("%s: provider credentials rejected: %w", kind, err)
	}
	return nil
}

func (s *Service) onBindReturn(_ context.Context, r pdu.BindReturn) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	if !r.Positive {
		s.setState(session.StateUnbound)
		s.logger.Error("bind unsuccessful", "responder", r.ResponderID, "diagnostic", r.Diagnostic.String())
		return nil
	}
	s.setState(session.StateReady)
	s.logger.Info("bind successful", "responder", r.ResponderID, "version", r.Version)
	return nil
}

func (s *Service) onUnbindReturn(_ context.Context, r pdu.UnbindReturn) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	s.setState(session.StateUnbound)
	s.logger.Info("unbind successful")
	return nil
}

func (s *Service) onStartReturn(_ context.Context, r pdu.StartReturn) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	if !r.Result.Positive {
		s.setState(session.StateReady)
		s.logger.Error("start unsuccessful", "invoke_id", r.InvokeID, "diagnostic", r.Result.Diagnostic.String())
		return nil
	}
	s.setState(session.StateActive)
	s.logger.Info("start successful", "invoke_id", r.InvokeID)
	return nil
}

func (s *Service) onStopReturn(_ context.Context, r pdu.StopReturn) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	if !r.Result.Positive {
		s.setState(session.StateActive)
		s.logger.Error("stop unsuccessful", "invoke_id", r.InvokeID, "diagnostic", r.Result.Diagnostic.String())
		return nil
	}
	s.setState(session.StateReady)
	s.logger.Info("stop successful", "invoke_id", r.InvokeID)
	return nil
}

func (s *Service) onScheduleStatusReportReturn(_ context.Context, r pdu.ScheduleStatusReportReturn) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	if !r.Result.Positive {
		s.logger.Error("status report scheduling unsuccessful",
			"invoke_id", r.InvokeID, "diagnostic", r.Result.Diagnostic.String())
		return nil
	}
	s.logger.Info("status report scheduling successful", "invoke_id", r.InvokeID)
	return nil
}

// FormatStatusReport renders a provider status report.
func FormatStatusReport(r pdu.StatusReportInvocation) string {
	return fmt.Sprintf("Status Report\n"+
		"Number of Frames Delivered: %d\n"+
		"Frame Sync Lock: %s\n"+
		"Symbol Sync Lock: %s\n"+
		"Subcarrier Lock: %s\n"+
		"Carrier Lock: %s\n"+
		"Production Status: %s",
		r.FramesDelivered, r.FrameSyncLock, r.SymbolSyncLock,
		r.SubcarrierLock, r.CarrierLock, ProductionStatusLabel(r.ProductionStatus))
}

func (s *Service) onStatusReport(_ context.Context, r pdu.StatusReportInvocation) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastReport = &r
	s.mu.Unlock()
	metrics.ProviderFramesDelivered.Set(float64(r.FramesDelivered))
	s.logger.Info(FormatStatusReport(r))
	return nil
}

func (s *Service) onGetParameterReturn(_ context.Context, r pdu.GetParameterReturn) error {
	if err := s.verify(r.Kind(), r.Credentials); err != nil {
		return err
	}
	if !r.Result.Positive {
		s.logger.Error("get parameter unsuccessful",
			"invoke_id", r.InvokeID, "diagnostic", r.Result.Diagnostic.String())
		return nil
	}
	name := r.Parameter.String()
	s.mu.Lock()
	s.parameters[name] = r.Value
	s.mu.Unlock()
	s.logger.Info("parameter value", "invoke_id", r.InvokeID, "parameter", name, "value", r.Value)
	return nil
}

// onPeerAbort tears the association down; Run then returns ErrPeerAborted.
func (s *Service) onPeerAbort(_ context.Context, r pdu.PeerAbortInvocation) error {
	s.aborted.Store(true)
	s.setState(session.StateUnbound)
	s.logger.Error("peer abort received", "diagnostic", r.Diagnostic.String(), "error", core.ErrPeerAborted)
	return s.sess.Close()
}
