package rcf

import (
	"context"
	"fmt"
	"time"

	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/internal/sle/pdu"
)

var productionStatusLabels = [...]string{"running", "interrupted", "halted"}

// ProductionStatusLabel names a production status; values outside the
// defined set render as "unknown (N)".
func ProductionStatusLabel(st pdu.ProductionStatus) string {
	if st < 0 || int(st) >= len(productionStatusLabels) {
		return fmt.Sprintf("unknown (%d)", int(st))
	}
	return productionStatusLabels[st]
}

// InterpretNotification renders a sync notification as an operator report.
func InterpretNotification(n pdu.Notification) string {
	switch n.Type {
	case pdu.NotificationLossFrameSync:
		l := n.LossFrameSync
		return fmt.Sprintf("Frame Sync has been lost. See report below ...\n\n"+
			"Lock Status Report\n"+
			"Lock Time: %s\n"+
			"Carrier Lock Status: %s\n"+
			"Sub-Carrier Lock Status: %s\n"+
			"Symbol Sync Lock Status: %s",
			l.Time.UTC().Format(time.RFC3339Nano), l.CarrierLock, l.SubcarrierLock, l.SymbolLock)
	case pdu.NotificationProductionStatusChange:
		return "Production Status Report: " + ProductionStatusLabel(n.ProductionStatus)
	case pdu.NotificationExcessiveDataBacklog:
		return "Excessive Data Backlog Detected"
	case pdu.NotificationEndOfData:
		return "End of Data Received"
	}
	return "Received unknown sync notification: " + n.Name
}

func (s *Service) onSyncNotification(_ context.Context, sn pdu.SyncNotification) error {
	metrics.SyncNotificationsTotal.WithLabelValues(sn.Notification.Type.String()).Inc()
	s.logger.Info(InterpretNotification(sn.Notification))
	if sn.Notification.Type == pdu.NotificationEndOfData {
		s.endOnce.Do(func() { close(s.endOfData) })
	}
	return nil
}
