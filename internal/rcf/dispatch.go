package rcf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"firestige.xyz/sle/internal/core"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/internal/sle/pdu"
)

// Handler processes one decoded provider PDU.
type Handler func(ctx context.Context, p pdu.ProviderPdu) error

// On adapts a handler for one concrete PDU type. A PDU of any other type is
// an error.
func On[T pdu.ProviderPdu](fn func(ctx context.Context, p T) error) Handler {
	return func(ctx context.Context, p pdu.ProviderPdu) error {
		v, ok := p.(T)
		if !ok {
			return fmt.Errorf("handler for %T got %T", v, p)
		}
		return fn(ctx, v)
	}
}

// Table maps inbound PDU kinds to ordered handler lists. It is not safe for
// concurrent use; dispatch happens on the single receive goroutine.
type Table struct {
	handlers [pdu.NumKinds][]Handler
	logger   *slog.Logger
}

// NewTable returns an empty table.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{logger: logger}
}

// Register appends h to the handlers of kind.
func (t *Table) Register(kind pdu.Kind, h Handler) {
	if kind <= pdu.KindUnrecognized || kind >= pdu.NumKinds {
		panic(fmt.Sprintf("rcf: cannot register handler for %v", kind))
	}
	t.handlers[kind] = append(t.handlers[kind], h)
}

// RegisterName appends h under a registry key such as "StartReturn".
func (t *Table) RegisterName(name string, h Handler) error {
	kind, ok := pdu.KindByName(name)
	if !ok {
		return fmt.Errorf("%w: unknown pdu name %q", core.ErrNoHandler, name)
	}
	t.Register(kind, h)
	return nil
}

// registryKey upper-cases the first character of a wire variant name.
func registryKey(variant string) string {
	if variant == "" {
		return variant
	}
	return strings.ToUpper(variant[:1]) + variant[1:]
}

// Dispatch runs every handler registered for p in registration order. A PDU
// without handlers is logged and dropped with ErrNoHandler. Handler errors
// are logged and counted; the remaining handlers still run and the errors
// are returned joined.
func (t *Table) Dispatch(ctx context.Context, p pdu.ProviderPdu) error {
	key := registryKey(p.VariantName())
	kind, ok := pdu.KindByName(key)
	if !ok || len(t.handlers[kind]) == 0 {
		metrics.DispatchErrorsTotal.WithLabelValues(key, "no_handler").Inc()
		t.logger.Error("pdu has no associated handlers, skipping", "pdu", key)
		return fmt.Errorf("%w: %s", core.ErrNoHandler, key)
	}

	var errs []error
	for i, h := range t.handlers[kind] {
		if err := h(ctx, p); err != nil {
			metrics.DispatchErrorsTotal.WithLabelValues(key, "handler").Inc()
			t.logger.Warn("pdu handler failed", "pdu", key, "handler", i, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
