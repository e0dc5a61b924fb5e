package worker

import (
	"context"
	"log/slog"

	audit "kycflow/pkg/platform/audit"
)

// DeliverFunc persists one event.
type DeliverFunc func(ctx context.Context, event audit.Event) error

// Worker consumes audit events from a channel and delivers them. Delivery
// failures are logged and the worker moves on; audit is fire-and-forget.
type Worker struct {
	deliver DeliverFunc
	inbox   <-chan audit.Event
	logger  *slog.Logger
}

func NewWorker(deliver DeliverFunc, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{deliver: deliver, inbox: inbox, logger: logger}
}

// Run processes events until the inbox is closed (returns nil) or ctx is
// cancelled (returns ctx.Err()).
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.deliver(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "audit delivery failed",
					"action", event.Action,
					"audit_id", event.ID,
					"error", err,
				)
			}
		}
	}
}
