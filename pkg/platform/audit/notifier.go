package audit

import (
	"context"
	"log/slog"
	"time"
)

// AlertHandler receives critical events drained from the alert buffer.
// Implementations must be fast and must not panic; the notifier owns retry
// policy, not the handler.
type AlertHandler func(ctx context.Context, event SecurityEvent)

// Notifier drains the critical-event buffer on a short cadence and hands
// each event to the operator alert handler. It keeps alert delivery off the
// Record call path while the synchronous error-level log line stays on it.
type Notifier struct {
	buffer   *RingBuffer
	handler  AlertHandler
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// NewNotifier creates a notifier over the given buffer. Zero interval or
// batch select defaults (250ms, 64 events).
func NewNotifier(buffer *RingBuffer, handler AlertHandler, logger *slog.Logger, interval time.Duration, batch int) *Notifier {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if batch <= 0 {
		batch = 64
	}
	return &Notifier{
		buffer:   buffer,
		handler:  handler,
		logger:   logger,
		interval: interval,
		batch:    batch,
	}
}

// Run drains the buffer until ctx is cancelled. A final drain runs on
// shutdown so buffered alerts are not lost.
func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			n.drain(ctx)
		}
	}
}

func (n *Notifier) drain(ctx context.Context) {
	for {
		events := n.buffer.DequeueBatch(n.batch)
		if len(events) == 0 {
			return
		}
		for _, event := range events {
			n.handler(ctx, event)
		}
	}
}

// SlogAlertHandler returns an AlertHandler that writes operator alerts as
// error-level structured log lines. The default operator channel when no
// external alerting is wired.
func SlogAlertHandler(logger *slog.Logger) AlertHandler {
	return func(ctx context.Context, event SecurityEvent) {
		logger.ErrorContext(ctx, "operator alert",
			"event_id", event.ID,
			"event_type", event.EventType,
			"component_id", event.ComponentID,
			"recorded_at", event.Timestamp,
		)
	}
}
