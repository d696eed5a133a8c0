package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"attestor/pkg/requestcontext"
)

// Watermarker derives an audit watermark bound to an identifier. The
// signature service satisfies this; the log stays decoupled from it.
type Watermarker interface {
	Watermark(id string) (string, error)
}

// Log is the append-only, in-memory security event log.
//
// Record never fails: a watermark derivation problem downgrades to a logged
// warning rather than losing the event. All access is serialized through an
// RWMutex; Query hands out copies so callers can never mutate history.
type Log struct {
	mu     sync.RWMutex
	events []SecurityEvent

	logger      *slog.Logger
	watermarker Watermarker
	alerts      *RingBuffer
}

// NewLog creates an event log. alertCapacity bounds the operator alert
// buffer; zero or negative selects the default.
func NewLog(logger *slog.Logger, watermarker Watermarker, alertCapacity int) *Log {
	return &Log{
		logger:      logger,
		watermarker: watermarker,
		alerts:      NewRingBuffer(alertCapacity),
	}
}

// Record appends a new event and returns it. Critical events are surfaced
// synchronously: error-level log output and an entry in the alert buffer
// happen before Record returns.
func (l *Log) Record(ctx context.Context, eventType string, severity Severity, details map[string]any, componentID string) SecurityEvent {
	event := SecurityEvent{
		ID:          uuid.NewString(),
		EventType:   eventType,
		Severity:    severity,
		Timestamp:   requestcontext.Now(ctx),
		ComponentID: componentID,
		Details:     details,
	}

	if l.watermarker != nil {
		wm, err := l.watermarker.Watermark(event.ID)
		if err != nil {
			l.logger.WarnContext(ctx, "event watermark derivation failed",
				"event_type", eventType, "error", err)
		} else {
			event.Watermark = wm
		}
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	switch severity {
	case SeverityCritical:
		l.logger.ErrorContext(ctx, "critical security event",
			"event_type", eventType,
			"component_id", componentID,
			"event_id", event.ID,
		)
		l.alerts.Enqueue(event)
	case SeverityWarning:
		l.logger.WarnContext(ctx, "security event",
			"event_type", eventType,
			"component_id", componentID,
		)
	default:
		l.logger.InfoContext(ctx, "security event",
			"event_type", eventType,
			"component_id", componentID,
		)
	}

	return event
}

// Query returns up to limit events, most recent first. A non-empty severity
// restricts the result to events of that severity. The returned slice is a
// copy; the log itself is never exposed.
func (l *Log) Query(limit int, severity Severity) []SecurityEvent {
	if limit <= 0 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]SecurityEvent, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		if severity != "" && l.events[i].Severity != severity {
			continue
		}
		out = append(out, l.events[i])
	}
	return out
}

// Len returns the total number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Alerts exposes the bounded critical-event buffer for the notifier worker.
func (l *Log) Alerts() *RingBuffer {
	return l.alerts
}
