// Package audit provides the append-only security event log for the
// attestation subsystem.
//
// Events are emitted from domain logic and kept for the process lifetime
// only; there is deliberately no durable store behind them. Critical events
// are additionally surfaced synchronously to an operator-visible channel
// (error-level structured log output plus a bounded alert buffer drained by
// a notifier worker).
package audit

import (
	"time"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Well-known event types emitted by the attestation service. The field is
// free-form; these constants cover the lifecycle the service itself produces.
const (
	EventInitialization    = "initialization"
	EventVerification      = "component_verification"
	EventUnknownComponent  = "unknown_component"
	EventTamperDetected    = "tamper_detected"
	EventRepaired          = "repaired"
	EventRepairFailed      = "repair_failed"
	EventRepairExhausted   = "repair_exhausted"
	EventChainCreated      = "chain_created"
	EventChainRejected     = "chain_rejected"
)

// SecurityEvent is a single append-only record of attestation activity.
// Events are never mutated or removed once recorded.
type SecurityEvent struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Severity    Severity       `json:"severity"`
	Timestamp   time.Time      `json:"timestamp"`
	ComponentID string         `json:"component_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	// Watermark is the audit credential of the event itself, bound to the
	// event ID. Display and audit only, never a trust input.
	Watermark string `json:"watermark"`
}
