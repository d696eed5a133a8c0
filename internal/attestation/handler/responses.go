package handler

import (
	"time"

	"attestor/internal/attestation/models"
	"attestor/pkg/platform/audit"
)

// ComponentResponse is the HTTP representation of a registered component.
// Credentials are returned so the registering collaborator can hold its own
// copy; they are verifiable but not secret.
type ComponentResponse struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Name           string    `json:"name,omitempty"`
	SecurityLevel  string    `json:"security_level"`
	Verified       bool      `json:"verified"`
	Signature      string    `json:"signature"`
	Watermark      string    `json:"watermark"`
	RegisteredAt   time.Time `json:"registered_at"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
	RepairAttempts int       `json:"repair_attempts"`
}

// FromRecord converts a domain ComponentRecord to an HTTP response.
func FromRecord(record *models.ComponentRecord) *ComponentResponse {
	return &ComponentResponse{
		ID:             record.ID,
		Kind:           record.Kind,
		Name:           record.Name,
		SecurityLevel:  string(record.SecurityLevel),
		Verified:       record.Verified,
		Signature:      record.Signature,
		Watermark:      record.Watermark,
		RegisteredAt:   record.RegisteredAt,
		LastVerifiedAt: record.LastVerifiedAt,
		RepairAttempts: record.RepairAttempts,
	}
}

// VerifyResponse is the HTTP response for POST /attestation/verify/{id}.
type VerifyResponse struct {
	Valid     bool               `json:"valid"`
	Repaired  bool               `json:"repaired,omitempty"`
	Chain     []string           `json:"chain"`
	CheckedAt time.Time          `json:"checked_at"`
	Component *ComponentResponse `json:"component,omitempty"`
}

// FromVerification converts a domain VerificationResult to an HTTP response.
func FromVerification(result *models.VerificationResult) *VerifyResponse {
	resp := &VerifyResponse{
		Valid:     result.Valid,
		Repaired:  result.Repaired,
		Chain:     result.Chain,
		CheckedAt: result.CheckedAt,
	}
	if result.Record != nil {
		resp.Component = FromRecord(result.Record)
	}
	return resp
}

// StatusResponse is the HTTP response for GET /attestation/status.
type StatusResponse struct {
	Secure      bool      `json:"secure"`
	VerifiedIDs []string  `json:"verified_ids"`
	FailedIDs   []string  `json:"failed_ids"`
	TotalEdges  int       `json:"total_edges"`
	CheckedAt   time.Time `json:"checked_at"`
}

// FromStatus converts a domain SystemStatus to an HTTP response.
func FromStatus(status *models.SystemStatus) *StatusResponse {
	return &StatusResponse{
		Secure:      status.Secure,
		VerifiedIDs: status.VerifiedIDs,
		FailedIDs:   status.FailedIDs,
		TotalEdges:  status.TotalEdges,
		CheckedAt:   status.CheckedAt,
	}
}

// LinkResponse is the HTTP response for POST /attestation/links.
type LinkResponse struct {
	Linked bool `json:"linked"`
}

// EventResponse is the HTTP representation of a logged security event.
type EventResponse struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Severity    string         `json:"severity"`
	Timestamp   time.Time      `json:"timestamp"`
	ComponentID string         `json:"component_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Watermark   string         `json:"watermark,omitempty"`
}

// FromEvents converts logged events to their HTTP representation.
func FromEvents(events []audit.SecurityEvent) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, event := range events {
		out[i] = EventResponse{
			ID:          event.ID,
			EventType:   event.EventType,
			Severity:    string(event.Severity),
			Timestamp:   event.Timestamp,
			ComponentID: event.ComponentID,
			Details:     event.Details,
			Watermark:   event.Watermark,
		}
	}
	return out
}
