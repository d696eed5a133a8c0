package handler

import (
	"strings"

	"attestor/internal/attestation/models"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/audit"
)

// RegisterRequest is the HTTP request body for POST /attestation/components.
type RegisterRequest struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	SecurityLevel string `json:"security_level"`

	parsedLevel models.SecurityLevel
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return dErrors.New(dErrors.CodeValidation, "id is required")
	}
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	r.Name = strings.TrimSpace(r.Name)

	level, err := models.ParseSecurityLevel(strings.TrimSpace(r.SecurityLevel))
	if err != nil {
		return err
	}
	r.parsedLevel = level

	return nil
}

// ParsedLevel returns the validated security level.
func (r *RegisterRequest) ParsedLevel() models.SecurityLevel {
	return r.parsedLevel
}

// LinkRequest is the HTTP request body for POST /attestation/links.
type LinkRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Validate implements the Validatable interface.
func (r *LinkRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.SourceID = strings.TrimSpace(r.SourceID)
	r.TargetID = strings.TrimSpace(r.TargetID)
	if r.SourceID == "" {
		return dErrors.New(dErrors.CodeValidation, "source_id is required")
	}
	if r.TargetID == "" {
		return dErrors.New(dErrors.CodeValidation, "target_id is required")
	}

	return nil
}

// EventRequest is the HTTP request body for POST /attestation/events.
type EventRequest struct {
	EventType   string         `json:"event_type"`
	Severity    string         `json:"severity"`
	ComponentID string         `json:"component_id"`
	Details     map[string]any `json:"details"`
}

// Validate implements the Validatable interface.
func (r *EventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.EventType = strings.TrimSpace(r.EventType)
	if r.EventType == "" {
		return dErrors.New(dErrors.CodeValidation, "event_type is required")
	}
	if !audit.Severity(r.Severity).Valid() {
		return dErrors.New(dErrors.CodeValidation, "severity must be info, warning, or critical")
	}

	return nil
}
