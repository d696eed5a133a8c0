package models

import (
	"time"

	dErrors "attestor/pkg/domain-errors"
)

// SecurityLevel is an informational classification attached at registration.
// It does not currently alter verification behavior.
type SecurityLevel string

const (
	LevelStandard SecurityLevel = "standard"
	LevelEnhanced SecurityLevel = "enhanced"
	LevelMaximum  SecurityLevel = "maximum"
)

// ParseSecurityLevel validates a level string. Empty input selects the
// standard level.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch SecurityLevel(s) {
	case "":
		return LevelStandard, nil
	case LevelStandard, LevelEnhanced, LevelMaximum:
		return SecurityLevel(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown security level: "+s)
}

// ComponentRecord is the aggregate root for a registered component identity.
//
// Invariants:
//   - ID is non-empty, at most 128 characters, immutable after creation
//   - Signature and Watermark are never empty and always carry their
//     credential prefixes
//   - A record is created with Verified = true (trusted on registration)
//   - Only Verified, LastVerifiedAt, RepairAttempts, and (on repair)
//     Signature/Watermark ever change after creation
//   - Records are never deleted
type ComponentRecord struct {
	ID            string        `json:"id"`
	Kind          string        `json:"kind"`
	Name          string        `json:"name"`
	Signature     string        `json:"signature"`
	Watermark     string        `json:"watermark"`
	SecurityLevel SecurityLevel `json:"security_level"`

	Verified       bool      `json:"verified"`
	RegisteredAt   time.Time `json:"registered_at"`
	LastVerifiedAt time.Time `json:"last_verified_at"`

	// RepairAttempts accumulates across the record's lifetime. It is not
	// reset by a successful repair, so a persistently tampered component
	// exhausts its budget instead of being re-signed forever.
	RepairAttempts int `json:"repair_attempts"`
}

const maxIDLength = 128

// NewComponentRecord validates inputs and builds a trusted-on-registration
// record.
func NewComponentRecord(id, kind, name string, level SecurityLevel, sig, watermark string, now time.Time) (*ComponentRecord, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "component id is required")
	}
	if len(id) > maxIDLength {
		return nil, dErrors.New(dErrors.CodeValidation, "component id exceeds 128 characters")
	}
	if sig == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "component signature must not be empty")
	}
	if watermark == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "component watermark must not be empty")
	}

	return &ComponentRecord{
		ID:             id,
		Kind:           kind,
		Name:           name,
		Signature:      sig,
		Watermark:      watermark,
		SecurityLevel:  level,
		Verified:       true,
		RegisteredAt:   now,
		LastVerifiedAt: now,
	}, nil
}

// MarkVerified records a successful check.
func (r *ComponentRecord) MarkVerified(now time.Time) {
	r.Verified = true
	r.LastVerifiedAt = now
}

// MarkCorrupted records a failed check. The record stays in the registry
// pending repair or operator intervention.
func (r *ComponentRecord) MarkCorrupted() {
	r.Verified = false
}

// ApplyRepair installs re-derived credentials and restores trust.
func (r *ComponentRecord) ApplyRepair(sig, watermark string, now time.Time) {
	r.Signature = sig
	r.Watermark = watermark
	r.MarkVerified(now)
}

// VerificationResult is returned from a single component check.
type VerificationResult struct {
	Valid     bool             `json:"valid"`
	CheckedAt time.Time        `json:"timestamp"`
	Record    *ComponentRecord `json:"record,omitempty"`
	// Chain is the component's outgoing verification edge set.
	Chain []string `json:"chain"`
	// Repaired is true when this result was only reached through a
	// successful repair.
	Repaired bool `json:"repaired,omitempty"`
}

// RepairOutcome describes one repair attempt.
type RepairOutcome struct {
	Repaired  bool      `json:"repaired"`
	Attempts  int       `json:"attempts"`
	Signature string    `json:"signature,omitempty"`
	Watermark string    `json:"watermark,omitempty"`
	At        time.Time `json:"at"`
}

// SystemStatus aggregates a full verification pass.
type SystemStatus struct {
	Secure      bool      `json:"secure"`
	VerifiedIDs []string  `json:"verified_ids"`
	FailedIDs   []string  `json:"failed_ids"`
	TotalEdges  int       `json:"total_edges"`
	CheckedAt   time.Time `json:"checked_at"`
}
