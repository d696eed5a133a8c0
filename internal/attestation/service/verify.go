package service

import (
	"context"
	"errors"
	"time"

	"attestor/internal/attestation/models"
	"attestor/internal/signature"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/audit"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/requestcontext"
)

// VerifyComponent checks a component's credential.
//
// Unknown ids return valid=false with CodeNotFound and exactly one Critical
// event. A failed signature check emits a Critical tamper event, marks the
// record corrupted, and invokes repair; a successful repair yields a valid
// result flagged Repaired. Repair exhaustion surfaces CodeRepairExhausted so
// callers can react without reading the log.
func (s *Service) VerifyComponent(ctx context.Context, id string) (*models.VerificationResult, error) {
	now := requestcontext.Now(ctx)

	record, err := s.registry.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.events.Record(ctx, audit.EventUnknownComponent, audit.SeverityCritical, map[string]any{
				"attempted_id": id,
			}, "")
			s.metrics.ObserveVerification("unknown_component")
			return &models.VerificationResult{Valid: false, CheckedAt: now},
				dErrors.New(dErrors.CodeNotFound, "unknown component attempted verification")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load component")
	}

	if s.creds.VerifyFor(record.Signature, signature.SignaturePrefix, id) {
		updated, err := s.registry.Execute(ctx, id, nil, func(r *models.ComponentRecord) {
			r.MarkVerified(now)
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
		}

		s.events.Record(ctx, audit.EventVerification, audit.SeverityInfo, map[string]any{
			"result": "valid",
		}, id)
		s.metrics.ObserveVerification("valid")

		return &models.VerificationResult{
			Valid:     true,
			CheckedAt: now,
			Record:    updated,
			Chain:     s.graph.EdgesFrom(ctx, id),
		}, nil
	}

	// Tamper path: mark corrupted, raise the alarm, attempt repair.
	if _, err := s.registry.Execute(ctx, id, nil, func(r *models.ComponentRecord) {
		r.MarkCorrupted()
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark component corrupted")
	}

	s.events.Record(ctx, audit.EventTamperDetected, audit.SeverityCritical, map[string]any{
		"reason": "signature verification failed",
	}, id)
	s.metrics.IncrementTamperDetected()
	s.metrics.ObserveVerification("invalid")

	outcome, err := s.Repair(ctx, id)
	if err != nil {
		return &models.VerificationResult{Valid: false, CheckedAt: now}, err
	}

	repaired, err := s.registry.FindByID(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload repaired component")
	}

	s.logger.InfoContext(ctx, "component repaired after tamper detection",
		"component_id", id, "repair_attempts", outcome.Attempts)

	return &models.VerificationResult{
		Valid:     true,
		CheckedAt: now,
		Record:    repaired,
		Chain:     s.graph.EdgesFrom(ctx, id),
		Repaired:  true,
	}, nil
}

// Repair re-establishes a corrupted component's credentials.
//
// Repair is not a blind local re-sign: the registration-time escrow
// snapshot must still validate for
// the component's identity, and lifetime attempts are capped. Exceeding the
// cap surfaces CodeRepairExhausted and leaves the component corrupted
// pending operator intervention.
func (s *Service) Repair(ctx context.Context, id string) (*models.RepairOutcome, error) {
	now := requestcontext.Now(ctx)

	snap, err := s.escrow.Get(ctx, id)
	if err != nil {
		s.events.Record(ctx, audit.EventRepairExhausted, audit.SeverityCritical, map[string]any{
			"reason": "no escrowed credential for component",
		}, id)
		s.metrics.ObserveRepair("failed")
		return nil, dErrors.New(dErrors.CodeRepairExhausted, "no trust anchor available for repair")
	}

	// Consume one attempt; the budget check and increment happen under the
	// registry's write lock.
	record, err := s.registry.Execute(ctx, id,
		func(r *models.ComponentRecord) error {
			if r.RepairAttempts >= s.maxRepairAttempts {
				return dErrors.New(dErrors.CodeRepairExhausted, "repair attempts exhausted")
			}
			return nil
		},
		func(r *models.ComponentRecord) {
			r.RepairAttempts++
		},
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeRepairExhausted) {
			s.events.Record(ctx, audit.EventRepairExhausted, audit.SeverityCritical, map[string]any{
				"max_attempts": s.maxRepairAttempts,
			}, id)
			s.metrics.ObserveRepair("exhausted")
			return nil, err
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown component")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to account repair attempt")
	}

	// Independent confirmation: the escrowed credential must still verify
	// for this identity before we are willing to re-sign it.
	if !s.creds.VerifyFor(snap.Signature, signature.SignaturePrefix, id) {
		s.events.Record(ctx, audit.EventRepairFailed, audit.SeverityCritical, map[string]any{
			"reason": "escrowed credential failed validation",
		}, id)
		s.metrics.ObserveRepair("failed")
		return nil, dErrors.New(dErrors.CodeTamperDetected, "trust anchor validation failed")
	}

	sig, err := s.creds.Sign(id, snap.Kind)
	if err != nil {
		s.metrics.ObserveRepair("failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-derive signature")
	}
	watermark, err := s.creds.Watermark(id)
	if err != nil {
		s.metrics.ObserveRepair("failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-derive watermark")
	}

	record, err = s.registry.Execute(ctx, id, nil, func(r *models.ComponentRecord) {
		r.ApplyRepair(sig, watermark, now)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to install repaired credentials")
	}

	s.events.Record(ctx, audit.EventRepaired, audit.SeverityInfo, map[string]any{
		"attempts": record.RepairAttempts,
	}, id)
	s.metrics.ObserveRepair("repaired")

	return &models.RepairOutcome{
		Repaired:  true,
		Attempts:  record.RepairAttempts,
		Signature: sig,
		Watermark: watermark,
		At:        now,
	}, nil
}

// VerifyAll checks every registered component against a point-in-time
// snapshot of the registry and aggregates the results.
func (s *Service) VerifyAll(ctx context.Context) (*models.SystemStatus, error) {
	start := time.Now()
	now := requestcontext.Now(ctx)

	snapshot, err := s.registry.All(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot registry")
	}

	status := &models.SystemStatus{
		VerifiedIDs: make([]string, 0, len(snapshot)),
		FailedIDs:   []string{},
		CheckedAt:   now,
	}

	for _, record := range snapshot {
		result, err := s.VerifyComponent(ctx, record.ID)
		if err != nil || !result.Valid {
			status.FailedIDs = append(status.FailedIDs, record.ID)
			continue
		}
		status.VerifiedIDs = append(status.VerifiedIDs, record.ID)
	}

	status.Secure = len(status.FailedIDs) == 0
	status.TotalEdges = s.graph.TotalEdges(ctx)
	s.metrics.ObserveVerifyAll(start)

	return status, nil
}
