// Package service orchestrates component attestation: registration,
// verification, tamper detection, and repair. It is the only package other
// subsystems call; stores, credentials, and the event log are injected.
package service

import (
	"context"
	"errors"
	"log/slog"

	attmetrics "attestor/internal/attestation/metrics"
	"attestor/internal/attestation/models"
	"attestor/internal/attestation/store/escrow"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/audit"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/requestcontext"
)

// ComponentRegistry stores component identity records.
type ComponentRegistry interface {
	Create(ctx context.Context, record *models.ComponentRecord) error
	FindByID(ctx context.Context, id string) (*models.ComponentRecord, error)
	All(ctx context.Context) ([]*models.ComponentRecord, error)
	Execute(ctx context.Context, id string, validate func(*models.ComponentRecord) error, mutate func(*models.ComponentRecord)) (*models.ComponentRecord, error)
}

// VerificationGraph stores directed trust/check edges.
type VerificationGraph interface {
	Link(ctx context.Context, source, target string) bool
	EdgesFrom(ctx context.Context, source string) []string
	TotalEdges(ctx context.Context) int
}

// EscrowStore holds registration-time credential snapshots, the independent
// anchor consulted during repair.
type EscrowStore interface {
	Put(ctx context.Context, snap escrow.Snapshot) error
	Get(ctx context.Context, id string) (escrow.Snapshot, error)
}

// CredentialService derives and checks identity-bound credentials.
type CredentialService interface {
	Sign(id, kind string) (string, error)
	Watermark(id string) (string, error)
	Verify(token, expectedPrefix string) bool
	VerifyFor(token, expectedPrefix, subject string) bool
}

// EventLog is the append-only attestation activity record.
type EventLog interface {
	Record(ctx context.Context, eventType string, severity audit.Severity, details map[string]any, componentID string) audit.SecurityEvent
	Query(limit int, severity audit.Severity) []audit.SecurityEvent
}

const defaultMaxRepairAttempts = 3

// Service is the attestation orchestrator.
type Service struct {
	registry ComponentRegistry
	graph    VerificationGraph
	escrow   EscrowStore
	creds    CredentialService
	events   EventLog

	logger            *slog.Logger
	metrics           *attmetrics.Metrics
	maxRepairAttempts int

	periodic *periodicRunner
}

type serviceConfig struct {
	logger            *slog.Logger
	metrics           *attmetrics.Metrics
	maxRepairAttempts int
}

// Option configures optional service collaborators.
type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

func WithMetrics(m *attmetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

// WithMaxRepairAttempts caps lifetime repair attempts per component.
func WithMaxRepairAttempts(n int) Option {
	return func(cfg *serviceConfig) { cfg.maxRepairAttempts = n }
}

func New(
	registry ComponentRegistry,
	graph VerificationGraph,
	escrowStore EscrowStore,
	creds CredentialService,
	events EventLog,
	opts ...Option,
) *Service {
	cfg := &serviceConfig{maxRepairAttempts: defaultMaxRepairAttempts}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.maxRepairAttempts <= 0 {
		cfg.maxRepairAttempts = defaultMaxRepairAttempts
	}
	return &Service{
		registry:          registry,
		graph:             graph,
		escrow:            escrowStore,
		creds:             creds,
		events:            events,
		logger:            cfg.logger,
		metrics:           cfg.metrics,
		maxRepairAttempts: cfg.maxRepairAttempts,
		periodic:          newPeriodicRunner(),
	}
}

// RegisterComponent creates a trusted-on-registration record with fresh
// credentials, escrows the registration snapshot, and emits an Info event.
// Registering an existing id fails with CodeConflict and leaves the original
// record and its credentials untouched.
func (s *Service) RegisterComponent(ctx context.Context, id, kind, name, level string) (*models.ComponentRecord, error) {
	parsedLevel, err := models.ParseSecurityLevel(level)
	if err != nil {
		return nil, err
	}

	sig, err := s.creds.Sign(id, kind)
	if err != nil {
		return nil, err
	}
	watermark, err := s.creds.Watermark(id)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	record, err := models.NewComponentRecord(id, kind, name, parsedLevel, sig, watermark, now)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "component id is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register component")
	}

	if err := s.escrow.Put(ctx, escrow.Snapshot{
		ComponentID: id,
		Kind:        kind,
		Signature:   sig,
		EscrowedAt:  now,
	}); err != nil {
		// Registration stands; a missing anchor only surfaces at repair time.
		s.logger.ErrorContext(ctx, "failed to escrow registration credential",
			"component_id", id, "error", err)
	}

	s.events.Record(ctx, audit.EventInitialization, audit.SeverityInfo, map[string]any{
		"kind":           kind,
		"name":           name,
		"security_level": string(parsedLevel),
	}, id)
	s.metrics.IncrementComponentsRegistered()

	return record, nil
}

// Link records a directed verification edge between two registered
// components. Returns false (and a Warning event, no mutation) when either
// end is unregistered. Linking the same pair twice stays true without
// duplicating the edge.
func (s *Service) Link(ctx context.Context, sourceID, targetID string) bool {
	missing := make([]string, 0, 2)
	if _, err := s.registry.FindByID(ctx, sourceID); err != nil {
		missing = append(missing, sourceID)
	}
	if _, err := s.registry.FindByID(ctx, targetID); err != nil {
		missing = append(missing, targetID)
	}
	if len(missing) > 0 {
		s.events.Record(ctx, audit.EventChainRejected, audit.SeverityWarning, map[string]any{
			"source":  sourceID,
			"target":  targetID,
			"missing": missing,
		}, "")
		return false
	}

	inserted := s.graph.Link(ctx, sourceID, targetID)
	s.events.Record(ctx, audit.EventChainCreated, audit.SeverityInfo, map[string]any{
		"source":    sourceID,
		"target":    targetID,
		"duplicate": !inserted,
	}, sourceID)
	return true
}

// Chain returns the component's outgoing verification edge set.
func (s *Service) Chain(ctx context.Context, id string) []string {
	return s.graph.EdgesFrom(ctx, id)
}

// RecordEvent appends a caller-supplied event to the log.
func (s *Service) RecordEvent(ctx context.Context, eventType string, severity audit.Severity, details map[string]any, componentID string) error {
	if eventType == "" {
		return dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	if !severity.Valid() {
		return dErrors.New(dErrors.CodeValidation, "severity must be info, warning, or critical")
	}
	s.events.Record(ctx, eventType, severity, details, componentID)
	return nil
}

// QueryEvents returns up to limit events, most recent first, optionally
// filtered by severity.
func (s *Service) QueryEvents(limit int, severity audit.Severity) ([]audit.SecurityEvent, error) {
	if limit <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must be positive")
	}
	if severity != "" && !severity.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "severity must be info, warning, or critical")
	}
	return s.events.Query(limit, severity), nil
}
