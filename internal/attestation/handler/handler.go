package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"attestor/internal/attestation/models"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/audit"
	"attestor/pkg/platform/httputil"
	"attestor/pkg/requestcontext"
)

// Service defines the interface for attestation operations.
type Service interface {
	RegisterComponent(ctx context.Context, id, kind, name, level string) (*models.ComponentRecord, error)
	VerifyComponent(ctx context.Context, id string) (*models.VerificationResult, error)
	VerifyAll(ctx context.Context) (*models.SystemStatus, error)
	Link(ctx context.Context, sourceID, targetID string) bool
	RecordEvent(ctx context.Context, eventType string, severity audit.Severity, details map[string]any, componentID string) error
	QueryEvents(limit int, severity audit.Severity) ([]audit.SecurityEvent, error)
}

// Handler wires attestation endpoints to the attestation service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an attestation handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts attestation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/attestation/components", h.HandleRegister)
	r.Post("/attestation/verify/{id}", h.HandleVerify)
	r.Get("/attestation/status", h.HandleStatus)
	r.Post("/attestation/links", h.HandleLink)
	r.Post("/attestation/events", h.HandleRecordEvent)
	r.Get("/attestation/events", h.HandleQueryEvents)
}

// HandleRegister handles POST /attestation/components requests.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.RegisterComponent(ctx, req.ID, req.Kind, req.Name, string(req.ParsedLevel()))
	if err != nil {
		h.logger.ErrorContext(ctx, "component registration failed",
			"request_id", requestID,
			"component_id", req.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "component registered",
		"request_id", requestID,
		"component_id", record.ID,
		"kind", record.Kind,
		"security_level", record.SecurityLevel,
	)

	httputil.WriteJSON(w, http.StatusCreated, FromRecord(record))
}

// HandleVerify handles POST /attestation/verify/{id} requests.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "component id is required"))
		return
	}

	result, err := h.service.VerifyComponent(ctx, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "component verification failed",
			"request_id", requestID,
			"component_id", id,
			"error", err,
		)
		// A failed verification still carries a result describing the
		// failure; surface it alongside the error status.
		if result != nil {
			status := http.StatusConflict
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				status = http.StatusNotFound
			}
			httputil.WriteJSON(w, status, FromVerification(result))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "component verified",
		"request_id", requestID,
		"component_id", id,
		"repaired", result.Repaired,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromVerification(result))
}

// HandleStatus handles GET /attestation/status requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	status, err := h.service.VerifyAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "system verification failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "system verified",
		"request_id", requestID,
		"secure", status.Secure,
		"verified", len(status.VerifiedIDs),
		"failed", len(status.FailedIDs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromStatus(status))
}

// HandleLink handles POST /attestation/links requests.
func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LinkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	linked := h.service.Link(ctx, req.SourceID, req.TargetID)
	if !linked {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "both link endpoints must be registered components"))
		return
	}

	h.logger.InfoContext(ctx, "components linked",
		"request_id", requestID,
		"source_id", req.SourceID,
		"target_id", req.TargetID,
	)

	httputil.WriteJSON(w, http.StatusCreated, LinkResponse{Linked: true})
}

// HandleRecordEvent handles POST /attestation/events requests.
func (h *Handler) HandleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.service.RecordEvent(ctx, req.EventType, audit.Severity(req.Severity), req.Details, req.ComponentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "event recording failed",
			"request_id", requestID,
			"event_type", req.EventType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleQueryEvents handles GET /attestation/events requests. The limit
// query parameter defaults to 100; severity filters when present.
func (h *Handler) HandleQueryEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be an integer"))
			return
		}
		limit = n
	}

	events, err := h.service.QueryEvents(limit, audit.Severity(r.URL.Query().Get("severity")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}
