package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/internal/attestation/models"
	"attestor/internal/attestation/store/escrow"
	"attestor/internal/attestation/store/graph"
	"attestor/internal/attestation/store/registry"
	"attestor/internal/signature"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/audit"
	"attestor/pkg/testutil"
)

// harness wires the service to real in-memory collaborators; every test
// exercises the same objects production uses.
type harness struct {
	svc      *Service
	registry *registry.InMemory
	graph    *graph.InMemory
	escrow   *escrow.InMemory
	creds    *signature.Service
	events   *audit.Log
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	creds, err := signature.New(signature.Config{
		SigningKey:   "service-test-signing-key",
		WatermarkKey: "service-test-watermark-key",
	})
	require.NoError(t, err)

	h := &harness{
		registry: registry.NewInMemory(),
		graph:    graph.NewInMemory(),
		escrow:   escrow.NewInMemory(),
		creds:    creds,
		events:   audit.NewLog(logger, creds, 32),
	}
	opts = append([]Option{WithLogger(logger)}, opts...)
	h.svc = New(h.registry, h.graph, h.escrow, h.creds, h.events, opts...)
	return h
}

// corrupt forcibly invalidates a component's stored signature, simulating
// tampering.
func (h *harness) corrupt(t *testing.T, id string) {
	t.Helper()
	_, err := h.registry.Execute(context.Background(), id, nil, func(r *models.ComponentRecord) {
		r.Signature = signature.SignaturePrefix + "forged-credential"
	})
	require.NoError(t, err)
}

// eventTypes returns the logged event types, oldest first.
func (h *harness) eventTypes() []string {
	events := h.events.Query(1000, "")
	out := make([]string, len(events))
	for i, event := range events {
		out[len(events)-1-i] = event.EventType
	}
	return out
}

func TestRegisterComponent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("creates a trusted record with verifiable credentials", func(t *testing.T) {
		record, err := h.svc.RegisterComponent(ctx, "header", "ui-component", "Header", "")
		require.NoError(t, err)

		assert.True(t, record.Verified)
		assert.Equal(t, models.LevelStandard, record.SecurityLevel)
		assert.NotEmpty(t, record.Signature)
		assert.NotEmpty(t, record.Watermark)
		assert.True(t, h.creds.VerifyFor(record.Signature, signature.SignaturePrefix, "header"))
		assert.True(t, h.creds.VerifyFor(record.Watermark, signature.WatermarkPrefix, "header"))
	})

	t.Run("records an initialization event", func(t *testing.T) {
		events, err := h.svc.QueryEvents(1, "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.EventInitialization, events[0].EventType)
		assert.Equal(t, audit.SeverityInfo, events[0].Severity)
		assert.Equal(t, "header", events[0].ComponentID)
	})

	t.Run("escrows the registration credential", func(t *testing.T) {
		snap, err := h.escrow.Get(ctx, "header")
		require.NoError(t, err)
		assert.Equal(t, "ui-component", snap.Kind)
		assert.True(t, h.creds.VerifyFor(snap.Signature, signature.SignaturePrefix, "header"))
	})

	t.Run("rejects duplicate id without touching the original", func(t *testing.T) {
		original, err := h.registry.FindByID(ctx, "header")
		require.NoError(t, err)

		_, err = h.svc.RegisterComponent(ctx, "header", "other-kind", "Imposter", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		after, err := h.registry.FindByID(ctx, "header")
		require.NoError(t, err)
		assert.Equal(t, original.Signature, after.Signature)
	})

	t.Run("rejects an unknown security level", func(t *testing.T) {
		_, err := h.svc.RegisterComponent(ctx, "x", "ui", "X", "cosmic")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts explicit levels", func(t *testing.T) {
		record, err := h.svc.RegisterComponent(ctx, "vault", "storage", "Vault", "maximum")
		require.NoError(t, err)
		assert.Equal(t, models.LevelMaximum, record.SecurityLevel)
	})
}

func TestLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RegisterComponent(ctx, "a", "ui", "A", "")
	require.NoError(t, err)
	_, err = h.svc.RegisterComponent(ctx, "b", "workflow", "B", "")
	require.NoError(t, err)

	t.Run("refuses unregistered endpoints without mutating", func(t *testing.T) {
		assert.False(t, h.svc.Link(ctx, "a", "ghost"))
		assert.False(t, h.svc.Link(ctx, "ghost", "b"))
		assert.Equal(t, 0, h.graph.TotalEdges(ctx))

		warnings, err := h.svc.QueryEvents(10, audit.SeverityWarning)
		require.NoError(t, err)
		assert.Len(t, warnings, 2)
		assert.Equal(t, audit.EventChainRejected, warnings[0].EventType)
	})

	t.Run("links registered components", func(t *testing.T) {
		assert.True(t, h.svc.Link(ctx, "a", "b"))
		assert.Equal(t, []string{"b"}, h.svc.Chain(ctx, "a"))
		assert.Equal(t, 1, h.graph.TotalEdges(ctx))
	})

	t.Run("linking twice does not duplicate the edge", func(t *testing.T) {
		assert.True(t, h.svc.Link(ctx, "a", "b"))
		assert.Equal(t, []string{"b"}, h.svc.Chain(ctx, "a"))
		assert.Equal(t, 1, h.graph.TotalEdges(ctx))
	})
}

func TestVerifyComponent(t *testing.T) {
	t.Run("unknown component fails with exactly one critical event", func(t *testing.T) {
		h := newHarness(t)
		result, err := h.svc.VerifyComponent(context.Background(), "never-registered")

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		require.NotNil(t, result)
		assert.False(t, result.Valid)

		criticals, qerr := h.svc.QueryEvents(10, audit.SeverityCritical)
		require.NoError(t, qerr)
		require.Len(t, criticals, 1)
		assert.Equal(t, audit.EventUnknownComponent, criticals[0].EventType)
	})

	t.Run("valid component verifies and is stamped", func(t *testing.T) {
		h := newHarness(t)
		checkedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		ctx := testutil.ContextWithTime(checkedAt)
		_, err := h.svc.RegisterComponent(ctx, "engine", "workflow", "Engine", "")
		require.NoError(t, err)

		result, err := h.svc.VerifyComponent(ctx, "engine")
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.False(t, result.Repaired)
		assert.True(t, result.Record.Verified)
		assert.Equal(t, checkedAt, result.CheckedAt)
		assert.Equal(t, checkedAt, result.Record.LastVerifiedAt)
	})

	t.Run("chain carries the outgoing edge set", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		for _, id := range []string{"hub", "alpha", "beta"} {
			_, err := h.svc.RegisterComponent(ctx, id, "ui", id, "")
			require.NoError(t, err)
		}
		require.True(t, h.svc.Link(ctx, "hub", "beta"))
		require.True(t, h.svc.Link(ctx, "hub", "alpha"))

		result, err := h.svc.VerifyComponent(ctx, "hub")
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, result.Chain)
	})
}

func TestTamperAndRepair(t *testing.T) {
	t.Run("tampered component is repaired and valid again", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		_, err := h.svc.RegisterComponent(ctx, "engine", "workflow", "Engine", "")
		require.NoError(t, err)

		h.corrupt(t, "engine")

		result, err := h.svc.VerifyComponent(ctx, "engine")
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.True(t, result.Repaired)
		assert.True(t, h.creds.VerifyFor(result.Record.Signature, signature.SignaturePrefix, "engine"))

		// Critical tamper event strictly precedes the repaired event.
		types := h.eventTypes()
		tamperIdx, repairedIdx := -1, -1
		for i, typ := range types {
			switch typ {
			case audit.EventTamperDetected:
				tamperIdx = i
			case audit.EventRepaired:
				repairedIdx = i
			}
		}
		require.GreaterOrEqual(t, tamperIdx, 0)
		require.Greater(t, repairedIdx, tamperIdx)

		// A follow-up verification succeeds without repair.
		again, err := h.svc.VerifyComponent(ctx, "engine")
		require.NoError(t, err)
		assert.True(t, again.Valid)
		assert.False(t, again.Repaired)
	})

	t.Run("repeated tampering exhausts the repair budget", func(t *testing.T) {
		h := newHarness(t, WithMaxRepairAttempts(2))
		ctx := context.Background()
		_, err := h.svc.RegisterComponent(ctx, "engine", "workflow", "Engine", "")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			h.corrupt(t, "engine")
			result, err := h.svc.VerifyComponent(ctx, "engine")
			require.NoError(t, err)
			require.True(t, result.Valid)
		}

		h.corrupt(t, "engine")
		result, err := h.svc.VerifyComponent(ctx, "engine")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeRepairExhausted))
		assert.False(t, result.Valid)

		// The component stays corrupted pending operator intervention.
		record, err := h.registry.FindByID(ctx, "engine")
		require.NoError(t, err)
		assert.False(t, record.Verified)

		criticals, err := h.svc.QueryEvents(100, audit.SeverityCritical)
		require.NoError(t, err)
		var exhausted bool
		for _, event := range criticals {
			if event.EventType == audit.EventRepairExhausted {
				exhausted = true
			}
		}
		assert.True(t, exhausted)
	})

	t.Run("repair consumes attempts across separate incidents", func(t *testing.T) {
		h := newHarness(t, WithMaxRepairAttempts(3))
		ctx := context.Background()
		_, err := h.svc.RegisterComponent(ctx, "engine", "workflow", "Engine", "")
		require.NoError(t, err)

		h.corrupt(t, "engine")
		_, err = h.svc.VerifyComponent(ctx, "engine")
		require.NoError(t, err)

		record, err := h.registry.FindByID(ctx, "engine")
		require.NoError(t, err)
		assert.Equal(t, 1, record.RepairAttempts)
	})
}

func TestVerifyAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RegisterComponent(ctx, "A", "ui", "Header", "")
	require.NoError(t, err)
	_, err = h.svc.RegisterComponent(ctx, "B", "workflow", "Engine", "")
	require.NoError(t, err)
	require.True(t, h.svc.Link(ctx, "A", "B"))

	t.Run("clean system reports secure", func(t *testing.T) {
		status, err := h.svc.VerifyAll(ctx)
		require.NoError(t, err)

		assert.True(t, status.Secure)
		assert.Equal(t, []string{"A", "B"}, status.VerifiedIDs)
		assert.Empty(t, status.FailedIDs)
		assert.Equal(t, 1, status.TotalEdges)
	})

	t.Run("tampered component is repaired during the sweep", func(t *testing.T) {
		h.corrupt(t, "B")

		status, err := h.svc.VerifyAll(ctx)
		require.NoError(t, err)

		assert.True(t, status.Secure)
		assert.Equal(t, []string{"A", "B"}, status.VerifiedIDs)
		assert.Empty(t, status.FailedIDs)

		types := h.eventTypes()
		tamperIdx, repairedIdx := -1, -1
		for i, typ := range types {
			switch typ {
			case audit.EventTamperDetected:
				tamperIdx = i
			case audit.EventRepaired:
				repairedIdx = i
			}
		}
		require.GreaterOrEqual(t, tamperIdx, 0)
		require.Greater(t, repairedIdx, tamperIdx)
	})

	t.Run("exhausted component surfaces as failed", func(t *testing.T) {
		hx := newHarness(t, WithMaxRepairAttempts(1))
		_, err := hx.svc.RegisterComponent(ctx, "frail", "ui", "Frail", "")
		require.NoError(t, err)

		hx.corrupt(t, "frail")
		_, err = hx.svc.VerifyComponent(ctx, "frail")
		require.NoError(t, err)

		hx.corrupt(t, "frail")
		status, err := hx.svc.VerifyAll(ctx)
		require.NoError(t, err)

		assert.False(t, status.Secure)
		assert.Equal(t, []string{"frail"}, status.FailedIDs)
	})
}

func TestRecordAndQueryEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("validates inputs", func(t *testing.T) {
		err := h.svc.RecordEvent(ctx, "", audit.SeverityInfo, nil, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		err = h.svc.RecordEvent(ctx, "custom", "catastrophic", nil, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = h.svc.QueryEvents(0, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = h.svc.QueryEvents(10, "catastrophic")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("caller events land in the log with watermarks", func(t *testing.T) {
		require.NoError(t, h.svc.RecordEvent(ctx, "deployment", audit.SeverityInfo,
			map[string]any{"version": "1.2.3"}, "engine"))

		events, err := h.svc.QueryEvents(1, "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "deployment", events[0].EventType)
		assert.True(t, h.creds.Verify(events[0].Watermark, signature.WatermarkPrefix))
	})
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Register A("ui","Header") and B("workflow","Engine"), link them.
	_, err := h.svc.RegisterComponent(ctx, "A", "ui", "Header", "")
	require.NoError(t, err)
	_, err = h.svc.RegisterComponent(ctx, "B", "workflow", "Engine", "")
	require.NoError(t, err)
	require.True(t, h.svc.Link(ctx, "A", "B"))

	status, err := h.svc.VerifyAll(ctx)
	require.NoError(t, err)
	require.True(t, status.Secure)
	require.Equal(t, []string{"A", "B"}, status.VerifiedIDs)
	require.Empty(t, status.FailedIDs)

	// Corrupt B: the next sweep repairs it and stays secure, leaving a
	// Critical event followed by a repaired event for B, in that order.
	h.corrupt(t, "B")
	status, err = h.svc.VerifyAll(ctx)
	require.NoError(t, err)
	assert.True(t, status.Secure)
	assert.Empty(t, status.FailedIDs)

	events := h.events.Query(1000, "")
	var sawRepaired bool
	for _, event := range events { // most recent first
		if event.ComponentID != "B" {
			continue
		}
		if event.EventType == audit.EventRepaired {
			sawRepaired = true
		}
		if event.EventType == audit.EventTamperDetected {
			assert.True(t, sawRepaired, "tamper event must precede the repaired event")
			break
		}
	}
	assert.True(t, sawRepaired)
}
