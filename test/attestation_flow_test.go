package test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"attestor/internal/attestation/handler"
	"attestor/internal/attestation/service"
	"attestor/internal/attestation/store/escrow"
	"attestor/internal/attestation/store/graph"
	"attestor/internal/attestation/store/registry"
	"attestor/internal/platform/middleware"
	"attestor/internal/signature"
	"attestor/pkg/platform/audit"
	"attestor/pkg/testutil"
)

// TestAttestationFlow drives the full HTTP surface through one realistic
// session: register two components, link them, verify the system, and read
// back the event trail.
func TestAttestationFlow(t *testing.T) {
	router := newRouter(t)

	testutil.Given(t, "two registered, linked components", func(t *testing.T) {
		for _, c := range []map[string]string{
			{"id": "A", "kind": "ui-component", "name": "Header"},
			{"id": "B", "kind": "workflow", "name": "Engine", "security_level": "enhanced"},
		} {
			rec := do(t, router, http.MethodPost, "/attestation/components", c)
			if rec.Code != http.StatusCreated {
				t.Fatalf("expected 201 registering %q, got %d: %s", c["id"], rec.Code, rec.Body.String())
			}
		}

		rec := do(t, router, http.MethodPost, "/attestation/links", map[string]string{
			"source_id": "A", "target_id": "B",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 linking, got %d", rec.Code)
		}

		testutil.When(t, "the system status is requested", func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/attestation/status", nil)

			testutil.Then(t, "the system is secure with both components verified", func(t *testing.T) {
				if rec.Code != http.StatusOK {
					t.Fatalf("expected 200, got %d", rec.Code)
				}
				var status struct {
					Secure      bool     `json:"secure"`
					VerifiedIDs []string `json:"verified_ids"`
					FailedIDs   []string `json:"failed_ids"`
					TotalEdges  int      `json:"total_edges"`
				}
				decode(t, rec, &status)
				if !status.Secure {
					t.Fatalf("expected secure system, got %+v", status)
				}
				if len(status.VerifiedIDs) != 2 || len(status.FailedIDs) != 0 || status.TotalEdges != 1 {
					t.Fatalf("unexpected status: %+v", status)
				}
			})
		})

		testutil.When(t, "a single component is verified", func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/attestation/verify/A", nil)

			testutil.Then(t, "it is valid and carries its verification chain", func(t *testing.T) {
				if rec.Code != http.StatusOK {
					t.Fatalf("expected 200, got %d", rec.Code)
				}
				var result struct {
					Valid bool     `json:"valid"`
					Chain []string `json:"chain"`
				}
				decode(t, rec, &result)
				if !result.Valid {
					t.Fatalf("expected valid verification")
				}
				if len(result.Chain) != 1 || result.Chain[0] != "B" {
					t.Fatalf("expected chain [B], got %v", result.Chain)
				}
			})
		})

		testutil.When(t, "the event trail is queried", func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/attestation/events?limit=100", nil)

			testutil.Then(t, "registration and verification events are present", func(t *testing.T) {
				if rec.Code != http.StatusOK {
					t.Fatalf("expected 200, got %d", rec.Code)
				}
				var events []struct {
					EventType string `json:"event_type"`
					Severity  string `json:"severity"`
					Watermark string `json:"watermark"`
				}
				decode(t, rec, &events)

				counts := map[string]int{}
				for _, event := range events {
					counts[event.EventType]++
					if event.Watermark == "" {
						t.Fatalf("event %q missing watermark", event.EventType)
					}
					if event.Severity != "info" {
						t.Fatalf("unexpected severity %q for %q", event.Severity, event.EventType)
					}
				}
				if counts["initialization"] != 2 {
					t.Fatalf("expected 2 initialization events, got %d", counts["initialization"])
				}
				if counts["chain_created"] != 1 {
					t.Fatalf("expected 1 chain_created event, got %d", counts["chain_created"])
				}
				if counts["component_verification"] == 0 {
					t.Fatalf("expected verification events")
				}
			})
		})
	})
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds, err := signature.New(signature.Config{
		SigningKey:   "flow-test-signing-key",
		WatermarkKey: "flow-test-watermark-key",
	})
	if err != nil {
		t.Fatalf("failed to build signature service: %v", err)
	}

	svc := service.New(
		registry.NewInMemory(),
		graph.NewInMemory(),
		escrow.NewInMemory(),
		creds,
		audit.NewLog(logger, creds, 64),
		service.WithLogger(logger),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	handler.New(svc, logger).Register(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
