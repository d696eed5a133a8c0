// Package signature derives and checks the identity-bound credentials used
// by the attestation subsystem.
//
// Two token families exist:
//
//   - Signatures ("CMP-SIG.v1." prefix): the primary credential proving a
//     component's registered identity. HS256 JWTs over the process-wide
//     signing key, carrying the component id and kind plus a random nonce.
//   - Watermarks ("CMP-WMK.v1." prefix): audit-display tokens bound to an
//     identifier and issue time, authenticated with a keyed BLAKE2b MAC.
//     Never used for trust decisions.
//
// Both are opaque strings with a recognizable prefix and an embedded
// identity marker, verifiable offline with the corresponding key. Keys are
// injected at construction; there is no global key lookup.
package signature

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	dErrors "attestor/pkg/domain-errors"
)

// Credential prefixes. Verify refuses tokens whose prefix does not match
// the caller's expectation.
const (
	SignaturePrefix = "CMP-SIG.v1."
	WatermarkPrefix = "CMP-WMK.v1."
)

// Config carries the key material and issuer identity for a Service.
type Config struct {
	SigningKey   string
	WatermarkKey string
	Issuer       string
}

// Service issues and verifies component credentials.
type Service struct {
	signingKey   []byte
	watermarkKey []byte
	issuer       string
}

// New validates the key material and returns a Service. The watermark key
// must fit BLAKE2b's 64-byte key limit.
func New(cfg Config) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing key is required")
	}
	if cfg.WatermarkKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "watermark key is required")
	}
	if len(cfg.WatermarkKey) > blake2b.Size {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "watermark key must be at most 64 bytes")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "attestor"
	}
	return &Service{
		signingKey:   []byte(cfg.SigningKey),
		watermarkKey: []byte(cfg.WatermarkKey),
		issuer:       issuer,
	}, nil
}

// componentClaims binds a signature to its component identity.
type componentClaims struct {
	ComponentID string `json:"component_id"`
	Kind        string `json:"kind"`
	Nonce       string `json:"nonce"`
	jwt.RegisteredClaims
}

// Sign derives the primary credential for (id, kind). The embedded nonce
// makes tokens differ run to run; verifiability comes from the MAC, not
// from byte equality.
func (s *Service) Sign(id, kind string) (string, error) {
	if id == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "component id is required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, componentClaims{
		ComponentID: id,
		Kind:        kind,
		Nonce:       uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: s.issuer,
			ID:     uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign component credential")
	}
	return SignaturePrefix + signed, nil
}

// watermarkPayload binds a watermark to its subject and issue time.
type watermarkPayload struct {
	Subject  string `json:"subject"`
	IssuedAt string `json:"issued_at"`
	Nonce    string `json:"nonce"`
}

// Watermark derives the audit-display token for id.
func (s *Service) Watermark(id string) (string, error) {
	if id == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "watermark subject is required")
	}

	payload, err := json.Marshal(watermarkPayload{
		Subject:  id,
		IssuedAt: nowUTC(),
		Nonce:    uuid.NewString(),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not encode watermark payload")
	}

	mac, err := s.watermarkMAC(payload)
	if err != nil {
		return "", err
	}

	return WatermarkPrefix +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(mac), nil
}

// Verify reports whether token carries the expected prefix and a valid,
// key-authenticated body with a non-empty identity marker. No side effects.
func (s *Service) Verify(token, expectedPrefix string) bool {
	return s.VerifyFor(token, expectedPrefix, "")
}

// VerifyFor is Verify with an additional check that the embedded identity
// marker names the given subject. An empty subject only requires the marker
// to be present.
func (s *Service) VerifyFor(token, expectedPrefix, subject string) bool {
	if !strings.HasPrefix(token, expectedPrefix) {
		return false
	}
	body := strings.TrimPrefix(token, expectedPrefix)

	switch expectedPrefix {
	case SignaturePrefix:
		id, err := s.signatureSubject(body)
		if err != nil {
			return false
		}
		return subject == "" || id == subject
	case WatermarkPrefix:
		id, err := s.watermarkSubject(body)
		if err != nil {
			return false
		}
		return subject == "" || id == subject
	default:
		return false
	}
}

// ComponentID extracts the identity marker from a signature credential,
// verifying it in the process.
func (s *Service) ComponentID(token string) (string, error) {
	if !strings.HasPrefix(token, SignaturePrefix) {
		return "", dErrors.New(dErrors.CodeTamperDetected, "credential prefix mismatch")
	}
	return s.signatureSubject(strings.TrimPrefix(token, SignaturePrefix))
}

func (s *Service) signatureSubject(body string) (string, error) {
	parsed, err := jwt.ParseWithClaims(body, &componentClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeTamperDetected, "invalid component credential")
	}

	claims, ok := parsed.Claims.(*componentClaims)
	if !ok || claims.ComponentID == "" {
		return "", dErrors.New(dErrors.CodeTamperDetected, "credential missing identity marker")
	}
	return claims.ComponentID, nil
}

func (s *Service) watermarkSubject(body string) (string, error) {
	payloadPart, macPart, found := strings.Cut(body, ".")
	if !found {
		return "", dErrors.New(dErrors.CodeTamperDetected, "malformed watermark")
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return "", dErrors.New(dErrors.CodeTamperDetected, "malformed watermark payload")
	}
	mac, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return "", dErrors.New(dErrors.CodeTamperDetected, "malformed watermark tag")
	}

	expected, err := s.watermarkMAC(payload)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(mac, expected) != 1 {
		return "", dErrors.New(dErrors.CodeTamperDetected, "watermark authentication failed")
	}

	var wp watermarkPayload
	if err := json.Unmarshal(payload, &wp); err != nil || wp.Subject == "" {
		return "", dErrors.New(dErrors.CodeTamperDetected, "watermark missing identity marker")
	}
	return wp.Subject, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Service) watermarkMAC(payload []byte) ([]byte, error) {
	h, err := blake2b.New256(s.watermarkKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize watermark MAC")
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
