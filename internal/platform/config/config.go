package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr              string
	SigningKey        string
	WatermarkKey      string
	VerifyInterval    time.Duration
	MaxRepairAttempts int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ATTESTOR_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	signingKey := os.Getenv("ATTESTOR_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-signing-key-change-in-production"
	}
	watermarkKey := os.Getenv("ATTESTOR_WATERMARK_KEY")
	if watermarkKey == "" {
		watermarkKey = "dev-watermark-key-change-in-production"
	}

	interval := 30 * time.Second
	if raw := os.Getenv("ATTESTOR_VERIFY_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		}
	}

	maxRepairs := 3
	if raw := os.Getenv("ATTESTOR_MAX_REPAIR_ATTEMPTS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxRepairs = n
		}
	}

	return Server{
		Addr:              addr,
		SigningKey:        signingKey,
		WatermarkKey:      watermarkKey,
		VerifyInterval:    interval,
		MaxRepairAttempts: maxRepairs,
	}
}
