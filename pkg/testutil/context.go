package testutil

import (
	"context"
	"time"

	"attestor/pkg/requestcontext"
)

// ContextWithTime returns a background context carrying a fixed request time,
// so services that read requestcontext.Now produce deterministic timestamps.
func ContextWithTime(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// ContextWithRequestID returns a background context carrying a request ID,
// mirroring what the RequestID middleware does in production.
func ContextWithRequestID(id string) context.Context {
	return requestcontext.WithRequestID(context.Background(), id)
}
