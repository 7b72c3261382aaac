package testutil

import (
	"net/http"
	"time"

	"refnet/pkg/requestcontext"
)

// WithRequestID stamps req the way the request middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithRequestTime pins the request clock so handlers and services that read
// requestcontext.Now see a fixed instant.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
