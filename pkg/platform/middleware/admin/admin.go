// Package admin guards operator endpoints behind a static token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "refnet/pkg/domain-errors"
	"refnet/pkg/platform/httputil"
	"refnet/pkg/requestcontext"
)

// TokenHeader carries the operator token.
const TokenHeader = "X-Admin-Token"

var (
	errDisabled     = dErrors.New(dErrors.CodeForbidden, "admin endpoints are disabled")
	errMissingToken = dErrors.New(dErrors.CodeUnauthorized, "admin token required")
	errBadToken     = dErrors.New(dErrors.CodeUnauthorized, "admin token rejected")
)

type guard struct {
	expected []byte
	logger   *slog.Logger
}

type Option func(*guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// RequireToken admits requests whose TokenHeader matches expected. An empty
// expected token disables the guarded routes entirely.
func RequireToken(expected string, opts ...Option) func(http.Handler) http.Handler {
	g := &guard{expected: []byte(expected), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(g)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.check(r.Header.Get(TokenHeader)); err != nil {
				ctx := r.Context()
				g.logger.WarnContext(ctx, "admin request refused",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
					"path", r.URL.Path,
					"reason", err.Error(),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *guard) check(token string) error {
	switch {
	case len(g.expected) == 0:
		return errDisabled
	case token == "":
		return errMissingToken
	case subtle.ConstantTimeCompare([]byte(token), g.expected) != 1:
		return errBadToken
	}
	return nil
}
