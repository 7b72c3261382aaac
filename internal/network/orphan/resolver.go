// Package orphan attaches joins with a missing or unusable referrer to root.
package orphan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"refnet/internal/network/models"
	"refnet/internal/network/store"
	"refnet/pkg/requestcontext"
)

// CodeLookup finds the node that owns a referral code.
type CodeLookup interface {
	FindByCode(ctx context.Context, code models.Code) (models.Node, error)
}

// FormatChecker reports whether a code is syntactically possible.
type FormatChecker interface {
	Valid(code models.Code) bool
}

type Resolver struct {
	lookup CodeLookup
	format FormatChecker
	logger *slog.Logger
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithFormatChecker rejects malformed codes without a store round trip.
func WithFormatChecker(f FormatChecker) Option {
	return func(r *Resolver) {
		r.format = f
	}
}

func New(lookup CodeLookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup: lookup,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the code a new node should attach under. Empty, malformed
// and unknown codes resolve to root. Lookup failures other than not-found
// are returned so an outage never silently re-parents a join.
func (r *Resolver) Resolve(ctx context.Context, raw string) (models.Code, error) {
	code := models.NormalizeCode(raw)
	if code == "" {
		return models.RootCode, nil
	}
	if code == models.RootCode {
		return code, nil
	}
	if r.format != nil && !r.format.Valid(code) {
		r.orphaned(ctx, code, "malformed")
		return models.RootCode, nil
	}

	_, err := r.lookup.FindByCode(ctx, code)
	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, store.ErrNotFound):
		r.orphaned(ctx, code, "unknown")
		return models.RootCode, nil
	default:
		return "", fmt.Errorf("resolve referrer %s: %w", code, err)
	}
}

func (r *Resolver) orphaned(ctx context.Context, code models.Code, reason string) {
	r.logger.InfoContext(ctx, "referrer code unusable, attaching to root",
		"request_id", requestcontext.RequestID(ctx),
		"referrer_code", string(code),
		"reason", reason,
	)
}
