// Package projection creates nodes across the three mirrored projections and
// audits them for drift.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
	"refnet/internal/network/store"
	"refnet/internal/network/teamsize"
	"refnet/pkg/requestcontext"
)

// Resolver picks the effective referrer for a join.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (models.Code, error)
}

// CodeIssuer reserves and releases referral codes.
type CodeIssuer interface {
	Reserve(ctx context.Context) (models.Code, error)
	Release(ctx context.Context, code models.Code) error
}

// Verifier recomputes counters from the children index.
type Verifier interface {
	VerifyAll(ctx context.Context, root models.Code) (teamsize.Tally, error)
}

type Enforcer struct {
	store    store.Store
	resolver Resolver
	issuer   CodeIssuer
	verifier Verifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() models.NodeID
}

type Option func(*Enforcer)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enforcer) {
		e.metrics = m
	}
}

// WithIDGenerator overrides random node ids.
func WithIDGenerator(fn func() models.NodeID) Option {
	return func(e *Enforcer) {
		e.newID = fn
	}
}

func New(st store.Store, resolver Resolver, issuer CodeIssuer, verifier Verifier, opts ...Option) *Enforcer {
	e := &Enforcer{
		store:    st,
		resolver: resolver,
		issuer:   issuer,
		verifier: verifier,
		logger:   slog.New(slog.DiscardHandler),
		newID:    func() models.NodeID { return models.NodeID(uuid.New()) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateNode resolves the referrer, reserves a code and materializes the
// node in all three projections at once. A reservation is released when
// materialization does not happen, so no code is left reserved without an
// owner.
func (e *Enforcer) CreateNode(ctx context.Context, externalKey, referrer string) (models.Node, error) {
	if _, err := e.store.FindByExternalKey(ctx, externalKey); err == nil {
		return models.Node{}, models.ErrDuplicateExternalKey
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Node{}, fmt.Errorf("check external key: %w", err)
	}

	parent, err := e.resolver.Resolve(ctx, referrer)
	if err != nil {
		return models.Node{}, err
	}

	code, err := e.issuer.Reserve(ctx)
	if err != nil {
		return models.Node{}, err
	}

	node, err := models.NewNode(e.newID(), externalKey, code, parent, requestcontext.Now(ctx).UTC())
	if err != nil {
		e.release(ctx, code)
		return models.Node{}, err
	}

	if err := e.store.Materialize(ctx, node); err != nil {
		e.release(ctx, code)
		if errors.Is(err, store.ErrExternalKeyTaken) {
			return models.Node{}, models.ErrDuplicateExternalKey
		}
		return models.Node{}, fmt.Errorf("materialize node: %w", err)
	}
	return node, nil
}

// CreateRoot materializes the root under its reserved code. The code must
// already be reserved.
func (e *Enforcer) CreateRoot(ctx context.Context, externalKey string) (models.Node, error) {
	root := models.NewRootNode(externalKey, requestcontext.Now(ctx).UTC())
	if err := e.store.Materialize(ctx, root); err != nil {
		return models.Node{}, fmt.Errorf("materialize root: %w", err)
	}
	return root, nil
}

func (e *Enforcer) release(ctx context.Context, code models.Code) {
	// The join may have failed because ctx was cancelled; the release
	// must still run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.issuer.Release(ctx, code); err != nil {
		e.logger.ErrorContext(ctx, "failed to release referral code reservation",
			"request_id", requestcontext.RequestID(ctx),
			"code", string(code),
			"error", err,
		)
	}
}

// UpdateMirroredFields applies update to all three projections of id.
func (e *Enforcer) UpdateMirroredFields(ctx context.Context, id models.NodeID, update models.MirroredUpdate) (models.Node, error) {
	n, err := e.store.UpdateMirrored(ctx, id, update)
	if errors.Is(err, store.ErrNotFound) {
		return models.Node{}, models.ErrNodeNotFound
	}
	return n, err
}
