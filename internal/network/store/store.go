// Package store persists the three mirrored projections of the referral
// graph (by id, by external key, by referral code) together with the code
// reservation keyspace and the children index.
//
// Every implementation guarantees that a multi-projection write is
// all-or-nothing and that a reader never observes the mirrors of one node
// disagreeing, except through PutMirror, which exists to seed drift in tests.
package store

import (
	"context"
	"errors"
	"fmt"

	"refnet/internal/network/models"
	"refnet/pkg/platform/sentinel"
)

var (
	ErrNotFound          = sentinel.ErrNotFound
	ErrCodeTaken         = fmt.Errorf("referral code: %w", sentinel.ErrAlreadyUsed)
	ErrExternalKeyTaken  = fmt.Errorf("external key: %w", sentinel.ErrAlreadyUsed)
	ErrCodeNotReserved   = fmt.Errorf("code reservation: %w", sentinel.ErrInvalidState)
	ErrUnknownProjection = errors.New("unknown projection kind")
)

// Store is implemented by InMemory, Redis and Postgres.
type Store interface {
	// ReserveCode atomically creates the reservation or fails with ErrCodeTaken.
	ReserveCode(ctx context.Context, code models.Code) error
	// ReleaseCode drops a reservation that was never bound to a node.
	// Releasing a bound or unknown code is a no-op.
	ReleaseCode(ctx context.Context, code models.Code) error
	// CountCodes returns the number of reserved codes, bound or not.
	CountCodes(ctx context.Context) (int64, error)

	// Materialize binds node.ReferralCode to node and writes all three
	// projections plus the children index in one atomic step.
	Materialize(ctx context.Context, node models.Node) error

	FindByID(ctx context.Context, id models.NodeID) (models.Node, error)
	FindByExternalKey(ctx context.Context, externalKey string) (models.Node, error)
	FindByCode(ctx context.Context, code models.Code) (models.Node, error)
	Children(ctx context.Context, code models.Code) ([]models.Code, error)

	// IncrementCounters adds the deltas to all three projections atomically
	// and returns the post-increment by-id record. Increments commute.
	IncrementCounters(ctx context.Context, id models.NodeID, direct, team int64) (models.Node, error)
	// RaiseRank sets rank on all projections if it is higher than the stored
	// one and returns the rank stored before the call.
	RaiseRank(ctx context.Context, id models.NodeID, rank int) (int, error)
	// UpdateMirrored applies update to all three projections atomically.
	UpdateMirrored(ctx context.Context, id models.NodeID, update models.MirroredUpdate) (models.Node, error)

	// Mirrors reads the three projections of one node without reconciling them.
	Mirrors(ctx context.Context, id models.NodeID) (models.Mirrors, error)
	// PutMirror overwrites a single projection entry.
	PutMirror(ctx context.Context, kind models.ProjectionKind, node models.Node) error
	// RepairMirror copies the current by-id record over one mirror while
	// holding off concurrent writers to that node, and returns the copy.
	RepairMirror(ctx context.Context, id models.NodeID, kind models.ProjectionKind) (models.Node, error)
	// Scan visits every by-id record. Visit order is implementation-defined.
	Scan(ctx context.Context, fn func(models.Node) error) error
}
