// Package aggregation propagates a join up the ancestor chain: the direct
// referrer gains one direct referral and every ancestor up to root gains one
// team member.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
	"refnet/pkg/requestcontext"
)

// ErrDeferred marks a walk that failed part way and was handed to the
// retry queue.
var ErrDeferred = errors.New("aggregation deferred to retry")

// CounterStore is the slice of the store the walk needs.
type CounterStore interface {
	FindByCode(ctx context.Context, code models.Code) (models.Node, error)
	IncrementCounters(ctx context.Context, id models.NodeID, direct, team int64) (models.Node, error)
}

// Promoter re-evaluates the rank of a node whose counters just changed.
type Promoter interface {
	Evaluate(ctx context.Context, node models.Node) (bool, error)
}

// Retrier accepts work the walk could not finish inline.
type Retrier interface {
	RetryAggregation(ctx context.Context, task Task)
	RetryPromotion(ctx context.Context, code models.Code)
}

// Task is a resumable walk. Visited holds every code already incremented
// (plus the new node's own), so resuming never increments an ancestor twice.
type Task struct {
	Node          models.Node
	Next          models.Code
	Visited       []models.Code
	DirectApplied bool
	Attempts      int
}

// NewTask starts a walk for a freshly created node.
func NewTask(node models.Node) Task {
	return Task{
		Node:    node,
		Next:    node.ReferrerCode,
		Visited: []models.Code{node.ReferralCode},
	}
}

// Done reports whether the walk reached past root.
func (t Task) Done() bool {
	return t.Next == ""
}

type Engine struct {
	store    CounterStore
	promoter Promoter
	retrier  Retrier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithRetrier(r Retrier) Option {
	return func(e *Engine) {
		e.retrier = r
	}
}

func New(st CounterStore, promoter Promoter, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		promoter: promoter,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("refnet/aggregation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRetrier wires the retry queue after construction, since the queue
// itself resumes walks through this engine.
func (e *Engine) SetRetrier(r Retrier) {
	e.retrier = r
}

// OnNodeCreated walks from node's referrer to root. A cycle aborts with a
// StructuralIntegrityError. Any other failure hands the unfinished walk to
// the retrier and returns an error wrapping ErrDeferred.
func (e *Engine) OnNodeCreated(ctx context.Context, node models.Node) error {
	ctx, span := e.tracer.Start(ctx, "aggregation.OnNodeCreated",
		trace.WithAttributes(
			attribute.String("code", string(node.ReferralCode)),
			attribute.String("referrer_code", string(node.ReferrerCode)),
		),
	)
	defer span.End()

	remaining, err := e.Resume(ctx, NewTask(node))
	span.SetAttributes(attribute.Int("depth", len(remaining.Visited)-1))
	if err == nil {
		span.SetStatus(otelcodes.Ok, "")
		return nil
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, "aggregation failed")

	if errors.Is(err, models.ErrStructuralIntegrity) {
		e.metrics.IncrementStructuralViolation()
		e.logger.ErrorContext(ctx, "structural integrity violation while aggregating",
			"request_id", requestcontext.RequestID(ctx),
			"code", string(node.ReferralCode),
			"error", err,
		)
		return err
	}
	if e.retrier == nil {
		return err
	}
	e.logger.WarnContext(ctx, "aggregation interrupted, deferring remainder",
		"request_id", requestcontext.RequestID(ctx),
		"code", string(node.ReferralCode),
		"next_ancestor", string(remaining.Next),
		"error", err,
	)
	e.retrier.RetryAggregation(ctx, remaining)
	return fmt.Errorf("%w: %w", ErrDeferred, err)
}

// Resume continues task from task.Next and returns the task as far as it
// got. Each ancestor is one independent atomic increment.
func (e *Engine) Resume(ctx context.Context, task Task) (Task, error) {
	task.Visited = slices.Clone(task.Visited)
	visited := make(map[models.Code]struct{}, len(task.Visited))
	for _, c := range task.Visited {
		visited[c] = struct{}{}
	}

	for !task.Done() {
		code := task.Next
		if _, seen := visited[code]; seen {
			return task, &models.StructuralIntegrityError{
				At:   code,
				Path: append(slices.Clone(task.Visited), code),
			}
		}

		ancestor, err := e.store.FindByCode(ctx, code)
		if err != nil {
			return task, fmt.Errorf("load ancestor %s: %w", code, err)
		}
		var direct int64
		if !task.DirectApplied {
			direct = 1
		}
		updated, err := e.store.IncrementCounters(ctx, ancestor.ID, direct, 1)
		if err != nil {
			return task, fmt.Errorf("increment ancestor %s: %w", code, err)
		}

		task.DirectApplied = true
		task.Visited = append(task.Visited, code)
		visited[code] = struct{}{}
		task.Next = updated.ReferrerCode

		e.promote(ctx, updated)
	}
	return task, nil
}

func (e *Engine) promote(ctx context.Context, node models.Node) {
	if e.promoter == nil {
		return
	}
	if _, err := e.promoter.Evaluate(ctx, node); err != nil {
		e.logger.WarnContext(ctx, "promotion evaluation failed, scheduling retry",
			"code", string(node.ReferralCode),
			"error", err,
		)
		if e.retrier != nil {
			e.retrier.RetryPromotion(ctx, node.ReferralCode)
		}
	}
}
