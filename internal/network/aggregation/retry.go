package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
)

// RetryConfig bounds the backoff applied to one job.
type RetryConfig struct {
	Workers         int
	QueueDepth      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

type retryJob struct {
	task    *Task
	promote models.Code
}

// RetryQueue resumes interrupted walks and re-runs failed promotions in the
// background. Jobs that exhaust their backoff, or that do not fit in the
// queue, are dead-lettered to the error log; AuditAndRepair with counter
// repair reconciles them.
type RetryQueue struct {
	engine   *Engine
	store    CounterStore
	promoter Promoter
	cfg      RetryConfig
	inbox    chan retryJob
	depth    atomic.Int64
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type RetryOption func(*RetryQueue)

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(q *RetryQueue) {
		q.logger = logger
	}
}

func WithRetryMetrics(m *metrics.Metrics) RetryOption {
	return func(q *RetryQueue) {
		q.metrics = m
	}
}

func NewRetryQueue(engine *Engine, st CounterStore, promoter Promoter, cfg RetryConfig, opts ...RetryOption) *RetryQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1024
	}
	q := &RetryQueue{
		engine:   engine,
		store:    st,
		promoter: promoter,
		cfg:      cfg,
		inbox:    make(chan retryJob, cfg.QueueDepth),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RetryQueue) RetryAggregation(ctx context.Context, task Task) {
	q.enqueue(ctx, retryJob{task: &task})
}

func (q *RetryQueue) RetryPromotion(ctx context.Context, code models.Code) {
	q.enqueue(ctx, retryJob{promote: code})
}

// Depth is the number of jobs waiting or in progress.
func (q *RetryQueue) Depth() int {
	return int(q.depth.Load())
}

func (q *RetryQueue) enqueue(ctx context.Context, job retryJob) {
	q.metrics.SetRetryQueueDepth(int(q.depth.Add(1)))
	select {
	case q.inbox <- job:
	default:
		q.deadLetter(ctx, job, errors.New("retry queue full"))
	}
}

// Run processes jobs until ctx is done. Jobs still queued at shutdown are
// dead-lettered.
func (q *RetryQueue) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range q.cfg.Workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-q.inbox:
					q.process(gctx, job)
				}
			}
		})
	}
	err := g.Wait()
	q.abandon(context.WithoutCancel(ctx))
	return err
}

func (q *RetryQueue) abandon(ctx context.Context) {
	for {
		select {
		case job := <-q.inbox:
			q.deadLetter(ctx, job, errors.New("shutdown before retry"))
		default:
			return
		}
	}
}

func (q *RetryQueue) process(ctx context.Context, job retryJob) {
	err := backoff.Retry(func() error { return q.attempt(ctx, &job) }, backoff.WithContext(q.policy(), ctx))
	if err != nil {
		q.deadLetter(ctx, job, err)
		return
	}
	q.metrics.SetRetryQueueDepth(int(q.depth.Add(-1)))
	q.metrics.IncrementRetryOutcome("succeeded")
}

func (q *RetryQueue) attempt(ctx context.Context, job *retryJob) error {
	if job.task != nil {
		job.task.Attempts++
		remaining, err := q.engine.Resume(ctx, *job.task)
		*job.task = remaining
		if errors.Is(err, models.ErrStructuralIntegrity) {
			return backoff.Permanent(err)
		}
		return err
	}

	node, err := q.store.FindByCode(ctx, job.promote)
	if err != nil {
		return fmt.Errorf("reload %s: %w", job.promote, err)
	}
	_, err = q.promoter.Evaluate(ctx, node)
	return err
}

func (q *RetryQueue) policy() backoff.BackOff {
	p := backoff.NewExponentialBackOff()
	if q.cfg.InitialInterval > 0 {
		p.InitialInterval = q.cfg.InitialInterval
	}
	if q.cfg.MaxInterval > 0 {
		p.MaxInterval = q.cfg.MaxInterval
	}
	p.MaxElapsedTime = q.cfg.MaxElapsed
	return p
}

func (q *RetryQueue) deadLetter(ctx context.Context, job retryJob, err error) {
	q.metrics.SetRetryQueueDepth(int(q.depth.Add(-1)))
	q.metrics.IncrementRetryOutcome("dead_lettered")
	if job.task != nil {
		q.logger.ErrorContext(ctx, "aggregation dead-lettered, run audit with counter repair",
			"code", string(job.task.Node.ReferralCode),
			"next_ancestor", string(job.task.Next),
			"direct_applied", job.task.DirectApplied,
			"attempts", job.task.Attempts,
			"error", err,
		)
		return
	}
	q.logger.ErrorContext(ctx, "promotion retry dead-lettered",
		"code", string(job.promote),
		"error", err,
	)
}
