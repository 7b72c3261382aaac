package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"refnet/internal/network/models"
	dErrors "refnet/pkg/domain-errors"
)

// Joiner is the operation the pool runs.
type Joiner interface {
	Join(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error)
}

// JoinRequest is one queued join.
type JoinRequest struct {
	ExternalKey  string
	ReferrerCode string
}

// JoinOutcome is delivered once per submitted request.
type JoinOutcome struct {
	Result *models.JoinResult
	Err    error
}

type poolJob struct {
	ctx    context.Context
	req    JoinRequest
	result chan JoinOutcome
}

// Pool runs joins on a fixed set of workers fed by a bounded queue. There
// is no graph-wide lock; workers only contend on the counters they share.
type Pool struct {
	joiner  Joiner
	workers int
	queue   chan poolJob
	logger  *slog.Logger

	// mu orders enqueues against shutdown: once closed is set under the
	// write lock, every accepted job is already in queue for the drain.
	mu     sync.RWMutex
	closed bool
}

type PoolOption func(*Pool)

func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

func NewPool(joiner Joiner, workers, queueDepth int, opts ...PoolOption) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	p := &Pool{
		joiner:  joiner,
		workers: workers,
		queue:   make(chan poolJob, queueDepth),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the workers and blocks until ctx is done. Queued joins are
// drained before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range p.workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-p.queue:
					p.execute(job)
				}
			}
		})
	}
	err := g.Wait()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	for {
		select {
		case job := <-p.queue:
			p.execute(job)
		default:
			return err
		}
	}
}

func (p *Pool) execute(job poolJob) {
	if err := job.ctx.Err(); err != nil {
		job.result <- JoinOutcome{Err: dErrors.Wrap(err, dErrors.CodeUnavailable, "join cancelled before it started")}
		return
	}
	// A started join runs to completion even if the caller goes away, so
	// the node and its ancestors are never left half-aggregated.
	res, err := p.joiner.Join(context.WithoutCancel(job.ctx), job.req.ExternalKey, job.req.ReferrerCode)
	job.result <- JoinOutcome{Result: res, Err: err}
}

// Submit queues req. The returned channel receives exactly one outcome.
// A full queue or a stopped pool is reported as a retryable error.
func (p *Pool) Submit(ctx context.Context, req JoinRequest) (<-chan JoinOutcome, error) {
	job := poolJob{ctx: ctx, req: req, result: make(chan JoinOutcome, 1)}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, dErrors.New(dErrors.CodeUnavailable, "join pool is shutting down")
	}
	select {
	case p.queue <- job:
		return job.result, nil
	default:
		p.logger.WarnContext(ctx, "join queue full, shedding request")
		return nil, dErrors.New(dErrors.CodeUnavailable, "too many concurrent joins, retry later")
	}
}

// Join submits and waits for the outcome.
func (p *Pool) Join(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error) {
	ch, err := p.Submit(ctx, JoinRequest{ExternalKey: externalKey, ReferrerCode: referrerCode})
	if err != nil {
		return nil, err
	}
	select {
	case out := <-ch:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "join did not complete before the request ended")
	}
}
