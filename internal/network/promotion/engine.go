// Package promotion evaluates the rank ladder after counters change.
package promotion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
)

// RankStore applies a monotonic rank raise and reports the rank it replaced.
type RankStore interface {
	RaiseRank(ctx context.Context, id models.NodeID, rank int) (int, error)
}

// Publisher delivers promotion events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.PromotionEvent)
}

type Engine struct {
	table     Table
	store     RankStore
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
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

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(table Table, st RankStore, publisher Publisher, opts ...Option) (*Engine, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		table:     table,
		store:     st,
		publisher: publisher,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Table() Table {
	return e.table
}

// Target returns the highest rank whose thresholds are both met.
func (e *Engine) Target(direct, team int64) (int, Rank) {
	target := 0
	for i, r := range e.table {
		if direct >= r.DirectThreshold && team >= r.TeamThreshold {
			target = i
		}
	}
	return target, e.table[target]
}

// Evaluate raises node's rank when its counters qualify for a higher one.
// An event is published only when this call performed the raise, so
// concurrent evaluations of the same node emit once.
func (e *Engine) Evaluate(ctx context.Context, node models.Node) (bool, error) {
	target, rank := e.Target(node.DirectCount, node.TeamCount)
	if target <= node.Rank {
		return false, nil
	}
	prev, err := e.store.RaiseRank(ctx, node.ID, target)
	if err != nil {
		return false, fmt.Errorf("raise rank of %s: %w", node.ReferralCode, err)
	}
	if prev >= target {
		return false, nil
	}

	event := models.PromotionEvent{
		NodeID:      node.ID,
		Code:        node.ReferralCode,
		OldRank:     prev,
		NewRank:     target,
		NewRankName: rank.Name,
		At:          e.now().UTC(),
	}
	e.metrics.IncrementPromotion(rank.Name)
	e.logger.InfoContext(ctx, "node promoted",
		"node_id", node.ID.String(),
		"code", string(node.ReferralCode),
		"old_rank", prev,
		"new_rank", target,
		"rank_name", rank.Name,
	)
	if e.publisher != nil {
		e.publisher.Publish(ctx, event)
	}
	return true, nil
}

// Progress reports the next rank after node's current one and how close
// node is to it. Each gate is capped at 1 and the slower gate wins; a zero
// threshold counts as met. The terminal rank has no next rank and
// progress 1.
func (e *Engine) Progress(node models.Node) (*int, float64) {
	next := node.Rank + 1
	if next >= len(e.table) {
		return nil, 1
	}
	r := e.table[next]
	return &next, min(ratio(node.DirectCount, r.DirectThreshold), ratio(node.TeamCount, r.TeamThreshold))
}

func ratio(have, need int64) float64 {
	if need <= 0 {
		return 1
	}
	return min(float64(have)/float64(need), 1)
}
