package aggregation

import (
	"context"
	"time"

	"refnet/internal/network/models"
)

func (s *EngineSuite) newQueue(maxElapsed time.Duration) *RetryQueue {
	return NewRetryQueue(s.engine, s.store, s.engine.promoter, RetryConfig{
		Workers:         2,
		QueueDepth:      8,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      maxElapsed,
	})
}

func (s *EngineSuite) TestRetryQueueCompletesDeferredWalk() {
	q := s.newQueue(time.Second)
	s.engine.SetRetrier(q)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	s.join("A", models.RootCode)
	s.store.failures["A"] = 3
	b := s.materialize("B", "A")
	s.ErrorIs(s.engine.OnNodeCreated(s.ctx, b), ErrDeferred)

	s.Eventually(func() bool {
		a, err := s.store.FindByCode(s.ctx, "A")
		return err == nil && a.DirectCount == 1 && q.Depth() == 0
	}, 2*time.Second, 5*time.Millisecond)
	_, team := s.counts(models.RootCode)
	s.Equal(int64(2), team)

	cancel()
	s.NoError(<-done)
}

func (s *EngineSuite) TestRetryQueueDeadLettersWhenFull() {
	q := NewRetryQueue(s.engine, s.store, s.engine.promoter, RetryConfig{QueueDepth: 1})
	q.RetryPromotion(s.ctx, "A")
	q.RetryPromotion(s.ctx, "B")
	s.Equal(1, q.Depth())
}

func (s *EngineSuite) TestRetryQueueDeadLettersPendingOnShutdown() {
	q := s.newQueue(time.Second)
	q.RetryPromotion(s.ctx, "A")

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.NoError(q.Run(ctx))
	s.Zero(q.Depth())
}
