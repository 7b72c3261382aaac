package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refnet/internal/network/models"
	dErrors "refnet/pkg/domain-errors"
)

type joinerFunc func(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error)

func (f joinerFunc) Join(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error) {
	return f(ctx, externalKey, referrerCode)
}

func TestPoolAnswersEveryAcceptedJobAcrossShutdown(t *testing.T) {
	joiner := joinerFunc(func(context.Context, string, string) (*models.JoinResult, error) {
		return &models.JoinResult{}, nil
	})

	for round := range 50 {
		pool := NewPool(joiner, 2, 64)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- pool.Run(ctx) }()

		var (
			mu       sync.Mutex
			accepted []<-chan JoinOutcome
			wg       sync.WaitGroup
		)
		start := make(chan struct{})
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for i := range 20 {
					ch, err := pool.Submit(context.Background(), JoinRequest{ExternalKey: fmt.Sprintf("r%d-w%d-%d", round, w, i)})
					if err != nil {
						assert.True(t, dErrors.IsRetryable(err))
						continue
					}
					mu.Lock()
					accepted = append(accepted, ch)
					mu.Unlock()
				}
			}()
		}
		close(start)
		cancel()
		require.NoError(t, <-done)
		wg.Wait()

		// Submits that finish after Run returns must all be rejected, so
		// every accepted job was executed by a worker or the drain.
		for _, ch := range accepted {
			select {
			case out := <-ch:
				assert.NoError(t, out.Err)
			default:
				t.Fatalf("round %d: accepted job never ran", round)
			}
		}
	}
}

func TestPoolShedsWhenQueueIsFull(t *testing.T) {
	pool := NewPool(joinerFunc(func(context.Context, string, string) (*models.JoinResult, error) {
		return &models.JoinResult{}, nil
	}), 1, 1)

	_, err := pool.Submit(context.Background(), JoinRequest{ExternalKey: "a"})
	require.NoError(t, err)
	_, err = pool.Submit(context.Background(), JoinRequest{ExternalKey: "b"})
	assert.True(t, dErrors.IsRetryable(err))
}
