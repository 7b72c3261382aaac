package codes

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
	"refnet/internal/network/store"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type flakyReservations struct {
	*store.InMemory
	failures int
}

func (f *flakyReservations) ReserveCode(ctx context.Context, code models.Code) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.InMemory.ReserveCode(ctx, code)
}

type IssuerSuite struct {
	suite.Suite
	ctx   context.Context
	store *store.InMemory
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
}

func (s *IssuerSuite) newIssuer(opts ...Option) *Issuer {
	opts = append([]Option{WithBackoff(time.Microsecond, time.Microsecond)}, opts...)
	i, err := New(s.store, DefaultConfig(), opts...)
	s.Require().NoError(err)
	return i
}

func (s *IssuerSuite) TestReserveProducesValidUniqueCodes() {
	i := s.newIssuer()
	seen := make(map[models.Code]struct{})
	for range 500 {
		code, err := i.Reserve(s.ctx)
		s.Require().NoError(err)
		s.True(i.Valid(code), "generated %s", code)
		s.NotContains(seen, code)
		seen[code] = struct{}{}
	}
	n, err := s.store.CountCodes(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(500), n)
}

func (s *IssuerSuite) TestRejectionSamplingSkipsBiasedBytes() {
	// 0xFF is above the rejection limit, 0x1F maps to symbol 0.
	src := bytes.NewReader([]byte{0xFF, 0x1F, 0x01, 0x02, 0xF8, 0x03, 0x04, 0x05})
	i := s.newIssuer(WithRandom(src))
	code, err := i.Reserve(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Code("TLABCDEF"), code)
}

func (s *IssuerSuite) TestConflictsExhaustAfterMaxAttempts() {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s.Require().NoError(s.store.ReserveCode(s.ctx, "TLAAAAAA"))
	i := s.newIssuer(WithRandom(zeroReader{}), WithMetrics(m))

	_, err := i.Reserve(s.ctx)
	s.ErrorIs(err, models.ErrCodeExhausted)
	s.Equal(float64(DefaultConfig().MaxAttempts), testutil.ToFloat64(m.CodeConflicts))
}

func (s *IssuerSuite) TestTransientErrorsAreRetried() {
	flaky := &flakyReservations{InMemory: s.store, failures: 3}
	i, err := New(flaky, DefaultConfig(), WithBackoff(time.Microsecond, time.Microsecond))
	s.Require().NoError(err)

	code, err := i.Reserve(s.ctx)
	s.Require().NoError(err)
	s.True(i.Valid(code))
}

func (s *IssuerSuite) TestPersistentStorageFailureIsNotExhaustion() {
	flaky := &flakyReservations{InMemory: s.store, failures: 100}
	i, err := New(flaky, DefaultConfig(), WithBackoff(time.Microsecond, time.Microsecond))
	s.Require().NoError(err)

	_, err = i.Reserve(s.ctx)
	s.Require().Error(err)
	s.NotErrorIs(err, models.ErrCodeExhausted)
}

func (s *IssuerSuite) TestCancelledContextStopsRetrying() {
	s.Require().NoError(s.store.ReserveCode(s.ctx, "TLAAAAAA"))
	i := s.newIssuer(WithRandom(zeroReader{}))
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := i.Reserve(ctx)
	s.ErrorIs(err, context.Canceled)
	s.NotErrorIs(err, models.ErrCodeExhausted)
}

func (s *IssuerSuite) TestDeadlineDuringBackoffIsNotExhaustion() {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s.Require().NoError(s.store.ReserveCode(s.ctx, "TLAAAAAA"))
	var logs bytes.Buffer
	i := s.newIssuer(
		WithRandom(zeroReader{}),
		WithBackoff(50*time.Millisecond, 50*time.Millisecond),
		WithMetrics(m),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()

	_, err := i.Reserve(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.NotErrorIs(err, models.ErrCodeExhausted)
	s.Less(testutil.ToFloat64(m.CodeConflicts), float64(DefaultConfig().MaxAttempts))
	s.NotContains(logs.String(), "exhausted")
}

func (s *IssuerSuite) TestWellKnownAndRelease() {
	i := s.newIssuer()
	s.Require().NoError(i.ReserveWellKnown(s.ctx, models.RootCode))
	s.ErrorIs(i.ReserveWellKnown(s.ctx, models.RootCode), store.ErrCodeTaken)
	s.Error(i.ReserveWellKnown(s.ctx, "VIP"))
	s.True(i.Valid(models.RootCode))

	code, err := i.Reserve(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(i.Release(s.ctx, code))
	s.NoError(s.store.ReserveCode(s.ctx, code))
}

func (s *IssuerSuite) TestValid() {
	i := s.newIssuer()
	s.True(i.Valid("TL23456Z"))
	s.False(i.Valid("TL23456"))
	s.False(i.Valid("XX234567"))
	s.False(i.Valid("TL0ABCDE"), "zero is excluded")
	s.False(i.Valid("TLIABCDE"), "I is excluded")
	s.False(i.Valid("tlabcdef"))
}

func (s *IssuerSuite) TestProbabilities() {
	i := s.newIssuer()
	capacity := math.Pow(31, 6)
	s.Equal(capacity, i.Capacity())

	s.InDelta(1000/capacity, i.CollisionProbability(1000), 1e-15)
	s.InDelta(math.Pow(1000/capacity, 8), i.ExhaustionProbability(1000), 1e-60)
	s.Zero(i.BirthdayCollisionProbability(1))
	s.InDelta(1-math.Exp(-1000*999/(2*capacity)), i.BirthdayCollisionProbability(1000), 1e-12)
	s.Equal(1.0, i.CollisionProbability(int64(capacity)*2))
}

func (s *IssuerSuite) TestReport() {
	i := s.newIssuer()
	_, err := i.Reserve(s.ctx)
	s.Require().NoError(err)

	r, err := i.Report(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), r.Population)
	s.Equal("TL", r.Prefix)
	s.Equal(i.Utilization(1), r.Utilization)
}

func (s *IssuerSuite) TestNewRejectsBadConfig() {
	_, err := New(nil, DefaultConfig())
	s.Error(err)
	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	_, err = New(s.store, cfg)
	s.Error(err)
}
