// Package codes issues unique, human-friendly referral codes.
//
// A code is a fixed prefix followed by Length symbols drawn from an alphabet
// without the look-alike glyphs 0, O, 1, I and L. Uniqueness comes from an
// atomic create-if-absent reservation in the store, never from a
// check-then-write.
package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
	"refnet/internal/network/store"
)

// Alphabet is the symbol set of generated codes.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Reservations is the slice of the store the issuer needs.
type Reservations interface {
	ReserveCode(ctx context.Context, code models.Code) error
	ReleaseCode(ctx context.Context, code models.Code) error
	CountCodes(ctx context.Context) (int64, error)
}

// Config shapes the code space.
type Config struct {
	Prefix           string
	Length           int
	MaxAttempts      int
	AlertUtilization float64
	// WellKnown codes are exempt from the format and reserved explicitly.
	WellKnown []models.Code
}

// DefaultConfig is TL plus six symbols, eight attempts per reservation.
func DefaultConfig() Config {
	return Config{
		Prefix:           "TL",
		Length:           6,
		MaxAttempts:      8,
		AlertUtilization: 0.01,
		WellKnown:        []models.Code{models.RootCode},
	}
}

// Issuer generates and reserves referral codes.
type Issuer struct {
	store     Reservations
	cfg       Config
	wellKnown map[models.Code]struct{}
	random    io.Reader
	logger    *slog.Logger
	metrics   *metrics.Metrics

	initialInterval time.Duration
	maxInterval     time.Duration
}

type Option func(*Issuer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithRandom replaces crypto/rand as the symbol source.
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) {
		i.random = r
	}
}

// WithBackoff bounds the wait between reservation attempts.
func WithBackoff(initial, max time.Duration) Option {
	return func(i *Issuer) {
		i.initialInterval = initial
		i.maxInterval = max
	}
}

func New(st Reservations, cfg Config, opts ...Option) (*Issuer, error) {
	if st == nil {
		return nil, errors.New("reservation store is required")
	}
	if cfg.Length < 1 {
		return nil, fmt.Errorf("code length must be positive, got %d", cfg.Length)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	i := &Issuer{
		store:           st,
		cfg:             cfg,
		wellKnown:       make(map[models.Code]struct{}, len(cfg.WellKnown)),
		random:          rand.Reader,
		logger:          slog.New(slog.DiscardHandler),
		initialInterval: time.Millisecond,
		maxInterval:     50 * time.Millisecond,
	}
	for _, c := range cfg.WellKnown {
		i.wellKnown[c] = struct{}{}
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Reserve draws fresh candidates until one is reserved or MaxAttempts is
// spent. Conflicts and transient storage errors are both retried; a run of
// conflicts ends in ErrCodeExhausted. Cancellation surfaces as ctx's error.
func (i *Issuer) Reserve(ctx context.Context) (models.Code, error) {
	var (
		code    models.Code
		lastErr error
	)
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = i.initialInterval
	policy.MaxInterval = i.maxInterval
	policy.MaxElapsedTime = 0

	op := func() error {
		candidate, err := i.generate()
		if err != nil {
			return backoff.Permanent(err)
		}
		err = i.store.ReserveCode(ctx, candidate)
		switch {
		case err == nil:
			code = candidate
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, store.ErrCodeTaken):
			i.metrics.IncrementCodeConflict()
		}
		lastErr = err
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(i.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		// A caller that gives up mid-backoff has not spent the attempt budget.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("reserve referral code: %w", ctxErr)
		}
		if errors.Is(lastErr, store.ErrCodeTaken) {
			i.logger.ErrorContext(ctx, "referral code space exhausted for this reservation",
				"attempts", i.cfg.MaxAttempts,
			)
			return "", models.ErrCodeExhausted
		}
		return "", fmt.Errorf("reserve referral code: %w", err)
	}
	i.checkUtilization(ctx)
	return code, nil
}

// ReserveWellKnown reserves one of the configured well-known codes.
func (i *Issuer) ReserveWellKnown(ctx context.Context, code models.Code) error {
	if _, ok := i.wellKnown[code]; !ok {
		return fmt.Errorf("%s is not a well-known code", code)
	}
	return i.store.ReserveCode(ctx, code)
}

// Release frees a reservation that never got bound to a node.
func (i *Issuer) Release(ctx context.Context, code models.Code) error {
	return i.store.ReleaseCode(ctx, code)
}

func (i *Issuer) checkUtilization(ctx context.Context) {
	population, err := i.store.CountCodes(ctx)
	if err != nil {
		i.logger.WarnContext(ctx, "failed to count reserved codes", "error", err)
		return
	}
	u := i.Utilization(population)
	i.metrics.SetCodeUtilization(u)
	if i.cfg.AlertUtilization > 0 && u >= i.cfg.AlertUtilization {
		i.logger.WarnContext(ctx, "referral code space utilization above alert threshold",
			"population", population,
			"utilization", u,
			"threshold", i.cfg.AlertUtilization,
			"exhaustion_probability", i.ExhaustionProbability(population),
		)
	}
}

func (i *Issuer) generate() (models.Code, error) {
	var b strings.Builder
	b.Grow(len(i.cfg.Prefix) + i.cfg.Length)
	b.WriteString(i.cfg.Prefix)

	// 248 is the largest multiple of len(Alphabet) below 256.
	limit := byte(256 / len(Alphabet) * len(Alphabet))
	buf := make([]byte, 1)
	for n := 0; n < i.cfg.Length; {
		if _, err := io.ReadFull(i.random, buf); err != nil {
			return "", fmt.Errorf("read randomness: %w", err)
		}
		if buf[0] >= limit {
			continue
		}
		b.WriteByte(Alphabet[int(buf[0])%len(Alphabet)])
		n++
	}
	return models.Code(b.String()), nil
}

// Valid reports whether code is well-known or matches the generated format.
func (i *Issuer) Valid(code models.Code) bool {
	if _, ok := i.wellKnown[code]; ok {
		return true
	}
	s := string(code)
	if len(s) != len(i.cfg.Prefix)+i.cfg.Length || !strings.HasPrefix(s, i.cfg.Prefix) {
		return false
	}
	for _, r := range s[len(i.cfg.Prefix):] {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

// Capacity is the number of distinct generated codes.
func (i *Issuer) Capacity() float64 {
	return math.Pow(float64(len(Alphabet)), float64(i.cfg.Length))
}

// Utilization is population over capacity.
func (i *Issuer) Utilization(population int64) float64 {
	return float64(population) / i.Capacity()
}

// CollisionProbability is the chance one fresh candidate hits an existing code.
func (i *Issuer) CollisionProbability(population int64) float64 {
	return math.Min(i.Utilization(population), 1)
}

// BirthdayCollisionProbability approximates the chance that population codes
// drawn independently contain at least one duplicate.
func (i *Issuer) BirthdayCollisionProbability(population int64) float64 {
	n := float64(population)
	return -math.Expm1(-n * (n - 1) / (2 * i.Capacity()))
}

// ExhaustionProbability is the chance a single reservation fails every attempt.
func (i *Issuer) ExhaustionProbability(population int64) float64 {
	return math.Pow(i.CollisionProbability(population), float64(i.cfg.MaxAttempts))
}

// CapacityReport summarizes the code space for operators.
type CapacityReport struct {
	Prefix                       string  `json:"prefix"`
	Length                       int     `json:"length"`
	Capacity                     float64 `json:"capacity"`
	Population                   int64   `json:"population"`
	Utilization                  float64 `json:"utilization"`
	CollisionProbability         float64 `json:"collision_probability"`
	BirthdayCollisionProbability float64 `json:"birthday_collision_probability"`
	ExhaustionProbability        float64 `json:"exhaustion_probability"`
	AlertUtilization             float64 `json:"alert_utilization"`
}

func (i *Issuer) Report(ctx context.Context) (CapacityReport, error) {
	population, err := i.store.CountCodes(ctx)
	if err != nil {
		return CapacityReport{}, fmt.Errorf("count reserved codes: %w", err)
	}
	return CapacityReport{
		Prefix:                       i.cfg.Prefix,
		Length:                       i.cfg.Length,
		Capacity:                     i.Capacity(),
		Population:                   population,
		Utilization:                  i.Utilization(population),
		CollisionProbability:         i.CollisionProbability(population),
		BirthdayCollisionProbability: i.BirthdayCollisionProbability(population),
		ExhaustionProbability:        i.ExhaustionProbability(population),
		AlertUtilization:             i.cfg.AlertUtilization,
	}, nil
}
