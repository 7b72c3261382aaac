package service

import (
	"fmt"
	"log/slog"

	"refnet/internal/network/aggregation"
	"refnet/internal/network/codes"
	"refnet/internal/network/events"
	"refnet/internal/network/metrics"
	"refnet/internal/network/orphan"
	"refnet/internal/network/projection"
	"refnet/internal/network/promotion"
	"refnet/internal/network/store"
	"refnet/internal/network/teamsize"
)

// StackConfig collects the tunables of every component.
type StackConfig struct {
	Codes     codes.Config
	RankTable promotion.Table
	Retry     aggregation.RetryConfig
	Sinks     []events.Sink
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Stack is a fully wired referral network over one store.
type Stack struct {
	Service    *Service
	Bus        *events.Bus
	Issuer     *codes.Issuer
	Promotions *promotion.Engine
	Aggregator *aggregation.Engine
	Retries    *aggregation.RetryQueue
	Enforcer   *projection.Enforcer
}

// NewStack wires the components leaves first: issuer, resolver, enforcer,
// promotion, aggregation, retry queue, service.
func NewStack(st store.Store, cfg StackConfig) (*Stack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	table := cfg.RankTable
	if table == nil {
		table = promotion.DefaultTable()
	}

	busOpts := []events.Option{events.WithLogger(logger)}
	for _, sink := range cfg.Sinks {
		busOpts = append(busOpts, events.WithSink(sink))
	}
	bus := events.NewBus(busOpts...)

	issuer, err := codes.New(st, cfg.Codes,
		codes.WithLogger(logger),
		codes.WithMetrics(cfg.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("code issuer: %w", err)
	}
	resolver := orphan.New(st,
		orphan.WithLogger(logger),
		orphan.WithFormatChecker(issuer),
	)
	enforcer := projection.New(st, resolver, issuer, teamsize.New(st),
		projection.WithLogger(logger),
		projection.WithMetrics(cfg.Metrics),
	)
	promotions, err := promotion.New(table, st, bus,
		promotion.WithLogger(logger),
		promotion.WithMetrics(cfg.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("promotion engine: %w", err)
	}
	aggregator := aggregation.New(st, promotions,
		aggregation.WithLogger(logger),
		aggregation.WithMetrics(cfg.Metrics),
	)
	retries := aggregation.NewRetryQueue(aggregator, st, promotions, cfg.Retry,
		aggregation.WithRetryLogger(logger),
		aggregation.WithRetryMetrics(cfg.Metrics),
	)
	aggregator.SetRetrier(retries)

	svc := New(st, enforcer, aggregator, promotions, issuer, bus,
		WithLogger(logger),
		WithMetrics(cfg.Metrics),
	)
	return &Stack{
		Service:    svc,
		Bus:        bus,
		Issuer:     issuer,
		Promotions: promotions,
		Aggregator: aggregator,
		Retries:    retries,
		Enforcer:   enforcer,
	}, nil
}
