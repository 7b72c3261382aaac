// Package service is the entry point of the referral network: joins,
// status reads, code resolution, promotion subscriptions and maintenance.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refnet/internal/network/aggregation"
	"refnet/internal/network/codes"
	"refnet/internal/network/events"
	"refnet/internal/network/metrics"
	"refnet/internal/network/models"
	"refnet/internal/network/projection"
	"refnet/internal/network/promotion"
	"refnet/internal/network/store"
	dErrors "refnet/pkg/domain-errors"
	"refnet/pkg/requestcontext"
)

// NodeWriter creates nodes and audits the projections.
type NodeWriter interface {
	CreateNode(ctx context.Context, externalKey, referrer string) (models.Node, error)
	CreateRoot(ctx context.Context, externalKey string) (models.Node, error)
	AuditAndRepair(ctx context.Context, opts projection.AuditOptions) (projection.Report, error)
}

// Aggregator propagates a new node to its ancestors.
type Aggregator interface {
	OnNodeCreated(ctx context.Context, node models.Node) error
}

// Ranker answers rank questions for status reads.
type Ranker interface {
	Progress(node models.Node) (*int, float64)
	Table() promotion.Table
}

// CodeSpace reserves well-known codes and reports capacity.
type CodeSpace interface {
	ReserveWellKnown(ctx context.Context, code models.Code) error
	Report(ctx context.Context) (codes.CapacityReport, error)
}

// NodeReader is the read side of the store.
type NodeReader interface {
	FindByID(ctx context.Context, id models.NodeID) (models.Node, error)
	FindByCode(ctx context.Context, code models.Code) (models.Node, error)
}

// RootExternalKey is the external key the root is created with.
const RootExternalKey = "refnet:root"

type Service struct {
	reader     NodeReader
	writer     NodeWriter
	aggregator Aggregator
	ranker     Ranker
	codes      CodeSpace
	bus        *events.Bus
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(reader NodeReader, writer NodeWriter, aggregator Aggregator, ranker Ranker, codeSpace CodeSpace, bus *events.Bus, opts ...Option) *Service {
	s := &Service{
		reader:     reader,
		writer:     writer,
		aggregator: aggregator,
		ranker:     ranker,
		codes:      codeSpace,
		bus:        bus,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("refnet/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap creates the root node once. Later calls return the existing root.
func (s *Service) Bootstrap(ctx context.Context) (models.Node, error) {
	if root, err := s.reader.FindByID(ctx, models.RootNodeID); err == nil {
		return root, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Node{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read root node")
	}

	// A previous bootstrap may have reserved the code and died before
	// materializing.
	if err := s.codes.ReserveWellKnown(ctx, models.RootCode); err != nil && !errors.Is(err, store.ErrCodeTaken) {
		return models.Node{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reserve root code")
	}
	root, err := s.writer.CreateRoot(ctx, RootExternalKey)
	if err != nil {
		// Lost a race with a concurrent bootstrap.
		if existing, readErr := s.reader.FindByID(ctx, models.RootNodeID); readErr == nil {
			return existing, nil
		}
		return models.Node{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create root node")
	}
	s.logger.InfoContext(ctx, "root node bootstrapped",
		"node_id", root.ID.String(),
		"code", string(root.ReferralCode),
	)
	return root, nil
}

// Join admits a new participant. Ancestor aggregation failures after the
// node exists are retried in the background and do not fail the join.
func (s *Service) Join(ctx context.Context, externalKey, referrerCode string) (*models.JoinResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "service.Join",
		trace.WithAttributes(attribute.Bool("has_referrer", referrerCode != "")),
	)
	defer span.End()
	defer func() { s.metrics.ObserveJoinDuration(time.Since(start)) }()

	requestID := requestcontext.RequestID(ctx)
	node, err := s.writer.CreateNode(ctx, externalKey, referrerCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "join rejected")
		return nil, s.joinError(ctx, err)
	}
	span.SetAttributes(attribute.String("code", string(node.ReferralCode)))

	if err := s.aggregator.OnNodeCreated(ctx, node); err != nil {
		span.RecordError(err)
		// Deferred walks and cycles are already logged by the engine.
		if !errors.Is(err, aggregation.ErrDeferred) && !errors.Is(err, models.ErrStructuralIntegrity) {
			s.logger.ErrorContext(ctx, "aggregation failed after node creation",
				"request_id", requestID,
				"code", string(node.ReferralCode),
				"error", err,
			)
		}
	}

	s.metrics.IncrementJoin("created")
	s.logger.InfoContext(ctx, "node joined",
		"request_id", requestID,
		"node_id", node.ID.String(),
		"code", string(node.ReferralCode),
		"referrer_code", string(node.ReferrerCode),
	)
	span.SetStatus(otelcodes.Ok, "")
	return &models.JoinResult{
		NodeID:   node.ID,
		Code:     node.ReferralCode,
		Rank:     node.Rank,
		RankName: s.ranker.Table().Name(node.Rank),
	}, nil
}

func (s *Service) joinError(ctx context.Context, err error) error {
	requestID := requestcontext.RequestID(ctx)
	switch {
	case errors.Is(err, models.ErrDuplicateExternalKey):
		s.metrics.IncrementJoin("duplicate")
		return dErrors.Wrap(err, dErrors.CodeConflict, "already a member")
	case errors.Is(err, models.ErrCodeExhausted):
		s.metrics.IncrementJoin("exhausted")
		s.logger.ErrorContext(ctx, "join rejected: referral code space exhausted",
			"request_id", requestID,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "unable to issue a referral code, retry later")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.metrics.IncrementJoin("cancelled")
		s.logger.InfoContext(ctx, "join abandoned before completion",
			"request_id", requestID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "join did not complete before the request ended")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		s.metrics.IncrementJoin("invalid")
		var de *dErrors.Error
		errors.As(err, &de)
		return dErrors.Wrap(err, dErrors.CodeValidation, de.Message)
	default:
		s.metrics.IncrementJoin("error")
		s.logger.ErrorContext(ctx, "join failed",
			"request_id", requestID,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "join temporarily unavailable, retry later")
	}
}

// GetStatus reads a node with its progress toward the next rank.
func (s *Service) GetStatus(ctx context.Context, id models.NodeID) (*models.Status, error) {
	node, err := s.reader.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.Wrap(models.ErrNodeNotFound, dErrors.CodeNotFound, "node not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read node")
	}

	table := s.ranker.Table()
	next, progress := s.ranker.Progress(node)
	status := &models.Status{
		NodeID:         node.ID,
		Code:           node.ReferralCode,
		Rank:           node.Rank,
		RankName:       table.Name(node.Rank),
		DirectCount:    node.DirectCount,
		TeamCount:      node.TeamCount,
		NextRank:       next,
		ProgressToNext: progress,
	}
	if next != nil {
		status.NextRankName = table.Name(*next)
	}
	return status, nil
}

// ResolveCode returns the id of the node owning code.
func (s *Service) ResolveCode(ctx context.Context, raw string) (models.NodeID, error) {
	code := models.NormalizeCode(raw)
	if code == "" {
		return models.NodeID{}, dErrors.New(dErrors.CodeInvalidInput, "code is required")
	}
	node, err := s.reader.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return models.NodeID{}, dErrors.Wrap(models.ErrCodeNotFound, dErrors.CodeNotFound, "referral code not found")
	}
	if err != nil {
		return models.NodeID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve code")
	}
	return node.ID, nil
}

// Subscribe registers fn for promotions of id.
func (s *Service) Subscribe(id models.NodeID, fn func(models.PromotionEvent)) func() {
	return s.bus.Subscribe(id, fn)
}

// AuditAndRepair runs a maintenance pass over all projections.
func (s *Service) AuditAndRepair(ctx context.Context, opts projection.AuditOptions) (projection.Report, error) {
	ctx, span := s.tracer.Start(ctx, "service.AuditAndRepair",
		trace.WithAttributes(attribute.Bool("repair_counters", opts.RepairCounters)),
	)
	defer span.End()

	report, err := s.writer.AuditAndRepair(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "audit failed")
		return report, dErrors.Wrap(err, dErrors.CodeInternal, "audit failed")
	}
	span.SetAttributes(
		attribute.Int("scanned", report.Scanned),
		attribute.Int("drift_repaired", len(report.DriftRepaired)),
		attribute.Int("unreachable", len(report.Unreachable)),
		attribute.Int("counter_mismatches", len(report.CounterMismatches)),
	)
	s.logger.InfoContext(ctx, "audit completed",
		"request_id", requestcontext.RequestID(ctx),
		"scanned", report.Scanned,
		"drift_repaired", len(report.DriftRepaired),
		"unreachable", len(report.Unreachable),
		"cycle_at", string(report.CycleAt),
		"counter_mismatches", len(report.CounterMismatches),
	)
	return report, nil
}

// CodeCapacity reports code space usage and collision odds.
func (s *Service) CodeCapacity(ctx context.Context) (codes.CapacityReport, error) {
	r, err := s.codes.Report(ctx)
	if err != nil {
		return codes.CapacityReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read code capacity")
	}
	return r, nil
}
