package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"refnet/internal/network/aggregation"
	"refnet/internal/network/codes"
	"refnet/internal/network/events"
	"refnet/internal/network/handler"
	netmetrics "refnet/internal/network/metrics"
	"refnet/internal/network/models"
	"refnet/internal/network/promotion"
	"refnet/internal/network/service"
	"refnet/internal/platform/config"
	"refnet/internal/platform/httpserver"
	"refnet/internal/platform/kafka"
	"refnet/internal/platform/logger"
	"refnet/internal/platform/metrics"
	"refnet/internal/platform/tracing"
	"refnet/internal/ratelimit"
	"refnet/pkg/platform/circuit"
	"refnet/pkg/platform/httputil"
	"refnet/pkg/platform/middleware/admin"
	"refnet/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/network.
func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"))
	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server) error {
	log := logger.New(cfg.LogLevel)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	reg := metrics.NewRegistry()
	m := netmetrics.New(reg)

	be, err := openBackend(ctx, cfg, log)
	defer be.close()
	if err != nil {
		return err
	}

	table, err := promotion.LoadTable(cfg.RankTablePath)
	if err != nil {
		return err
	}

	var sinks []events.Sink
	var kafkaSink *events.KafkaSink
	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		kafkaSink = events.NewKafkaSink(producer, cfg.Kafka.PromotionTopic,
			events.WithKafkaLogger(log),
			events.WithBreaker(circuit.New("kafka-promotions")),
		)
		sinks = append(sinks, kafkaSink)
	}

	stack, err := service.NewStack(be.store, service.StackConfig{
		Codes: codes.Config{
			Prefix:           cfg.Codes.Prefix,
			Length:           cfg.Codes.Length,
			MaxAttempts:      cfg.Codes.MaxAttempts,
			AlertUtilization: cfg.Codes.AlertUtilization,
			WellKnown:        []models.Code{models.RootCode},
		},
		RankTable: table,
		Retry: aggregation.RetryConfig{
			Workers:         cfg.Retry.Workers,
			QueueDepth:      cfg.Retry.QueueDepth,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			MaxElapsed:      cfg.Retry.MaxElapsed,
		},
		Sinks:   sinks,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return err
	}
	if _, err := stack.Service.Bootstrap(ctx); err != nil {
		return err
	}

	pool := service.NewPool(stack.Service, cfg.Workers.Count, cfg.Workers.QueueDepth,
		service.WithPoolLogger(log),
	)
	h := handler.New(stack.Service, pool, log)

	limitStore, sweep := be.limitStore(cfg.Limits.Window)
	joinLimiter := ratelimit.New(limitStore, cfg.Limits.JoinsPerWindow, cfg.Limits.Window,
		ratelimit.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.Middleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(reg))
	h.Register(r, joinLimiter.Handler)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireToken(cfg.AdminToken, admin.WithLogger(log)))
		h.RegisterAdmin(r)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return stack.Retries.Run(gctx) })
	if sweep != nil {
		g.Go(func() error { return sweep(gctx) })
	}
	if kafkaSink != nil {
		g.Go(func() error { return kafkaSink.Run(gctx) })
	}
	g.Go(func() error {
		log.InfoContext(gctx, "starting refnet", "backend", cfg.Backend)
		return httpserver.Serve(gctx, srv, cfg.ShutdownTimeout, log)
	})

	start := time.Now()
	err = g.Wait()
	log.Info("server stopped", "uptime", time.Since(start).String())
	return err
}
