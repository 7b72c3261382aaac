package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"refnet/internal/network/models"
	"refnet/pkg/platform/circuit"
)

// Producer is the part of *kgo.Client the sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes promotion events as JSON records keyed by node id.
// Publish only buffers; Run ships batches, and a circuit breaker sheds load
// while the brokers are failing.
type KafkaSink struct {
	producer     Producer
	topic        string
	buffer       *ringBuffer
	breaker      *circuit.Breaker
	batchSize    int
	flushTimeout time.Duration
	logger       *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

type KafkaOption func(*KafkaSink)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(s *KafkaSink) {
		s.logger = logger
	}
}

func WithBufferSize(n int) KafkaOption {
	return func(s *KafkaSink) {
		s.buffer = newRingBuffer(n)
	}
}

func WithBatchSize(n int) KafkaOption {
	return func(s *KafkaSink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(s *KafkaSink) {
		s.breaker = b
	}
}

func NewKafkaSink(producer Producer, topic string, opts ...KafkaOption) *KafkaSink {
	s := &KafkaSink{
		producer:     producer,
		topic:        topic,
		buffer:       newRingBuffer(4096),
		breaker:      circuit.New("kafka-promotions", circuit.WithFailureThreshold(5), circuit.WithCooldown(5*time.Second)),
		batchSize:    100,
		flushTimeout: 5 * time.Second,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KafkaSink) Publish(_ context.Context, event models.PromotionEvent) {
	s.buffer.enqueue(event)
}

// Run ships buffered events until ctx is done, then flushes what is left
// within the flush timeout.
func (s *KafkaSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flushTimeout)
			s.drain(flushCtx)
			cancel()
			return nil
		case <-s.buffer.notEmpty:
			s.drain(ctx)
		}
	}
}

func (s *KafkaSink) drain(ctx context.Context) {
	for {
		batch := s.buffer.dequeueBatch(s.batchSize)
		if len(batch) == 0 {
			return
		}
		if !s.breaker.Allow() {
			s.failed.Add(int64(len(batch)))
			s.logger.WarnContext(ctx, "kafka circuit open, dropping promotion events",
				"topic", s.topic,
				"count", len(batch),
			)
			continue
		}
		s.send(ctx, batch)
	}
}

func (s *KafkaSink) send(ctx context.Context, batch []models.PromotionEvent) {
	records := make([]*kgo.Record, 0, len(batch))
	for _, event := range batch {
		value, err := json.Marshal(event)
		if err != nil {
			s.failed.Add(1)
			s.logger.ErrorContext(ctx, "failed to encode promotion event", "error", err)
			continue
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(event.NodeID.String()),
			Value: value,
		})
	}
	if len(records) == 0 {
		return
	}

	if err := s.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		s.failed.Add(int64(len(records)))
		_, change := s.breaker.RecordFailure()
		s.logger.ErrorContext(ctx, "failed to publish promotion events",
			"topic", s.topic,
			"count", len(records),
			"error", err,
			"circuit_opened", change.Opened,
		)
		return
	}
	s.published.Add(int64(len(records)))
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "kafka circuit closed", "topic", s.topic)
	}
}

// Stats reports delivery counters since start.
func (s *KafkaSink) Stats() (published, failed, dropped int64) {
	return s.published.Load(), s.failed.Load(), s.buffer.droppedCount()
}

// Pending is the number of buffered events not yet shipped.
func (s *KafkaSink) Pending() int {
	return s.buffer.len()
}
