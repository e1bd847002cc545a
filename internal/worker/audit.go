// Package worker consumes the command audit stream.
package worker

import (
	"context"
	"time"

	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	infraRedis "github.com/diaspomoney/payments/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Source is a consumer-group view of a stream. *redis.StreamConsumer
// implements it.
type Source interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, ids ...string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// Sink receives every decoded audit record.
type Sink func(ctx context.Context, rec infraRedis.AuditRecord) error

type Config struct {
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	RetryDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 30 * time.Second
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = time.Minute
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// AuditWorker drains the audit stream. Messages that cannot be decoded are
// acked and dropped; messages whose sink fails stay pending and are
// reclaimed later.
type AuditWorker struct {
	source  Source
	sink    Sink
	cfg     Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewAuditWorker(source Source, sink Sink, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		source:  source,
		sink:    sink,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		logger:  logger.With().Str("component", "audit_worker").Str("stream", source.Stream()).Logger(),
	}
}

// LogSink writes each record as a structured log line.
func LogSink(logger zerolog.Logger) Sink {
	return func(_ context.Context, rec infraRedis.AuditRecord) error {
		ev := logger.Info()
		if !rec.Success {
			ev = logger.Warn().Str("error", rec.Error)
		}
		ev.Str("event", rec.Type).
			Str("command", rec.Command).
			Bool("success", rec.Success).
			Dur("duration", rec.Duration).
			Time("occurred_at", rec.OccurredAt).
			RawJSON("payload", payloadOrNull(rec)).
			Msg("command audit")
		return nil
	}
}

func payloadOrNull(rec infraRedis.AuditRecord) []byte {
	if len(rec.Payload) == 0 {
		return []byte("null")
	}
	return rec.Payload
}

// Run reads until ctx is cancelled. Stale messages are reclaimed on a timer.
func (w *AuditWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msgs, err := w.source.ClaimStale(ctx, w.cfg.ClaimMinIdle)
			if err != nil {
				w.logger.Error().Err(err).Msg("Failed to claim stale messages")
			} else if len(msgs) > 0 {
				w.logger.Info().Int("count", len(msgs)).Msg("Reclaimed stale messages")
				w.Handle(ctx, msgs)
			}
		default:
		}

		msgs, err := w.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.RetryDelay):
			}
			continue
		}
		w.Handle(ctx, msgs)
	}
}

// Handle processes one batch and acks what was consumed.
func (w *AuditWorker) Handle(ctx context.Context, msgs []redis.XMessage) {
	stream := w.source.Stream()
	acks := make([]string, 0, len(msgs))

	for _, msg := range msgs {
		rec, err := infraRedis.DecodeAuditEvent(msg)
		if err != nil {
			w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed audit message")
			w.metrics.RecordWorkerMessage(stream, "malformed")
			acks = append(acks, msg.ID)
			continue
		}
		if err := w.sink(ctx, rec); err != nil {
			w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to handle audit message")
			w.metrics.RecordWorkerMessage(stream, "failure")
			continue
		}
		w.metrics.RecordWorkerMessage(stream, "success")
		acks = append(acks, msg.ID)
	}

	if err := w.source.Ack(ctx, acks...); err != nil {
		w.logger.Error().Err(err).Int("count", len(acks)).Msg("Failed to ack audit messages")
	}
}
