package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/defarge/availcal/libs/kafkax"
)

// Invalidator is the cache surface the consumer drives.
type Invalidator interface {
	Flush(ctx context.Context)
	InvalidateAround(ctx context.Context, eventDate time.Time)
}

// Consumer watches calendar change events published by other writers of the
// events table and drops stale cached availability. Invalidation is
// idempotent, so messages are handled without inbox dedup.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
	cache  Invalidator
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

type changePayload struct {
	Kind            string `json:"kind"`
	StartsAt        string `json:"starts_at"`
	WeeklyRecurring bool   `json:"weekly_recurring"`
}

func New(logger *slog.Logger, availCache Invalidator, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader: reader,
		logger: logger,
		cache:  availCache,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)
		if err := c.handle(ctxSpan, msg); err != nil {
			c.logger.Error("calendar change handling failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var payload changePayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		// Unparseable messages cannot be retried into sense; log and move on.
		c.logger.Error("invalid calendar change payload", "err", err, "topic", msg.Topic)
		return nil
	}

	if payload.WeeklyRecurring {
		// Recurring openings apply to every window.
		c.cache.Flush(ctx)
		return nil
	}

	startsAt, err := time.Parse(time.RFC3339, payload.StartsAt)
	if err != nil {
		c.logger.Error("invalid starts_at in calendar change", "value", payload.StartsAt)
		return nil
	}
	c.cache.InvalidateAround(ctx, startsAt)
	return nil
}
