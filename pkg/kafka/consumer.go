package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one decoded event. Returning an error triggers a retry.
type Handler func(ctx context.Context, event *Event) error

// messageReader is the subset of *kafka.Reader used by Consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// deadLetterer receives messages that could not be handled.
type deadLetterer interface {
	Publish(ctx context.Context, original kafka.Message, cause error, consumerGroup string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c *ConsumerConfig) withDefaults() {
	if c.MinBytes == 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithDLQ routes messages that exhaust their retries, or fail to decode, to dlq.
func WithDLQ(dlq *DLQProducer) ConsumerOption {
	return func(c *Consumer) {
		if dlq != nil {
			c.dlq = dlq
		}
	}
}

// WithIdempotency skips events whose ID store has already recorded.
func WithIdempotency(store IdempotencyStore) ConsumerOption {
	return func(c *Consumer) { c.idempotency = store }
}

// Consumer reads one topic as part of a consumer group, handing each event to
// a Handler with bounded retries. Offsets are committed only after the message
// was handled, dead-lettered or deliberately dropped.
type Consumer struct {
	reader      messageReader
	cfg         ConsumerConfig
	handler     Handler
	logger      *slog.Logger
	dlq         deadLetterer
	idempotency IdempotencyStore
	closeOnce   sync.Once
}

// NewConsumer creates a consumer for cfg.Topic in cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	cfg.withDefaults()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	cfg.withDefaults()
	c := &Consumer{
		reader:  r,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("group", cfg.GroupID)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.Close(); err != nil {
			c.logger.Warn("closing consumer", slog.String("error", err.Error()))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("message left uncommitted", slog.String("error", err.Error()),
				slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// process handles one message. A nil return means the offset may be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	labels := []string{c.cfg.Topic, c.cfg.GroupID}
	consumerMessagesReceived.WithLabelValues(labels...).Inc()

	ctx = extractTrace(ctx, &msg)

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		consumerMessagesFailed.WithLabelValues(labels...).Inc()
		c.logger.ErrorContext(ctx, "undecodable message",
			slog.String("error", err.Error()),
			slog.Int64("offset", msg.Offset),
		)
		return c.deadLetter(ctx, msg, err)
	}

	log := c.logger.With(
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
	)

	if c.idempotency != nil && event.EventID != "" {
		seen, err := c.idempotency.Contains(ctx, event.EventID)
		if err != nil {
			log.WarnContext(ctx, "idempotency lookup failed, processing anyway", slog.String("error", err.Error()))
		} else if seen {
			consumerMessagesDuplicate.WithLabelValues(labels...).Inc()
			log.DebugContext(ctx, "skipping duplicate event")
			return nil
		}
	}

	start := time.Now()
	lastErr := c.handleWithRetry(ctx, event, log)
	consumerProcessingDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		consumerMessagesFailed.WithLabelValues(labels...).Inc()
		log.ErrorContext(ctx, "handler failed after all retries",
			slog.String("error", lastErr.Error()),
			slog.Int("retries", c.cfg.MaxRetries),
		)
		return c.deadLetter(ctx, msg, lastErr)
	}

	consumerMessagesProcessed.WithLabelValues(labels...).Inc()
	if c.idempotency != nil && event.EventID != "" {
		if err := c.idempotency.Add(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "failed to record processed event", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *Consumer) handleWithRetry(ctx context.Context, event *Event, log *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			return nil
		}
		log.WarnContext(ctx, "handler failed",
			slog.String("error", lastErr.Error()),
			slog.Int("attempt", attempt),
		)
		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
		}
	}
	return lastErr
}

// deadLetter forwards msg to the DLQ. Without a DLQ the message is dropped so
// one poison message cannot block its partition.
func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if c.dlq == nil {
		c.logger.WarnContext(ctx, "no DLQ configured, dropping message", slog.Int64("offset", msg.Offset))
		return nil
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.cfg.GroupID); err != nil {
		return fmt.Errorf("dead-letter offset %d: %w", msg.Offset, err)
	}
	consumerDLQPublished.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()
	return nil
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
