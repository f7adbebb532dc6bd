package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/authgate/internal/config"
	"github.com/utafrali/authgate/internal/email"
	"github.com/utafrali/authgate/pkg/database"
	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
)

// Mailer consumes email.requested events and delivers them.
type Mailer struct {
	logger   *slog.Logger
	redis    *redis.Client
	dlq      *pkgkafka.DLQProducer
	consumer *pkgkafka.Consumer
}

// NewMailer wires the mail delivery worker. Messages go to the mail API when
// MAIL_API_URL is set and to the log otherwise.
func NewMailer(cfg *config.Config, logger *slog.Logger) (*Mailer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	var sender email.Sender = email.NewLogSender(logger)
	if cfg.MailAPIURL != "" {
		sender = newHTTPMailSender(cfg, logger)
	}
	logger.Info("mail sender configured", slog.String("driver", sender.Name()))

	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	consumer := pkgkafka.NewConsumer(
		pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.MailerGroupID,
			Topic:   email.TopicEmailRequested,
		},
		email.DeliveryHandler(email.WithMetrics(sender)),
		logger,
		pkgkafka.WithDLQ(dlq),
		pkgkafka.WithIdempotency(pkgkafka.NewRedisIdempotencyStore(rdb, cfg.CacheKeyPrefix+":mailer", cfg.MailIdempotencyTTL)),
	)

	return &Mailer{logger: logger, redis: rdb, dlq: dlq, consumer: consumer}, nil
}

// Run consumes until ctx is canceled and then releases every client.
func (m *Mailer) Run(ctx context.Context) error {
	m.logger.Info("mailer started", slog.String("topic", email.TopicEmailRequested))
	runErr := m.consumer.Start(ctx)

	var errs []error
	if runErr != nil {
		errs = append(errs, fmt.Errorf("consumer: %w", runErr))
	}
	if err := m.dlq.Close(); err != nil {
		m.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := m.redis.Close(); err != nil {
		m.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	m.logger.Info("mailer stopped")
	return errors.Join(errs...)
}
