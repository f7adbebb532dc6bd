package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/authgate/internal/app"
	"github.com/utafrali/authgate/internal/config"
	"github.com/utafrali/authgate/pkg/logger"
)

func main() {
	cfg, err := config.LoadMailer()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("authgate-mailer", cfg.LogLevel)
	log.Info("starting mailer",
		slog.String("environment", cfg.Environment),
		slog.String("group_id", cfg.MailerGroupID),
		slog.Any("brokers", cfg.KafkaBrokers),
	)

	mailer, err := app.NewMailer(cfg, log)
	if err != nil {
		log.Error("failed to initialize mailer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mailer.Run(ctx); err != nil {
		log.Error("mailer error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
