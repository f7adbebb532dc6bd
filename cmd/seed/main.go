// Command seed bootstraps the first super admin account. It is idempotent:
// an existing account with the same email is promoted instead of duplicated.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/authgate/internal/auth"
	"github.com/utafrali/authgate/internal/config"
	"github.com/utafrali/authgate/internal/repository/postgres"
	"github.com/utafrali/authgate/internal/service"
	"github.com/utafrali/authgate/migrations"
	"github.com/utafrali/authgate/pkg/database"
	"github.com/utafrali/authgate/pkg/logger"
)

func main() {
	cfg, seed, err := config.LoadSeed()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("authgate-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, cfg, seed, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seed *config.Seed, log *slog.Logger) error {
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return err
	}

	user, created, err := service.EnsureSuperAdmin(ctx,
		postgres.NewUserRepository(pool),
		auth.NewPasswordHasher(cfg.BcryptCost),
		service.SignupInput{
			Name:     seed.AdminName,
			Email:    seed.AdminEmail,
			Phone:    seed.AdminPhone,
			Password: seed.AdminPassword,
		},
	)
	if err != nil {
		return err
	}

	log.Info("super admin ready",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.Bool("created", created),
	)
	return nil
}
