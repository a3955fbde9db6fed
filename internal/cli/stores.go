package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"guild-quiz-service/internal/app"
	"guild-quiz-service/internal/config"
	"guild-quiz-service/internal/infra/memory"
	"guild-quiz-service/internal/infra/postgres"
	redisinfra "guild-quiz-service/internal/infra/redis"
	"guild-quiz-service/internal/infra/sqlstore"
)

var (
	_ app.Store           = (*memory.Store)(nil)
	_ app.Store           = (*postgres.Store)(nil)
	_ app.Store           = (*sqlstore.Store)(nil)
	_ app.SessionRegistry = (*memory.SessionRegistry)(nil)
	_ app.SessionRegistry = (*redisinfra.SessionRegistry)(nil)
	_ app.FireMarker      = (*memory.FireMarker)(nil)
	_ app.FireMarker      = (*redisinfra.FireMarker)(nil)
	_ app.QuizBank        = (*memory.QuizBank)(nil)
	_ app.QuizBank        = (*redisinfra.QuizBank)(nil)
)

// openStore connects the configured store driver. The memory driver is
// seeded from quiz.bank when that file exists.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (app.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return nil, err
		}
		return postgres.Connect(ctx, cfg.PostgresURL())
	case "sqlite", "mysql":
		dialect, err := sqlstore.DialectFor(cfg.Store.Driver)
		if err != nil {
			return nil, err
		}
		return sqlstore.Connect(ctx, dialect, cfg.Store.DSN)
	}

	if cfg.Quiz.Bank == "" {
		return memory.NewStore(), nil
	}
	quizzes, err := config.LoadQuizBank(cfg.Quiz.Bank)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("quiz bank file not found, starting with an empty bank", "path", cfg.Quiz.Bank)
		return memory.NewStore(), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("memory store seeded", "quizzes", len(quizzes))
	return memory.NewStore(quizzes...), nil
}

func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

type sessionInfra struct {
	registry app.SessionRegistry
	quizzes  app.QuizBank
	marker   app.FireMarker
}

// buildSessionInfra picks Redis-backed shared state when a client is given
// and process-local state otherwise.
func buildSessionInfra(cfg config.Config, store app.Store, client *redis.Client) sessionInfra {
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var infra sessionInfra
	if client != nil {
		infra.registry = redisinfra.NewSessionRegistry(client, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		infra.quizzes = redisinfra.NewQuizBank(client, store, quizTTL)
		if cfg.Schedule.Dedupe {
			infra.marker = redisinfra.NewFireMarker(client, 48*time.Hour)
		}
		return infra
	}
	infra.registry = memory.NewSessionRegistry()
	infra.quizzes = memory.NewQuizBank(store, quizTTL)
	if cfg.Schedule.Dedupe {
		infra.marker = memory.NewFireMarker()
	}
	return infra
}
