// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
	authmongo "github.com/holomush/holoauth/internal/auth/mongo"
	authpg "github.com/holomush/holoauth/internal/auth/postgres"
	authredis "github.com/holomush/holoauth/internal/auth/redis"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
)

// AutoMigrator is the part of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// backendDeps holds injectable connection factories. Nil fields use the real
// implementations.
type backendDeps struct {
	MigratorFactory func(databaseURL string) (AutoMigrator, error)
}

// backends are the stores selected by configuration together with the
// connections that back them.
type backends struct {
	users    auth.UserStore
	sessions auth.SessionStore
	tokens   auth.TokenStore

	checks  map[string]observability.ReadinessCheck
	closers []func(context.Context) error

	pool  *pgxpool.Pool
	redis *goredis.Client
	mongo *mongo.Client
}

// openBackends connects to every backend named in cfg.Store and builds the
// three stores. On failure, connections opened so far are closed.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps backendDeps) (_ *backends, err error) {
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}

	b := &backends{checks: make(map[string]observability.ReadinessCheck)}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background()) //nolint:errcheck // open error takes precedence
		}
	}()

	if cfg.Uses(config.BackendPostgres) {
		if err := b.openPostgres(ctx, cfg, logger, deps); err != nil {
			return nil, err
		}
	}
	if cfg.Uses(config.BackendRedis) {
		if err := b.openRedis(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Uses(config.BackendMongo) {
		if err := b.openMongo(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if b.users, err = b.userStore(cfg); err != nil {
		return nil, err
	}
	if b.sessions, err = b.sessionStore(cfg); err != nil {
		return nil, err
	}
	if b.tokens, err = b.tokenStore(cfg); err != nil {
		return nil, err
	}

	logger.Info("stores ready",
		"users", cfg.Store.Users,
		"sessions", cfg.Store.Sessions,
		"tokens", cfg.Store.Tokens,
	)
	return b, nil
}

func (b *backends) openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps backendDeps) error {
	if cfg.Store.AutoMigrate {
		migrator, err := deps.MigratorFactory(cfg.Secrets.DatabaseURL)
		if err != nil {
			return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
		}
		upErr := migrator.Up()
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
		if upErr != nil {
			return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(upErr)
		}
		logger.Info("database migrations applied")
	}

	pool, err := store.Connect(ctx, cfg.Secrets.DatabaseURL, store.ConnectOptions{Logger: logger})
	if err != nil {
		return oops.With("backend", config.BackendPostgres).Wrap(err)
	}
	b.pool = pool
	b.checks[config.BackendPostgres] = pool.Ping
	b.closers = append(b.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	return nil
}

func (b *backends) openRedis(ctx context.Context, cfg *config.Config) error {
	client, err := authredis.Connect(ctx, cfg.Secrets.RedisURL)
	if err != nil {
		return oops.With("backend", config.BackendRedis).Wrap(err)
	}
	b.redis = client
	b.checks[config.BackendRedis] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	b.closers = append(b.closers, func(context.Context) error {
		return client.Close()
	})
	return nil
}

func (b *backends) openMongo(ctx context.Context, cfg *config.Config) error {
	client, err := authmongo.Connect(ctx, cfg.Secrets.MongoURI)
	if err != nil {
		return oops.With("backend", config.BackendMongo).Wrap(err)
	}
	b.mongo = client
	b.closers = append(b.closers, client.Disconnect)
	b.checks[config.BackendMongo] = func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}

	if err := authmongo.EnsureIndexes(ctx, b.mongoDB(cfg)); err != nil {
		return oops.With("backend", config.BackendMongo).Wrap(err)
	}
	return nil
}

func (b *backends) mongoDB(cfg *config.Config) *mongo.Database {
	return b.mongo.Database(cfg.Secrets.MongoDatabase)
}

func (b *backends) userStore(cfg *config.Config) (auth.UserStore, error) {
	switch cfg.Store.Users {
	case config.BackendMemory:
		return memory.NewUserStore(), nil
	case config.BackendPostgres:
		return authpg.NewUserStore(b.pool), nil
	case config.BackendMongo:
		return authmongo.NewUserStore(b.mongoDB(cfg)), nil
	default:
		return nil, unsupportedBackend("users", cfg.Store.Users)
	}
}

func (b *backends) sessionStore(cfg *config.Config) (auth.SessionStore, error) {
	switch cfg.Store.Sessions {
	case config.BackendMemory:
		return memory.NewSessionStore(), nil
	case config.BackendPostgres:
		return authpg.NewSessionStore(b.pool), nil
	case config.BackendRedis:
		return authredis.NewSessionStore(b.redis, authredis.SessionStoreOptions{Prefix: cfg.Store.RedisPrefix}), nil
	case config.BackendMongo:
		return authmongo.NewSessionStore(b.mongoDB(cfg)), nil
	default:
		return nil, unsupportedBackend("sessions", cfg.Store.Sessions)
	}
}

func (b *backends) tokenStore(cfg *config.Config) (auth.TokenStore, error) {
	switch cfg.Store.Tokens {
	case config.BackendMemory:
		return memory.NewTokenStore(), nil
	case config.BackendPostgres:
		return authpg.NewTokenStore(b.pool), nil
	case config.BackendRedis:
		return authredis.NewTokenStore(b.redis, cfg.Store.RedisPrefix), nil
	case config.BackendMongo:
		return authmongo.NewTokenStore(b.mongoDB(cfg)), nil
	default:
		return nil, unsupportedBackend("tokens", cfg.Store.Tokens)
	}
}

func unsupportedBackend(entity, backend string) error {
	return oops.Code("BACKEND_UNSUPPORTED").
		With("entity", entity).
		With("backend", backend).
		Errorf("%s cannot be stored in %q", entity, backend)
}

// Close releases connections in reverse order of opening.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	if err := errors.Join(errs...); err != nil {
		return oops.Code("BACKEND_CLOSE_FAILED").Wrap(err)
	}
	return nil
}
