// Package bootstrap establishes runtime dependencies shared by the
// commands: database, Redis, schema migration, and the optional
// development root admin.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"oakvoices/internal/config"
	"oakvoices/internal/database"
	"oakvoices/internal/models"
	"oakvoices/internal/remote/authsvc"
	"oakvoices/internal/remote/gormstore"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Migrate runs schema migration for the data and auth bindings.
	Migrate bool
}

// InitRuntime connects the database and Redis and optionally migrates. The
// Redis client is nil when the URL is empty or the server is unreachable;
// snapshots and the change feed then degrade to no-ops.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if opts.Migrate {
		if err := gormstore.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("data migration failed: %w", err)
		}
		if err := authsvc.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("auth migration failed: %w", err)
		}
	}

	rdb := initRedis(cfg.RedisURL)

	if err := ensureDevRootAdmin(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	return db, rdb, nil
}

func initRedis(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("invalid redis url, continuing without redis", "err", err)
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, continuing without redis", "err", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

// ensureDevRootAdmin flips the admin flag on the configured root profile in
// development environments, creating the identity on first run.
func ensureDevRootAdmin(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@oakvoices.local"
	}
	if cfg.DevRootPassword == "" {
		return fmt.Errorf("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	ctx := context.Background()
	auth := authsvc.New(db, cfg.JWTSecret)
	store := gormstore.New(db, nil)

	session, err := auth.SignUp(ctx, email, cfg.DevRootPassword)
	if err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Code != models.CodeValidation {
			return err
		}
		// The identity exists from a previous run; make sure it signs in.
		session, err = auth.SignIn(ctx, email, cfg.DevRootPassword)
		if err != nil {
			return fmt.Errorf("existing root identity rejects the configured password: %w", err)
		}
	}

	if _, err := store.GetProfile(ctx, session.UserID); err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Code != models.CodeNotFound {
			return err
		}
		if _, err := store.InsertProfile(ctx, models.User{ID: session.UserID, Name: "Root"}); err != nil {
			return err
		}
	}
	if err := store.SetAdmin(ctx, session.UserID, true); err != nil {
		return err
	}

	slog.Info("development root admin bootstrap ensured", "email", email)
	return nil
}
