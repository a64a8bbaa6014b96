// Package app assembles the shared object graph used by every binary.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/drewmudry/cadence-api/auth"
	"github.com/drewmudry/cadence-api/drafts"
	"github.com/drewmudry/cadence-api/internal/clock"
	"github.com/drewmudry/cadence-api/internal/platform"
	"github.com/drewmudry/cadence-api/internal/tokencrypt"
	"github.com/drewmudry/cadence-api/processing"
	"github.com/drewmudry/cadence-api/providers"
	"github.com/drewmudry/cadence-api/publishing"
	"github.com/drewmudry/cadence-api/worker"
)

type App struct {
	Config     platform.Config
	DB         *gorm.DB
	Redis      *redis.Client
	Cipher     *tokencrypt.Cipher
	State      *auth.StateSigner
	Generator  processing.Generator
	Publishers providers.Registry
	Dispatcher *publishing.Dispatcher
	Nightly    *drafts.Nightly
	Tasks      *worker.Processor
}

// Open connects to postgres and redis and assembles the App.
func Open(ctx context.Context, cfg platform.Config) (*App, error) {
	db, err := platform.NewDBConnection(cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := platform.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := Assemble(ctx, cfg, db, worker.RedisQueue{RDB: rdb}, clock.Real{})
	if err != nil {
		return nil, err
	}
	a.Redis = rdb
	return a, nil
}

// Assemble wires components over an existing database and queue.
// Secrets that are not configured leave their component nil; the routes
// that need them are not mounted.
func Assemble(ctx context.Context, cfg platform.Config, db *gorm.DB, q worker.Queue, clk clock.Clock) (*App, error) {
	a := &App{Config: cfg, DB: db}

	if cfg.TokenEncryptionKey != "" {
		c, err := tokencrypt.New(cfg.TokenEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY: %w", err)
		}
		a.Cipher = c
	} else {
		logrus.Warn("[APP] TOKEN_ENCRYPTION_KEY not set, publishing and account connection are disabled")
	}

	if cfg.OAuthStateSecret != "" {
		s, err := auth.NewStateSigner(cfg.OAuthStateSecret, clk)
		if err != nil {
			return nil, err
		}
		a.State = s
	}

	gen, err := processing.New(ctx, cfg.ContentOptions())
	if err != nil {
		logrus.WithError(err).Warn("[APP] content generator unavailable, drafts will start empty")
		gen = processing.Noop{}
	}
	a.Generator = gen

	a.Publishers = providers.NewRegistry(a.Cipher, cfg.ProviderConfig())
	a.Dispatcher = publishing.NewDispatcher(db, a.Publishers, clk, cfg.DispatchConcurrency)
	a.Nightly = drafts.NewNightly(db, drafts.NewMaterializer(db, gen), clk, cfg.MonthsAhead)

	a.Tasks = worker.NewProcessor(db, q)
	a.Tasks.Clock = clk
	worker.Register(a.Tasks, a.Dispatcher, a.Nightly)
	return a, nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
