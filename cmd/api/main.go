// main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/drewmudry/cadence-api/internal/app"
	"github.com/drewmudry/cadence-api/internal/platform"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	runMigrations := flag.Bool("migrate", false, "apply database migrations before serving")
	flag.Parse()

	cfg, err := platform.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if err := platform.SetupLogging(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create server")
	}
	defer a.Close()

	if *runMigrations {
		sqlDB, err := a.DB.DB()
		if err != nil {
			logrus.WithError(err).Fatal("Failed to get SQL DB")
		}
		if err := platform.Migrate(sqlDB); err != nil {
			logrus.WithError(err).Fatal("Failed to migrate")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to run server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
