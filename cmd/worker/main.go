package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"github.com/drewmudry/cadence-api/internal/app"
	"github.com/drewmudry/cadence-api/internal/platform"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := platform.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if err := platform.SetupLogging(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start worker")
	}
	defer a.Close()

	logrus.Info("Worker started, waiting for queue tasks...")
	a.Tasks.Listen(ctx, a.Tasks.Queues()...)
}
