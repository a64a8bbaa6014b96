package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/drewmudry/cadence-api/internal/app"
	"github.com/drewmudry/cadence-api/internal/platform"
)

// Only one scheduler instance should run; cron entries are not coordinated
// across processes.
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
		logrus.WithError(err).Fatal("Failed to start scheduler")
	}
	defer a.Close()

	// SkipIfStillRunning keeps a slow pass from overlapping the next tick.
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))

	if _, err := c.AddFunc(cfg.DispatchSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, cfg.DispatchTimeout)
		defer cancel()
		res, err := a.Dispatcher.RunDue(runCtx, cfg.DispatchBatchLimit)
		if err != nil {
			logrus.WithError(err).Error("[SCHEDULER] run-due failed")
			return
		}
		logrus.WithFields(logrus.Fields{
			"attempted": res.Attempted,
			"succeeded": res.Succeeded,
			"failed":    res.Failed,
		}).Info("[SCHEDULER] run-due finished")
	}); err != nil {
		logrus.WithError(err).Fatal("Invalid DISPATCH_CRON")
	}

	if _, err := c.AddFunc(cfg.NightlySchedule, func() {
		res, err := a.Nightly.GenerateAll(ctx)
		if err != nil {
			logrus.WithError(err).Error("[SCHEDULER] generate-all failed")
			return
		}
		logrus.WithFields(logrus.Fields{
			"brands":  res.Brands,
			"created": res.Created,
		}).Info("[SCHEDULER] generate-all finished")
	}); err != nil {
		logrus.WithError(err).Fatal("Invalid NIGHTLY_CRON")
	}

	c.Start()
	logrus.Info("Scheduler started")

	<-ctx.Done()
	logrus.Info("Scheduler stopping")
	<-c.Stop().Done()
}
