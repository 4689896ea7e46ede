package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailpipe/mailpipe/internal/bootstrap"
	"github.com/mailpipe/mailpipe/internal/config"
	"github.com/mailpipe/mailpipe/internal/core/domain"
	"github.com/mailpipe/mailpipe/internal/infrastructure/scheduler"
	"github.com/mailpipe/mailpipe/internal/observability/logging"
	"github.com/mailpipe/mailpipe/internal/observability/metrics"
)

const serviceName = "mailpipe-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	sched := scheduler.New(ctx, logger)
	if err := sched.Register(cfg.PollSchedule, "poll_providers", func(jobCtx context.Context) error {
		err := app.PollAll(jobCtx)
		workerMetrics.RecordPollCycle(serviceName, "all", err)
		return err
	}); err != nil {
		log.Fatalf("register poll job: %v", err)
	}
	if err := sched.Register(cfg.ExtractSchedule, "extract_attachments", func(jobCtx context.Context) error {
		err := app.ExtractUC.Run(jobCtx)
		workerMetrics.RecordExtractionRun(serviceName, err)
		return err
	}); err != nil {
		log.Fatalf("register extract job: %v", err)
	}
	sched.Start()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeMessageFound(ctx, func(handlerCtx context.Context, event domain.MessageEvent) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if received := event.Message.ReceivedAt; received != nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(*received))
		}

		workerMetrics.StartMessage()
		start := time.Now()
		processErr := app.ProcessUC.Process(processCtx, event)
		workerMetrics.FinishMessage(serviceName, time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}
}
