// Command worker delivers queued notification mail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/mmynk/meetapp/internal/config"
	"github.com/mmynk/meetapp/internal/mail"
	"github.com/mmynk/meetapp/internal/metrics"
	"github.com/mmynk/meetapp/internal/notify"
	"github.com/mmynk/meetapp/internal/queue"
	"github.com/mmynk/meetapp/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Redis.Addr == "" {
		return errors.New("the worker needs REDIS_ADDR; without it the server handles mail in-process")
	}

	q, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer q.Close()

	var mailer mail.Mailer
	if cfg.Mail.Host == "" {
		slog.Warn("MAIL_HOST not set, mail will only be logged")
		mailer = mail.NewLogMailer(slog.Default())
	} else {
		mailer, err = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return err
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Worker.DepthSchedule, func() {
		sampleDepth(ctx, q, notify.SubscriptionMailKey)
	}); err != nil {
		return fmt.Errorf("failed to schedule queue depth sampling: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Worker.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		slog.Info("Metrics server starting", "address", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("Worker started", "queue", notify.SubscriptionMailKey)
	handler := notify.SubscriptionMailHandler(mailer, slog.Default())
	if err := q.Consume(ctx, notify.SubscriptionMailKey, handler); err != nil && !errors.Is(err, queue.ErrClosed) {
		return err
	}

	slog.Info("Worker stopped")
	return nil
}

func sampleDepth(ctx context.Context, q queue.Queue, key string) {
	n, err := q.Len(ctx, key)
	if err != nil {
		slog.Warn("Failed to sample queue depth", "queue", key, "error", err)
		return
	}
	metrics.SetQueueDepth(key, n)
}
