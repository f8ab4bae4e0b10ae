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
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/meetapp/internal/auth"
	"github.com/mmynk/meetapp/internal/config"
	"github.com/mmynk/meetapp/internal/httpapi"
	"github.com/mmynk/meetapp/internal/mail"
	"github.com/mmynk/meetapp/internal/middleware"
	"github.com/mmynk/meetapp/internal/notify"
	"github.com/mmynk/meetapp/internal/queue"
	"github.com/mmynk/meetapp/internal/service"
	"github.com/mmynk/meetapp/internal/storage"
	"github.com/mmynk/meetapp/internal/storage/postgres"
	"github.com/mmynk/meetapp/internal/storage/sqlite"
	"github.com/mmynk/meetapp/pkg/logging"
)

type store interface {
	storage.Store
	httpapi.Pinger
}

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
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		slog.Warn("Using the development JWT secret, set JWT_SECRET in production")
	}

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := openQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer q.Close()

	logger := slog.Default()
	authenticator := auth.NewPasswordAuthenticator(st)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	files, err := service.NewFileService(st, cfg.Uploads.Dir, cfg.Uploads.BaseURL, cfg.Uploads.MaxBytes)
	if err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if !cfg.RateLimit.Disabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	health := []httpapi.Pinger{st}
	if p, ok := q.(httpapi.Pinger); ok {
		health = append(health, p)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Meetups:        service.NewMeetupService(st),
		Subscriptions:  service.NewSubscriptionService(st, notify.NewDispatcher(q, logger)),
		Users:          service.NewUserService(st, authenticator),
		Sessions:       service.NewSessionService(st, authenticator, jwtManager),
		Files:          files,
		JWT:            jwtManager,
		Limiter:        limiter,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Health:         health,
	})

	scheduler := cron.New()
	if limiter != nil {
		if _, err := scheduler.AddFunc(cfg.RateLimit.Cleanup, func() {
			if n := limiter.Cleanup(cfg.RateLimit.IdleTTL); n > 0 {
				slog.Debug("Dropped idle rate limiters", "count", n)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule rate limiter cleanup: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Without Redis, mail jobs are handled in this process.
	if mq, ok := q.(*queue.MemoryQueue); ok {
		mailer, err := newMailer(cfg.Mail)
		if err != nil {
			return err
		}
		go func() {
			h := notify.SubscriptionMailHandler(mailer, logger)
			if err := mq.Consume(ctx, notify.SubscriptionMailKey, h); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
				slog.Error("In-process mail consumer stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, error) {
	if cfg.Driver == "postgres" {
		st, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", "postgres")
		return st, nil
	}

	st, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
	}
	slog.Info("Storage initialized", "driver", "sqlite", "database", cfg.Path)
	return st, nil
}

func openQueue(ctx context.Context, cfg *config.Config) (queue.Queue, error) {
	if cfg.Redis.Addr == "" {
		slog.Info("Queue initialized", "backend", "memory")
		return queue.NewMemoryQueue(), nil
	}

	q, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("Queue initialized", "backend", "redis", "addr", cfg.Redis.Addr)
	return q, nil
}

func newMailer(cfg config.MailConfig) (mail.Mailer, error) {
	if cfg.Host == "" {
		return mail.NewLogMailer(slog.Default()), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		From:     cfg.From,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
