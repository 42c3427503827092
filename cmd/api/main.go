package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/healthmatters/internal/analysis"
	"github.com/splax/healthmatters/internal/app/migrate"
	httpx "github.com/splax/healthmatters/internal/http"
	"github.com/splax/healthmatters/internal/mailer"
	"github.com/splax/healthmatters/internal/repository/postgres"
	"github.com/splax/healthmatters/internal/service/auth"
	"github.com/splax/healthmatters/internal/service/labs"
	"github.com/splax/healthmatters/internal/service/profile"
	"github.com/splax/healthmatters/internal/session"
	"github.com/splax/healthmatters/internal/uploads"
	"github.com/splax/healthmatters/pkg/config"
	"github.com/splax/healthmatters/pkg/logger"
)

const janitorInterval = time.Hour

func main() {
	bootLog := logger.New("api", slog.LevelInfo)
	if err := config.LoadDotEnv(); err != nil {
		bootLog.Warn("failed to load .env", "error", err)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	sessions := session.NewMemoryStore(cfg.SessionTTL)
	if addr := strings.TrimSpace(cfg.SessionRedisAddr); addr != "" {
		redisStore, err := session.NewRedisStore(addr, cfg.SessionRedisPass, cfg.SessionRedisDB, cfg.SessionTTL, log)
		if err != nil {
			log.Warn("redis session store unavailable, using memory", "error", err)
		} else {
			sessions.Close()
			sessions = redisStore
		}
	}
	defer sessions.Close()

	var sender mailer.Sender = mailer.Disabled{}
	if cfg.SMTPHost != "" {
		smtp, err := mailer.NewSMTP(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			LinkTTL:  cfg.ResetTokenTTL,
		}, log)
		if err != nil {
			log.Warn("smtp mailer unavailable, reset emails disabled", "error", err)
		} else {
			sender = smtp
		}
	} else {
		log.Warn("SMTP_HOST not set, reset emails disabled")
	}

	var analyzer analysis.Analyzer = analysis.Disabled{}
	if cfg.OpenAIAPIKey != "" {
		analyzer = analysis.NewOpenAI(analysis.Config{
			APIKey:            cfg.OpenAIAPIKey,
			Model:             cfg.OpenAIModel,
			BaseURL:           cfg.OpenAIBaseURL,
			RequestsPerMinute: cfg.AIRequestsPerMinute,
			Timeout:           cfg.AITimeout,
		}, log)
	} else {
		log.Warn("OPENAI_API_KEY not set, lab analysis disabled")
	}

	files, err := uploads.New(cfg.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	authSvc := auth.New(repo, repo, sessions, sender, log, cfg)
	profileSvc := profile.New(repo, log)
	labSvc := labs.New(repo, profileSvc, files, analyzer, cfg.MaxUploadBytes, log)

	go authSvc.RunJanitor(ctx, janitorInterval)

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}
	if limiter == nil {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(httpx.Options{
		Logger:   log,
		Auth:     authSvc,
		Profiles: profileSvc,
		Labs:     labSvc,
		Limiter:  limiter,
		Cookie: httpx.CookieConfig{
			Name:   cfg.SessionCookieName,
			Secret: cfg.SessionSecret,
			TTL:    cfg.SessionTTL,
			Secure: cfg.Production(),
		},
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaticDir:      cfg.StaticDir,
		DBHealth:       pool.Ping,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		drained := make(chan struct{})
		go func() {
			authSvc.WaitPending()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			log.Warn("pending password reset emails abandoned at shutdown")
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
