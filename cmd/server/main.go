package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/alvarodevlabs/DisfrutaTV/internal/app"
	"github.com/alvarodevlabs/DisfrutaTV/internal/config"
	"github.com/alvarodevlabs/DisfrutaTV/internal/mail"
	"github.com/alvarodevlabs/DisfrutaTV/internal/ratelimit"
	"github.com/alvarodevlabs/DisfrutaTV/internal/server"
	"github.com/alvarodevlabs/DisfrutaTV/internal/tmdb"
	"github.com/alvarodevlabs/DisfrutaTV/internal/util"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/store"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	resetTTL, err := config.ParseTTL(cfg.ResetTTL)
	if err != nil {
		log.Fatalf("failed to parse reset TTL: %v", err)
	}
	if resetTTL == 0 {
		resetTTL = store.DefaultResetTTL
	}

	logger := util.InitLogger(cfg.LogLevel)

	var revoker store.TokenRevoker
	if cfg.RedisAddr != "" {
		revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		slog.Warn("no redisAddr configured, revoked tokens are lost on restart")
		revoker = store.NewMemoryTokenRevoker()
	}

	sessions, err := store.NewSessionTokens(cfg.SessionSecret, sessionTTL, revoker)
	if err != nil {
		log.Fatalf("failed to init session tokens: %v", err)
	}
	resets, err := store.NewResetTokens(cfg.ResetSecret, resetTTL)
	if err != nil {
		log.Fatalf("failed to init reset tokens: %v", err)
	}

	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	var mailer mail.Mailer
	if cfg.SendGridAPIKey != "" {
		mailer = mail.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	} else {
		slog.Warn("no sendgridApiKey configured, reset emails go to the log")
		mailer = mail.NewLogMailer()
	}

	appCore, err := app.New(app.Config{
		Store:         gormStore,
		ConfigStore:   gormStore,
		Sessions:      sessions,
		ResetTokens:   resets,
		Mailer:        mailer,
		Catalog:       tmdb.NewClient(),
		ResetLinkBase: cfg.FrontendBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	if err := appCore.SeedConfiguration(cfg.TMDBBootstrapKey); err != nil {
		log.Fatalf("failed to seed configuration: %v", err)
	}

	loginLimiter := newLimiter(cfg, cfg.LoginRateLimitPerMinute, "disfrutatv:ratelimit:login")
	resetLimiter := newLimiter(cfg, cfg.ResetRateLimitPerMinute, "disfrutatv:ratelimit:reset")

	httpServer := server.New(server.Config{
		App:          appCore,
		LoginLimiter: loginLimiter,
		ResetLimiter: resetLimiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

// newLimiter builds a per-minute limiter, Redis-backed when available.
// A zero limit disables the endpoint's limiter.
func newLimiter(cfg config.FileConfig, perMinute int, prefix string) *ratelimit.FixedWindowLimiter {
	if perMinute <= 0 {
		return nil
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		return limiter
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(perMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	return limiter
}
