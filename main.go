package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abdusco/qrlink/internal/access"
	"github.com/abdusco/qrlink/internal/auth"
	"github.com/abdusco/qrlink/internal/cache"
	"github.com/abdusco/qrlink/internal/db"
	"github.com/abdusco/qrlink/internal/handler"
	"github.com/abdusco/qrlink/internal/logger"
	"github.com/abdusco/qrlink/internal/qr"
	"github.com/abdusco/qrlink/internal/repo"
	"github.com/abdusco/qrlink/internal/service"
	"github.com/abdusco/qrlink/internal/shortcode"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type Config struct {
	Host               string
	Port               string
	DatabaseURL        string `json:"-"`
	BaseURL            string
	AdminEmails        string
	JWTSecret          string `json:"-"`
	GoogleClientID     string
	GoogleClientSecret string `json:"-"`
	GoogleRedirectURL  string
	RedisURL           string `json:"-"`
	CacheTTL           time.Duration
	RequestTimeout     time.Duration
	PostSignInURL      string
	LogLevel           string
	Debug              bool
	SecureCookies      bool
}

func newConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Config{
		Host:               cmp.Or(os.Getenv("HOST"), "localhost"),
		Port:               cmp.Or(os.Getenv("PORT"), "8080"),
		DatabaseURL:        cmp.Or(os.Getenv("DATABASE_URL"), "qrlink.db"),
		BaseURL:            strings.TrimRight(cmp.Or(os.Getenv("BASE_URL"), "http://localhost:8080"), "/"),
		AdminEmails:        os.Getenv("ADMIN_EMAILS"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		PostSignInURL:      cmp.Or(os.Getenv("POST_SIGNIN_URL"), "/api/links"),
		LogLevel:           cmp.Or(os.Getenv("LOG_LEVEL"), "info"),
		Debug:              os.Getenv("DEBUG") == "1",
		SecureCookies:      os.Getenv("SECURE_COOKIES") == "1",
	}

	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = cfg.BaseURL + "/auth/google/callback"
	}

	var err error
	if cfg.CacheTTL, err = time.ParseDuration(cmp.Or(os.Getenv("CACHE_TTL"), "1h")); err != nil {
		return Config{}, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.RequestTimeout, err = time.ParseDuration(cmp.Or(os.Getenv("REQUEST_TIMEOUT"), "10s")); err != nil {
		return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	if cfg.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return Config{}, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
		log.Warn().Msg("using a random JWT_SECRET - sessions will not survive a restart")
	}

	return cfg, nil
}

func main() {
	cfg, err := newConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration from environment")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to set up logging")
	}

	log.Info().
		Interface("config", cfg).
		Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	handle := db.New(cfg.DatabaseURL)
	defer handle.Close()

	if err := handle.Ping(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	registry := repo.NewLinksRepo(handle)

	var (
		resolverOpts []service.ResolverOption
		linksOpts    []service.LinksOption
	)
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		destinations := cache.NewDestinationCache(client, cfg.CacheTTL)
		resolverOpts = append(resolverOpts, service.WithResolverCache(destinations))
		linksOpts = append(linksOpts, service.WithLinksCache(destinations))
	} else {
		log.Info().Msg("REDIS_URL not set, resolution cache disabled")
	}

	guard := access.NewGuard(cfg.AdminEmails)
	if guard.OpenAccess() {
		log.Warn().Msg("ADMIN_EMAILS is empty - every signed-in user is an admin")
	}

	provider := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	if !provider.Configured() {
		log.Warn().Msg("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET missing - sign-in is disabled")
	}
	sessions := auth.NewSessions(cfg.JWTSecret, cfg.SecureCookies)

	e := handler.NewRouter(handler.RouterConfig{
		Links: handler.NewLinkHandler(
			service.NewProvisioner(registry, shortcode.New(), qr.NewPNGEncoder(), qr.InlineStore{}, cfg.BaseURL),
			service.NewLinks(registry, linksOpts...),
			service.NewResolver(registry, resolverOpts...),
		),
		Auth:           handler.NewAuthHandler(provider, sessions, guard, cfg.PostSignInURL, cfg.SecureCookies),
		Authenticator:  auth.NewAuthenticator(sessions, guard),
		DB:             handle,
		RequestTimeout: cfg.RequestTimeout,
	})
	defer e.Close()

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	log.Info().Str("address", addr).Msg("server starting")

	return runServer(ctx, e, addr)
}

// runServer serves until ctx is canceled, then drains in-flight requests.
func runServer(ctx context.Context, e *echo.Echo, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during graceful shutdown")
		}
		return nil
	})

	err := g.Wait()
	log.Info().Msg("server stopped")
	return err
}
