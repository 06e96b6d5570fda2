package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/abdusco/qrlink/internal/auth"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Links          *LinkHandler
	Auth           *AuthHandler
	Authenticator  *auth.Authenticator
	DB             Pinger
	RequestTimeout time.Duration
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func newValidator() *requestValidator {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &requestValidator{validate: validate}
}

func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Validator = newValidator()
	e.Renderer = NewRenderer()

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.RequestTimeout,
		}))
	}
	e.Use(cfg.Authenticator.Middleware())

	e.GET("/health", func(c echo.Context) error {
		if err := cfg.DB.Ping(c.Request().Context()); err != nil {
			log.Error().Err(err).Msg("health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/auth/signin", cfg.Auth.SignIn)
	e.GET("/auth/google/callback", cfg.Auth.Callback)
	e.GET("/auth/signout", cfg.Auth.SignOut)
	e.GET("/auth/unauthorized", cfg.Auth.Unauthorized)

	api := e.Group("/api", auth.RequireAdmin)
	api.POST("/links", cfg.Links.CreateLink)
	api.POST("/qr/create", cfg.Links.CreateLink)
	api.GET("/links", cfg.Links.ListLinks)
	api.GET("/links/:code", cfg.Links.GetLink)
	api.PATCH("/links/:code", cfg.Links.UpdateLink)
	api.GET("/links/:code/qr.png", cfg.Links.QRImage)

	e.GET("/q/:code", cfg.Links.Redirect)

	return e
}
