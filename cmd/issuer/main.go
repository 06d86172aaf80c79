package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/signed-upload/pkg/signedupload/config"
	"github.com/tendant/signed-upload/pkg/signedupload/issuance"
)

func main() {
	cfg, err := config.LoadIssuerConfig()
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	verifier, err := cfg.Verifier()
	if err != nil {
		logger.Error("Failed to build token verifier", "err", err)
		os.Exit(1)
	}

	metrics, err := issuance.NewMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("Failed to register metrics", "err", err)
		os.Exit(1)
	}

	keys := cfg.KeyStore()
	if present := keys.Presence(); !present.Complete() {
		logger.Warn("Media credentials incomplete, issuance requests will fail until configured",
			"cloud_name_set", present.CloudName,
			"api_key_set", present.APIKey,
			"api_secret_set", present.APISecret,
		)
	}

	svc := issuance.NewService(keys, cfg.ServiceOptions()...)
	handler := issuance.NewHandler(svc, verifier,
		issuance.WithLogger(logger),
		issuance.WithMetrics(metrics),
		issuance.WithAllowedOrigins(cfg.AllowedOrigins...),
	)

	requestLogger := httplog.NewLogger("signed-upload-issuer", httplog.Options{
		JSON:     !cfg.IsDevelopment(),
		LogLevel: logLevel(cfg.LogLevel),
		Concise:  true,
	})

	r := newRouter(handler, requestLogger)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("Starting credential issuer", "addr", server.Addr, "auth_mode", cfg.AuthMode, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down credential issuer")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("Server exited")
}

// newRouter serves the issuance endpoint at "/" next to health and metrics. Every route answers
// CORS preflight.
func newRouter(handler *issuance.Handler, requestLogger *httplog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if requestLogger != nil {
		r.Use(httplog.RequestLogger(requestLogger, []string{"/healthz", "/metrics"}))
	}
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(handler.CORS())
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			render.PlainText(w, r, "ok")
		})
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Options("/healthz", handler.Preflight)
		r.Options("/metrics", handler.Preflight)
	})
	r.Mount("/", handler.Routes())
	return r
}

func newLogger(cfg config.IssuerConfig) *slog.Logger {
	level := logLevel(cfg.LogLevel)
	if cfg.IsDevelopment() {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
