package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/signed-upload/pkg/signedupload/config"
)

func main() {
	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	host, cleanup, err := cfg.BuildMediaHost(ctx, slog.Default())
	if err != nil {
		slog.Error("Failed to build media host", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Mount("/", host.Routes())

	if cfg.AdminAPIKey != "" {
		digest := sha256.Sum256([]byte(cfg.AdminAPIKey))
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"admin": hex.EncodeToString(digest[:]),
			},
		})
		if err != nil {
			slog.Error("Failed initialize API Key middleware", "err", err)
			return
		}
		server.R.Route("/admin", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/", host.AdminRoutes())
		})
	} else {
		slog.Warn("ADMIN_API_KEY not set, admin routes disabled")
	}

	slog.Info("Media host ready",
		"cloud_name", cfg.CloudName,
		"database", cfg.DatabaseType,
		"storage", cfg.Storage.Type,
		"public_url", cfg.PublicURL,
	)

	server.Run()
}
