package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/kudospace/internal/api/aiapi"
	"github.com/tjfontaine/kudospace/internal/api/kudosapi"
	"github.com/tjfontaine/kudospace/internal/auth"
	"github.com/tjfontaine/kudospace/internal/config"
	"github.com/tjfontaine/kudospace/internal/httpclient"
	"github.com/tjfontaine/kudospace/internal/kudos"
	"github.com/tjfontaine/kudospace/internal/openrouter"
	"github.com/tjfontaine/kudospace/internal/server"
	"github.com/tjfontaine/kudospace/internal/storage/memory"
	"github.com/tjfontaine/kudospace/internal/storage/sqlite"
	"github.com/tjfontaine/kudospace/internal/telemetry"
	"github.com/tjfontaine/kudospace/internal/tokens"
)

const (
	serviceName     = "kudospace"
	shutdownTimeout = 30 * time.Second
)

var version = "dev"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Options{ServiceName: serviceName, Version: version}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	service := kudos.NewService(store, kudos.WithLogger(logger))

	users := authUsers(cfg.Users)
	for _, u := range users {
		if _, err := service.EnsureProfile(ctx, u.Identity()); err != nil {
			return fmt.Errorf("failed to provision profile %s: %w", u.ID, err)
		}
	}
	authenticator := auth.NewAuthenticator(users)
	logger.Info("users configured", slog.Int("count", len(users)))

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger, authenticator)

	kudosapi.NewHandler(service, logger).Routes(srv.Router)
	aiapi.NewHandler(newCompleter(cfg, logger), logger).Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", srv.Port), slog.String("version", version))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (kudos.Store, error) {
	switch cfg.Type {
	case "memory":
		logger.Info("using in-memory storage")
		return memory.New(), nil
	case "sqlite", "":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite storage", slog.String("path", cfg.SQLite.Path))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func authUsers(configured []config.UserConfig) []*auth.User {
	users := make([]*auth.User, 0, len(configured))
	for _, u := range configured {
		users = append(users, &auth.User{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Email:       u.Email,
			AvatarURL:   u.AvatarURL,
			KeyHash:     u.KeyHash,
		})
	}
	return users
}

// newCompleter builds the OpenRouter client. A configuration error leaves the
// AI endpoint answering with a configuration error instead of failing startup.
func newCompleter(cfg *config.Config, logger *slog.Logger) aiapi.Completer {
	svc, err := openrouter.New(cfg.OpenRouterConfig(),
		openrouter.WithHTTPClient(httpclient.New(httpclient.Options{DenyPrivate: cfg.OpenRouter.DenyPrivateNetworks})),
		openrouter.WithLogger(logger),
		openrouter.WithTokenCounter(tokens.NewCounter()),
	)
	if err != nil {
		var oerr *openrouter.Error
		if errors.As(err, &oerr) {
			logger.Warn("AI message generation disabled", slog.String("reason", oerr.Message))
		} else {
			logger.Warn("AI message generation disabled", slog.String("error", err.Error()))
		}
		return nil
	}
	return svc
}
