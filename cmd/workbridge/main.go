package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/workbridge/workbridge/internal/audit"
	"github.com/workbridge/workbridge/internal/azdo"
	"github.com/workbridge/workbridge/internal/config"
	"github.com/workbridge/workbridge/internal/rpc"
	"github.com/workbridge/workbridge/internal/tool"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("WORKBRIDGE_CONFIG")
	if cfgPath == "" {
		cfgPath = "workbridge.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	client, err := azdo.NewClient(azdo.Options{
		OrganizationURL:     cfg.OrganizationURL,
		Project:             cfg.Project,
		PersonalAccessToken: cfg.PersonalAccessToken,
		APIVersion:          cfg.APIVersion,
		MaxAttempts:         cfg.MaxAttempts,
		InitialDelay:        cfg.InitialDelay(),
		AttemptTimeout:      cfg.RequestTimeout(),
		HTTPClient:          &http.Client{},
	})
	if err != nil {
		logger.Error("build work item client", "error", err)
		os.Exit(1)
	}

	registry := tool.NewRegistry()
	registry.Register(tool.NewCreateWorkItemTool(client))
	registry.Register(tool.NewGetWorkItemTool(client))
	registry.Register(tool.NewUpdateWorkItemTool(client))
	registry.Register(tool.NewListWorkItemsTool(client))

	var store *audit.Store
	if cfg.DatabaseURL != "" {
		store, err = audit.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error("open audit store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("audit store enabled")
	}

	dispatcher := rpc.NewDispatcher(registry, logger, store)
	server := rpc.NewServer(cfg.ListenAddr, dispatcher, cfg.AuthSecret, logger, rpc.BuildInfo{
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	})

	logger.Info("workbridge starting",
		"version", version,
		"commit", gitCommit,
		"project", cfg.Project,
		"tools", len(registry.List()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("workbridge stopped")
}
