package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"HypeScanner/internal/api"
	"HypeScanner/internal/collector"
	"HypeScanner/internal/config"
	"HypeScanner/internal/infrastructure/collectors"
	"HypeScanner/internal/infrastructure/llm"
	"HypeScanner/internal/infrastructure/scheduler"
	"HypeScanner/internal/infrastructure/storage"
	"HypeScanner/internal/infrastructure/telegram"
	"HypeScanner/internal/ports"
	"HypeScanner/internal/usecase"
)

// App assembles the classification service: sqlite-backed cache, the five
// collectors, the DeepSeek client, HTTP surface and the background sweeper.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	repo    *storage.SQLiteRepository
	server  *http.Server
	sweeper *scheduler.Sweeper
}

// New wires all components from configuration.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	repo, err := storage.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	classifierClient := llm.NewDeepSeekClient(cfg.DeepSeek, nil, logger)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	financeClient := &http.Client{Timeout: 60 * time.Second}

	registry := collector.NewRegistry(
		collectors.NewSocialCollector(httpClient, logger),
		collectors.NewPapersCollector(cfg.Collectors.SemanticScholarAPIKey, httpClient, logger),
		collectors.NewPatentsCollector(cfg.Collectors.PatentsViewAPIKey, httpClient, logger),
		collectors.NewNewsCollector(httpClient, logger),
		collectors.NewFinanceCollector(classifierClient, financeClient, logger),
	)

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, nil, logger)
	}

	engine := usecase.NewClassifier(usecase.ClassifierDeps{
		Collectors: registry,
		Classifier: classifierClient,
		Repository: repo,
		Notifier:   notifier,
		Analysis:   cfg.Analysis,
		CacheTTL:   cfg.Cache.TTL(),
		Logger:     logger,
	})

	handler := api.NewHandler(engine, logger)
	router := api.NewRouter(handler, cfg.Server.GinMode, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sweeper: scheduler.NewSweeper(repo, cfg.Cache.SweepInterval(), logger),
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down cleanly.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := a.repo.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}
