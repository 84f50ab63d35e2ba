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

	"github.com/finchat/finchat/internal/api"
	"github.com/finchat/finchat/internal/auth"
	"github.com/finchat/finchat/internal/chat"
	"github.com/finchat/finchat/internal/config"
	"github.com/finchat/finchat/internal/conversation"
	"github.com/finchat/finchat/internal/nl2sql"
	"github.com/finchat/finchat/internal/observability"
	"github.com/finchat/finchat/internal/prompt"
	"github.com/finchat/finchat/internal/sqlguard"
	"github.com/finchat/finchat/internal/warehouse"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv("finchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	warehouseDB, err := warehouse.Open(context.Background(), warehouse.DBConfig{
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = warehouseDB.Close() }()

	executor, err := warehouse.NewExecutor(warehouseDB, warehouse.ExecutorConfig{
		QueryTimeout:  cfg.Warehouse.QueryTimeout,
		QueueTimeout:  cfg.Warehouse.QueueTimeout,
		MaxResultRows: cfg.Warehouse.MaxResultRows,
		MaxConcurrent: cfg.Warehouse.MaxOpenConns,
	})
	if err != nil {
		logger.Error("failed to initialize query executor", slog.Any("error", err))
		os.Exit(1)
	}
	schemaCache := warehouse.NewSchemaCache(warehouseDB, cfg.Warehouse.Schema, cfg.Warehouse.SchemaCacheTTL)

	generator, err := nl2sql.NewAnthropicGenerator(nl2sql.AnthropicConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}

	store := conversation.NewStore()
	janitorStop := make(chan struct{})
	defer close(janitorStop)
	store.StartJanitor(cfg.Chat.ConversationIdleTTL, janitorStop)

	service := chat.NewService(
		store,
		prompt.NewComposer(cfg.Chat.MaxHistoryTurns, cfg.Warehouse.MaxResultRows),
		generator,
		sqlguard.NewValidator(cfg.Warehouse.MaxResultRows, cfg.Warehouse.AllowedTableList()),
		executor,
		schemaCache,
		logger,
		chat.ServiceConfig{
			MaxHistoryTurns:  cfg.Chat.MaxHistoryTurns,
			SummarizeResults: cfg.AI.SummarizeResults,
		},
	)

	deps := api.Dependencies{
		Logger:  logger,
		Chat:    service,
		Schema:  schemaCache,
		Version: version,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
