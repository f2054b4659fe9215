package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/haasonsaas/localflow/internal/approval"
	"github.com/haasonsaas/localflow/internal/chat"
	"github.com/haasonsaas/localflow/internal/config"
	"github.com/haasonsaas/localflow/internal/execution"
	"github.com/haasonsaas/localflow/internal/httpapi"
	"github.com/haasonsaas/localflow/internal/llm"
	"github.com/haasonsaas/localflow/internal/llm/providers/gemini"
	"github.com/haasonsaas/localflow/internal/llm/providers/hosted"
	"github.com/haasonsaas/localflow/internal/llm/providers/ollama"
	"github.com/haasonsaas/localflow/internal/observability"
	"github.com/haasonsaas/localflow/internal/prompts"
	"github.com/haasonsaas/localflow/internal/rag"
	"github.com/haasonsaas/localflow/internal/store"
	"github.com/haasonsaas/localflow/internal/store/postgres"
	"github.com/haasonsaas/localflow/internal/store/sqlite"
	"github.com/haasonsaas/localflow/internal/toolinit"
)

const executionWorkerCount = 4

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the localflow assistant server",
		Long: `Start the localflow HTTP server: chat orchestration, draft approval,
tool execution, and the permissioned local retrieval index, all behind one
stdlib net/http mux.

Graceful shutdown runs on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML/JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "app_name", cfg.AppName, "env", cfg.Env, "llm_provider", cfg.LLMProvider)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pack, err := prompts.Load(cfg.PromptPackDir)
	if err != nil {
		return fmt.Errorf("load prompt pack: %w", err)
	}
	watcher, err := prompts.NewWatcher(cfg.PromptPackDir, logger)
	if err != nil {
		return fmt.Errorf("watch prompt pack: %w", err)
	}
	defer watcher.Close()

	provider, err := buildProvider(cfg, pack, logger)
	if err != nil {
		return fmt.Errorf("build LLM provider: %w", err)
	}

	ragSvc, err := rag.New(rag.Config{
		StoreDir:     cfg.RAGStoreDir,
		ChunkSize:    cfg.RAGChunkSize,
		ChunkOverlap: cfg.RAGChunkOverlap,
		EmbeddingDim: cfg.RAGEmbeddingDim,
	})
	if err != nil {
		return fmt.Errorf("build retrieval index: %w", err)
	}

	approvals := approval.New(st)
	registry := toolinit.BuildRegistry()
	executions := execution.New(st, registry, executionWorkerCount, logger)
	chatSvc := chat.New(st, provider, ragSvc, approvals, logger)

	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.AppName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	handler := httpapi.NewHandler(&httpapi.Config{
		Store:       st,
		Chat:        chatSvc,
		Approvals:   approvals,
		Executions:  executions,
		RAG:         ragSvc,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
		AppName:     cfg.AppName,
		Env:         cfg.Env,
		LLMProvider: cfg.LLMProvider,
	})

	httpServer := &http.Server{
		Addr:              serverAddr(),
		Handler:           handler.Mount(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("localflow server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func serverAddr() string {
	if v := os.Getenv("LOCALFLOW_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database_url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return postgres.Open(ctx, postgres.Config{DSN: cfg.DatabaseURL})
	case "file", "":
		path := cfg.DatabaseURL
		if u.Scheme == "file" {
			path = u.Opaque
			if path == "" {
				path = u.Path
			}
		}
		return sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported database_url scheme: %s", u.Scheme)
	}
}

func buildProvider(cfg *config.Config, pack *prompts.Pack, logger *slog.Logger) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		return ollama.New(&http.Client{}, pack, cfg.OllamaBaseURL, cfg.OllamaModel, cfg.LLMTimeout, ollama.DefaultMaxRepairAttempts, logger), nil
	case config.ProviderGemini:
		return gemini.New(&http.Client{}, pack, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout, gemini.DefaultMaxRepairAttempts, logger), nil
	case config.ProviderHosted:
		var tokenSource oauth2.TokenSource
		return hosted.New(pack, cfg.HostedBaseURL, cfg.HostedModel, cfg.HostedAPIKey, tokenSource, cfg.LLMTimeout, hosted.DefaultMaxRepairAttempts, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm_provider: %s", cfg.LLMProvider)
	}
}
