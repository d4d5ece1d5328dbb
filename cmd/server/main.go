package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatrun/internal/config"
	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
	"chatrun/internal/service/chatrun/agent"
	"chatrun/internal/service/chatrun/clireader"
	"chatrun/internal/service/chatrun/events"
	"chatrun/internal/service/chatrun/hub"
	"chatrun/internal/service/chatrun/tools"
	"chatrun/internal/service/chatrun/turn"
)

func main() {
	// .env loading is best-effort: a deployed process supplies its own
	// environment and carries no .env file at all.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("chat run orchestrator starting",
		"environment", cfg.Environment,
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
	)

	agents, err := agent.LoadDir(cfg.AgentConfigDir)
	if err != nil {
		log.Fatalf("load agent definitions: %v", err)
	}
	if err := agents.Validate(); err != nil {
		log.Fatalf("agent registry: %v", err)
	}
	logger.Info("agent definitions loaded", "agents", agents.List())

	readers := agent.NewReaderFactory(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, map[chatrun.ProviderIdentity]agent.CLIBinary{
		chatrun.ProviderCLIA: {Path: cfg.CLIA.BinaryPath, Args: cfg.CLIA.BaseArgs},
		chatrun.ProviderCLIB: {Path: cfg.CLIB.BinaryPath, Args: cfg.CLIB.BaseArgs},
		chatrun.ProviderCLIC: {Path: cfg.CLIC.BinaryPath, Args: cfg.CLIC.BaseArgs},
	})

	toolHost := tools.NewHost()

	limitResolver := domainchatrun.NewConfigToolLimitResolver(cfg.ToolRatePerSecond, cfg.ToolRateBurst)
	limiter := turn.NewSessionToolLimiter(limitResolver)

	codexStore := turn.NewCodexSessionStore(cfg.DataDir)

	h := hub.New(agents, hub.WebhookConfig{
		Timeout:     cfg.WebhookTimeout,
		MaxAttempts: cfg.WebhookMaxAttempts,
	}, logger)

	sink := events.New(cfg.DataDir, events.AlwaysPersist{}, h, logger)
	streamHandler := turn.NewStreamHandler(sink, h, logger)
	runner := turn.NewTurnRunner(streamHandler, readers, toolHost, limiter, turn.DefaultMessageBuilder{}, codexStore, logger)
	h.Attach(sink, runner)

	mux := http.NewServeMux()
	if cfg.Debug {
		mux.Handle("/", h.DebugHandler(strings.Split(cfg.CORSOrigins, ",")))
		logger.Info("debug introspection endpoints enabled")
	} else {
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	// The HTTP server shutting down doesn't touch any CLI subprocess a turn
	// in flight may have spawned; kill every registered CLI child's process
	// group directly so none of them outlive this process.
	clireader.KillAll()
}
