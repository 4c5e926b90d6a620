// Command gateway is the llmgateway proxy server.
//
// It reads configuration from environment variables (or config.yaml) and
// starts an OpenAI-compatible HTTP gateway on the configured port.
//
// Quick-start (in-memory cache and queue, no Redis required):
//
//	OPENAI_API_KEY=sk-... DEV_SEED=true ./gateway
//
// See .env.example for all available configuration variables.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dban0001/llmgateway/internal/app"
	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/config"
	"github.com/dban0001/llmgateway/internal/logger"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The catalog drives which {NAME}_API_KEY variables config looks for.
	cfg, err := config.Load(catalog.New())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Build the structured logger. All subsystems share this instance.
	slogger := logger.New(cfg.LogLevel, cfg.Production())
	slog.SetDefault(slogger)

	a, err := app.New(ctx, cfg, slogger, version)
	if err != nil {
		slogger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		slogger.Error("gateway stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
