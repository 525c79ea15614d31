package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-core/internal/telemetry"
	"github.com/tjfontaine/polyglot-chat-core/pkg/chatcore"
)

var serveTracing bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator behind the HTTP API",
	Long: `Serve the chat core over HTTP:

  POST   /v1/generate      submit a prompt
  GET    /v1/events        listener callbacks as server-sent events
  POST   /v1/cancel        cancel the in-flight request
  GET    /v1/capabilities  learned provider capabilities
  DELETE /v1/capabilities  forget learned capabilities
  DELETE /v1/memory        clear conversation memory
  GET    /v1/settings      active settings

The config file is watched; edits apply to the next request.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveTracing, "trace", false, "Export OpenTelemetry spans to stderr")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.Log.Level, true)
	slog.SetDefault(logger)

	if serveTracing {
		shutdown, err := telemetry.InitTracer("chatcore", os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	rt, err := chatcore.New(
		chatcore.WithLogger(logger),
		chatcore.WithFileConfig(configPath),
	)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		logger.Error("chat core stopped with error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
