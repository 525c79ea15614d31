package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-core/internal/coordinator"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-core/pkg/chatcore"
)

var (
	askSystem   string
	askRole     string
	askNoMemory bool
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Answer one prompt and print the reply",
	Long: `Run a single request through the attempt chain and print the reply
as it renders, with pacing applied when enabled in the config.

The prompt is read from the arguments, or from stdin when none are given.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSystem, "system", "", "Caller system message")
	askCmd.Flags().StringVar(&askRole, "role", "", "Role ID overriding roles.active")
	askCmd.Flags().BoolVar(&askNoMemory, "no-memory", false, "Do not include conversation memory")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is empty")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, false)

	rt, err := chatcore.New(
		chatcore.WithLogger(logger),
		chatcore.WithFileConfig(configPath),
	)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())

	out := cmd.OutOrStdout()
	done := make(chan error, 1)
	coord := rt.Coordinator()
	coord.AddListener(ports.ListenerFuncs{
		Next:     func(chunk string) { fmt.Fprint(out, chunk) },
		Complete: func() { done <- nil },
		Error:    func(err error) { done <- err },
	})

	if _, ok := coord.GenerateResponse(prompt, coordinator.GenerateOptions{
		SystemMessage: askSystem,
		RoleID:        askRole,
		UseMemory:     !askNoMemory,
	}); !ok {
		return errors.New("request was not admitted")
	}

	select {
	case err := <-done:
		fmt.Fprintln(out)
		return err
	case <-ctx.Done():
		coord.Cancel()
		fmt.Fprintln(out)
		return <-done
	}
}
