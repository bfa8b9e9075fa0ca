package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/sherlog/pkg/shell"
	"github.com/codeready-toolchain/sherlog/pkg/version"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive investigation shell (default)",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.wireAgent(ctx); err != nil {
		return err
	}
	if err := a.startMetrics(ctx); err != nil {
		return err
	}

	banner := fmt.Sprintf("%s (%s, %d tools)", version.Full(), a.llm.Model(), len(a.registry.Definitions()))
	sh := shell.New(a.session, cmd.InOrStdin(), cmd.OutOrStdout(), banner)

	// The first SIGINT interrupts the answer in progress; one with nothing
	// in progress leaves the shell.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGINT && sh.Interrupt() {
					slog.Info("Exchange interrupted")
					continue
				}
				slog.Info("Shutdown signal received", "signal", sig)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	slog.Info("sherlog started", "session_id", a.session.ID(), "config_dir", configDir)
	return sh.Run(ctx)
}
