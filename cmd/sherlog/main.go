// sherlog is an interactive incident-investigation assistant: it talks to an
// LLM that queries logs through MCP servers and keeps a structured record of
// each investigation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configDir string

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sherlog"
	}
	return filepath.Join(home, ".sherlog")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sherlog",
		Short: "Investigate production incidents with an LLM that can read your logs",
		Long: `sherlog is a conversational incident investigator. It queries logs through
the configured MCP servers and records what it learns (timeline, hypotheses,
findings, root cause) as a persistent incident document.

Run without arguments to start the interactive shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadDotEnv(configDir)
		},
		RunE: runChat,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir",
		getEnv("SHERLOG_CONFIG_DIR", defaultConfigDir()),
		"Path to configuration directory")

	root.AddCommand(
		newChatCmd(),
		newIncidentsCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

// loadDotEnv loads .env from the config directory without overriding
// variables that are already set.
func loadDotEnv(dir string) {
	envPath := filepath.Join(dir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Could not load .env file, continuing with existing environment",
				"path", envPath, "error", err)
		}
		return
	}
	slog.Debug("Loaded environment", "path", envPath)
}

func main() {
	// Until the configured handler is installed only warnings reach stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sherlog:", err)
		os.Exit(1)
	}
}
