package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeready-toolchain/sherlog/pkg/agent"
	"github.com/codeready-toolchain/sherlog/pkg/agent/prompt"
	"github.com/codeready-toolchain/sherlog/pkg/config"
	"github.com/codeready-toolchain/sherlog/pkg/incident"
	"github.com/codeready-toolchain/sherlog/pkg/masking"
	"github.com/codeready-toolchain/sherlog/pkg/mcp"
	"github.com/codeready-toolchain/sherlog/pkg/metrics"
	"github.com/codeready-toolchain/sherlog/pkg/slack"
	"github.com/codeready-toolchain/sherlog/pkg/store"
	"github.com/codeready-toolchain/sherlog/pkg/tools"
)

// app holds the components shared by every subcommand. Fields after
// incidents are only set by wireAgent.
type app struct {
	cfg       *config.Config
	store     store.Backend
	masking   *masking.Service
	incidents *incident.Service

	mcpClient *mcp.Client
	logQuery  *mcp.LogQuery
	registry  *tools.Registry
	llm       *agent.AnthropicClient
	session   *agent.Session

	closers []func() error
}

// loadApp reads configuration, installs logging and opens the store.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, err
	}

	logCloser, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, closers: []func() error{logCloser.Close}}

	backend, err := store.New(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open incident store: %w", err)
	}
	a.store = backend
	a.closers = append(a.closers, backend.Close)

	a.masking = masking.NewService(cfg.MCPServerRegistry)
	a.incidents = incident.NewService(backend, a.notifier(), cfg.Investigator)
	return a, nil
}

// notifier returns the Slack service when it is enabled and configured.
func (a *app) notifier() incident.Notifier {
	sc := a.cfg.Slack
	if !sc.Enabled {
		return nil
	}
	svc := slack.NewService(slack.ServiceConfig{
		Token:   os.Getenv(sc.TokenEnv),
		Channel: sc.Channel,
		Masking: a.masking,
	})
	if svc == nil {
		slog.Warn("Slack notifications enabled but token or channel missing, disabling",
			"token_env", sc.TokenEnv, "channel", sc.Channel)
		return nil
	}
	slog.Info("Slack notifications enabled", "channel", sc.Channel)
	return svc
}

// wireAgent connects the MCP servers, builds the tool catalog and opens an
// agent session. Every failure here is fatal for the chat command.
func (a *app) wireAgent(ctx context.Context) error {
	provider, err := a.cfg.ActiveLLMProvider()
	if err != nil {
		return fmt.Errorf("failed to resolve LLM provider: %w", err)
	}

	serverIDs := a.cfg.AllMCPServerIDs()
	var logQuery tools.LogQuery
	if len(serverIDs) > 0 {
		client, err := mcp.Connect(ctx, a.cfg.MCPServerRegistry)
		if err != nil {
			return fmt.Errorf("MCP startup failed: %w", err)
		}
		a.mcpClient = client
		a.logQuery = mcp.NewLogQuery(client, serverIDs, a.masking, provider.MaxToolResultTokens)
		a.closers = append(a.closers, a.logQuery.Close)
		logQuery = a.logQuery
		slog.Info("MCP servers connected", "count", len(serverIDs))
	}

	a.registry = tools.NewRegistry(tools.MemoryTools(a.incidents), logQuery)
	if err := a.registry.LoadExternal(ctx); err != nil {
		return err
	}

	llm, err := agent.NewAnthropicClient(provider)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	a.llm = llm
	a.closers = append(a.closers, llm.Close)

	builder := prompt.NewPromptBuilder(a.cfg.MCPServerRegistry)
	agentCfg := a.cfg.Agent
	a.session, err = agent.NewSession(agent.SessionConfig{
		LLM:   llm,
		Tools: a.registry,
		SystemPrompt: builder.BuildSystemPrompt(prompt.SystemPromptInput{
			Investigator:       a.cfg.Investigator,
			ServerIDs:          serverIDs,
			CustomInstructions: agentCfg.CustomInstructions,
		}),
		Model:                  llm.Model(),
		MaxTokens:              agentCfg.MaxTokens,
		MaxIterations:          agentCfg.MaxIterations,
		LLMTimeout:             agentCfg.LLMTimeout,
		ToolTimeout:            agentCfg.ToolTimeout,
		ForcedConclusionPrompt: builder.BuildForcedConclusionPrompt(agentCfg.MaxIterations),
	})
	if err != nil {
		return err
	}
	slog.Info("Agent session ready",
		"session_id", a.session.ID(),
		"model", llm.Model(),
		"tools", len(a.registry.Definitions()))
	return nil
}

// startMetrics registers the collectors and, when an address is configured,
// serves them until ctx is cancelled.
func (a *app) startMetrics(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, reg); err != nil {
			slog.Error("Metrics endpoint failed", "error", err)
		}
	}()
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
