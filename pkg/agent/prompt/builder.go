package prompt

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/sherlog/pkg/config"
)

// PromptBuilder builds the system prompt. Stateless and safe for concurrent
// use.
type PromptBuilder struct {
	mcpRegistry *config.MCPServerRegistry
}

// NewPromptBuilder creates a PromptBuilder with access to MCP server configs.
// Panics if mcpRegistry is nil.
func NewPromptBuilder(mcpRegistry *config.MCPServerRegistry) *PromptBuilder {
	if mcpRegistry == nil {
		panic("prompt.NewPromptBuilder: mcpRegistry must not be nil")
	}
	return &PromptBuilder{mcpRegistry: mcpRegistry}
}

// SystemPromptInput carries the per-process values that shape the prompt.
type SystemPromptInput struct {
	Investigator       string
	ServerIDs          []string
	CustomInstructions string
}

// BuildSystemPrompt composes the tiers: general instructions, record-keeping
// rules, per-server log tool guidance, operator instructions, then response
// guidelines.
func (b *PromptBuilder) BuildSystemPrompt(in SystemPromptInput) string {
	sections := []string{generalInstructions, memoryGuidelines}

	if in.Investigator != "" {
		sections = append(sections, fmt.Sprintf(
			"## Investigator\n\nYou are working with %s. Use this name as the investigator when creating incidents.",
			in.Investigator))
	}

	sections = b.appendMCPInstructions(sections, in.ServerIDs)

	if in.CustomInstructions != "" {
		sections = append(sections, "## Operator Instructions\n\n"+in.CustomInstructions)
	}

	sections = append(sections, responseGuidelines)
	return strings.Join(sections, "\n\n")
}

// BuildForcedConclusionPrompt returns the instruction appended when a message
// hits the iteration limit.
func (b *PromptBuilder) BuildForcedConclusionPrompt(iteration int) string {
	return fmt.Sprintf(forcedConclusionTemplate, iteration)
}

func (b *PromptBuilder) appendMCPInstructions(sections []string, serverIDs []string) []string {
	for _, serverID := range serverIDs {
		serverCfg, err := b.mcpRegistry.Get(serverID)
		if err != nil {
			slog.Warn("MCP server not found in registry, skipping its instructions", "server", serverID)
			continue
		}
		if serverCfg.Instructions == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s Log Tools\n\n%s", serverID, strings.TrimSpace(serverCfg.Instructions)))
	}
	return sections
}
