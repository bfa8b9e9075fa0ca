package masking

import (
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/sherlog/pkg/config"
)

// RedactedNotice replaces a tool result that could not be masked safely.
const RedactedNotice = "[REDACTED: data masking failure, tool result could not be safely processed]"

// Service masks log-query results before they reach the model, and free text
// before it leaves the process (Slack). Safe for concurrent use once built.
type Service struct {
	registry             *config.MCPServerRegistry
	patterns             map[string]*CompiledPattern
	patternGroups        map[string][]string
	codeMaskers          map[string]Masker
	serverCustomPatterns map[string][]string
}

// NewService compiles every pattern up front.
func NewService(registry *config.MCPServerRegistry) *Service {
	s := &Service{
		registry:             registry,
		patterns:             make(map[string]*CompiledPattern),
		patternGroups:        config.GetBuiltinConfig().PatternGroups,
		codeMaskers:          make(map[string]Masker),
		serverCustomPatterns: make(map[string][]string),
	}

	s.compileBuiltinPatterns()
	s.compileCustomPatterns()
	s.registerMasker(&JSONLogFieldMasker{})

	slog.Debug("Masking service initialized",
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers))
	return s
}

// MaskToolResult applies the masking configured for serverID. Servers without
// masking pass content through. A masking failure replaces the whole result
// with RedactedNotice.
func (s *Service) MaskToolResult(content string, serverID string) string {
	if content == "" {
		return content
	}
	serverCfg, err := s.registry.Get(serverID)
	if err != nil || serverCfg.DataMasking == nil || !serverCfg.DataMasking.Enabled {
		return content
	}

	rules := s.rulesFor(serverCfg.DataMasking, serverID)
	if rules.empty() {
		return content
	}

	masked, err := s.apply(content, rules)
	if err != nil {
		slog.Error("Masking failed, redacting tool result", "server", serverID, "error", err)
		return RedactedNotice
	}
	return masked
}

// MaskWithGroup applies a built-in pattern group. Failures return the input
// unchanged.
func (s *Service) MaskWithGroup(content, group string) string {
	if content == "" {
		return content
	}
	rules := s.rulesForGroup(group)
	if rules.empty() {
		return content
	}
	masked, err := s.apply(content, rules)
	if err != nil {
		slog.Warn("Masking failed, using original text", "group", group, "error", err)
		return content
	}
	return masked
}

func (s *Service) apply(content string, rules *ruleSet) (masked string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("masker panic: %v", r)
		}
	}()

	masked = content
	for _, name := range rules.maskers {
		m, ok := s.codeMaskers[name]
		if !ok {
			continue
		}
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range rules.regexes {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked, nil
}

func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
