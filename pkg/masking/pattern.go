package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/codeready-toolchain/sherlog/pkg/config"
)

// CompiledPattern is a ready-to-apply regex masking rule.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// ruleSet is what a single masking pass applies: structural maskers first,
// then regex rules.
type ruleSet struct {
	maskers []string
	regexes []*CompiledPattern
}

func (r *ruleSet) empty() bool {
	return len(r.maskers) == 0 && len(r.regexes) == 0
}

// compileBuiltinPatterns compiles the shipped pattern library. Patterns that
// fail to compile are logged and left out.
func (s *Service) compileBuiltinPatterns() {
	for name, p := range config.GetBuiltinConfig().MaskingPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Skipping built-in masking pattern", "pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{Name: name, Regex: re, Replacement: p.Replacement, Description: p.Description}
	}
}

// compileCustomPatterns compiles per-server patterns under the key
// "custom:<server>:<index>".
func (s *Service) compileCustomPatterns() {
	for serverID, serverCfg := range s.registry.GetAll() {
		if serverCfg.DataMasking == nil || !serverCfg.DataMasking.Enabled {
			continue
		}
		for i, p := range serverCfg.DataMasking.CustomPatterns {
			name := fmt.Sprintf("custom:%s:%d", serverID, i)
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				slog.Error("Skipping custom masking pattern", "pattern", name, "server", serverID, "error", err)
				continue
			}
			s.patterns[name] = &CompiledPattern{Name: name, Regex: re, Replacement: p.Replacement, Description: p.Description}
			s.serverCustomPatterns[serverID] = append(s.serverCustomPatterns[serverID], name)
		}
	}
}

// rulesFor expands a server's masking config into a deduplicated rule set:
// groups, then named patterns, then the server's custom patterns.
func (s *Service) rulesFor(cfg *config.MaskingConfig, serverID string) *ruleSet {
	seen := make(map[string]bool)
	rules := &ruleSet{}
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		s.addRule(rules, name)
	}

	for _, group := range cfg.PatternGroups {
		for _, name := range s.patternGroups[group] {
			add(name)
		}
	}
	for _, name := range cfg.Patterns {
		add(name)
	}
	for _, name := range s.serverCustomPatterns[serverID] {
		add(name)
	}
	return rules
}

// rulesForGroup resolves one named group.
func (s *Service) rulesForGroup(group string) *ruleSet {
	rules := &ruleSet{}
	seen := make(map[string]bool)
	for _, name := range s.patternGroups[group] {
		if seen[name] {
			continue
		}
		seen[name] = true
		s.addRule(rules, name)
	}
	return rules
}

func (s *Service) addRule(rules *ruleSet, name string) {
	if _, ok := config.GetBuiltinConfig().CodeMaskers[name]; ok {
		rules.maskers = append(rules.maskers, name)
		return
	}
	if cp, ok := s.patterns[name]; ok {
		rules.regexes = append(rules.regexes, cp)
	}
}
