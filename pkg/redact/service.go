package redact

import (
	"log/slog"

	"github.com/tarkyaio/tarka/pkg/config"
)

// FailClosedNotice is returned in place of content that could not be safely
// redacted. It is never sent to an LLM — callers treat this sentinel as "do
// not enrich this evidence" rather than forwarding it as if it were real
// evidence text.
const FailClosedNotice = "[REDACTED: data could not be safely processed for LLM enrichment]"

// Service applies tiered redaction to evidence text before it is included
// in an LLM enrichment prompt. Created once at startup (singleton, eagerly
// compiled, thread-safe and stateless beyond its compiled patterns), it is
// always fail-closed: a redaction failure withholds the content rather than
// risking a raw secret reaching a third-party API.
type Service struct {
	patterns      map[string]*CompiledPattern
	patternGroups map[string][]string
	codeMaskers   map[string]Masker
}

// NewService builds a Service with all built-in patterns compiled eagerly.
func NewService() *Service {
	s := &Service{
		patterns:      make(map[string]*CompiledPattern),
		patternGroups: config.GetBuiltinConfig().PatternGroups,
		codeMaskers:   make(map[string]Masker),
	}

	s.compileBuiltinPatterns()
	s.registerMasker(&KubernetesSecretMasker{})

	slog.Info("redact: service initialized",
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers))

	return s
}

// Redact applies the given pattern-group tier (e.g. "basic", "kubernetes",
// "all" — see config.GetBuiltinConfig().PatternGroups) to content. On any
// internal failure it returns (FailClosedNotice, false) instead of the
// original text: redaction is a precondition for LLM enrichment, never a
// best-effort step.
func (s *Service) Redact(content, tier string) (string, bool) {
	if content == "" {
		return content, true
	}

	resolved := s.resolveTier(tier)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		slog.Warn("redact: unknown or empty pattern tier, failing closed", "tier", tier)
		return FailClosedNotice, false
	}

	masked := content
	for _, maskerName := range resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[maskerName]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}
	for _, pattern := range resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked, true
}

func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
