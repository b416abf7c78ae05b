// Package normalize maps raw rule matches and AI candidates into canonical findings.
package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeguard/internal/model"
)

const (
	RuleConfidence      = 100
	DefaultAIConfidence = 70
)

// Candidate is one vulnerability as reported by an AI provider, before normalization.
// Type and Severity are free-form provider strings.
type Candidate struct {
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Line        int      `json:"line"`
	Description string   `json:"description"`
	CodeSnippet string   `json:"codeSnippet"`
	Fix         string   `json:"fix"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// FromRule converts a pattern match into a finding.
func FromRule(m model.RawMatch) model.Finding {
	typ := TypeFromCategory(m.Category)
	description := strings.TrimSpace(m.CustomMessage)
	if description == "" {
		description = generatedDescription(m)
	}
	line := m.Line
	if line < 1 {
		line = 1
	}
	return model.Finding{
		ID:          NewID(typ, line),
		Type:        typ,
		Severity:    SeverityFromRule(m.Severity),
		Line:        line,
		Description: description,
		CodeSnippet: m.Snippet,
		Fix:         strings.TrimSpace(m.FixSuggestion),
		Confidence:  RuleConfidence,
		Source:      model.SourceRule,
		RuleID:      m.RuleID,
	}
}

// FromAI converts a provider candidate into a finding.
func FromAI(c Candidate) model.Finding {
	typ := TypeFromText(c.Type)
	line := c.Line
	if line < 1 {
		line = 1
	}
	description := strings.TrimSpace(c.Description)
	if description == "" {
		description = fmt.Sprintf("Potential %s vulnerability reported by AI analysis.", typ)
	}
	return model.Finding{
		ID:          NewID(typ, line),
		Type:        typ,
		Severity:    SeverityFromText(c.Severity),
		Line:        line,
		Description: description,
		CodeSnippet: strings.TrimSpace(c.CodeSnippet),
		Fix:         strings.TrimSpace(c.Fix),
		Confidence:  aiConfidence(c.Confidence),
		Source:      model.SourceAI,
	}
}

// TypeFromCategory maps a rule category to a finding type. Categories outside
// XSS, Injection and Secrets fall back to xss.
func TypeFromCategory(category string) model.Type {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "xss":
		return model.TypeXSS
	case "injection":
		return model.TypeInjection
	case "secrets":
		return model.TypeSecrets
	default:
		return model.TypeXSS
	}
}

// SeverityFromRule maps the rule severity scale onto the canonical scale.
func SeverityFromRule(severity string) model.Severity {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return model.SeverityCritique
	case "high":
		return model.SeverityEleve
	case "medium":
		return model.SeverityMoyen
	case "low":
		return model.SeverityFaible
	default:
		return SeverityFromText(severity)
	}
}

// TypeFromText is the lossy substring mapping applied to provider type labels.
func TypeFromText(raw string) model.Type {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "xss"):
		return model.TypeXSS
	case strings.Contains(s, "inject"):
		return model.TypeInjection
	case strings.Contains(s, "secret"), strings.Contains(s, "password"), strings.Contains(s, "key"):
		return model.TypeSecrets
	default:
		return model.TypeXSS
	}
}

// SeverityFromText is the lossy substring mapping applied to provider severity labels.
func SeverityFromText(raw string) model.Severity {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "crit"):
		return model.SeverityCritique
	case strings.Contains(s, "high"), strings.Contains(s, "elev"):
		return model.SeverityEleve
	case strings.Contains(s, "med"), strings.Contains(s, "moy"):
		return model.SeverityMoyen
	case strings.Contains(s, "low"), strings.Contains(s, "faib"):
		return model.SeverityFaible
	default:
		return model.SeverityMoyen
	}
}

// NewID returns an opaque id unique within and across analysis runs.
func NewID(typ model.Type, line int) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%d-%d-%s", typ, line, time.Now().UnixNano(), suffix)
}

func aiConfidence(raw *float64) int {
	if raw == nil || math.IsNaN(*raw) {
		return DefaultAIConfidence
	}
	v := *raw
	if v > 0 && v <= 1 {
		v *= 100
	}
	return clampPercent(int(math.Round(v)))
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func generatedDescription(m model.RawMatch) string {
	name := strings.TrimSpace(m.RuleName)
	if name == "" {
		name = m.RuleID
	}
	if d := strings.TrimSpace(m.Description); d != "" {
		return fmt.Sprintf("%s: %s", name, d)
	}
	return fmt.Sprintf("Rule %s matched at line %d.", name, m.Line)
}
