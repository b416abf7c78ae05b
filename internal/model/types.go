package model

import (
	"fmt"
	"strings"
	"time"
)

// Type is the closed vulnerability taxonomy every finding is mapped into.
type Type string

const (
	TypeXSS       Type = "xss"
	TypeInjection Type = "injection"
	TypeSecrets   Type = "secrets"
)

var Types = []Type{TypeXSS, TypeInjection, TypeSecrets}

func (t Type) Valid() bool {
	switch t {
	case TypeXSS, TypeInjection, TypeSecrets:
		return true
	default:
		return false
	}
}

// Severity is the canonical four-level scale: critique > eleve > moyen > faible.
type Severity string

const (
	SeverityCritique Severity = "critique"
	SeverityEleve    Severity = "eleve"
	SeverityMoyen    Severity = "moyen"
	SeverityFaible   Severity = "faible"
)

var Severities = []Severity{SeverityCritique, SeverityEleve, SeverityMoyen, SeverityFaible}

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritique, SeverityEleve, SeverityMoyen, SeverityFaible:
		return true
	default:
		return false
	}
}

// Rank orders severities with 0 as the most severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritique:
		return 0
	case SeverityEleve:
		return 1
	case SeverityMoyen:
		return 2
	case SeverityFaible:
		return 3
	default:
		return 4
	}
}

type Source string

const (
	SourceRule Source = "rule"
	SourceAI   Source = "ai"
)

// Finding is one reported vulnerability after normalization.
type Finding struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Severity    Severity `json:"severity"`
	Line        int      `json:"line"`
	Description string   `json:"description"`
	CodeSnippet string   `json:"codeSnippet"`
	Fix         string   `json:"fix"`
	Confidence  int      `json:"confidence"`
	Source      Source   `json:"source"`
	RuleID      string   `json:"ruleId,omitempty"`
}

// Key is the (type, line) identity used for de-duplication.
func (f Finding) Key() string {
	return fmt.Sprintf("%s:%d", f.Type, f.Line)
}

// RawMatch is one occurrence of a rule firing, prior to normalization.
type RawMatch struct {
	RuleID          string `json:"ruleId"`
	RuleName        string `json:"ruleName,omitempty"`
	Category        string `json:"category"`
	Severity        string `json:"severity"`
	Description     string `json:"description,omitempty"`
	CustomMessage   string `json:"customMessage,omitempty"`
	FixSuggestion   string `json:"fixSuggestion,omitempty"`
	Line            int    `json:"line"`
	Snippet         string `json:"snippet"`
	LanguageMatched string `json:"languageMatched"`
}

// AnalysisResult is what a caller receives for one submission.
type AnalysisResult struct {
	Findings      []Finding `json:"findings"`
	SecurityScore int       `json:"securityScore"`
	TotalFindings int       `json:"totalFindings"`
}

// CountsBySeverity tallies findings per canonical severity.
func (r AnalysisResult) CountsBySeverity() map[Severity]int {
	out := make(map[Severity]int, len(Severities))
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// AnalysisRecord is the persisted form of one analysis.
type AnalysisRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId,omitempty"`
	FileName     string    `json:"fileName"`
	SourceText   string    `json:"sourceText"`
	FindingCount int       `json:"findingCount"`
	Score        int       `json:"score"`
	Language     string    `json:"language"`
	AIUsed       bool      `json:"aiUsed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStats is the per-user point/score state maintained by the persistence collaborator.
type UserStats struct {
	UserID        string    `json:"userId"`
	Points        int       `json:"points"`
	SecurityScore int       `json:"securityScore"`
	Analyses      int       `json:"analyses"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NormalizeLanguage lowercases and trims a language name.
func NormalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}
