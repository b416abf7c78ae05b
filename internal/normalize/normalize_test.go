package normalize

import (
	"strings"
	"sync"
	"testing"

	"codeguard/internal/model"
)

func TestFromRule_MapsCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		category string
		severity string
		wantType model.Type
		wantSev  model.Severity
	}{
		{"XSS", "high", model.TypeXSS, model.SeverityEleve},
		{"Injection", "critical", model.TypeInjection, model.SeverityCritique},
		{"Secrets", "medium", model.TypeSecrets, model.SeverityMoyen},
		{"Authentication", "low", model.TypeXSS, model.SeverityFaible},
		{"CSRF", "high", model.TypeXSS, model.SeverityEleve},
		{"Other", "critical", model.TypeXSS, model.SeverityCritique},
	}
	for _, tt := range tests {
		t.Run(tt.category+"/"+tt.severity, func(t *testing.T) {
			f := FromRule(model.RawMatch{RuleID: "r", Category: tt.category, Severity: tt.severity, Line: 4, Snippet: "x"})
			if f.Type != tt.wantType {
				t.Errorf("type = %q, want %q", f.Type, tt.wantType)
			}
			if f.Severity != tt.wantSev {
				t.Errorf("severity = %q, want %q", f.Severity, tt.wantSev)
			}
			if f.Confidence != 100 || f.Source != model.SourceRule || f.Line != 4 {
				t.Errorf("unexpected finding %+v", f)
			}
		})
	}
}

func TestFromRule_DescriptionAndFix(t *testing.T) {
	withMessage := FromRule(model.RawMatch{RuleID: "r", RuleName: "Rule", Category: "XSS", Severity: "high", Line: 1, CustomMessage: "custom text", FixSuggestion: " escape it "})
	if withMessage.Description != "custom text" {
		t.Fatalf("expected custom message, got %q", withMessage.Description)
	}
	if withMessage.Fix != "escape it" {
		t.Fatalf("expected trimmed fix, got %q", withMessage.Fix)
	}

	generated := FromRule(model.RawMatch{RuleID: "r", RuleName: "Unsafe sink", Description: "assigns markup", Category: "XSS", Severity: "high", Line: 1})
	if generated.Description != "Unsafe sink: assigns markup" {
		t.Fatalf("unexpected generated description %q", generated.Description)
	}
}

func TestTypeFromText(t *testing.T) {
	tests := map[string]model.Type{
		"XSS":                     model.TypeXSS,
		"Reflected xss":           model.TypeXSS,
		"SQL Injection":           model.TypeInjection,
		"code-injection":          model.TypeInjection,
		"Hardcoded Secret":        model.TypeSecrets,
		"plaintext PASSWORD":      model.TypeSecrets,
		"API key exposure":        model.TypeSecrets,
		"csrf":                    model.TypeXSS,
		"":                        model.TypeXSS,
		"xss via injected script": model.TypeXSS,
	}
	for in, want := range tests {
		if got := TypeFromText(in); got != want {
			t.Errorf("TypeFromText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSeverityFromText(t *testing.T) {
	tests := map[string]model.Severity{
		"CRITICAL": model.SeverityCritique,
		"critique": model.SeverityCritique,
		"High":     model.SeverityEleve,
		"élevé":    model.SeverityMoyen,
		"eleve":    model.SeverityEleve,
		"medium":   model.SeverityMoyen,
		"moyen":    model.SeverityMoyen,
		"low":      model.SeverityFaible,
		"faible":   model.SeverityFaible,
		"info":     model.SeverityMoyen,
		"":         model.SeverityMoyen,
	}
	for in, want := range tests {
		if got := SeverityFromText(in); got != want {
			t.Errorf("SeverityFromText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromAI_LineAndConfidence(t *testing.T) {
	half := 0.5
	eighty := 80.0
	over := 250.0

	f := FromAI(Candidate{Type: "xss", Severity: "high", Line: 0, Confidence: &half})
	if f.Line != 1 {
		t.Fatalf("expected line clamped to 1, got %d", f.Line)
	}
	if f.Confidence != 50 {
		t.Fatalf("expected fractional confidence scaled to 50, got %d", f.Confidence)
	}
	if f.Source != model.SourceAI {
		t.Fatalf("expected ai source, got %q", f.Source)
	}
	if f.Description == "" {
		t.Fatal("expected a generated description")
	}

	if got := FromAI(Candidate{Type: "xss", Line: 2, Confidence: &eighty}).Confidence; got != 80 {
		t.Fatalf("expected 80, got %d", got)
	}
	if got := FromAI(Candidate{Type: "xss", Line: 2, Confidence: &over}).Confidence; got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}
	if got := FromAI(Candidate{Type: "xss", Line: 2}).Confidence; got != DefaultAIConfidence {
		t.Fatalf("expected default confidence, got %d", got)
	}
}

func TestNewID_UniqueUnderConcurrency(t *testing.T) {
	const n = 500
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewID(model.TypeXSS, 1)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "xss-1-") {
			t.Fatalf("unexpected id shape %s", id)
		}
	}
}
