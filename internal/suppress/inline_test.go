package suppress

import (
	"testing"

	"codeguard/internal/model"
)

func TestParseComment(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantTarget string
		wantReason string
		wantOK     bool
	}{
		{
			name:       "line comment",
			line:       "// codeguard:ignore secrets -- test fixture",
			wantTarget: "secrets", wantReason: "test fixture", wantOK: true,
		},
		{
			name:       "python comment",
			line:       "# codeguard:ignore injection -- trusted input",
			wantTarget: "injection", wantReason: "trusted input", wantOK: true,
		},
		{
			name:       "html comment",
			line:       "<!-- codeguard:ignore xss -- static template -->",
			wantTarget: "xss", wantReason: "static template", wantOK: true,
		},
		{
			name:       "trailing comment",
			line:       "eval(cfg) // codeguard:ignore javascript-injection-eval",
			wantTarget: "javascript-injection-eval", wantOK: true,
		},
		{
			name:       "block comment",
			line:       "/* CodeGuard:Ignore XSS */",
			wantTarget: "xss", wantOK: true,
		},
		{name: "marker outside comment", line: `const s = "codeguard:ignore xss"`},
		{name: "no target", line: "// codeguard:ignore"},
		{name: "wildcard", line: "// codeguard:ignore *"},
		{name: "plain code", line: "const x = 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, reason, ok := parseComment(tt.line)
			if ok != tt.wantOK || target != tt.wantTarget || reason != tt.wantReason {
				t.Fatalf("parseComment(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.line, target, reason, ok, tt.wantTarget, tt.wantReason, tt.wantOK)
			}
		})
	}
}

func TestParse_LineNumbers(t *testing.T) {
	src := "a()\n// codeguard:ignore xss\nb.innerHTML = c\n\nd() # codeguard:ignore secrets -- fixture\n"
	got := Parse(src)
	if len(got) != 2 {
		t.Fatalf("expected 2 annotations, got %+v", got)
	}
	if got[0].Line != 2 || got[0].Target != "xss" {
		t.Fatalf("unexpected first annotation %+v", got[0])
	}
	if got[1].Line != 5 || got[1].Reason != "fixture" {
		t.Fatalf("unexpected second annotation %+v", got[1])
	}
}

func TestApply(t *testing.T) {
	findings := []model.Finding{
		{Type: model.TypeXSS, Line: 3, RuleID: "javascript-xss-inner-html"},
		{Type: model.TypeInjection, Line: 3},
		{Type: model.TypeSecrets, Line: 5},
		{Type: model.TypeInjection, Line: 7, RuleID: "Custom-Eval"},
		{Type: model.TypeXSS, Line: 9},
	}
	annotations := []Annotation{
		{Target: "xss", Line: 2},
		{Target: "secrets", Line: 5},
		{Target: "custom-eval", Line: 6},
	}

	kept, suppressed := Apply(findings, annotations)
	if len(suppressed) != 3 {
		t.Fatalf("expected 3 suppressed, got %+v", suppressed)
	}
	if len(kept) != 2 || kept[0].Type != model.TypeInjection || kept[0].Line != 3 || kept[1].Line != 9 {
		t.Fatalf("unexpected kept findings %+v", kept)
	}
}

func TestApply_NoAnnotations(t *testing.T) {
	findings := []model.Finding{{Type: model.TypeXSS, Line: 1}}
	kept, suppressed := Apply(findings, nil)
	if len(kept) != 1 || suppressed != nil {
		t.Fatalf("unexpected result kept=%v suppressed=%v", kept, suppressed)
	}
}
