package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFindingJSONUsesCallerFacingNames(t *testing.T) {
	f := Finding{
		ID:          "xss-1-1-abc",
		Type:        TypeXSS,
		Severity:    SeverityEleve,
		Line:        1,
		Description: "unsafe sink",
		CodeSnippet: "el.innerHTML = x",
		Fix:         "use textContent",
		Confidence:  100,
		Source:      SourceRule,
	}
	payload, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal finding: %v", err)
	}
	jsonStr := string(payload)
	for _, want := range []string{
		`"type":"xss"`,
		`"severity":"eleve"`,
		`"codeSnippet":"el.innerHTML = x"`,
		`"confidence":100`,
		`"source":"rule"`,
	} {
		if !strings.Contains(jsonStr, want) {
			t.Fatalf("expected JSON to include %s, got %s", want, jsonStr)
		}
	}
	if strings.Contains(jsonStr, `"ruleId"`) {
		t.Fatalf("expected empty rule id to be omitted, got %s", jsonStr)
	}
}

func TestClosedSetsValidate(t *testing.T) {
	for _, typ := range Types {
		if !typ.Valid() {
			t.Fatalf("expected %q to be valid", typ)
		}
	}
	if Type("csrf").Valid() {
		t.Fatal("csrf is not part of the closed type set")
	}
	for _, sev := range Severities {
		if !sev.Valid() {
			t.Fatalf("expected %q to be valid", sev)
		}
	}
	if Severity("high").Valid() {
		t.Fatal("provider severity labels must not validate")
	}
}

func TestSeverityRankOrdersMostSevereFirst(t *testing.T) {
	if !(SeverityCritique.Rank() < SeverityEleve.Rank() &&
		SeverityEleve.Rank() < SeverityMoyen.Rank() &&
		SeverityMoyen.Rank() < SeverityFaible.Rank()) {
		t.Fatal("unexpected severity ordering")
	}
}

func TestFindingKeyIgnoresDescription(t *testing.T) {
	a := Finding{Type: TypeXSS, Line: 3, Description: "a"}
	b := Finding{Type: TypeXSS, Line: 3, Description: "b", Source: SourceAI}
	if a.Key() != b.Key() {
		t.Fatalf("expected same key, got %q and %q", a.Key(), b.Key())
	}
}
