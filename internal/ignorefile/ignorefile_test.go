package ignorefile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse_SkipsCommentsAndBlanks(t *testing.T) {
	p := Parse([]string{"# comment", "", "   ", "*.min.js"})
	if len(p.entries) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(p.entries))
	}
	if !p.Match("static/app.min.js", false) {
		t.Fatal("expected *.min.js to match at any depth")
	}
}

func TestMatch(t *testing.T) {
	p := Parse([]string{
		"fixtures/",
		"*.test.js",
		"!keep.test.js",
		"/generated/**",
		"docs/*.md",
	})
	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"fixtures", true, true},
		{"src/fixtures", true, true},
		{"fixtures", false, false},
		{"a.test.js", false, true},
		{"src/keep.test.js", false, false},
		{"generated/x/y.js", false, true},
		{"docs/readme.md", false, true},
		{"docs/api/readme.md", false, false},
		{"app.js", false, false},
		{".", true, false},
	}
	for _, tt := range tests {
		if got := p.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestNilPatternsIgnoreNothing(t *testing.T) {
	var p *Patterns
	if p.Match("anything.js", false) {
		t.Fatal("nil patterns must not match")
	}
	if !p.Extend([]string{"*.js"}).Match("a.js", false) {
		t.Fatal("Extend on nil must compile the new patterns")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, Name))
	if err != nil || p != nil {
		t.Fatalf("missing file: got %v, %v", p, err)
	}

	path := filepath.Join(dir, Name)
	if err := os.WriteFile(path, []byte("vendor-js/\n*.bundle.js\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.Match("vendor-js", true) || !p.Match("out/main.bundle.js", false) {
		t.Fatal("expected loaded patterns to match")
	}
}
