// Package detect guesses the language of a single source text from its file name,
// falling back to the interpreter named on a shebang line.
package detect

import (
	"path/filepath"
	"sort"
	"strings"
)

// Result holds the detected language.
// Language is the machine-readable name rules are keyed by (e.g. "javascript").
// Label is a human-readable name (e.g. "JavaScript").
// Both fields are empty strings when the language is unknown.
type Result struct {
	Language string
	Label    string
}

var byExtension = map[string]Result{
	".js":   {"javascript", "JavaScript"},
	".mjs":  {"javascript", "JavaScript"},
	".cjs":  {"javascript", "JavaScript"},
	".jsx":  {"javascript", "JavaScript"},
	".ts":   {"typescript", "TypeScript"},
	".mts":  {"typescript", "TypeScript"},
	".cts":  {"typescript", "TypeScript"},
	".tsx":  {"typescript", "TypeScript"},
	".py":   {"python", "Python"},
	".go":   {"go", "Go"},
	".java": {"java", "Java"},
	".php":  {"php", "PHP"},
	".rb":   {"ruby", "Ruby"},
	".cs":   {"csharp", "C#"},
	".html": {"html", "HTML"},
	".htm":  {"html", "HTML"},
	".vue":  {"javascript", "JavaScript"},
	".sh":   {"shell", "Shell"},
}

var byInterpreter = map[string]Result{
	"node":    {"javascript", "JavaScript"},
	"deno":    {"typescript", "TypeScript"},
	"ts-node": {"typescript", "TypeScript"},
	"python":  {"python", "Python"},
	"python3": {"python", "Python"},
	"ruby":    {"ruby", "Ruby"},
	"php":     {"php", "PHP"},
	"bash":    {"shell", "Shell"},
	"sh":      {"shell", "Shell"},
}

// Language returns the language for fileName, or for a shebang in source when the
// extension is unknown.
func Language(fileName, source string) Result {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	if r, ok := byExtension[ext]; ok {
		return r
	}
	return fromShebang(source)
}

func fromShebang(source string) Result {
	if !strings.HasPrefix(source, "#!") {
		return Result{}
	}
	line := source[2:]
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{}
	}
	interp := filepath.Base(fields[0])
	if interp == "env" {
		for _, f := range fields[1:] {
			if !strings.HasPrefix(f, "-") {
				interp = f
				break
			}
		}
	}
	return byInterpreter[interp]
}

// Supported lists the languages Language can return, sorted and de-duplicated.
func Supported() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range byExtension {
		if !seen[r.Language] {
			seen[r.Language] = true
			out = append(out, r.Language)
		}
	}
	sort.Strings(out)
	return out
}
