package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const Version = "v1.0.0"

// Params is the closed set of values a detection prompt may reference.
type Params struct {
	Language string
	FileName string
	Code     string
}

const (
	VarLanguage = "language"
	VarFileName = "fileName"
	VarCode     = "code"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Detection asks the provider for the fixed reply shape the AI adapter parses.
const Detection = `You are a static application security reviewer.

Task:
- Audit the {{language}} source below for vulnerabilities.
- Report only XSS, injection and hard-coded secret issues.
- Return JSON only, with no prose outside the JSON object.

File: {{fileName}}

Reply shape:
{
  "vulnerabilities": [
    {
      "type": "xss | injection | secrets",
      "severity": "critical | high | medium | low",
      "line": 1,
      "description": "what is wrong",
      "codeSnippet": "the offending code",
      "fix": "how to fix it",
      "confidence": 0.9
    }
  ],
  "summary": {"total": 0, "notes": ""}
}

Rules:
- "line" is the 1-based line number in the source below.
- "confidence" is between 0 and 1.
- Never repeat secret values verbatim; redact them in codeSnippet.
- If nothing is found, return "vulnerabilities": [].

Source:
` + "```" + `{{language}}
{{code}}
` + "```" + `
`

// Render substitutes {{var}} placeholders in a single pass. Substituted values are
// never re-scanned, so source text containing "{{code}}" stays literal. Unknown
// placeholders are left as written.
func Render(tmpl string, p Params) string {
	values := p.values()
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}

// Validate rejects templates that reference unknown variables or omit the code.
func Validate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("prompt template is empty")
	}
	known := Params{}.values()
	var unknown []string
	seen := map[string]bool{}
	hasCode := false
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		if name == VarCode {
			hasCode = true
		}
		if _, ok := known[name]; !ok && !seen[name] {
			seen[name] = true
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown template variables: %s", strings.Join(unknown, ", "))
	}
	if !hasCode {
		return fmt.Errorf("template must reference {{%s}}", VarCode)
	}
	return nil
}

func (p Params) values() map[string]string {
	return map[string]string{
		VarLanguage: valueOrFallback(inline(p.Language), "unknown"),
		VarFileName: valueOrFallback(inline(p.FileName), "untitled"),
		VarCode:     p.Code,
	}
}

// inline keeps single-line values from breaking out of their prompt slot.
func inline(v string) string {
	v = strings.NewReplacer("\r", " ", "\n", " ", "`", "'").Replace(v)
	return strings.TrimSpace(v)
}

func valueOrFallback(value string, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
