package suppress

import (
	"bufio"
	"strings"

	"codeguard/internal/model"
)

const marker = "codeguard:ignore"

// commentPrefixes are the language-agnostic comment markers we recognize.
var commentPrefixes = []string{"//", "#", "--", "/*", "<!--", "*"}

// Annotation is one codeguard:ignore comment found in source.
type Annotation struct {
	// Target is a finding type (xss, injection, secrets) or a rule id.
	Target string
	Reason string
	Line   int
}

// Parse collects the codeguard:ignore annotations of source, 1-based lines.
func Parse(source string) []Annotation {
	var out []Annotation
	sc := bufio.NewScanner(strings.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		target, reason, ok := parseComment(sc.Text())
		if !ok {
			continue
		}
		out = append(out, Annotation{Target: target, Reason: reason, Line: line})
	}
	return out
}

// parseComment extracts the target and optional reason from a line containing
// "codeguard:ignore <target>" or "codeguard:ignore <target> -- reason" inside a
// comment. The comment may trail code on the same line.
func parseComment(line string) (target, reason string, ok bool) {
	lower := strings.ToLower(line)
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return "", "", false
	}
	if !commentBefore(line[:idx]) {
		return "", "", false
	}

	rest := strings.TrimSpace(line[idx+len(marker):])
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "*/"))
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "-->"))
	if rest == "" {
		return "", "", false
	}
	if dash := strings.Index(rest, " -- "); dash >= 0 {
		target = strings.TrimSpace(rest[:dash])
		reason = strings.TrimSpace(rest[dash+4:])
	} else {
		target = rest
	}
	if f := strings.Fields(target); len(f) > 0 {
		target = f[0]
	}
	target = strings.ToLower(target)
	// A bare wildcard would silence every finding on the line.
	if target == "" || target == "*" {
		return "", "", false
	}
	return target, reason, true
}

func commentBefore(prefix string) bool {
	for _, p := range commentPrefixes {
		if strings.Contains(prefix, p) {
			return true
		}
	}
	return false
}

// Apply removes findings covered by an annotation. An annotation covers its own
// line and the line after it.
func Apply(findings []model.Finding, annotations []Annotation) (kept, suppressed []model.Finding) {
	if len(annotations) == 0 {
		return findings, nil
	}
	byLine := make(map[int][]string, len(annotations)*2)
	for _, a := range annotations {
		byLine[a.Line] = append(byLine[a.Line], a.Target)
		byLine[a.Line+1] = append(byLine[a.Line+1], a.Target)
	}
	kept = make([]model.Finding, 0, len(findings))
	for _, f := range findings {
		if covers(byLine[f.Line], f) {
			suppressed = append(suppressed, f)
			continue
		}
		kept = append(kept, f)
	}
	return kept, suppressed
}

func covers(targets []string, f model.Finding) bool {
	for _, t := range targets {
		if t == string(f.Type) || (f.RuleID != "" && t == strings.ToLower(f.RuleID)) {
			return true
		}
	}
	return false
}
