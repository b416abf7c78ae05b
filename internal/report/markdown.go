package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"codeguard/internal/model"
	"codeguard/internal/redact"
)

// RenderMarkdown renders one analysis for pasting into a review or issue.
func RenderMarkdown(rec model.AnalysisRecord, findings []model.Finding) string {
	var b bytes.Buffer

	b.WriteString("# CodeGuard Analysis\n\n")
	b.WriteString("## Summary\n\n")
	if rec.ID != "" {
		b.WriteString(fmt.Sprintf("- Analysis ID: `%s`\n", rec.ID))
	}
	b.WriteString(fmt.Sprintf("- File: `%s`\n", sanitizeInline(rec.FileName)))
	b.WriteString(fmt.Sprintf("- Language: `%s`\n", rec.Language))
	if !rec.CreatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("- Analyzed at: `%s`\n", rec.CreatedAt.UTC().Format(time.RFC3339)))
	}
	b.WriteString(fmt.Sprintf("- AI review: `%t`\n", rec.AIUsed))
	b.WriteString(fmt.Sprintf("- Security score: **%d/100**\n", rec.Score))
	b.WriteString(fmt.Sprintf("- Total findings: **%d**\n", len(findings)))

	counts := model.AnalysisResult{Findings: findings}.CountsBySeverity()
	b.WriteString(fmt.Sprintf("- Severity: critique=%d, eleve=%d, moyen=%d, faible=%d\n\n",
		counts[model.SeverityCritique],
		counts[model.SeverityEleve],
		counts[model.SeverityMoyen],
		counts[model.SeverityFaible],
	))

	if len(findings) == 0 {
		b.WriteString("## Findings\n\nNo vulnerabilities were detected.\n")
		return b.String()
	}

	b.WriteString("## Findings\n\n")
	for _, f := range SortedBySeverity(findings) {
		b.WriteString(fmt.Sprintf("### [%s] %s at line %d\n\n", strings.ToUpper(string(f.Severity)), f.Type, f.Line))
		b.WriteString(fmt.Sprintf("- Source: `%s`", f.Source))
		if f.RuleID != "" {
			b.WriteString(fmt.Sprintf(" (rule `%s`)", f.RuleID))
		}
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("- Confidence: `%d%%`\n", f.Confidence))
		b.WriteString("- Description:\n")
		b.WriteString(indentBlock(redact.Text(f.Description)))
		if snippet := strings.TrimSpace(redact.Text(f.CodeSnippet)); snippet != "" {
			b.WriteString("- Snippet:\n\n```\n" + strings.ReplaceAll(snippet, "```", "'''") + "\n```\n")
		}
		b.WriteString("- Fix:\n")
		b.WriteString(indentBlock(redact.Text(f.Fix)))
		b.WriteString("\n")
	}
	return b.String()
}

func indentBlock(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "  - (none provided)\n"
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = "  - " + strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "\n") + "\n"
}
