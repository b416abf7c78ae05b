package report

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"codeguard/internal/model"
	"codeguard/internal/redact"
)

var (
	styleCritical = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
	styleHigh     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleMedium   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleLow      = lipgloss.NewStyle().Faint(true)
	styleLine     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleFix      = lipgloss.NewStyle().Faint(true)
	styleScore    = lipgloss.NewStyle().Bold(true)
)

// ColorEnabled reports whether f is a terminal that should get ANSI styling.
func ColorEnabled(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// FormatHuman renders a result as severity-sorted terminal text. Findings with the
// same severity keep their line order.
func FormatHuman(fileName string, res model.AnalysisResult, color bool) string {
	render := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	name := fileName
	if name == "" {
		name = "(stdin)"
	}
	if len(res.Findings) == 0 {
		b.WriteString(fmt.Sprintf("%s: no findings. score %s\n", name, render(styleScore, fmt.Sprintf("%d/100", res.SecurityScore))))
		return b.String()
	}

	sorted := SortedBySeverity(res.Findings)
	counts := res.CountsBySeverity()
	var parts []string
	for _, sev := range model.Severities {
		if c := counts[sev]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, sev))
		}
	}
	b.WriteString(fmt.Sprintf("%s: %d finding(s) (%s), score %s\n\n",
		name, len(sorted), strings.Join(parts, ", "), render(styleScore, fmt.Sprintf("%d/100", res.SecurityScore))))

	for _, f := range sorted {
		label := fmt.Sprintf("%-8s", strings.ToUpper(string(f.Severity)))
		b.WriteString(fmt.Sprintf("  %s %s %s [%s]\n",
			render(severityStyle(f.Severity), label),
			render(styleLine, fmt.Sprintf("line %d", f.Line)),
			sanitizeInline(redact.Text(f.Description)),
			f.Type))
		if snippet := sanitizeInline(redact.Text(f.CodeSnippet)); snippet != "" {
			b.WriteString(fmt.Sprintf("      %s\n", truncate(snippet, 120)))
		}
		if fix := sanitizeInline(redact.Text(f.Fix)); fix != "" {
			b.WriteString(fmt.Sprintf("      %s\n", render(styleFix, "fix: "+truncate(fix, 200))))
		}
	}
	return b.String()
}

// SortedBySeverity returns a copy ordered most severe first, then by line.
func SortedBySeverity(findings []model.Finding) []model.Finding {
	sorted := make([]model.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Severity.Rank(), sorted[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Line < sorted[j].Line
	})
	return sorted
}

func severityStyle(sev model.Severity) lipgloss.Style {
	switch sev {
	case model.SeverityCritique:
		return styleCritical
	case model.SeverityEleve:
		return styleHigh
	case model.SeverityMoyen:
		return styleMedium
	default:
		return styleLow
	}
}

func sanitizeInline(s string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "\n", " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
