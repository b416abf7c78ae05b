package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"codeguard/internal/model"
	"codeguard/internal/progress"
	"codeguard/internal/redact"
	"codeguard/internal/report"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// FileResult is one scanned file as delivered to the browser.
type FileResult struct {
	FileName string
	Result   model.AnalysisResult
	Err      error
}

type eventMsg struct {
	event progress.Event
	ok    bool
}

type resultMsg struct {
	result FileResult
	ok     bool
}

type tickMsg time.Time

type pane int

const (
	paneFiles pane = iota
	paneFindings
)

type uiModel struct {
	events  <-chan progress.Event
	results <-chan FileResult

	files     []FileResult
	fileIdx   int
	findIdx   int
	focus     pane
	sevFilter model.Severity

	startedAt  time.Time
	finishedAt time.Time
	eventsDone bool
	done       bool

	showLog  bool
	logLines []string
	tick     int
	noColor  bool
}

func newModel(events <-chan progress.Event, results <-chan FileResult) uiModel {
	return uiModel{
		events:    events,
		results:   results,
		startedAt: time.Now().UTC(),
		showLog:   true,
		logLines:  make([]string, 0, 12),
		noColor:   noColorEnabled(),
	}
}

func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		return eventMsg{event: ev, ok: ok}
	}
}

func waitForResult(ch <-chan FileResult) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		return resultMsg{result: r, ok: ok}
	}
}

func nextTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), waitForResult(m.results), nextTick())
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	case eventMsg:
		if !msg.ok {
			m.eventsDone = true
			return m, nil
		}
		m.appendEventLine(msg.event)
		return m, waitForEvent(m.events)
	case resultMsg:
		if !msg.ok {
			m.done = true
			m.finishedAt = time.Now().UTC()
			return m, nil
		}
		m.files = append(m.files, msg.result)
		return m, waitForResult(m.results)
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, nextTick()
	default:
		return m, nil
	}
}

func (m uiModel) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		if m.done || key == "ctrl+c" {
			return m, tea.Quit
		}
	case "l":
		m.showLog = !m.showLog
	case "tab", "enter":
		if m.focus == paneFiles && len(m.visibleFindings()) > 0 {
			m.focus = paneFindings
			m.findIdx = 0
		} else {
			m.focus = paneFiles
		}
	case "esc":
		m.focus = paneFiles
	case "s":
		m.sevFilter = nextSeverity(m.sevFilter)
		m.findIdx = 0
	case "up", "k":
		m.move(-1)
	case "down", "j":
		m.move(1)
	}
	return m, nil
}

func (m *uiModel) move(delta int) {
	if m.focus == paneFindings {
		m.findIdx = clampIndex(m.findIdx+delta, len(m.visibleFindings()))
		return
	}
	m.fileIdx = clampIndex(m.fileIdx+delta, len(m.files))
	m.findIdx = 0
}

func (m uiModel) selectedFile() (FileResult, bool) {
	if m.fileIdx < 0 || m.fileIdx >= len(m.files) {
		return FileResult{}, false
	}
	return m.files[m.fileIdx], true
}

// visibleFindings returns the selected file's findings, most severe first,
// restricted to the active severity filter.
func (m uiModel) visibleFindings() []model.Finding {
	f, ok := m.selectedFile()
	if !ok {
		return nil
	}
	sorted := report.SortedBySeverity(f.Result.Findings)
	if m.sevFilter == "" {
		return sorted
	}
	out := sorted[:0]
	for _, finding := range sorted {
		if finding.Severity == m.sevFilter {
			out = append(out, finding)
		}
	}
	return out
}

func (m uiModel) View() string {
	var b strings.Builder

	b.WriteString(m.render(titleStyle, "CodeGuard Scan"))
	b.WriteString("\n")
	if !m.done {
		b.WriteString(fmt.Sprintf("Scanning %s\n", m.render(runningStyle, m.runningFrame())))
	}
	b.WriteString(fmt.Sprintf("Files: %d  Findings: %d  Elapsed: %s\n\n", len(m.files), m.totalFindings(), m.elapsedString()))

	b.WriteString(m.render(headerStyle, fmt.Sprintf("%-40s %-8s %-9s", "File", "Score", "Findings")))
	b.WriteString("\n")
	if len(m.files) == 0 {
		b.WriteString(m.render(idleStyle, "No results yet."))
		b.WriteString("\n")
	}
	for i, f := range m.files {
		line := fmt.Sprintf("%-40s %-8s %-9d", truncate(f.FileName, 40), scoreLabel(f), f.Result.TotalFindings)
		if f.Err != nil {
			line = fmt.Sprintf("%-40s %-8s %s", truncate(f.FileName, 40), "error", truncate(redact.Text(f.Err.Error()), 60))
		}
		style := scoreStyle(f)
		if i == m.fileIdx && m.focus == paneFiles {
			style = selectedStyle
		}
		b.WriteString(m.render(style, line))
		b.WriteString("\n")
	}

	if f, ok := m.selectedFile(); ok && f.Err == nil {
		b.WriteString("\n")
		filter := "all"
		if m.sevFilter != "" {
			filter = string(m.sevFilter)
		}
		b.WriteString(m.render(headerStyle, fmt.Sprintf("Findings in %s (severity: %s)", f.FileName, filter)))
		b.WriteString("\n")
		findings := m.visibleFindings()
		if len(findings) == 0 {
			b.WriteString(m.render(idleStyle, "No findings."))
			b.WriteString("\n")
		}
		for i, finding := range findings {
			line := fmt.Sprintf("%-9s line %-5d %-10s %s", finding.Severity, finding.Line, finding.Type, truncate(redact.Text(finding.Description), 60))
			style := severityStyle(finding.Severity)
			if i == m.findIdx && m.focus == paneFindings {
				style = selectedStyle
			}
			b.WriteString(m.render(style, line))
			b.WriteString("\n")
		}
		if m.focus == paneFindings && m.findIdx < len(findings) {
			sel := findings[m.findIdx]
			b.WriteString("\n")
			if snippet := strings.TrimSpace(redact.Text(sel.CodeSnippet)); snippet != "" {
				b.WriteString("  " + snippet + "\n")
			}
			if fix := strings.TrimSpace(redact.Text(sel.Fix)); fix != "" {
				b.WriteString(m.render(helpStyle, "  fix: "+fix) + "\n")
			}
			b.WriteString(m.render(helpStyle, fmt.Sprintf("  source=%s confidence=%d%%", sel.Source, sel.Confidence)) + "\n")
		}
	}

	if m.showLog {
		b.WriteString("\n")
		b.WriteString(m.render(headerStyle, "Recent Events"))
		b.WriteString("\n")
		if len(m.logLines) == 0 {
			b.WriteString(m.render(idleStyle, "No events yet."))
			b.WriteString("\n")
		}
		for _, line := range m.logLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	help := "j/k move  enter open  s severity  l log"
	if m.done {
		help += "  q quit"
	}
	b.WriteString(m.render(helpStyle, help))
	b.WriteString("\n")
	return b.String()
}

func (m *uiModel) appendEventLine(e progress.Event) {
	text := eventText(e)
	if text == "" {
		return
	}
	ts := e.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	m.logLines = append(m.logLines, fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), text))
	if len(m.logLines) > 12 {
		m.logLines = m.logLines[len(m.logLines)-12:]
	}
}

func eventText(e progress.Event) string {
	switch e.Type {
	case progress.EventAnalysisStarted:
		return "analyzing " + valueOrDash(e.FileName)
	case progress.EventRulesMatched:
		return fmt.Sprintf("rules matched %d", e.FindingCount)
	case progress.EventAIStarted:
		return "ai review via " + valueOrDash(e.Provider)
	case progress.EventAIFinished:
		return fmt.Sprintf("ai review returned %d", e.FindingCount)
	case progress.EventAnalysisWarning:
		return "warning: " + redact.Text(firstNonEmpty(e.Message, e.Error))
	case progress.EventAnalysisFinished:
		return fmt.Sprintf("finished score=%d findings=%d (%s)", e.Score, e.FindingCount, durationString(e.DurationMS))
	default:
		return ""
	}
}

func (m uiModel) totalFindings() int {
	n := 0
	for _, f := range m.files {
		n += f.Result.TotalFindings
	}
	return n
}

func (m uiModel) elapsedString() string {
	end := time.Now().UTC()
	if !m.finishedAt.IsZero() {
		end = m.finishedAt
	}
	return end.Sub(m.startedAt).Round(time.Second).String()
}

func (m uiModel) render(s lipgloss.Style, text string) string {
	if m.noColor {
		return text
	}
	return s.Render(text)
}

func (m uiModel) runningFrame() string {
	frames := []string{"-", "\\", "|", "/"}
	return frames[m.tick%len(frames)]
}

func nextSeverity(cur model.Severity) model.Severity {
	if cur == "" {
		return model.Severities[0]
	}
	for i, s := range model.Severities {
		if s == cur && i+1 < len(model.Severities) {
			return model.Severities[i+1]
		}
	}
	return ""
}

func scoreLabel(f FileResult) string {
	return fmt.Sprintf("%d", f.Result.SecurityScore)
}

func scoreStyle(f FileResult) lipgloss.Style {
	switch {
	case f.Err != nil:
		return errorStyle
	case f.Result.SecurityScore >= 90:
		return okStyle
	case f.Result.SecurityScore >= 70:
		return warnStyle
	default:
		return errorStyle
	}
}

func severityStyle(s model.Severity) lipgloss.Style {
	switch s {
	case model.SeverityCritique, model.SeverityEleve:
		return errorStyle
	case model.SeverityMoyen:
		return warnStyle
	default:
		return idleStyle
	}
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func durationString(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func noColorEnabled() bool {
	return os.Getenv("NO_COLOR") != ""
}
