package progress

import "time"

type EventType string

const (
	EventAnalysisStarted  EventType = "analysis_started"
	EventRulesMatched     EventType = "rules_matched"
	EventAIStarted        EventType = "ai_started"
	EventAIFinished       EventType = "ai_finished"
	EventAnalysisWarning  EventType = "analysis_warning"
	EventAnalysisFinished EventType = "analysis_finished"
)

type Event struct {
	Type         EventType `json:"type"`
	At           time.Time `json:"at"`
	AnalysisID   string    `json:"analysis_id,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	FindingCount int       `json:"finding_count,omitempty"`
	Score        int       `json:"score,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
}
