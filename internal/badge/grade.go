package badge

import (
	"fmt"

	"codeguard/internal/model"
)

// Grade maps a 0..100 security score to a letter grade and badge color.
func Grade(score int) (grade string, color string) {
	switch {
	case score >= 100:
		return "A+", "brightgreen"
	case score >= 90:
		return "A", "green"
	case score >= 80:
		return "B", "yellowgreen"
	case score >= 70:
		return "C", "yellow"
	case score >= 50:
		return "D", "orange"
	default:
		return "F", "red"
	}
}

// Summary is what a badge shows for a set of analyses.
type Summary struct {
	Grade    string
	Color    string
	Score    int // weakest score among the analyses
	Findings int
	Critical int
	Files    int
}

// Summarize grades the weakest analysis and totals findings across all of
// them. A critique finding anywhere caps the grade at D.
func Summarize(results ...model.AnalysisResult) Summary {
	s := Summary{Score: 100, Files: len(results)}
	for _, res := range results {
		if res.SecurityScore < s.Score {
			s.Score = res.SecurityScore
		}
		s.Findings += len(res.Findings)
		s.Critical += res.CountsBySeverity()[model.SeverityCritique]
	}
	s.Grade, s.Color = Grade(s.Score)
	if s.Critical > 0 && s.Score >= 50 {
		s.Grade, s.Color = "D", "orange"
	}
	return s
}

// Message renders the grade next to the score, e.g. "B 80/100".
func (s Summary) Message() string {
	return fmt.Sprintf("%s %d/100", s.Grade, s.Score)
}

// FindingsText is the findings segment, e.g. "3 findings, 1 critical".
func (s Summary) FindingsText() string {
	var text string
	switch s.Findings {
	case 0:
		return "no findings"
	case 1:
		text = "1 finding"
	default:
		text = fmt.Sprintf("%d findings", s.Findings)
	}
	if s.Critical > 0 {
		text += fmt.Sprintf(", %d critical", s.Critical)
	}
	return text
}
