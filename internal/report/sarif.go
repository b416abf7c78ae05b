package report

import (
	"encoding/json"
	"fmt"

	"codeguard/internal/model"
	"codeguard/internal/redact"
	"codeguard/internal/safefile"
)

// SARIF v2.1.0 types, the subset GitHub Code Scanning reads.

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Version        string      `json:"version"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	ShortDescription sarifMessage        `json:"shortDescription,omitempty"`
	DefaultConfig    *sarifDefaultConfig `json:"defaultConfiguration,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID     string           `json:"ruleId"`
	Level      string           `json:"level"`
	Message    sarifMessage     `json:"message"`
	Locations  []sarifLocation  `json:"locations,omitempty"`
	Properties *sarifProperties `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int           `json:"startLine"`
	Snippet   *sarifMessage `json:"snippet,omitempty"`
}

type sarifProperties struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Source     string `json:"source"`
	Confidence int    `json:"confidence"`
	Fix        string `json:"fix,omitempty"`
}

// FileFindings groups the findings of one analyzed file.
type FileFindings struct {
	FileName string
	Findings []model.Finding
}

func WriteSARIF(path, toolVersion string, files []FileFindings) error {
	b, err := marshalSARIF(toolVersion, files)
	if err != nil {
		return err
	}
	if err := safefile.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("write sarif report: %w", err)
	}
	return nil
}

func MarshalSARIF(fileName, toolVersion string, findings []model.Finding) ([]byte, error) {
	return marshalSARIF(toolVersion, []FileFindings{{FileName: fileName, Findings: findings}})
}

func MarshalSARIFFiles(toolVersion string, files []FileFindings) ([]byte, error) {
	return marshalSARIF(toolVersion, files)
}

func marshalSARIF(toolVersion string, files []FileFindings) ([]byte, error) {
	b, err := json.MarshalIndent(buildSARIF(toolVersion, files), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sarif report: %w", err)
	}
	return b, nil
}

// buildSARIF emits one SARIF rule per rule id, or per finding type for AI findings.
func buildSARIF(toolVersion string, files []FileFindings) sarifLog {
	ruleIndex := map[string]int{}
	var rules []sarifRule
	results := make([]sarifResult, 0)

	for _, file := range files {
		results = appendSARIFResults(results, &rules, ruleIndex, file)
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:           "codeguard",
					InformationURI: "https://github.com/codeguard/codeguard",
					Version:        toolVersion,
					Rules:          rules,
				},
			},
			Results: results,
		}},
	}
}

func appendSARIFResults(results []sarifResult, rules *[]sarifRule, ruleIndex map[string]int, file FileFindings) []sarifResult {
	for _, f := range file.Findings {
		ruleID := f.RuleID
		if ruleID == "" {
			ruleID = "codeguard-" + string(f.Type)
		}
		level := mapSeverityToSARIF(f.Severity)

		if _, seen := ruleIndex[ruleID]; !seen {
			ruleIndex[ruleID] = len(*rules)
			*rules = append(*rules, sarifRule{
				ID:               ruleID,
				Name:             string(f.Type),
				ShortDescription: sarifMessage{Text: redact.Text(f.Description)},
				DefaultConfig:    &sarifDefaultConfig{Level: level},
			})
		}

		var locations []sarifLocation
		if file.FileName != "" {
			loc := sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: file.FileName},
				Region:           &sarifRegion{StartLine: f.Line},
			}
			if f.CodeSnippet != "" {
				loc.Region.Snippet = &sarifMessage{Text: redact.Text(f.CodeSnippet)}
			}
			locations = []sarifLocation{{PhysicalLocation: loc}}
		}

		results = append(results, sarifResult{
			RuleID:    ruleID,
			Level:     level,
			Message:   sarifMessage{Text: redact.Text(f.Description)},
			Locations: locations,
			Properties: &sarifProperties{
				Type:       string(f.Type),
				Severity:   string(f.Severity),
				Source:     string(f.Source),
				Confidence: f.Confidence,
				Fix:        redact.Text(f.Fix),
			},
		})
	}
	return results
}

func mapSeverityToSARIF(sev model.Severity) string {
	switch sev {
	case model.SeverityCritique, model.SeverityEleve:
		return "error"
	case model.SeverityMoyen:
		return "warning"
	default:
		return "note"
	}
}
