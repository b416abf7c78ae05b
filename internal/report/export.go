package report

import (
	"encoding/json"
	"fmt"
	"time"

	"codeguard/internal/model"
	"codeguard/internal/redact"
	"codeguard/internal/safefile"
)

// Export is the machine-readable dump of one analysis. It carries a subset of each
// finding: id, snippet, confidence and source are left out.
type Export struct {
	FileName        string                `json:"fileName"`
	Timestamp       string                `json:"timestamp"`
	Vulnerabilities []ExportVulnerability `json:"vulnerabilities"`
}

type ExportVulnerability struct {
	Type        model.Type     `json:"type"`
	Severity    model.Severity `json:"severity"`
	Line        int            `json:"line"`
	Description string         `json:"description"`
	Fix         string         `json:"fix"`
}

// BuildExport shapes findings for export. The timestamp is rendered as RFC 3339 in UTC.
func BuildExport(fileName string, at time.Time, findings []model.Finding) Export {
	out := Export{
		FileName:        fileName,
		Timestamp:       at.UTC().Format(time.RFC3339),
		Vulnerabilities: make([]ExportVulnerability, 0, len(findings)),
	}
	for _, f := range findings {
		out.Vulnerabilities = append(out.Vulnerabilities, ExportVulnerability{
			Type:        f.Type,
			Severity:    f.Severity,
			Line:        f.Line,
			Description: redact.Text(f.Description),
			Fix:         redact.Text(f.Fix),
		})
	}
	return out
}

func MarshalExport(e Export) ([]byte, error) {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return b, nil
}

func WriteExport(path string, e Export) error {
	b, err := MarshalExport(e)
	if err != nil {
		return err
	}
	if err := safefile.WriteFileAtomic(path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
