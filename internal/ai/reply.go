package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"codeguard/internal/normalize"
)

const replySchemaURL = "codeguard-ai-reply.json"

const replySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["vulnerabilities"],
  "properties": {
    "vulnerabilities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "line"],
        "properties": {
          "type": {"type": "string"},
          "severity": {"type": "string"},
          "line": {"type": ["number", "string"]},
          "description": {"type": "string"},
          "codeSnippet": {"type": "string"},
          "fix": {"type": "string"},
          "confidence": {"type": ["number", "null"]}
        }
      }
    },
    "summary": {}
  }
}`

func compileReplySchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(replySchemaURL, strings.NewReader(replySchema)); err != nil {
		return nil, fmt.Errorf("add reply schema: %w", err)
	}
	schema, err := compiler.Compile(replySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile reply schema: %w", err)
	}
	return schema, nil
}

type replyVulnerability struct {
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Line        json.RawMessage `json:"line"`
	Description string          `json:"description"`
	CodeSnippet string          `json:"codeSnippet"`
	Fix         string          `json:"fix"`
	Confidence  *float64        `json:"confidence"`
}

type reply struct {
	Vulnerabilities []replyVulnerability `json:"vulnerabilities"`
}

// parseReply extracts, validates and decodes the provider reply text.
func parseReply(schema *jsonschema.Schema, content string) ([]normalize.Candidate, string, error) {
	payload, err := extractJSONObject(content)
	if err != nil {
		return nil, stageParse, fmt.Errorf("extract json from ai response: %w", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, stageParse, fmt.Errorf("parse ai json payload: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, stageSchema, fmt.Errorf("ai reply does not match schema: %w", err)
	}
	var parsed reply
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, stageParse, fmt.Errorf("decode ai reply: %w", err)
	}

	out := make([]normalize.Candidate, 0, len(parsed.Vulnerabilities))
	for _, v := range parsed.Vulnerabilities {
		out = append(out, normalize.Candidate{
			Type:        v.Type,
			Severity:    v.Severity,
			Line:        parseLine(v.Line),
			Description: v.Description,
			CodeSnippet: v.CodeSnippet,
			Fix:         v.Fix,
			Confidence:  v.Confidence,
		})
	}
	return out, "", nil
}

// parseLine accepts numbers and numeric strings; anything else becomes 0 and is
// clamped to line 1 during normalization.
func parseLine(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
