package badge

import "encoding/json"

// shieldsEndpoint is the shields.io endpoint badge schema.
type shieldsEndpoint struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
	IsError       bool   `json:"isError,omitempty"`
	Style         Style  `json:"style,omitempty"`
	CacheSeconds  int    `json:"cacheSeconds,omitempty"`
}

// shieldsCacheSeconds bounds how long shields.io caches the endpoint.
const shieldsCacheSeconds = 300

// ShieldsJSON returns a shields.io endpoint document for the summary. The
// message carries the grade, score and findings tally; a critique finding
// marks the badge as an error.
func ShieldsJSON(label string, s Summary, style Style) ([]byte, error) {
	return json.MarshalIndent(shieldsEndpoint{
		SchemaVersion: 1,
		Label:         label,
		Message:       s.Message() + " | " + s.FindingsText(),
		Color:         s.Color,
		IsError:       s.Critical > 0,
		Style:         style,
		CacheSeconds:  shieldsCacheSeconds,
	}, "", "  ")
}
