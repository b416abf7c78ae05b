package rules

import (
	"strings"
	"time"
)

const APIVersion = "codeguard/v1"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type Category string

const (
	CategoryXSS            Category = "XSS"
	CategoryInjection      Category = "Injection"
	CategorySecrets        Category = "Secrets"
	CategoryAuthentication Category = "Authentication"
	CategoryAuthorization  Category = "Authorization"
	CategoryCSRF           Category = "CSRF"
	CategoryOther          Category = "Other"
)

var Categories = []Category{
	CategoryXSS,
	CategoryInjection,
	CategorySecrets,
	CategoryAuthentication,
	CategoryAuthorization,
	CategoryCSRF,
	CategoryOther,
}

// Rule is an administrator-configured detection pattern. Pattern uses RE2 syntax.
type Rule struct {
	ID            string    `yaml:"id" json:"id"`
	Name          string    `yaml:"name" json:"name"`
	Description   string    `yaml:"description,omitempty" json:"description,omitempty"`
	Language      string    `yaml:"language" json:"language"`
	Pattern       string    `yaml:"pattern" json:"pattern"`
	Severity      Severity  `yaml:"severity" json:"severity"`
	Category      Category  `yaml:"category" json:"category"`
	CustomMessage string    `yaml:"custom_message,omitempty" json:"customMessage,omitempty"`
	FixSuggestion string    `yaml:"fix_suggestion,omitempty" json:"fixSuggestion,omitempty"`
	IsActive      bool      `yaml:"is_active" json:"isActive"`
	CreatedAt     time.Time `yaml:"created_at,omitempty" json:"createdAt,omitempty"`
}

// File is the on-disk shape of a *.rule.yaml document.
type File struct {
	APIVersion string `yaml:"api_version"`
	Rules      []Rule `yaml:"rules"`
}

func NormalizeRule(r Rule) Rule {
	r.ID = strings.ToLower(strings.TrimSpace(r.ID))
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	r.Severity = Severity(strings.ToLower(strings.TrimSpace(string(r.Severity))))
	r.Category = normalizeCategory(r.Category)
	r.CustomMessage = strings.TrimSpace(r.CustomMessage)
	r.FixSuggestion = strings.TrimSpace(r.FixSuggestion)
	if r.Name == "" {
		r.Name = r.ID
	}
	return r
}

func normalizeCategory(c Category) Category {
	raw := strings.TrimSpace(string(c))
	for _, known := range Categories {
		if strings.EqualFold(raw, string(known)) {
			return known
		}
	}
	return Category(raw)
}
