package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,63}$`)

// ValidateRule checks the metadata of a rule. The pattern is only required to be
// non-empty here: a pattern that fails to compile is skipped at match time.
func ValidateRule(r Rule) error {
	r = NormalizeRule(r)
	var errs []string

	if r.ID == "" {
		errs = append(errs, "id is required")
	} else if !idPattern.MatchString(r.ID) {
		errs = append(errs, "id must match ^[a-z0-9][a-z0-9_.-]{1,63}$")
	}
	if r.Language == "" {
		errs = append(errs, "language is required")
	}
	if strings.TrimSpace(r.Pattern) == "" {
		errs = append(errs, "pattern is required")
	}
	switch r.Severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
	default:
		errs = append(errs, "severity must be critical|high|medium|low")
	}
	if !validCategory(r.Category) {
		errs = append(errs, "category must be XSS|Injection|Secrets|Authentication|Authorization|CSRF|Other")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// CheckPattern reports whether the rule's pattern compiles.
func CheckPattern(r Rule) error {
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("rule %q pattern does not compile: %w", r.ID, err)
	}
	return nil
}

func validCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
