package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"codeguard/internal/safefile"
)

const fileSuffix = ".rule.yaml"

// ReadFile parses one rule document. Invalid rules are reported as warnings and skipped.
func ReadFile(path string) ([]Rule, []string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, nil, fmt.Errorf("refusing symlinked rule file: %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rules %s: %w", path, err)
	}

	var doc File
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if v := strings.TrimSpace(doc.APIVersion); v != "" && v != APIVersion {
		return nil, nil, fmt.Errorf("unsupported rules api_version %q in %s", doc.APIVersion, path)
	}

	out := make([]Rule, 0, len(doc.Rules))
	var warnings []string
	for i, r := range doc.Rules {
		r = NormalizeRule(r)
		if err := ValidateRule(r); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: rules[%d] (%s): %v", path, i, r.ID, err))
			continue
		}
		out = append(out, r)
	}
	return out, warnings, nil
}

// LoadDir reads every *.rule.yaml file in dir in lexical file order, keeping each
// file's rule order. A missing directory yields no rules.
func LoadDir(dir string) ([]Rule, []string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read rules dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var out []Rule
	var warnings []string
	seen := make(map[string]string, 16)
	for _, name := range names {
		path := filepath.Join(dir, name)
		items, itemWarnings, err := ReadFile(path)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		warnings = append(warnings, itemWarnings...)
		for _, r := range items {
			if prev, ok := seen[r.ID]; ok {
				warnings = append(warnings, fmt.Sprintf("%s: duplicate rule id %q (first defined in %s), skipped", path, r.ID, prev))
				continue
			}
			seen[r.ID] = path
			out = append(out, r)
		}
	}
	return out, warnings, nil
}

// WriteFile stores rules as a rule document.
func WriteFile(path string, rules []Rule) error {
	doc := File{APIVersion: APIVersion, Rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		r = NormalizeRule(r)
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("invalid rule %q: %w", r.ID, err)
		}
		doc.Rules = append(doc.Rules, r)
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("write rules %s: %w", path, err)
	}
	return nil
}
