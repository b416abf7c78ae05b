// Package merge combines rule and AI findings into one de-duplicated list.
package merge

import "codeguard/internal/model"

// Merge concatenates ruleFindings then aiFindings and keeps the first finding for
// each (type, line) pair. Later findings sharing the pair are dropped whatever their
// description or source, so a rule finding always wins over an AI finding.
func Merge(ruleFindings, aiFindings []model.Finding) []model.Finding {
	out := make([]model.Finding, 0, len(ruleFindings)+len(aiFindings))
	seen := make(map[string]struct{}, len(ruleFindings)+len(aiFindings))
	for _, list := range [][]model.Finding{ruleFindings, aiFindings} {
		for _, f := range list {
			key := f.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
