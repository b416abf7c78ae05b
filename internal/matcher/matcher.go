package matcher

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"codeguard/internal/logging"
	"codeguard/internal/model"
	"codeguard/internal/rules"
)

const defaultCacheSize = 512

// CompileError reports a stored rule whose pattern is not a valid RE2 expression.
type CompileError struct {
	RuleID  string
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile rule %q pattern: %v", e.RuleID, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

type compiled struct {
	re  *regexp.Regexp
	err error
}

// Matcher applies active rules to source text. Safe for concurrent use.
type Matcher struct {
	source rules.Source
	cache  *lru.Cache[string, compiled]
	logger *zap.Logger
}

type Option func(*Matcher)

func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = logging.OrNop(l) }
}

func New(source rules.Source, cacheSize int, opts ...Option) (*Matcher, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, compiled](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pattern cache: %w", err)
	}
	m := &Matcher{source: source, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Match evaluates every active rule for language against text. Rules whose pattern
// does not compile are skipped and reported in the returned error slice; the final
// error is only set when the rule source itself fails.
func (m *Matcher) Match(ctx context.Context, text, language string) ([]model.RawMatch, []error, error) {
	if m.source == nil {
		return nil, nil, fmt.Errorf("%w: no rule source configured", rules.ErrUnavailable)
	}
	active, err := m.source.ActiveRules(ctx, language)
	if err != nil {
		return nil, nil, fmt.Errorf("load active rules for %q: %w", language, err)
	}
	matches, compileErrs := m.MatchRules(text, language, active)
	return matches, compileErrs, nil
}

// MatchRules evaluates the given rules in order. Output order is rule order, then
// match position within the text.
func (m *Matcher) MatchRules(text, language string, active []rules.Rule) ([]model.RawMatch, []error) {
	if text == "" || len(active) == 0 {
		return []model.RawMatch{}, nil
	}
	idx := newLineIndex(text)
	out := make([]model.RawMatch, 0, 8)
	var errs []error

	for _, rule := range active {
		if !rule.IsActive {
			continue
		}
		re, err := m.compile(rule.Pattern)
		if err != nil {
			cerr := &CompileError{RuleID: rule.ID, Pattern: rule.Pattern, Err: err}
			m.logger.Warn("skipping rule with invalid pattern",
				zap.String("rule_id", rule.ID),
				zap.String("language", language),
				zap.Error(err),
			)
			errs = append(errs, cerr)
			continue
		}

		hasCapture := re.NumSubexp() > 0
		for _, loc := range re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if end == start {
				continue
			}
			line := idx.lineOf(start)
			snippet := text[start:end]
			if !hasCapture {
				snippet = idx.lineText(text, line)
			}
			out = append(out, model.RawMatch{
				RuleID:          rule.ID,
				RuleName:        rule.Name,
				Category:        string(rule.Category),
				Severity:        string(rule.Severity),
				Description:     rule.Description,
				CustomMessage:   rule.CustomMessage,
				FixSuggestion:   rule.FixSuggestion,
				Line:            line,
				Snippet:         snippet,
				LanguageMatched: model.NormalizeLanguage(language),
			})
		}
	}
	return out, errs
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if c, ok := m.cache.Get(pattern); ok {
		return c.re, c.err
	}
	re, err := regexp.Compile(pattern)
	m.cache.Add(pattern, compiled{re: re, err: err})
	return re, err
}

// CachedPatterns reports how many distinct patterns are held in the compile cache.
func (m *Matcher) CachedPatterns() int {
	return m.cache.Len()
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex struct {
	breaks []int
}

func newLineIndex(text string) lineIndex {
	breaks := make([]int, 0, strings.Count(text, "\n"))
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			breaks = append(breaks, i)
		}
	}
	return lineIndex{breaks: breaks}
}

// lineOf returns the number of line breaks before offset, plus one.
func (li lineIndex) lineOf(offset int) int {
	return sort.SearchInts(li.breaks, offset) + 1
}

func (li lineIndex) lineText(text string, line int) string {
	start := 0
	if line > 1 {
		start = li.breaks[line-2] + 1
	}
	end := len(text)
	if line-1 < len(li.breaks) {
		end = li.breaks[line-1]
	}
	return strings.TrimSpace(text[start:end])
}
