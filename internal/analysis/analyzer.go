// Package analysis runs one submission through rule matching, optional AI review,
// merge and scoring, then hands the result to persistence and notification.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codeguard/internal/ai"
	"codeguard/internal/detect"
	"codeguard/internal/events"
	"codeguard/internal/matcher"
	"codeguard/internal/merge"
	"codeguard/internal/metrics"
	"codeguard/internal/model"
	"codeguard/internal/normalize"
	"codeguard/internal/progress"
	"codeguard/internal/score"
	"codeguard/internal/store"
	"codeguard/internal/suppress"
)

type Request struct {
	SourceText string
	FileName   string
	// Language selects the rule set. Empty means detect from FileName, then the
	// analyzer default.
	Language string
	UseAI    bool
	UserID   string

	// HonorIgnores drops findings covered by codeguard:ignore comments before scoring.
	HonorIgnores bool
}

// Outcome is the computed result plus the status of the side effects around it.
// Result is always valid when Analyze returns a nil error.
type Outcome struct {
	Result     model.AnalysisResult
	Language   string
	AIUsed     bool
	AnalysisID string
	FindingIDs []string
	Stats      *model.UserStats
	// Suppressed holds findings removed by codeguard:ignore comments.
	Suppressed []model.Finding
	// RuleErrors lists rules skipped because their pattern did not compile.
	RuleErrors []error
	// PersistErr is set when storing the analysis or updating user stats failed.
	PersistErr error
}

// PersistenceError reports a failed write to the persistence collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AIDetector is the subset of *ai.Detector the analyzer uses.
type AIDetector interface {
	DetectFile(ctx context.Context, fileName, source, language string, cfg ai.Config) []normalize.Candidate
}

type Analyzer struct {
	matcher          *matcher.Matcher
	detector         AIDetector
	aiConfigs        ai.ConfigSource
	store            store.Store
	publisher        events.Publisher
	metrics          *metrics.Metrics
	sink             progress.Sink
	logger           *zap.Logger
	defaultLanguage  string
	aggregateDefault int
	now              func() time.Time
}

type Option func(*Analyzer)

// WithAI enables AI detection for users that src has an active configuration for.
func WithAI(d AIDetector, src ai.ConfigSource) Option {
	return func(a *Analyzer) {
		a.detector = d
		a.aiConfigs = src
	}
}

func WithStore(s store.Store) Option {
	return func(a *Analyzer) { a.store = s }
}

func WithPublisher(p events.Publisher) Option {
	return func(a *Analyzer) {
		if p != nil {
			a.publisher = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

func WithSink(s progress.Sink) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.sink = s
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithDefaultLanguage(lang string) Option {
	return func(a *Analyzer) { a.defaultLanguage = model.NormalizeLanguage(lang) }
}

// WithAggregateDefault sets the score reported for users with no history.
func WithAggregateDefault(n int) Option {
	return func(a *Analyzer) { a.aggregateDefault = n }
}

func New(m *matcher.Matcher, opts ...Option) (*Analyzer, error) {
	if m == nil {
		return nil, errors.New("analysis: matcher is required")
	}
	a := &Analyzer{
		matcher:          m,
		publisher:        events.Noop{},
		sink:             progress.NoopSink{},
		logger:           zap.NewNop(),
		defaultLanguage:  "javascript",
		aggregateDefault: score.DefaultAggregateScore,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze runs one submission. The only hard error is a failing rule source; AI
// failures degrade to rule-only findings and persistence failures land in
// Outcome.PersistErr.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (Outcome, error) {
	started := a.now()
	language := a.resolveLanguage(req)
	out := Outcome{Language: language}

	a.sink.Emit(progress.Event{Type: progress.EventAnalysisStarted, FileName: req.FileName})

	if strings.TrimSpace(req.SourceText) == "" {
		out.Result = result(nil)
		a.finish(req.FileName, &out, started)
		return out, nil
	}

	aiCfg, useAI := a.aiConfig(ctx, req)
	out.AIUsed = useAI

	var ruleFindings, aiFindings []model.Finding
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t0 := a.now()
		matches, compileErrs, err := a.matcher.Match(gctx, req.SourceText, language)
		if err != nil {
			return err
		}
		out.RuleErrors = compileErrs
		ruleFindings = make([]model.Finding, 0, len(matches))
		for _, m := range matches {
			ruleFindings = append(ruleFindings, normalize.FromRule(m))
		}
		a.sink.Emit(progress.Event{
			Type:         progress.EventRulesMatched,
			FileName:     req.FileName,
			FindingCount: len(ruleFindings),
			DurationMS:   a.now().Sub(t0).Milliseconds(),
		})
		return nil
	})
	if useAI {
		g.Go(func() error {
			t0 := a.now()
			a.sink.Emit(progress.Event{Type: progress.EventAIStarted, FileName: req.FileName, Provider: aiCfg.Provider})
			candidates := a.detector.DetectFile(gctx, req.FileName, req.SourceText, language, aiCfg)
			aiFindings = make([]model.Finding, 0, len(candidates))
			for _, c := range candidates {
				aiFindings = append(aiFindings, normalize.FromAI(c))
			}
			a.sink.Emit(progress.Event{
				Type:         progress.EventAIFinished,
				FileName:     req.FileName,
				FindingCount: len(aiFindings),
				DurationMS:   a.now().Sub(t0).Milliseconds(),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Error("analysis failed", zap.String("file", req.FileName), zap.Error(err))
		return Outcome{}, fmt.Errorf("analyze %s: %w", req.FileName, err)
	}

	a.metrics.IncRuleCompileErrors(len(out.RuleErrors))
	merged := merge.Merge(ruleFindings, aiFindings)
	if req.HonorIgnores {
		merged, out.Suppressed = suppress.Apply(merged, suppress.Parse(req.SourceText))
	}
	out.Result = result(merged)

	a.persist(ctx, req, &out)
	a.publish(ctx, req, &out)
	a.finish(req.FileName, &out, started)
	return out, nil
}

// ComputeAggregateStats summarizes historical scores, oldest first.
func (a *Analyzer) ComputeAggregateStats(scores, findingCounts []int) score.AggregateStats {
	return score.ComputeAggregateStats(scores, findingCounts, a.aggregateDefault)
}

// UserSummary computes aggregate stats from a user's stored analyses.
func (a *Analyzer) UserSummary(ctx context.Context, userID string) (score.AggregateStats, error) {
	if a.store == nil {
		return a.ComputeAggregateStats(nil, nil), nil
	}
	records, err := a.store.ListAnalyses(ctx, userID)
	if err != nil {
		return score.AggregateStats{}, fmt.Errorf("list analyses for %s: %w", userID, err)
	}
	scores := make([]int, 0, len(records))
	counts := make([]int, 0, len(records))
	for _, r := range records {
		scores = append(scores, r.Score)
		counts = append(counts, r.FindingCount)
	}
	return a.ComputeAggregateStats(scores, counts), nil
}

func result(findings []model.Finding) model.AnalysisResult {
	if findings == nil {
		findings = []model.Finding{}
	}
	return model.AnalysisResult{
		Findings:      findings,
		SecurityScore: score.AnalysisScore(len(findings)),
		TotalFindings: len(findings),
	}
}

func (a *Analyzer) resolveLanguage(req Request) string {
	if lang := model.NormalizeLanguage(req.Language); lang != "" {
		return lang
	}
	if r := detect.Language(req.FileName, req.SourceText); r.Language != "" {
		return r.Language
	}
	return a.defaultLanguage
}

func (a *Analyzer) aiConfig(ctx context.Context, req Request) (ai.Config, bool) {
	if !req.UseAI || a.detector == nil || a.aiConfigs == nil {
		return ai.Config{}, false
	}
	cfg, ok, err := a.aiConfigs.ActiveConfig(ctx, req.UserID)
	if err != nil {
		a.logger.Warn("ai configuration lookup failed; continuing with rules only",
			zap.String("user_id", req.UserID), zap.Error(err))
		return ai.Config{}, false
	}
	return cfg, ok
}

func (a *Analyzer) persist(ctx context.Context, req Request, out *Outcome) {
	if a.store == nil {
		return
	}
	var errs []error
	rec := model.AnalysisRecord{
		UserID:       req.UserID,
		FileName:     req.FileName,
		SourceText:   req.SourceText,
		FindingCount: out.Result.TotalFindings,
		Score:        out.Result.SecurityScore,
		Language:     out.Language,
		AIUsed:       out.AIUsed,
		CreatedAt:    a.now().UTC(),
	}
	id, ids, err := a.store.SaveAnalysis(ctx, rec, out.Result.Findings)
	if err != nil {
		errs = append(errs, &PersistenceError{Op: "analysis", Err: err})
	} else {
		out.AnalysisID = id
		out.FindingIDs = ids
	}

	if req.UserID != "" {
		st, err := a.store.ApplyStats(ctx, req.UserID, score.UserStatsUpdate(out.Result.TotalFindings))
		if err != nil {
			errs = append(errs, &PersistenceError{Op: "user stats", Err: err})
		} else {
			out.Stats = &st
		}
	}

	if len(errs) > 0 {
		out.PersistErr = errors.Join(errs...)
		a.metrics.IncPersistErrors()
		a.logger.Warn("analysis result not fully persisted",
			zap.String("file", req.FileName), zap.Error(out.PersistErr))
		a.sink.Emit(progress.Event{
			Type:     progress.EventAnalysisWarning,
			FileName: req.FileName,
			Error:    out.PersistErr.Error(),
		})
	}
}

func (a *Analyzer) publish(ctx context.Context, req Request, out *Outcome) {
	err := a.publisher.PublishCompleted(ctx, events.Completed{
		AnalysisID:    out.AnalysisID,
		UserID:        req.UserID,
		FileName:      req.FileName,
		Language:      out.Language,
		FindingCount:  out.Result.TotalFindings,
		SecurityScore: out.Result.SecurityScore,
		AIUsed:        out.AIUsed,
		BySeverity:    out.Result.CountsBySeverity(),
		At:            a.now().UTC(),
	})
	if err != nil {
		a.metrics.IncPublishErrors()
		a.logger.Warn("completion event not published",
			zap.String("analysis_id", out.AnalysisID), zap.Error(err))
	}
}

func (a *Analyzer) finish(fileName string, out *Outcome, started time.Time) {
	elapsed := a.now().Sub(started)
	a.metrics.ObserveAnalysis(out.Result, out.AIUsed, elapsed)
	ev := progress.Event{
		Type:         progress.EventAnalysisFinished,
		FileName:     fileName,
		AnalysisID:   out.AnalysisID,
		FindingCount: out.Result.TotalFindings,
		Score:        out.Result.SecurityScore,
		DurationMS:   elapsed.Milliseconds(),
	}
	if out.PersistErr != nil {
		ev.Error = out.PersistErr.Error()
	}
	a.sink.Emit(ev)
	a.logger.Debug("analysis finished",
		zap.String("analysis_id", out.AnalysisID),
		zap.String("language", out.Language),
		zap.Int("findings", out.Result.TotalFindings),
		zap.Int("score", out.Result.SecurityScore),
		zap.Bool("ai_used", out.AIUsed))
}
