package analysis

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"codeguard/internal/ai"
	"codeguard/internal/events"
	"codeguard/internal/matcher"
	"codeguard/internal/model"
	"codeguard/internal/normalize"
	"codeguard/internal/progress"
	"codeguard/internal/rules"
	"codeguard/internal/store"
)

func rule(id, pattern string, category rules.Category, severity rules.Severity) rules.Rule {
	return rules.Rule{ID: id, Language: "javascript", Pattern: pattern, Category: category, Severity: severity, IsActive: true}
}

func newAnalyzer(t *testing.T, rs []rules.Rule, opts ...Option) *Analyzer {
	t.Helper()
	m, err := matcher.New(rules.NewStore(rs...), 0)
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	a, err := New(m, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

type stubDetector struct {
	mu         sync.Mutex
	calls      int
	candidates []normalize.Candidate
}

func (d *stubDetector) DetectFile(_ context.Context, _, _, _ string, _ ai.Config) []normalize.Candidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.candidates
}

var enabledAI = ai.StaticConfigSource{Enabled: true, Config: ai.Config{Provider: ai.ProviderOpenAI}}

func TestAnalyze_SingleXSSRule(t *testing.T) {
	a := newAnalyzer(t, []rules.Rule{rule("xss-inner", `innerHTML\s*=.*`, rules.CategoryXSS, rules.SeverityHigh)})
	out, err := a.Analyze(context.Background(), Request{
		SourceText: "document.getElementById('output').innerHTML = userInput;",
		FileName:   "app.js",
		Language:   "javascript",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Result.TotalFindings != 1 || len(out.Result.Findings) != 1 {
		t.Fatalf("expected one finding, got %+v", out.Result)
	}
	f := out.Result.Findings[0]
	if f.Type != model.TypeXSS || f.Line != 1 || f.Severity != model.SeverityEleve || f.Source != model.SourceRule {
		t.Fatalf("unexpected finding %+v", f)
	}
	if out.Result.SecurityScore != 90 {
		t.Fatalf("expected score 90, got %d", out.Result.SecurityScore)
	}
	if out.AIUsed {
		t.Fatal("AI should not run when not requested")
	}
}

func TestAnalyze_InjectionAndXSSOnSeparateLines(t *testing.T) {
	a := newAnalyzer(t, []rules.Rule{
		rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical),
		rule("xss-inner", `innerHTML\s*=.*`, rules.CategoryXSS, rules.SeverityHigh),
	})
	out, err := a.Analyze(context.Background(), Request{
		SourceText: "eval(x);\ndocument.getElementById('o').innerHTML=y;",
		Language:   "javascript",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(out.Result.Findings) != 2 {
		t.Fatalf("expected two findings, got %+v", out.Result.Findings)
	}
	if out.Result.Findings[0].Line != 1 || out.Result.Findings[0].Type != model.TypeInjection {
		t.Fatalf("unexpected first finding %+v", out.Result.Findings[0])
	}
	if out.Result.Findings[1].Line != 2 || out.Result.Findings[1].Type != model.TypeXSS {
		t.Fatalf("unexpected second finding %+v", out.Result.Findings[1])
	}
	if out.Result.SecurityScore != 80 {
		t.Fatalf("expected score 80, got %d", out.Result.SecurityScore)
	}
}

func TestAnalyze_HonorIgnores(t *testing.T) {
	a := newAnalyzer(t, []rules.Rule{
		rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical),
		rule("xss-inner", `innerHTML\s*=.*`, rules.CategoryXSS, rules.SeverityHigh),
	})
	src := "eval(x); // codeguard:ignore injection -- fixture\ndocument.body.innerHTML=y;"

	out, err := a.Analyze(context.Background(), Request{SourceText: src, Language: "javascript"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Result.TotalFindings != 2 || len(out.Suppressed) != 0 {
		t.Fatalf("annotations must not apply unless requested, got %+v", out)
	}

	out, err = a.Analyze(context.Background(), Request{SourceText: src, Language: "javascript", HonorIgnores: true})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Result.TotalFindings != 1 || out.Result.Findings[0].Type != model.TypeXSS {
		t.Fatalf("expected only the xss finding, got %+v", out.Result.Findings)
	}
	if len(out.Suppressed) != 1 || out.Suppressed[0].Type != model.TypeInjection {
		t.Fatalf("expected the injection finding suppressed, got %+v", out.Suppressed)
	}
	if out.Result.SecurityScore != 90 {
		t.Fatalf("expected score 90, got %d", out.Result.SecurityScore)
	}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	s := store.NewMemory()
	a := newAnalyzer(t, []rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)}, WithStore(s))
	for _, src := range []string{"", "  \n\t"} {
		out, err := a.Analyze(context.Background(), Request{SourceText: src, UserID: "u1"})
		if err != nil {
			t.Fatalf("Analyze(%q): %v", src, err)
		}
		if out.Result.Findings == nil || len(out.Result.Findings) != 0 || out.Result.SecurityScore != 100 {
			t.Fatalf("unexpected result for %q: %+v", src, out.Result)
		}
	}
	if list, _ := s.ListAnalyses(context.Background(), "u1"); len(list) != 0 {
		t.Fatalf("empty submissions should not be stored, got %d", len(list))
	}
}

func TestAnalyze_SameLineSameTypeCollapses(t *testing.T) {
	a := newAnalyzer(t, []rules.Rule{
		rule("xss-first", `innerHTML`, rules.CategoryXSS, rules.SeverityMedium),
		rule("xss-second", `userInput`, rules.CategoryXSS, rules.SeverityHigh),
	})
	src := "const a = 1;\nconst b = 2;\nel.innerHTML = userInput;\n"
	out, err := a.Analyze(context.Background(), Request{SourceText: src, Language: "javascript"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(out.Result.Findings) != 1 {
		t.Fatalf("expected one collapsed finding, got %+v", out.Result.Findings)
	}
	if got := out.Result.Findings[0]; got.RuleID != "xss-first" || got.Line != 3 {
		t.Fatalf("expected first rule to win at line 3, got %+v", got)
	}
}

func TestAnalyze_RuleFindingWinsOverAI(t *testing.T) {
	det := &stubDetector{candidates: []normalize.Candidate{
		{Type: "Cross-site scripting", Severity: "low", Line: 1, Description: "ai says xss"},
		{Type: "Hardcoded secret", Severity: "high", Line: 4, Description: "ai says secret"},
	}}
	a := newAnalyzer(t,
		[]rules.Rule{rule("xss-inner", `innerHTML`, rules.CategoryXSS, rules.SeverityHigh)},
		WithAI(det, enabledAI))
	out, err := a.Analyze(context.Background(), Request{SourceText: "el.innerHTML = x;", UseAI: true, UserID: "u1"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !out.AIUsed || det.calls != 1 {
		t.Fatalf("expected one AI call, AIUsed=%v calls=%d", out.AIUsed, det.calls)
	}
	if len(out.Result.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %+v", out.Result.Findings)
	}
	first, second := out.Result.Findings[0], out.Result.Findings[1]
	if first.Source != model.SourceRule || first.Severity != model.SeverityEleve {
		t.Fatalf("rule finding should win at (xss,1): %+v", first)
	}
	if second.Source != model.SourceAI || second.Type != model.TypeSecrets || second.Line != 4 || second.Confidence != normalize.DefaultAIConfidence {
		t.Fatalf("unexpected AI finding %+v", second)
	}
	if out.Result.SecurityScore != 80 {
		t.Fatalf("expected score 80, got %d", out.Result.SecurityScore)
	}
}

func TestAnalyze_AISkippedWithoutActiveConfig(t *testing.T) {
	det := &stubDetector{}
	a := newAnalyzer(t, nil, WithAI(det, ai.StaticConfigSource{}))
	out, err := a.Analyze(context.Background(), Request{SourceText: "x", UseAI: true})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.AIUsed || det.calls != 0 {
		t.Fatalf("AI should be skipped, AIUsed=%v calls=%d", out.AIUsed, det.calls)
	}
}

func TestAnalyze_AIProviderFailureFallsBackToRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	for _, mode := range []string{ai.FallbackNone, ai.FallbackDemo} {
		t.Run(mode, func(t *testing.T) {
			det, err := ai.NewDetector(ai.WithFallback(mode))
			if err != nil {
				t.Fatal(err)
			}
			src := ai.StaticConfigSource{Enabled: true, Config: ai.Config{Provider: ai.ProviderOpenAI, APIKey: "k", Model: "m", BaseURL: srv.URL}}
			a := newAnalyzer(t,
				[]rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)},
				WithAI(det, src))
			out, err := a.Analyze(context.Background(), Request{SourceText: "eval(x);", UseAI: true})
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if out.Result.Findings[0].Source != model.SourceRule || out.Result.Findings[0].Type != model.TypeInjection {
				t.Fatalf("rule finding missing: %+v", out.Result.Findings)
			}
			want := 1
			if mode == ai.FallbackDemo {
				// demo adds xss@1 and secrets@3; injection@2 does not collide with the rule at line 1.
				want = 4
			}
			if len(out.Result.Findings) != want {
				t.Fatalf("expected %d findings, got %+v", want, out.Result.Findings)
			}
		})
	}
}

func TestAnalyze_RuleSourceFailureIsHardError(t *testing.T) {
	m, err := matcher.New(failingSource{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(m)
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Analyze(context.Background(), Request{SourceText: "eval(x)"})
	if !errors.Is(err, rules.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type failingSource struct{}

func (failingSource) ActiveRules(context.Context, string) ([]rules.Rule, error) {
	return nil, rules.ErrUnavailable
}

func TestAnalyze_InvalidRuleSkipped(t *testing.T) {
	a := newAnalyzer(t, []rules.Rule{
		rule("broken", `(unclosed`, rules.CategoryXSS, rules.SeverityHigh),
		rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical),
	})
	out, err := a.Analyze(context.Background(), Request{SourceText: "eval(x)", Language: "javascript"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(out.Result.Findings) != 1 || len(out.RuleErrors) != 1 {
		t.Fatalf("expected 1 finding and 1 rule error, got %d / %v", len(out.Result.Findings), out.RuleErrors)
	}
	var cerr *matcher.CompileError
	if !errors.As(out.RuleErrors[0], &cerr) || cerr.RuleID != "broken" {
		t.Fatalf("unexpected rule error %v", out.RuleErrors[0])
	}
}

func TestAnalyze_PersistsAndUpdatesStats(t *testing.T) {
	s := store.NewMemory()
	a := newAnalyzer(t, []rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)}, WithStore(s))
	out, err := a.Analyze(context.Background(), Request{SourceText: "eval(a)\neval(b)", FileName: "x.js", UserID: "u1"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.PersistErr != nil || out.AnalysisID == "" || len(out.FindingIDs) != 2 {
		t.Fatalf("unexpected persistence outcome %+v", out)
	}
	if out.Stats == nil || out.Stats.Points != 20 || out.Stats.SecurityScore != 94 {
		t.Fatalf("unexpected stats %+v", out.Stats)
	}
	stored, err := s.GetAnalysis(context.Background(), out.AnalysisID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Record.Score != 80 || stored.Record.Language != "javascript" || stored.Record.FindingCount != 2 {
		t.Fatalf("unexpected stored record %+v", stored.Record)
	}
}

type brokenStore struct{ *store.Memory }

func (brokenStore) SaveAnalysis(context.Context, model.AnalysisRecord, []model.Finding) (string, []string, error) {
	return "", nil, errors.New("disk full")
}

func TestAnalyze_PersistenceFailureKeepsResult(t *testing.T) {
	a := newAnalyzer(t,
		[]rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)},
		WithStore(brokenStore{store.NewMemory()}))
	out, err := a.Analyze(context.Background(), Request{SourceText: "eval(a)", UserID: "u1"})
	if err != nil {
		t.Fatalf("persistence failure must not be a hard error: %v", err)
	}
	if out.Result.TotalFindings != 1 || out.Result.SecurityScore != 90 {
		t.Fatalf("result lost: %+v", out.Result)
	}
	var perr *PersistenceError
	if !errors.As(out.PersistErr, &perr) || perr.Op != "analysis" {
		t.Fatalf("expected PersistenceError, got %v", out.PersistErr)
	}
	if out.Stats == nil {
		t.Fatal("stats update should still be attempted")
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Completed
	err    error
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, e events.Completed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestAnalyze_PublishesCompletion(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	a := newAnalyzer(t, []rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)},
		WithStore(store.NewMemory()), WithPublisher(pub))
	out, err := a.Analyze(context.Background(), Request{SourceText: "eval(a)", FileName: "a.js"})
	if err != nil {
		t.Fatalf("publish failure must not fail the analysis: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.AnalysisID != out.AnalysisID || ev.SecurityScore != 90 || ev.BySeverity[model.SeverityCritique] != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAnalyze_EmitsProgress(t *testing.T) {
	ch := make(chan progress.Event, 16)
	a := newAnalyzer(t, []rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)},
		WithSink(progress.NewChannelSink(ch)))
	if _, err := a.Analyze(context.Background(), Request{FileName: "app.js", SourceText: "eval(a)"}); err != nil {
		t.Fatal(err)
	}
	close(ch)
	var types []progress.EventType
	for ev := range ch {
		if ev.FileName != "app.js" {
			t.Fatalf("event %s missing file name: %+v", ev.Type, ev)
		}
		types = append(types, ev.Type)
	}
	if len(types) != 3 || types[0] != progress.EventAnalysisStarted || types[2] != progress.EventAnalysisFinished {
		t.Fatalf("unexpected event sequence %v", types)
	}
}

func TestAnalyze_LanguageResolution(t *testing.T) {
	ts := rules.Rule{ID: "ts-eval", Language: "typescript", Pattern: `eval\(`, Category: rules.CategoryInjection, Severity: rules.SeverityHigh, IsActive: true}
	a := newAnalyzer(t, []rules.Rule{ts})

	out, err := a.Analyze(context.Background(), Request{SourceText: "eval(a)", FileName: "mod.ts"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Language != "typescript" || out.Result.TotalFindings != 1 {
		t.Fatalf("expected typescript rules from extension, got %s / %d", out.Language, out.Result.TotalFindings)
	}

	out, err = a.Analyze(context.Background(), Request{SourceText: "eval(a)", FileName: "mod.ts", Language: "JavaScript"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Language != "javascript" || out.Result.TotalFindings != 0 {
		t.Fatalf("explicit language should win, got %s / %d", out.Language, out.Result.TotalFindings)
	}
}

func TestComputeAggregateStats(t *testing.T) {
	a := newAnalyzer(t, nil)
	got := a.ComputeAggregateStats(nil, nil)
	if got.AverageScore != 85 || got.TotalAnalyses != 0 {
		t.Fatalf("unexpected empty stats %+v", got)
	}

	a = newAnalyzer(t, nil, WithAggregateDefault(70))
	if got := a.ComputeAggregateStats(nil, nil); got.AverageScore != 70 {
		t.Fatalf("configured default ignored: %+v", got)
	}
}

func TestUserSummary(t *testing.T) {
	s := store.NewMemory()
	a := newAnalyzer(t, []rules.Rule{rule("inj-eval", `eval\(`, rules.CategoryInjection, rules.SeverityCritical)}, WithStore(s))
	for _, src := range []string{"eval(1)\neval(2)", "clean()"} {
		if _, err := a.Analyze(context.Background(), Request{SourceText: src, UserID: "u9"}); err != nil {
			t.Fatal(err)
		}
	}
	sum, err := a.UserSummary(context.Background(), "u9")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalAnalyses != 2 || sum.TotalFindings != 2 || sum.AverageScore != 90 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
