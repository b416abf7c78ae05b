// Package api exposes the analyzer over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"codeguard/internal/analysis"
	"codeguard/internal/metrics"
	"codeguard/internal/model"
	"codeguard/internal/redact"
	"codeguard/internal/report"
	"codeguard/internal/rules"
	"codeguard/internal/score"
	"codeguard/internal/store"
	"codeguard/internal/version"
)

// MaxSourceBytes caps the request body of POST /v1/analyses.
const MaxSourceBytes = 2 << 20

// RuleLister is satisfied by *rules.Store.
type RuleLister interface {
	All() []rules.Rule
	SetActive(id string, active bool) error
}

type Server struct {
	r        *chi.Mux
	analyzer *analysis.Analyzer
	store    store.Store
	rules    RuleLister
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type Option func(*Server)

func WithStore(s store.Store) Option { return func(srv *Server) { srv.store = s } }

func WithRules(l RuleLister) Option { return func(srv *Server) { srv.rules = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(srv *Server) { srv.metrics = m } }

func WithLogger(l *zap.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

func NewServer(a *analysis.Analyzer, opts ...Option) *Server {
	s := &Server{r: chi.NewRouter(), analyzer: a, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(s.requestLogger)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", s.getHealth)
	if s.metrics != nil {
		s.r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.r.Route("/v1", func(r chi.Router) {
		r.Post("/analyses", s.postAnalysis)
		r.Get("/analyses/{id}", s.getAnalysis)
		r.Get("/analyses/{id}/export", s.getExport)
		r.Get("/users/{id}/stats", s.getUserStats)
		r.Post("/stats/aggregate", s.postAggregate)
		r.Get("/rules", s.getRules)
		r.Patch("/rules/{id}", s.patchRule)
	})
}

func (s *Server) Handler() http.Handler { return s.r }

type analysisRequest struct {
	SourceText string `json:"sourceText"`
	FileName   string `json:"fileName"`
	Language   string `json:"language"`
	UseAI      bool   `json:"useAI"`
	UserID     string `json:"userId"`

	// HonorIgnores applies codeguard:ignore comments in sourceText.
	HonorIgnores bool `json:"honorIgnores"`
}

type analysisResponse struct {
	model.AnalysisResult
	AnalysisID       string           `json:"analysisId,omitempty"`
	FindingIDs       []string         `json:"findingIds,omitempty"`
	Language         string           `json:"language"`
	AIUsed           bool             `json:"aiUsed"`
	Stats            *model.UserStats `json:"stats,omitempty"`
	PersistenceError string           `json:"persistenceError,omitempty"`
	SkippedRules     []string         `json:"skippedRules,omitempty"`
	Suppressed       int              `json:"suppressed,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) postAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxSourceBytes)
	var body analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := s.analyzer.Analyze(r.Context(), analysis.Request{
		SourceText:   body.SourceText,
		FileName:     body.FileName,
		Language:     body.Language,
		UseAI:        body.UseAI,
		UserID:       body.UserID,
		HonorIgnores: body.HonorIgnores,
	})
	if err != nil {
		s.logger.Error("analysis could not be produced", zap.String("file", body.FileName), zap.Error(err))
		s.writeError(w, r, http.StatusServiceUnavailable, "analysis could not be produced")
		return
	}

	resp := analysisResponse{
		AnalysisResult: out.Result,
		AnalysisID:     out.AnalysisID,
		FindingIDs:     out.FindingIDs,
		Language:       out.Language,
		AIUsed:         out.AIUsed,
		Stats:          out.Stats,
		Suppressed:     len(out.Suppressed),
	}
	if out.PersistErr != nil {
		resp.PersistenceError = redact.Text(out.PersistErr.Error())
	}
	for _, e := range out.RuleErrors {
		resp.SkippedRules = append(resp.SkippedRules, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// getExport serves the export document. ?format=sarif and ?format=markdown select
// the alternative renderings.
func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	a, ok := s.loadAnalysis(w, r)
	if !ok {
		return
	}
	base := exportBaseName(a.Record)
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		b, err := report.MarshalExport(report.BuildExport(a.Record.FileName, a.Record.CreatedAt, a.Findings))
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "export failed")
			return
		}
		writeAttachment(w, "application/json", base+".json", b)
	case "sarif":
		b, err := report.MarshalSARIF(a.Record.FileName, version.Version, a.Findings)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "export failed")
			return
		}
		writeAttachment(w, "application/sarif+json", base+".sarif", b)
	case "markdown", "md":
		writeAttachment(w, "text/markdown; charset=utf-8", base+".md", []byte(report.RenderMarkdown(a.Record, a.Findings)))
	default:
		s.writeError(w, r, http.StatusBadRequest, "unsupported export format")
	}
}

type userStatsResponse struct {
	Stats   model.UserStats      `json:"stats"`
	Summary score.AggregateStats `json:"summary"`
}

func (s *Server) getUserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	resp := userStatsResponse{Stats: model.UserStats{UserID: userID}}
	if s.store != nil {
		st, err := s.store.UserStats(r.Context(), userID)
		switch {
		case err == nil:
			resp.Stats = st
		case errors.Is(err, store.ErrNotFound):
		default:
			s.logger.Error("load user stats", zap.String("user_id", userID), zap.Error(err))
			s.writeError(w, r, http.StatusInternalServerError, "stats unavailable")
			return
		}
	}
	summary, err := s.analyzer.UserSummary(r.Context(), userID)
	if err != nil {
		s.logger.Error("summarize user history", zap.String("user_id", userID), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "stats unavailable")
		return
	}
	resp.Summary = summary
	writeJSON(w, http.StatusOK, resp)
}

type aggregateRequest struct {
	Scores        []int `json:"historicalScores"`
	FindingCounts []int `json:"historicalFindingCounts"`
}

func (s *Server) postAggregate(w http.ResponseWriter, r *http.Request) {
	var body aggregateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.ComputeAggregateStats(body.Scores, body.FindingCounts))
}

func (s *Server) getRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeJSON(w, http.StatusOK, []rules.Rule{})
		return
	}
	lang := model.NormalizeLanguage(r.URL.Query().Get("language"))
	activeOnly := r.URL.Query().Get("active") == "true"
	out := make([]rules.Rule, 0)
	for _, rule := range s.rules.All() {
		if lang != "" && rule.Language != lang {
			continue
		}
		if activeOnly && !rule.IsActive {
			continue
		}
		out = append(out, rule)
	}
	writeJSON(w, http.StatusOK, out)
}

type rulePatch struct {
	IsActive *bool `json:"isActive"`
}

// patchRule toggles a rule on or off for subsequent analyses.
func (s *Server) patchRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		s.writeError(w, r, http.StatusNotFound, "rule not found")
		return
	}
	var body rulePatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil || body.IsActive == nil {
		s.writeError(w, r, http.StatusBadRequest, "body must be {\"isActive\": bool}")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.rules.SetActive(id, *body.IsActive); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			s.writeError(w, r, http.StatusNotFound, "rule not found")
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, "update failed")
		return
	}
	s.logger.Info("rule toggled", zap.String("rule_id", id), zap.Bool("active", *body.IsActive))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Get()})
}

func (s *Server) loadAnalysis(w http.ResponseWriter, r *http.Request) (store.Analysis, bool) {
	if s.store == nil {
		s.writeError(w, r, http.StatusNotFound, "analysis storage is disabled")
		return store.Analysis{}, false
	}
	id := chi.URLParam(r, "id")
	a, err := s.store.GetAnalysis(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "analysis not found")
		return store.Analysis{}, false
	}
	if err != nil {
		s.logger.Error("load analysis", zap.String("analysis_id", id), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "analysis unavailable")
		return store.Analysis{}, false
	}
	return a, true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, RequestID: middleware.GetReqID(r.Context())})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func exportBaseName(rec model.AnalysisRecord) string {
	name := strings.TrimSpace(rec.FileName)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "analysis"
	}
	return "codeguard-" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
