package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeguard/internal/model"
	"codeguard/internal/score"
)

func sampleFindings() []model.Finding {
	return []model.Finding{
		{ID: "xss-1-a", Type: model.TypeXSS, Severity: model.SeverityEleve, Line: 1, Description: "innerHTML", CodeSnippet: "el.innerHTML = x", Fix: "textContent", Confidence: 100, Source: model.SourceRule, RuleID: "javascript-xss-inner-html"},
		{ID: "injection-4-b", Type: model.TypeInjection, Severity: model.SeverityCritique, Line: 4, Description: "eval", Confidence: 70, Source: model.SourceAI},
	}
}

// runContract exercises behavior every Store implementation must share.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()
	user := "user-" + time.Now().Format("150405.000000000")

	t.Run("save and get", func(t *testing.T) {
		rec := model.AnalysisRecord{UserID: user, FileName: "app.js", SourceText: "el.innerHTML = x\n\n\neval(y)", Score: 80, Language: "javascript", AIUsed: true}
		id, findingIDs, err := s.SaveAnalysis(ctx, rec, sampleFindings())
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.Equal(t, []string{"xss-1-a", "injection-4-b"}, findingIDs)

		got, err := s.GetAnalysis(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.Record.ID)
		assert.Equal(t, rec.SourceText, got.Record.SourceText)
		assert.Equal(t, 2, got.Record.FindingCount)
		assert.Equal(t, 80, got.Record.Score)
		assert.True(t, got.Record.AIUsed)
		require.Len(t, got.Findings, 2)
		assert.Equal(t, sampleFindings()[0], got.Findings[0])
		assert.Equal(t, sampleFindings()[1], got.Findings[1])
	})

	t.Run("empty findings and source", func(t *testing.T) {
		id, ids, err := s.SaveAnalysis(ctx, model.AnalysisRecord{UserID: user + "-empty", FileName: "empty.js", Score: 100, Language: "javascript"}, nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
		got, err := s.GetAnalysis(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got.Findings)
		assert.Equal(t, "", got.Record.SourceText)
	})

	t.Run("missing analysis", func(t *testing.T) {
		_, err := s.GetAnalysis(ctx, "does-not-exist")
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})

	t.Run("list is oldest first and per user", func(t *testing.T) {
		owner := user + "-list"
		base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		for i, sc := range []int{70, 90, 50} {
			_, _, err := s.SaveAnalysis(ctx, model.AnalysisRecord{
				UserID: owner, FileName: "f.js", SourceText: "x", Score: sc, Language: "javascript",
				CreatedAt: base.Add(time.Duration(2-i) * time.Hour),
			}, nil)
			require.NoError(t, err)
		}
		_, _, err := s.SaveAnalysis(ctx, model.AnalysisRecord{UserID: owner + "x", FileName: "other.js", Score: 10, Language: "javascript"}, nil)
		require.NoError(t, err)

		list, err := s.ListAnalyses(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []int{50, 90, 70}, []int{list[0].Score, list[1].Score, list[2].Score})

		none, err := s.ListAnalyses(ctx, owner+"-nobody")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("stats accumulate points and replace score", func(t *testing.T) {
		owner := user + "-stats"
		_, err := s.UserStats(ctx, owner)
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

		st, err := s.ApplyStats(ctx, owner, score.UserStatsUpdate(2))
		require.NoError(t, err)
		assert.Equal(t, 20, st.Points)
		assert.Equal(t, 94, st.SecurityScore)
		assert.Equal(t, 1, st.Analyses)

		st, err = s.ApplyStats(ctx, owner, score.UserStatsUpdate(0))
		require.NoError(t, err)
		assert.Equal(t, 30, st.Points)
		assert.Equal(t, 100, st.SecurityScore)
		assert.Equal(t, 2, st.Analyses)

		got, err := s.UserStats(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, st.Points, got.Points)
		assert.Equal(t, owner, got.UserID)
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	runContract(t, s)
}

func TestMemoryStore_RejectsDuplicateID(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_, _, err := s.SaveAnalysis(ctx, model.AnalysisRecord{ID: "fixed", FileName: "a.js"}, nil)
	require.NoError(t, err)
	_, _, err = s.SaveAnalysis(ctx, model.AnalysisRecord{ID: "fixed", FileName: "a.js"}, nil)
	assert.Error(t, err)
}

func TestPebbleStore(t *testing.T) {
	s, err := OpenPebble(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestPebbleStore_ReopenKeepsData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := OpenPebble(dir)
	require.NoError(t, err)
	id, _, err := s.SaveAnalysis(context.Background(), model.AnalysisRecord{FileName: "a.js", SourceText: "eval(x)"}, sampleFindings())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenPebble(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "eval(x)", got.Record.SourceText)
	assert.Len(t, got.Findings, 2)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CODEGUARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CODEGUARD_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open(ctx, Options{Driver: "pebble"})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Driver: "postgres"})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Driver: "mongo"})
	assert.Error(t, err)

	p, err := Open(ctx, Options{Driver: "pebble", Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
