package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"codeguard/internal/model"
	"codeguard/internal/score"
)

// Memory keeps everything in process. It is the default for the CLI and tests.
type Memory struct {
	mu       sync.RWMutex
	analyses map[string]Analysis
	order    []string
	stats    map[string]model.UserStats
}

func NewMemory() *Memory {
	return &Memory{
		analyses: map[string]Analysis{},
		stats:    map[string]model.UserStats{},
	}
}

func (m *Memory) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord, findings []model.Finding) (string, []string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	rec, stored, ids := prepare(rec, findings)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.analyses[rec.ID]; exists {
		return "", nil, fmt.Errorf("analysis %s already exists", rec.ID)
	}
	m.analyses[rec.ID] = Analysis{Record: rec, Findings: stored}
	m.order = append(m.order, rec.ID)
	return rec.ID, ids, nil
}

func (m *Memory) GetAnalysis(_ context.Context, id string) (Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.analyses[id]
	if !ok {
		return Analysis{}, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	a.Findings = append([]model.Finding(nil), a.Findings...)
	return a, nil
}

func (m *Memory) ListAnalyses(_ context.Context, userID string) ([]model.AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.AnalysisRecord{}
	for _, id := range m.order {
		if rec := m.analyses[id].Record; rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ApplyStats(ctx context.Context, userID string, upd score.StatsUpdate) (model.UserStats, error) {
	if err := ctx.Err(); err != nil {
		return model.UserStats{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := applyUpdate(m.stats[userID], userID, upd, time.Now().UTC())
	m.stats[userID] = next
	return next, nil
}

func (m *Memory) UserStats(_ context.Context, userID string) (model.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[userID]
	if !ok {
		return model.UserStats{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return s, nil
}

func (m *Memory) Close() error { return nil }
