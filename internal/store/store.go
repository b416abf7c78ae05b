// Package store is the persistence collaborator: analysis records, their findings and
// per-user point/score statistics.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeguard/internal/model"
	"codeguard/internal/score"
)

var ErrNotFound = errors.New("not found")

const (
	DriverMemory   = "memory"
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
)

// Analysis is one stored analysis with its findings in report order.
type Analysis struct {
	Record   model.AnalysisRecord `json:"record"`
	Findings []model.Finding      `json:"findings"`
}

type Store interface {
	// SaveAnalysis persists rec and its findings and returns the generated ids.
	SaveAnalysis(ctx context.Context, rec model.AnalysisRecord, findings []model.Finding) (analysisID string, findingIDs []string, err error)
	GetAnalysis(ctx context.Context, id string) (Analysis, error)
	// ListAnalyses returns a user's analyses, oldest first.
	ListAnalyses(ctx context.Context, userID string) ([]model.AnalysisRecord, error)
	// ApplyStats adds the points of one analysis and replaces the profile score.
	ApplyStats(ctx context.Context, userID string, upd score.StatsUpdate) (model.UserStats, error)
	UserStats(ctx context.Context, userID string) (model.UserStats, error)
	Close() error
}

type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open returns the store selected by opts.Driver. An empty driver means memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPebble:
		if strings.TrimSpace(opts.Path) == "" {
			return nil, fmt.Errorf("store path is required for driver %q", DriverPebble)
		}
		return OpenPebble(opts.Path)
	case DriverPostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, fmt.Errorf("store dsn is required for driver %q", DriverPostgres)
		}
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q (supported: %s, %s, %s)", opts.Driver, DriverMemory, DriverPebble, DriverPostgres)
	}
}

// prepare assigns ids and timestamps the caller left empty and copies findings.
func prepare(rec model.AnalysisRecord, findings []model.Finding) (model.AnalysisRecord, []model.Finding, []string) {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.FindingCount = len(findings)
	out := make([]model.Finding, len(findings))
	ids := make([]string, len(findings))
	for i, f := range findings {
		if strings.TrimSpace(f.ID) == "" {
			f.ID = uuid.NewString()
		}
		out[i] = f
		ids[i] = f.ID
	}
	return rec, out, ids
}

func applyUpdate(cur model.UserStats, userID string, upd score.StatsUpdate, now time.Time) model.UserStats {
	cur.UserID = userID
	cur.Points += upd.PointsGained
	cur.SecurityScore = upd.SecurityScore
	cur.Analyses++
	cur.UpdatedAt = now
	return cur
}
