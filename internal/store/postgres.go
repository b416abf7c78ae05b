package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"codeguard/internal/model"
	"codeguard/internal/score"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	file_name     TEXT NOT NULL,
	source_text   TEXT NOT NULL,
	finding_count INTEGER NOT NULL,
	score         INTEGER NOT NULL,
	language      TEXT NOT NULL,
	ai_used       BOOLEAN NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analyses_user_created ON analyses (user_id, created_at);

CREATE TABLE IF NOT EXISTS findings (
	id           TEXT PRIMARY KEY,
	analysis_id  TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	type         TEXT NOT NULL,
	severity     TEXT NOT NULL,
	line         INTEGER NOT NULL,
	description  TEXT NOT NULL,
	code_snippet TEXT NOT NULL,
	fix          TEXT NOT NULL,
	confidence   INTEGER NOT NULL,
	source       TEXT NOT NULL,
	rule_id      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user_stats (
	user_id        TEXT PRIMARY KEY,
	points         INTEGER NOT NULL,
	security_score INTEGER NOT NULL,
	analyses       INTEGER NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
`

// Postgres stores analyses in three tables created on open.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord, findings []model.Finding) (string, []string, error) {
	rec, stored, ids := prepare(rec, findings)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (id, user_id, file_name, source_text, finding_count, score, language, ai_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.FileName, rec.SourceText, rec.FindingCount, rec.Score, rec.Language, rec.AIUsed, rec.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("failed to insert analysis: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (id, analysis_id, position, type, severity, line, description, code_snippet, fix, confidence, source, rule_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return "", nil, fmt.Errorf("failed to prepare finding insert: %w", err)
	}
	defer stmt.Close()
	for i, f := range stored {
		if _, err := stmt.ExecContext(ctx, f.ID, rec.ID, i, string(f.Type), string(f.Severity), f.Line,
			f.Description, f.CodeSnippet, f.Fix, f.Confidence, string(f.Source), f.RuleID); err != nil {
			return "", nil, fmt.Errorf("failed to insert finding %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("failed to commit analysis: %w", err)
	}
	return rec.ID, ids, nil
}

func (s *Postgres) GetAnalysis(ctx context.Context, id string) (Analysis, error) {
	var rec model.AnalysisRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, file_name, source_text, finding_count, score, language, ai_used, created_at
		FROM analyses WHERE id = $1`, id).Scan(
		&rec.ID, &rec.UserID, &rec.FileName, &rec.SourceText, &rec.FindingCount, &rec.Score, &rec.Language, &rec.AIUsed, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to query analysis: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, severity, line, description, code_snippet, fix, confidence, source, rule_id
		FROM findings WHERE analysis_id = $1 ORDER BY position`, id)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	findings := []model.Finding{}
	for rows.Next() {
		var f model.Finding
		var typ, severity, source string
		if err := rows.Scan(&f.ID, &typ, &severity, &f.Line, &f.Description, &f.CodeSnippet, &f.Fix, &f.Confidence, &source, &f.RuleID); err != nil {
			return Analysis{}, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Type = model.Type(typ)
		f.Severity = model.Severity(severity)
		f.Source = model.Source(source)
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return Analysis{}, fmt.Errorf("error iterating rows: %w", err)
	}
	return Analysis{Record: rec, Findings: findings}, nil
}

func (s *Postgres) ListAnalyses(ctx context.Context, userID string) ([]model.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, file_name, source_text, finding_count, score, language, ai_used, created_at
		FROM analyses WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	out := []model.AnalysisRecord{}
	for rows.Next() {
		var rec model.AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.FileName, &rec.SourceText, &rec.FindingCount, &rec.Score, &rec.Language, &rec.AIUsed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *Postgres) ApplyStats(ctx context.Context, userID string, upd score.StatsUpdate) (model.UserStats, error) {
	var st model.UserStats
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_stats (user_id, points, security_score, analyses, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			points = user_stats.points + EXCLUDED.points,
			security_score = EXCLUDED.security_score,
			analyses = user_stats.analyses + 1,
			updated_at = NOW()
		RETURNING user_id, points, security_score, analyses, updated_at`,
		userID, upd.PointsGained, upd.SecurityScore).Scan(&st.UserID, &st.Points, &st.SecurityScore, &st.Analyses, &st.UpdatedAt)
	if err != nil {
		return model.UserStats{}, fmt.Errorf("failed to update user stats: %w", err)
	}
	return st, nil
}

func (s *Postgres) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	var st model.UserStats
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, points, security_score, analyses, updated_at
		FROM user_stats WHERE user_id = $1`, userID).Scan(&st.UserID, &st.Points, &st.SecurityScore, &st.Analyses, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserStats{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return model.UserStats{}, fmt.Errorf("failed to query user stats: %w", err)
	}
	return st, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
