package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/klauspost/compress/zstd"

	"codeguard/internal/model"
	"codeguard/internal/safefile"
	"codeguard/internal/score"
)

// Key prefixes simulate logical buckets in Pebble's flat key space.
var (
	prefixAnalysis  = []byte("ana:")  // ana:ID -> pebbleAnalysis JSON
	prefixUserIndex = []byte("uidx:") // uidx:UserID\x00CreatedAtNanos:ID -> ID
	prefixStats     = []byte("stat:") // stat:UserID -> UserStats JSON
	keySchema       = []byte("meta:schema")
)

const CurrentSchemaVersion = 1

// pebbleAnalysis stores the source text zstd-compressed next to the record.
type pebbleAnalysis struct {
	Record   model.AnalysisRecord `json:"record"`
	Source   []byte               `json:"source"`
	Findings []model.Finding      `json:"findings"`
}

type Pebble struct {
	db  *pebble.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	// statsMu serializes read-modify-write of user stats.
	statsMu sync.Mutex
}

func OpenPebble(path string) (*Pebble, error) {
	dir, err := safefile.EnsureDir(path, 0o700)
	if err != nil {
		return nil, fmt.Errorf("prepare pebble dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{Cache: pebble.NewCache(8 << 20)})
	if err != nil {
		return nil, fmt.Errorf("open pebble store %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	s := &Pebble{db: db, enc: enc, dec: dec}
	if err := s.checkSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Pebble) checkSchema() error {
	val, closer, err := s.db.Get(keySchema)
	if errors.Is(err, pebble.ErrNotFound) {
		return s.db.Set(keySchema, []byte(strconv.Itoa(CurrentSchemaVersion)), pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	defer closer.Close()
	v, err := strconv.Atoi(string(val))
	if err != nil {
		return fmt.Errorf("corrupt schema version %q: %w", val, err)
	}
	if v != CurrentSchemaVersion {
		return fmt.Errorf("unsupported store schema version %d (want %d)", v, CurrentSchemaVersion)
	}
	return nil
}

func (s *Pebble) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord, findings []model.Finding) (string, []string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	rec, stored, ids := prepare(rec, findings)
	key := analysisKey(rec.ID)
	if _, closer, err := s.db.Get(key); err == nil {
		closer.Close()
		return "", nil, fmt.Errorf("analysis %s already exists", rec.ID)
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return "", nil, fmt.Errorf("check analysis %s: %w", rec.ID, err)
	}

	entry := pebbleAnalysis{Record: rec, Findings: stored}
	if rec.SourceText != "" {
		entry.Source = s.enc.EncodeAll([]byte(rec.SourceText), nil)
	}
	entry.Record.SourceText = ""
	blob, err := json.Marshal(entry)
	if err != nil {
		return "", nil, fmt.Errorf("encode analysis: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, blob, nil); err != nil {
		return "", nil, err
	}
	if err := batch.Set(userIndexKey(rec.UserID, rec.CreatedAt, rec.ID), []byte(rec.ID), nil); err != nil {
		return "", nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return "", nil, fmt.Errorf("commit analysis %s: %w", rec.ID, err)
	}
	return rec.ID, ids, nil
}

func (s *Pebble) GetAnalysis(_ context.Context, id string) (Analysis, error) {
	val, closer, err := s.db.Get(analysisKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Analysis{}, fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Analysis{}, fmt.Errorf("read analysis %s: %w", id, err)
	}
	defer closer.Close()

	var entry pebbleAnalysis
	if err := json.Unmarshal(val, &entry); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	if len(entry.Source) > 0 {
		src, err := s.dec.DecodeAll(entry.Source, nil)
		if err != nil {
			return Analysis{}, fmt.Errorf("decompress analysis %s: %w", id, err)
		}
		entry.Record.SourceText = string(src)
	}
	if entry.Findings == nil {
		entry.Findings = []model.Finding{}
	}
	return Analysis{Record: entry.Record, Findings: entry.Findings}, nil
}

func (s *Pebble) ListAnalyses(ctx context.Context, userID string) ([]model.AnalysisRecord, error) {
	prefix := userIndexPrefix(userID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementLastByte(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("pebble iterator creation failed: %w", err)
	}
	defer iter.Close()

	out := []model.AnalysisRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		a, err := s.GetAnalysis(ctx, string(iter.Value()))
		if err != nil {
			return nil, err
		}
		out = append(out, a.Record)
	}
	return out, iter.Error()
}

func (s *Pebble) ApplyStats(ctx context.Context, userID string, upd score.StatsUpdate) (model.UserStats, error) {
	if err := ctx.Err(); err != nil {
		return model.UserStats{}, err
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	cur, err := s.UserStats(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return model.UserStats{}, err
	}
	next := applyUpdate(cur, userID, upd, time.Now().UTC())
	blob, err := json.Marshal(next)
	if err != nil {
		return model.UserStats{}, fmt.Errorf("encode user stats: %w", err)
	}
	if err := s.db.Set(statsKey(userID), blob, pebble.Sync); err != nil {
		return model.UserStats{}, fmt.Errorf("write user stats: %w", err)
	}
	return next, nil
}

func (s *Pebble) UserStats(_ context.Context, userID string) (model.UserStats, error) {
	val, closer, err := s.db.Get(statsKey(userID))
	if errors.Is(err, pebble.ErrNotFound) {
		return model.UserStats{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return model.UserStats{}, fmt.Errorf("read user stats: %w", err)
	}
	defer closer.Close()
	var st model.UserStats
	if err := json.Unmarshal(val, &st); err != nil {
		return model.UserStats{}, fmt.Errorf("decode user stats: %w", err)
	}
	return st, nil
}

func (s *Pebble) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func analysisKey(id string) []byte {
	return append(append([]byte(nil), prefixAnalysis...), id...)
}

func statsKey(userID string) []byte {
	return append(append([]byte(nil), prefixStats...), userID...)
}

func userIndexPrefix(userID string) []byte {
	k := append(append([]byte(nil), prefixUserIndex...), userID...)
	return append(k, 0)
}

// userIndexKey sorts by creation time; nanos are zero-padded so byte order matches time order.
func userIndexKey(userID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", userIndexPrefix(userID), createdAt.UnixNano(), id))
}

func incrementLastByte(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	result := make([]byte, len(prefix))
	copy(result, prefix)
	for i := len(result) - 1; i >= 0; i-- {
		if result[i] < 0xff {
			result[i]++
			return result
		}
		result[i] = 0
	}
	return nil
}
