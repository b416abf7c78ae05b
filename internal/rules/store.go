package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable marks a rule source that cannot serve rules at all.
var ErrUnavailable = errors.New("rule store unavailable")

var ErrRuleNotFound = errors.New("rule not found")

// Source is what the detection engine reads rules from.
type Source interface {
	ActiveRules(ctx context.Context, language string) ([]Rule, error)
}

// Store holds rules in insertion order. Readers never observe a partially applied write.
type Store struct {
	mu    sync.RWMutex
	rules []Rule
	index map[string]int
}

func NewStore(initial ...Rule) *Store {
	s := &Store{index: make(map[string]int, len(initial))}
	for _, r := range initial {
		_ = s.Add(r)
	}
	return s
}

// Add appends a rule. IDs are unique; adding an existing ID replaces it in place.
func (s *Store) Add(r Rule) error {
	r = NormalizeRule(r)
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.index[r.ID]; ok {
		r.CreatedAt = s.rules[idx].CreatedAt
		s.rules[idx] = r
		return nil
	}
	s.index[r.ID] = len(s.rules)
	s.rules = append(s.rules, r)
	return nil
}

// Replace swaps the whole rule set atomically, keeping the given order.
func (s *Store) Replace(rules []Rule) {
	next := NewStore(rules...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = next.rules
	s.index = next.index
}

// SetActive toggles a rule's active flag.
func (s *Store) SetActive(id string, active bool) error {
	id = strings.ToLower(strings.TrimSpace(id))
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	s.rules[idx].IsActive = active
	return nil
}

// GetActiveRules returns active rules for language (case-insensitive) in insertion order.
// An unknown language yields an empty list.
func (s *Store) GetActiveRules(language string) []Rule {
	language = strings.TrimSpace(language)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if !r.IsActive {
			continue
		}
		if !strings.EqualFold(r.Language, language) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *Store) ActiveRules(_ context.Context, language string) ([]Rule, error) {
	return s.GetActiveRules(language), nil
}

// All returns every rule, active or not.
func (s *Store) All() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}
