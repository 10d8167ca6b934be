// Package history keeps the conversation turns exchanged with the generation
// oracle and persists them as a JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"shopassist/internal/domain"
)

// Store is an append-only, bounded list of conversation turns.
type Store struct {
	mu        sync.RWMutex
	saveMu    sync.Mutex
	path      string
	turns     []domain.Turn
	maxTurns  int
	maxTokens int
	counter   TokenCounter
}

// Options bound the retained history and the context window.
type Options struct {
	MaxTurns  int
	MaxTokens int
	Counter   TokenCounter
}

// NewStore returns an empty store persisting to path.
func NewStore(path string, opts Options) *Store {
	if opts.Counter == nil {
		opts.Counter = EstimateCounter{}
	}
	return &Store{path: path, maxTurns: opts.MaxTurns, maxTokens: opts.MaxTokens, counter: opts.Counter}
}

// Load replaces the in-memory turns with the file contents. A missing file
// leaves the store empty.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}
	var turns []domain.Turn
	if len(data) > 0 {
		if err := json.Unmarshal(data, &turns); err != nil {
			return fmt.Errorf("parse history %s: %w", s.path, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = turns
	s.evict()
	return nil
}

// Save writes the turns to a temp file and renames it over the target.
// Concurrent saves are serialized so the newest snapshot lands last.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.mu.RLock()
	data, err := json.MarshalIndent(s.turns, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// Append adds turns in order, evicting the oldest beyond the turn cap.
func (s *Store) Append(turns ...domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
	s.evict()
}

// Turns returns a copy of every retained turn.
func (s *Store) Turns() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Context returns the newest turns that fit the token budget, oldest first.
func (s *Store) Context() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.maxTokens <= 0 {
		out := make([]domain.Turn, len(s.turns))
		copy(out, s.turns)
		return out
	}
	used := 0
	start := len(s.turns)
	for i := len(s.turns) - 1; i >= 0; i-- {
		n := turnTokens(s.counter, s.turns[i])
		if used+n > s.maxTokens {
			break
		}
		used += n
		start = i
	}
	out := make([]domain.Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

func (s *Store) evict() {
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		drop := len(s.turns) - s.maxTurns
		s.turns = append([]domain.Turn(nil), s.turns[drop:]...)
	}
}
