package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"shopassist/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	items     []domain.CatalogItem
}

func NewStorage() *Storage { return &Storage{} }

// Init sets the vector dimension. Existing points survive a re-init with the
// same dimension so the catalog can be ingested in several batches.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.vectors = nil
		s.items = nil
	}
	s.dimension = dimension
	return nil
}

// Upsert inserts items, replacing any point that already carries the same ID.
func (s *Storage) Upsert(_ context.Context, items []domain.CatalogItem, vectors [][]float64) error {
	if len(items) != len(vectors) {
		return errors.New("items and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for i, it := range items {
		if j := s.indexOf(it.ID); j >= 0 {
			s.items[j] = it
			s.vectors[j] = normalize(vectors[i])
			continue
		}
		s.items = append(s.items, it)
		s.vectors = append(s.vectors, normalize(vectors[i]))
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	q := normalize(vector)
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], q)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		it := s.items[j]
		results = append(results, domain.SearchResult{
			ID:          it.ID,
			Filename:    it.FileName,
			Description: it.Description,
			Price:       it.Price,
			Score:       scores[j],
		})
	}
	return results, nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.items = nil
	return nil
}

// Len returns the number of stored points.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Storage) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float64, len(v))
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
