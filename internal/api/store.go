package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/qdqconf/internal/qdq"
)

type ResultStore struct {
	mu      sync.Mutex
	results map[string]*ConfigResource
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[string]*ConfigResource),
	}
}

// Create stores cfg under a fresh id and returns the stored resource.
func (s *ResultStore) Create(graphName string, cfg *qdq.Config, now time.Time) ConfigResource {
	res := ConfigResource{
		ID:        newConfigID(),
		Object:    "qdq.config",
		CreatedAt: now.Unix(),
		Graph:     graphName,
		Config:    cfg,
	}

	s.mu.Lock()
	s.results[res.ID] = &res
	s.mu.Unlock()

	return res
}

func (s *ResultStore) Get(id string) (*ConfigResource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[id]
	return res, ok
}

func (s *ResultStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return false
	}
	delete(s.results, id)
	return true
}

// List returns summaries of every stored result, oldest first.
func (s *ResultStore) List() []ConfigSummary {
	s.mu.Lock()
	out := make([]ConfigSummary, 0, len(s.results))
	for _, res := range s.results {
		out = append(out, ConfigSummary{
			ID:        res.ID,
			Object:    res.Object,
			CreatedAt: res.CreatedAt,
			Graph:     res.Graph,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func newConfigID() string {
	return "qdqcfg_" + uuid.NewString()
}
