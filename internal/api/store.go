package api

import (
	"sync"
)

// GenerationStore keeps the most recent responses in memory so clients can
// fetch them again by id. The oldest entry is evicted once the capacity is
// reached.
type GenerationStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	byID     map[string]GenerateResponse
}

func NewGenerationStore(capacity int) *GenerationStore {
	if capacity < 1 {
		capacity = 1
	}
	return &GenerationStore{
		capacity: capacity,
		byID:     make(map[string]GenerateResponse),
	}
}

func (s *GenerationStore) Save(resp GenerateResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.byID[resp.ID] = resp
	for len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *GenerationStore) Get(id string) (GenerateResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.byID[id]
	return resp, ok
}

func (s *GenerationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *GenerationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
