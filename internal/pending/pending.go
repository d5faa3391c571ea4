// Package pending keeps /join requests until the administrator approves or
// rejects them.
package pending

import (
	"sort"
	"sync"

	"habit-tracker/internal/roster"
)

type Service struct {
	mu       sync.Mutex
	repo     roster.Repository
	requests map[int64]roster.Participant
}

func New(repo roster.Repository) (*Service, error) {
	s := &Service{repo: repo, requests: make(map[int64]roster.Participant)}
	if repo != nil {
		ps, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			s.requests[p.ID] = p
		}
	}
	return s, nil
}

// Add stores a request. It reports false if one is already waiting.
func (s *Service) Add(p roster.Participant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[p.ID]; ok {
		return false, nil
	}
	if s.repo != nil {
		if err := s.repo.Upsert(p); err != nil {
			return false, err
		}
	}
	s.requests[p.ID] = p
	return true, nil
}

// Take removes and returns the request for id.
func (s *Service) Take(id int64) (roster.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.requests[id]
	if !ok {
		return roster.Participant{}, false, nil
	}
	if s.repo != nil {
		if err := s.repo.Remove(id); err != nil {
			return roster.Participant{}, false, err
		}
	}
	delete(s.requests, id)
	return p, true, nil
}

func (s *Service) List() []roster.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roster.Participant, 0, len(s.requests))
	for _, p := range s.requests {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
