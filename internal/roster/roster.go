package roster

import (
	"fmt"
	"sort"
	"sync"

	"habit-tracker/internal/storage"
)

// Participant is a tracked user with weekly goals per metric kind. A kind
// without a goal is not tracked for that participant.
type Participant struct {
	ID       int64                    `json:"id" yaml:"id"`
	Name     string                   `json:"name" yaml:"name"`
	Username string                   `json:"username,omitempty" yaml:"username,omitempty"`
	Goals    map[storage.Kind]float64 `json:"goals" yaml:"goals"`
}

// DisplayName falls back to @username and then to the numeric id.
func (p Participant) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Username != "":
		return "@" + p.Username
	default:
		return fmt.Sprintf("id%d", p.ID)
	}
}

type Repository interface {
	LoadAll() ([]Participant, error)
	Upsert(p Participant) error
	Remove(id int64) error
}

type Service struct {
	mu           sync.RWMutex
	repo         Repository
	participants map[int64]Participant
}

// NewWithRepo loads persisted participants and merges the static roster on
// top of them for ids the repository does not know yet.
func NewWithRepo(repo Repository, initial []Participant) (*Service, error) {
	s := &Service{repo: repo, participants: make(map[int64]Participant)}
	if repo != nil {
		ps, err := repo.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load participants: %w", err)
		}
		for _, p := range ps {
			s.participants[p.ID] = p
		}
	}
	for _, p := range initial {
		if _, ok := s.participants[p.ID]; !ok {
			s.participants[p.ID] = p
		}
	}
	return s, nil
}

func (s *Service) IsParticipant(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.participants[id]
	return ok
}

func (s *Service) Get(id int64) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	return p, ok
}

func (s *Service) Upsert(p Participant) error {
	s.mu.Lock()
	s.participants[p.ID] = p
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(p)
	}
	return nil
}

func (s *Service) Remove(id int64) error {
	s.mu.Lock()
	delete(s.participants, id)
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Remove(id)
	}
	return nil
}

// SetGoal updates one goal of an existing participant.
func (s *Service) SetGoal(id int64, kind storage.Kind, target float64) error {
	if target < 0 {
		return fmt.Errorf("goal must not be negative")
	}
	s.mu.Lock()
	p, ok := s.participants[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("participant %d not found", id)
	}
	goals := make(map[storage.Kind]float64, len(p.Goals)+1)
	for k, v := range p.Goals {
		goals[k] = v
	}
	goals[kind] = target
	p.Goals = goals
	s.participants[id] = p
	s.mu.Unlock()
	if s.repo != nil {
		return s.repo.Upsert(p)
	}
	return nil
}

// List returns participants ordered by id.
func (s *Service) List() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Goals returns a copy of every participant's goals.
func (s *Service) Goals() map[int64]map[storage.Kind]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]map[storage.Kind]float64, len(s.participants))
	for id, p := range s.participants {
		g := make(map[storage.Kind]float64, len(p.Goals))
		for k, v := range p.Goals {
			g[k] = v
		}
		out[id] = g
	}
	return out
}

// Kinds returns every metric kind any participant tracks.
func (s *Service) Kinds() []storage.Kind {
	s.mu.RLock()
	seen := make(map[storage.Kind]bool)
	for _, p := range s.participants {
		for k := range p.Goals {
			seen[k] = true
		}
	}
	s.mu.RUnlock()
	return storage.OrderKinds(seen)
}
