package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository keeps participants as a JSON array. Saves go through a
// temp file and rename.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

func (r *FileRepository) LoadAll() ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadUnlocked()
}

func (r *FileRepository) Upsert(p Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	updated := false
	for i, x := range ps {
		if x.ID == p.ID {
			ps[i] = p
			updated = true
			break
		}
	}
	if !updated {
		ps = append(ps, p)
	}
	return r.saveUnlocked(ps)
}

func (r *FileRepository) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps, err := r.loadUnlocked()
	if err != nil {
		return err
	}
	out := make([]Participant, 0, len(ps))
	for _, x := range ps {
		if x.ID != id {
			out = append(out, x)
		}
	}
	return r.saveUnlocked(out)
}

func (r *FileRepository) loadUnlocked() ([]Participant, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return []Participant{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	var ps []Participant
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return ps, nil
}

func (r *FileRepository) saveUnlocked(ps []Participant) error {
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
