package roster

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rosterFile struct {
	Participants []Participant `yaml:"participants"`
}

// LoadFile reads the static roster. A missing file yields an empty roster.
//
//	participants:
//	  - id: 123456
//	    name: Alice
//	    goals:
//	      pages: 50
//	      exercise_minutes: 300
func LoadFile(path string) ([]Participant, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	seen := make(map[int64]bool, len(rf.Participants))
	for _, p := range rf.Participants {
		if p.ID == 0 {
			return nil, fmt.Errorf("roster: participant %q has no id", p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("roster: duplicate participant id %d", p.ID)
		}
		seen[p.ID] = true
		for k, v := range p.Goals {
			if v < 0 {
				return nil, fmt.Errorf("roster: participant %d has negative %s goal", p.ID, k)
			}
		}
	}
	return rf.Participants, nil
}
