package storage

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const maxWriteRetries = 5

var errReadOnly = errors.New("store opened read-only")

// FileStore keeps the whole document in memory and persists it to a single
// JSON file after every mutation. Writes are serialised; a write replaces
// the file with write-to-temp + rename, so a crash mid-write never damages
// previously committed entries.
type FileStore struct {
	path string

	mu  sync.RWMutex
	doc *Document

	writeFile  func(path string, data []byte) error
	newBackOff func() backoff.BackOff
}

// NewFileStore opens (or creates) the store at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure store dir: %w", err)
	}
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:       path,
		doc:        doc,
		writeFile:  writeAtomic,
		newBackOff: defaultBackOff,
	}, nil
}

// OpenReadOnly loads the store at path for processes that only query it.
// Mutations fail with a *StoreIOError and leave the file untouched.
func OpenReadOnly(path string) (*FileStore, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path: path,
		doc:  doc,
		writeFile: func(string, []byte) error {
			return errReadOnly
		},
		newBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
	}, nil
}

// Load reads a read-only snapshot of the store at path. A missing file is an
// empty store.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	return Unmarshal(data)
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(participantID int64, kind Kind, value float64, at time.Time) (MetricEntry, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return MetricEntry{}, fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}
	if kind == "" {
		return MetricEntry{}, ErrInvalidKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lastSeq := s.doc.LastSeq
	rec := Record{ID: uuid.NewString(), Seq: lastSeq + 1, Date: at, Value: value}
	s.doc.LastSeq = rec.Seq

	kinds, known := s.doc.Participants[participantID]
	if !known {
		kinds = make(map[Kind][]Record)
		s.doc.Participants[participantID] = kinds
	}
	prev := kinds[kind]
	// full slice expression forces a copy on append so prev stays intact
	kinds[kind] = append(prev[:len(prev):len(prev)], rec)

	if err := s.persistLocked("append"); err != nil {
		s.doc.LastSeq = lastSeq
		if prev == nil {
			delete(kinds, kind)
		} else {
			kinds[kind] = prev
		}
		if !known {
			delete(s.doc.Participants, participantID)
		}
		return MetricEntry{}, err
	}
	return MetricEntry{ID: rec.ID, ParticipantID: participantID, Kind: kind, Value: value, RecordedAt: at}, nil
}

// OpenWeek records that weekID is open for reporting. It reports false when
// the week had already been opened, in which case nothing is written.
func (s *FileStore) OpenWeek(weekID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.weekOpen(weekID) {
		return false, nil
	}
	prev := s.doc.Weeks
	s.doc.Weeks = append(prev[:len(prev):len(prev)], OpenedWeek{Week: weekID, OpenedAt: at})
	if err := s.persistLocked("open week"); err != nil {
		s.doc.Weeks = prev
		return false, err
	}
	return true, nil
}

func (s *FileStore) Read(participantID int64) []MetricEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Entries(participantID)
}

// ReadKind returns the participant's entries of one kind.
func (s *FileStore) ReadKind(participantID int64, kind Kind) []MetricEntry {
	all := s.Read(participantID)
	out := make([]MetricEntry, 0, len(all))
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *FileStore) ReadRange(participantID int64, from, to time.Time) []MetricEntry {
	all := s.Read(participantID)
	out := make([]MetricEntry, 0, len(all))
	for _, e := range all {
		if e.RecordedAt.Before(from) || !e.RecordedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *FileStore) IsWeekOpen(weekID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.weekOpen(weekID)
}

func (s *FileStore) OpenedWeeks() []OpenedWeek {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OpenedWeek(nil), s.doc.Weeks...)
}

// Participants returns every participant that has reported at least once.
func (s *FileStore) Participants() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.ParticipantIDs()
}

// Snapshot returns a deep copy of the current document.
func (s *FileStore) Snapshot() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// ImportResult counts what Import added.
type ImportResult struct {
	Entries int
	Weeks   int
}

// Import appends the entries and opened weeks of doc that the store does
// not have yet. Entries are matched by id, weeks by week id; nothing already
// committed is changed. On failure the store is left as it was.
func (s *FileStore) Import(doc *Document) (ImportResult, error) {
	var res ImportResult
	if doc == nil {
		return res, fmt.Errorf("import: nil document")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc
	next := s.doc.Clone()
	for _, w := range doc.Weeks {
		if !next.weekOpen(w.Week) {
			next.Weeks = append(next.Weeks, w)
			res.Weeks++
		}
	}
	for _, pid := range doc.ParticipantIDs() {
		for _, e := range doc.Entries(pid) {
			if next.hasEntry(pid, e.ID) {
				continue
			}
			kinds := next.Participants[pid]
			if kinds == nil {
				kinds = make(map[Kind][]Record)
				next.Participants[pid] = kinds
			}
			next.LastSeq++
			kinds[e.Kind] = append(kinds[e.Kind], Record{ID: e.ID, Seq: next.LastSeq, Date: e.RecordedAt, Value: e.Value})
			res.Entries++
		}
	}
	if res.Entries == 0 && res.Weeks == 0 {
		return res, nil
	}
	s.doc = next
	if err := s.persistLocked("import"); err != nil {
		s.doc = prev
		return ImportResult{}, err
	}
	return res, nil
}

func (s *FileStore) persistLocked(op string) error {
	data, err := Marshal(s.doc)
	if err != nil {
		return &StoreIOError{Op: op, Path: s.path, Err: err}
	}
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := s.writeFile(s.path, data); err != nil {
			log.Printf("⚠️ store write attempt %d failed: %v", attempt, err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(s.newBackOff(), maxWriteRetries))
	if err != nil {
		return &StoreIOError{Op: op, Path: s.path, Err: err}
	}
	return nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// writeAtomic replaces path with data via a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
