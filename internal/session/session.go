// Package session holds the per-user reporting conversation:
//
//	Idle --Start(kind)--> AwaitingValue(kind) --valid input--> Idle (entry saved)
//	                                          --Cancel-------> Idle (nothing saved)
//
// Idle users have no entry in the manager; a session is evicted as soon as
// it completes, is cancelled or expires.
package session

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"habit-tracker/internal/storage"
)

type Step string

const (
	StepIdle          Step = "idle"
	StepAwaitingValue Step = "awaiting_value"
)

var (
	ErrNotReportingPeriod = errors.New("not reporting period")
	ErrValidation         = errors.New("value must be a non-negative number")
)

type State struct {
	UserID    int64
	Step      Step
	Kind      storage.Kind
	StartedAt time.Time
}

type Outcome string

const (
	OutcomePrompt    Outcome = "prompt"
	OutcomeReprompt  Outcome = "reprompt"
	OutcomeSaved     Outcome = "saved"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeIgnored   Outcome = "ignored"
)

// Result tells the transport what to say.
type Result struct {
	Outcome Outcome
	Kind    storage.Kind
	Entry   storage.MetricEntry
	// Replaced is set when Start dropped another pending kind.
	Replaced storage.Kind
	// Reason carries the validation error on OutcomeReprompt.
	Reason error
}

type Recorder interface {
	Append(participantID int64, kind storage.Kind, value float64, at time.Time) (storage.MetricEntry, error)
}

// Gate reports whether submissions are accepted at now.
type Gate func(now time.Time) bool

type session struct {
	mu     sync.Mutex
	state  State
	closed bool
}

type Manager struct {
	recorder Recorder
	gate     Gate
	ttl      time.Duration

	mu       sync.RWMutex
	sessions map[int64]*session
}

// NewManager builds a manager. ttl <= 0 disables idle expiry.
func NewManager(recorder Recorder, gate Gate, ttl time.Duration) *Manager {
	if gate == nil {
		gate = func(time.Time) bool { return true }
	}
	return &Manager{recorder: recorder, gate: gate, ttl: ttl, sessions: make(map[int64]*session)}
}

// Start moves the user to AwaitingValue(kind). A pending session for another
// kind is replaced, never merged. Outside the reporting period nothing
// changes and ErrNotReportingPeriod is returned.
func (m *Manager) Start(userID int64, kind storage.Kind, now time.Time) (Result, error) {
	if !m.gate(now) {
		return Result{Kind: kind}, ErrNotReportingPeriod
	}
	next := &session{state: State{UserID: userID, Step: StepAwaitingValue, Kind: kind, StartedAt: now}}

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = next
	m.mu.Unlock()

	res := Result{Outcome: OutcomePrompt, Kind: kind}
	if prev != nil {
		prev.mu.Lock()
		if !prev.closed && prev.state.Kind != kind {
			res.Replaced = prev.state.Kind
		}
		prev.closed = true
		prev.mu.Unlock()
	}
	return res, nil
}

// Input feeds free text to the user's pending session.
func (m *Manager) Input(userID int64, text string, now time.Time) (Result, error) {
	s := m.get(userID)
	if s == nil {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	kind := s.state.Kind

	value, err := ParseValue(text)
	if err != nil {
		return Result{Outcome: OutcomeReprompt, Kind: kind, Reason: err}, nil
	}
	if !m.gate(now) {
		return Result{Kind: kind}, ErrNotReportingPeriod
	}
	entry, err := m.recorder.Append(userID, kind, value, now)
	if err != nil {
		// session stays open so the user can retry
		return Result{Kind: kind}, fmt.Errorf("save %s: %w", kind, err)
	}
	s.closed = true
	m.evict(userID, s)
	return Result{Outcome: OutcomeSaved, Kind: kind, Entry: entry}, nil
}

// Cancel drops the pending session without writing anything.
func (m *Manager) Cancel(userID int64) Result {
	s := m.get(userID)
	if s == nil {
		return Result{Outcome: OutcomeIgnored}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{Outcome: OutcomeIgnored}
	}
	s.closed = true
	m.evict(userID, s)
	return Result{Outcome: OutcomeCancelled, Kind: s.state.Kind}
}

// State returns the user's current state; absent users are Idle.
func (m *Manager) State(userID int64) State {
	s := m.get(userID)
	if s == nil {
		return State{UserID: userID, Step: StepIdle}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{UserID: userID, Step: StepIdle}
	}
	return s.state
}

// Expire evicts sessions idle for longer than the manager ttl and returns
// their users.
func (m *Manager) Expire(now time.Time) []int64 {
	if m.ttl <= 0 {
		return nil
	}
	m.mu.RLock()
	candidates := make(map[int64]*session, len(m.sessions))
	for id, s := range m.sessions {
		candidates[id] = s
	}
	m.mu.RUnlock()

	var out []int64
	for id, s := range candidates {
		s.mu.Lock()
		if !s.closed && now.Sub(s.state.StartedAt) > m.ttl {
			s.closed = true
			m.evict(id, s)
			out = append(out, id)
		}
		s.mu.Unlock()
	}
	return out
}

// Active returns the number of pending sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) get(userID int64) *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

func (m *Manager) evict(userID int64, s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[userID] == s {
		delete(m.sessions, userID)
	}
}

var valueRe = regexp.MustCompile(`^[+-]?\d+(?:[.,]\d+)?$`)

// ParseValue accepts plain decimal numbers with '.' or ',' as separator.
func ParseValue(text string) (float64, error) {
	t := strings.TrimSpace(text)
	if !valueRe.MatchString(t) {
		return 0, fmt.Errorf("%w: %q", ErrValidation, t)
	}
	v, err := strconv.ParseFloat(strings.Replace(t, ",", ".", 1), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) || v < 0 {
		return 0, fmt.Errorf("%w: %q", ErrValidation, t)
	}
	return v, nil
}
