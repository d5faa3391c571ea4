package session

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"habit-tracker/internal/storage"
)

type failingRecorder struct{ err error }

func (f failingRecorder) Append(int64, storage.Kind, float64, time.Time) (storage.MetricEntry, error) {
	return storage.MetricEntry{}, f.err
}

func newStore(t *testing.T) *storage.FileStore {
	t.Helper()
	s, err := storage.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func TestSessionFlow_RejectThenSave(t *testing.T) {
	store := newStore(t)
	m := NewManager(store, nil, 0)
	const user = int64(42)

	res, err := m.Start(user, storage.KindPages, now)
	if err != nil || res.Outcome != OutcomePrompt {
		t.Fatalf("start: %+v %v", res, err)
	}
	if st := m.State(user); st.Step != StepAwaitingValue || st.Kind != storage.KindPages {
		t.Fatalf("unexpected state: %+v", st)
	}

	res, err = m.Input(user, "-5", now)
	if err != nil || res.Outcome != OutcomeReprompt || !errors.Is(res.Reason, ErrValidation) {
		t.Fatalf("negative input: %+v %v", res, err)
	}
	if st := m.State(user); st.Step != StepAwaitingValue || st.Kind != storage.KindPages {
		t.Fatalf("state changed on invalid input: %+v", st)
	}
	if len(store.Read(user)) != 0 {
		t.Fatalf("invalid input must not be stored")
	}

	res, err = m.Input(user, "45", now)
	if err != nil || res.Outcome != OutcomeSaved || res.Entry.Value != 45 {
		t.Fatalf("valid input: %+v %v", res, err)
	}
	if st := m.State(user); st.Step != StepIdle {
		t.Fatalf("want idle after save, got %+v", st)
	}
	if m.Active() != 0 {
		t.Fatalf("session not evicted")
	}
	if entries := store.Read(user); len(entries) != 1 || entries[0].Value != 45 || entries[0].Kind != storage.KindPages {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestSession_Cancel(t *testing.T) {
	store := newStore(t)
	m := NewManager(store, nil, 0)
	if res := m.Cancel(1); res.Outcome != OutcomeIgnored {
		t.Fatalf("cancel while idle: %+v", res)
	}
	_, _ = m.Start(1, storage.KindExerciseMinutes, now)
	if res := m.Cancel(1); res.Outcome != OutcomeCancelled || res.Kind != storage.KindExerciseMinutes {
		t.Fatalf("cancel: %+v", res)
	}
	if res, _ := m.Input(1, "30", now); res.Outcome != OutcomeIgnored {
		t.Fatalf("input after cancel must be ignored: %+v", res)
	}
	if len(store.Read(1)) != 0 {
		t.Fatalf("cancel must not write")
	}
}

func TestSession_RestartReplacesPendingKind(t *testing.T) {
	store := newStore(t)
	m := NewManager(store, nil, 0)
	_, _ = m.Start(1, storage.KindPages, now)
	res, err := m.Start(1, storage.KindExerciseMinutes, now)
	if err != nil || res.Replaced != storage.KindPages {
		t.Fatalf("restart: %+v %v", res, err)
	}
	if _, err := m.Input(1, "30", now); err != nil {
		t.Fatalf("input: %v", err)
	}
	entries := store.Read(1)
	if len(entries) != 1 || entries[0].Kind != storage.KindExerciseMinutes {
		t.Fatalf("last command must win: %+v", entries)
	}
}

func TestSession_NotReportingPeriod(t *testing.T) {
	store := newStore(t)
	open := false
	m := NewManager(store, func(time.Time) bool { return open }, 0)

	if _, err := m.Start(1, storage.KindPages, now); !errors.Is(err, ErrNotReportingPeriod) {
		t.Fatalf("want ErrNotReportingPeriod, got %v", err)
	}
	if m.State(1).Step != StepIdle {
		t.Fatalf("closed period must not create a session")
	}

	open = true
	_, _ = m.Start(1, storage.KindPages, now)
	open = false
	if _, err := m.Input(1, "10", now); !errors.Is(err, ErrNotReportingPeriod) {
		t.Fatalf("want ErrNotReportingPeriod on input, got %v", err)
	}
	if st := m.State(1); st.Step != StepAwaitingValue {
		t.Fatalf("state must be unchanged: %+v", st)
	}
	if len(store.Read(1)) != 0 {
		t.Fatalf("nothing must be written outside the period")
	}
}

func TestSession_StoreFailureKeepsSession(t *testing.T) {
	ioErr := &storage.StoreIOError{Op: "append", Path: "x", Err: errors.New("disk full")}
	m := NewManager(failingRecorder{err: ioErr}, nil, 0)
	_, _ = m.Start(1, storage.KindPages, now)
	_, err := m.Input(1, "10", now)
	var target *storage.StoreIOError
	if !errors.As(err, &target) {
		t.Fatalf("want StoreIOError, got %v", err)
	}
	if m.State(1).Step != StepAwaitingValue {
		t.Fatalf("session must survive a store failure")
	}
}

func TestSession_UsersAreIsolated(t *testing.T) {
	store := newStore(t)
	m := NewManager(store, nil, 0)
	var wg sync.WaitGroup
	for u := int64(1); u <= 20; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			if _, err := m.Start(u, storage.KindPages, now); err != nil {
				t.Errorf("start %d: %v", u, err)
				return
			}
			if res, err := m.Input(u, "7", now); err != nil || res.Outcome != OutcomeSaved {
				t.Errorf("input %d: %+v %v", u, res, err)
			}
		}(u)
	}
	wg.Wait()
	for u := int64(1); u <= 20; u++ {
		if len(store.Read(u)) != 1 {
			t.Fatalf("user %d: want 1 entry", u)
		}
	}
	if m.Active() != 0 {
		t.Fatalf("sessions leaked: %d", m.Active())
	}
}

func TestSession_Expire(t *testing.T) {
	m := NewManager(newStore(t), nil, 30*time.Minute)
	_, _ = m.Start(1, storage.KindPages, now)
	_, _ = m.Start(2, storage.KindPages, now.Add(20*time.Minute))
	expired := m.Expire(now.Add(40 * time.Minute))
	if len(expired) != 1 || expired[0] != 1 {
		t.Fatalf("unexpected expiry: %v", expired)
	}
	if m.State(1).Step != StepIdle || m.State(2).Step != StepAwaitingValue {
		t.Fatalf("wrong sessions expired")
	}
	if NewManager(nil, nil, 0).Expire(now) != nil {
		t.Fatalf("ttl 0 disables expiry")
	}
}

func TestParseValue(t *testing.T) {
	good := map[string]float64{"45": 45, " 3.5 ": 3.5, "3,5": 3.5, "0": 0, "+2": 2}
	for in, want := range good {
		got, err := ParseValue(in)
		if err != nil || got != want {
			t.Fatalf("ParseValue(%q) = %v, %v", in, got, err)
		}
	}
	for _, in := range []string{"-5", "", "abc", "NaN", "Inf", "1e3", "45 3.5", "0x10", "1.2.3"} {
		if _, err := ParseValue(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseValue(%q) should fail", in)
		}
	}
}
