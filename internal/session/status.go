package session

import "sync"

// Phase is the lifecycle position of a one-shot asynchronous operation such
// as a login attempt or a form submission.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Status tracks one asynchronous operation through idle, loading, and a
// terminal succeeded or failed phase. Terminal phases are sticky: the status
// must be explicitly Reset before the operation can begin again, so a stale
// success can never be mistaken for a fresh one.
type Status struct {
	mu    sync.Mutex
	phase Phase
	err   error
}

// NewStatus returns an idle status.
func NewStatus() *Status {
	return &Status{phase: PhaseIdle}
}

// Begin moves the status to loading. It reports false when the status is not
// idle, which keeps double submissions out.
func (s *Status) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return false
	}
	s.phase = PhaseLoading
	return true
}

// Succeed marks the operation as completed.
func (s *Status) Succeed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseSucceeded
	s.err = nil
}

// Fail marks the operation as failed with the given cause.
func (s *Status) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFailed
	s.err = err
}

// Reset returns the status to idle, clearing any terminal outcome.
func (s *Status) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseIdle
	s.err = nil
}

// Phase returns the current phase.
func (s *Status) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the failure cause, or nil outside the failed phase.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
