package runner

import (
	"sync"
	"time"

	"spotcrawl/internal/crawl"
)

// State of the runner as shown by /status.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Snapshot is a copy of the status at one instant.
type Snapshot struct {
	State       State             `json:"state"`
	RunID       string            `json:"run_id,omitempty"`
	Range       string            `json:"range,omitempty"`
	CurrentTask string            `json:"current_task,omitempty"`
	TaskIndex   int               `json:"task_index,omitempty"`
	TaskTotal   int               `json:"task_total,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	Completed   []crawl.Summary   `json:"completed"`
	Errors      map[string]string `json:"errors,omitempty"`
	Runs        int               `json:"runs"`
	LastRun     *Report           `json:"last_run,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
}

// Status tracks progress for the status endpoint.
type Status struct {
	mu     sync.RWMutex
	snap   Snapshot
	runErr error
}

func newStatus() *Status {
	return &Status{snap: Snapshot{State: StateIdle}}
}

// Snapshot returns a deep enough copy to hand to an encoder.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Completed = append([]crawl.Summary(nil), s.snap.Completed...)
	if s.snap.Errors != nil {
		out.Errors = make(map[string]string, len(s.snap.Errors))
		for k, v := range s.snap.Errors {
			out.Errors[k] = v
		}
	}
	return out
}

// Value adapts Snapshot to the status server.
func (s *Status) Value() any { return s.Snapshot() }

// SetRunError records how the last run ended; nil marks it healthy.
func (s *Status) SetRunError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runErr = err
	s.snap.LastError = ""
	if err != nil {
		s.snap.LastError = err.Error()
	}
}

// Health returns the error that aborted the last run, if any.
func (s *Status) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

func (s *Status) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.State = state
}

func (s *Status) begin(runID, dr string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.snap.State != StateStopping {
		s.snap.State = StateRunning
	}
	s.snap.RunID = runID
	s.snap.Range = dr
	s.snap.TaskTotal = total
	s.snap.TaskIndex = 0
	s.snap.CurrentTask = ""
	s.snap.StartedAt = &now
	s.snap.Completed = nil
	s.snap.Errors = nil
}

func (s *Status) startTask(name string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CurrentTask = name
	s.snap.TaskIndex = index
}

func (s *Status) endTask(summary crawl.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Completed = append(s.snap.Completed, summary)
	s.snap.CurrentTask = ""
}

func (s *Status) taskFailed(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Errors == nil {
		s.snap.Errors = make(map[string]string)
	}
	s.snap.Errors[name] = err.Error()
}

func (s *Status) finish(report *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.State != StateStopping {
		s.snap.State = StateIdle
	}
	s.snap.Runs++
	s.snap.CurrentTask = ""
	last := *report
	s.snap.LastRun = &last
}
