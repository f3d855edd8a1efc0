package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped: already queued or running")
)

// Config controls the task engine. stockwatch runs one worker so scheduled
// and manual cycles never interleave.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// HistorySize bounds the ring of finished runs in Snapshot. Default 50.
	HistorySize int

	// RetryMax is the default number of extra attempts after a failure.
	RetryMax int
	// RetryBase is the first backoff; it doubles up to RetryMaxDelay and gets
	// ±20% jitter.
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	c.Workers = max(c.Workers, 1)
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	c.RetryMax = max(c.RetryMax, 0)
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay < c.RetryBase {
		c.RetryMaxDelay = max(15*time.Second, c.RetryBase)
	}
	return c
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	// OverlapSkipIfRunning rejects a task while another with the same name
	// is queued or running.
	OverlapSkipIfRunning
)

type TaskOptions struct {
	Overlap OverlapPolicy
	// RetryMax overrides Config.RetryMax when > 0; < 0 disables retries.
	RetryMax int
}

func (o TaskOptions) attempts(cfg Config) int {
	switch {
	case o.RetryMax < 0:
		return 1
	case o.RetryMax > 0:
		return 1 + o.RetryMax
	}
	return 1 + cfg.RetryMax
}

// Task is one unit of work. State, when nil, is looked up by Name.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
	State   *RunState
}

// RunState is the overlap gate for a task name. It is held from enqueue
// until the run finishes, so "queued" counts as busy.
type RunState struct {
	held atomic.Bool
}

func (s *RunState) tryAcquire() bool { return s.held.CompareAndSwap(false, true) }
func (s *RunState) release() {
	if s != nil {
		s.held.Store(false)
	}
}

// Busy reports whether the task is queued or running.
func (s *RunState) Busy() bool { return s != nil && s.held.Load() }

// NoRetry marks err as permanent; the engine will not run the task again.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err}
}

// IsNoRetry reports whether err was wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var nr *noRetryError
	return errors.As(err, &nr)
}

type noRetryError struct{ err error }

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// RunRecord describes one finished (or rejected) run. It is kept in the
// history ring and is the Data of task.* bus events.
type RunRecord struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Running  bool `json:"running"`
	Workers  int  `json:"workers"`
	QueueLen int  `json:"queue_len"`
	QueueCap int  `json:"queue_cap"`
	InFlight int  `json:"in_flight"`
	RetryMax int  `json:"retry_max"`

	Dropped uint64 `json:"dropped"`
	Skipped uint64 `json:"skipped"`

	History []RunRecord `json:"history,omitempty"`
}
