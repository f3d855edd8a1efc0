package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockwatch/internal/storage"
	"stockwatch/internal/task/engine"
	logx "stockwatch/pkg/logx"
)

// Scheduler is the slice of the trigger service the monitor drives.
type Scheduler interface {
	Every(name string, every, timeout time.Duration, job func(ctx context.Context) error) error
	Reschedule(name string, every time.Duration) error
	Trigger(name string) error
	Next(name string) time.Time
}

// Service owns the monitoring job: it registers the cycle with the
// scheduler, follows policy interval changes and exposes manual triggers.
type Service struct {
	runner *Runner
	sched  Scheduler
	store  Store
	cfg    Config
	log    logx.Logger

	mu         sync.Mutex
	interval   time.Duration
	lastReport *CycleReport
}

func NewService(cfg Config, runner *Runner, sched Scheduler, store Store, log logx.Logger) *Service {
	return &Service{
		runner: runner,
		sched:  sched,
		store:  store,
		cfg:    cfg,
		log:    log.With(logx.String("comp", "monitor")),
	}
}

// Start registers the cycle job at the stored policy's interval.
func (s *Service) Start(ctx context.Context) error {
	p, err := s.store.GetPolicy(ctx)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	every := p.Interval()
	if err := s.sched.Every(JobName, every, s.cfg.CycleTimeout, s.job); err != nil {
		return fmt.Errorf("register %s: %w", JobName, err)
	}
	s.mu.Lock()
	s.interval = every
	s.mu.Unlock()
	s.log.Info("monitor registered", logx.Duration("interval", every))
	return nil
}

func (s *Service) job(ctx context.Context) error {
	rep, err := s.runner.RunCycle(ctx)
	s.mu.Lock()
	s.lastReport = &rep
	s.mu.Unlock()
	return retryable(rep, err)
}

// retryable lets the engine retry a cycle only when it failed before any
// item was checked; a partial cycle already notified and must not rerun.
func retryable(rep CycleReport, err error) error {
	if err == nil {
		return nil
	}
	if rep.Checked > 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return engine.NoRetry(err)
	}
	return err
}

// ApplyPolicy moves the cycle to the policy's (clamped) interval.
func (s *Service) ApplyPolicy(p storage.Policy) error {
	every := p.Interval()
	if err := s.sched.Reschedule(JobName, every); err != nil {
		return err
	}
	s.mu.Lock()
	s.interval = every
	s.mu.Unlock()
	return nil
}

// TriggerCycle enqueues a cycle now. It returns engine.ErrOverlapSkip when
// one is already queued or running.
func (s *Service) TriggerCycle() error {
	return s.sched.Trigger(JobName)
}

// CheckItem reads and records one item synchronously.
func (s *Service) CheckItem(ctx context.Context, id int64) (CheckResult, error) {
	return s.runner.CheckItem(ctx, id)
}

func (s *Service) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Service) NextCycle() time.Time { return s.sched.Next(JobName) }

// LastReport returns the report of the most recent finished cycle.
func (s *Service) LastReport() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return CycleReport{}, false
	}
	return *s.lastReport, true
}
