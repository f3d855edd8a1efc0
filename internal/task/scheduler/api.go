package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/task/engine"
	logx "stockwatch/pkg/logx"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

// Every registers job to run every interval under name. Registering an
// existing name replaces the previous entry. Runs of the same name never
// overlap: a trigger that fires while one is queued or running is skipped.
// Failed runs follow the engine's RetryMax; return engine.NoRetry to opt out.
func (s *Service) Every(name string, every, timeout time.Duration, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if every < time.Second {
		return fmt.Errorf("interval %s too short", every)
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{
		name:    name,
		every:   every,
		timeout: timeout,
		job:     job,
		opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning},
	}
	s.defs[name] = d
	if s.c != nil {
		s.addCronLocked(d)
		s.log.Debug("schedule registered",
			logx.String("name", name),
			logx.Duration("every", every),
			logx.Time("next", s.c.Entry(d.entryID).Next),
		)
	}
	return nil
}

// Reschedule changes the interval of an existing schedule.
func (s *Service) Reschedule(name string, every time.Duration) error {
	s.mu.Lock()
	d, ok := s.defs[strings.TrimSpace(name)]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	if d.every == every {
		return nil
	}
	if err := s.Every(d.name, every, d.timeout, d.job); err != nil {
		return err
	}
	s.log.Info("schedule interval changed", logx.String("name", d.name), logx.Duration("from", d.every), logx.Duration("to", every))
	return nil
}

// Trigger enqueues name now, sharing the overlap gate with its schedule.
// It returns engine.ErrOverlapSkip when a run is already queued or running.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	d, ok := s.defs[strings.TrimSpace(name)]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	return s.enqueue(d)
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Service) addCronLocked(d *scheduleDef) {
	d.entryID = s.c.Schedule(cron.Every(d.every), cron.FuncJob(func() {
		s.report(d, s.enqueue(d))
	}))
}

func (s *Service) enqueue(d *scheduleDef) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	return s.engine.Enqueue(engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Run:     d.job,
		Opt:     d.opt,
		State:   s.engine.StateFor(d.name),
	})
}

const enqueueWarnEvery = 5 * time.Second

// report logs a failed tick. Overlap skips are routine when a cycle outlasts
// the interval; other failures warn at most once per enqueueWarnEvery.
func (s *Service) report(d *scheduleDef, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, engine.ErrOverlapSkip):
		d.skipped.Add(1)
		s.log.Info("schedule tick skipped: previous run still active", logx.String("schedule", d.name))
		return
	}
	now := time.Now().UnixNano()
	if last := d.lastWarn.Load(); now-last < int64(enqueueWarnEvery) || !d.lastWarn.CompareAndSwap(last, now) {
		return
	}
	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", d.name), logx.Err(err))
}
