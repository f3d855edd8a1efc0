package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"stockwatch/internal/task/engine"
	logx "stockwatch/pkg/logx"
)

func newTestScheduler(t *testing.T) (*Service, *engine.Service) {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{Enabled: true, Timezone: "Asia/Shanghai"}, eng, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})
	return s, eng
}

func eventually(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", within)
}

func TestEveryUpsertsByName(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	job := func(context.Context) error { return nil }
	if err := s.Every("monitor.cycle", time.Minute, 0, job); err != nil {
		t.Fatalf("Every: %v", err)
	}
	if err := s.Every("monitor.cycle", 2*time.Minute, 0, job); err != nil {
		t.Fatalf("Every again: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules=%d, want 1", len(snap.Schedules))
	}
	got := snap.Schedules[0]
	if got.Every != 2*time.Minute {
		t.Fatalf("every=%s", got.Every)
	}
	if got.Next.IsZero() {
		t.Fatalf("next trigger not computed")
	}
	if snap.Timezone != "Asia/Shanghai" || !snap.Running {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestEveryValidation(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, nil, logx.Nop())
	job := func(context.Context) error { return nil }
	cases := []struct {
		name  string
		every time.Duration
		job   func(context.Context) error
	}{
		{"", time.Minute, job},
		{"x", 10 * time.Millisecond, job},
		{"x", time.Minute, nil},
	}
	for _, tc := range cases {
		if err := s.Every(tc.name, tc.every, 0, tc.job); err == nil {
			t.Fatalf("Every(%q, %s) expected error", tc.name, tc.every)
		}
	}
}

func TestRescheduleAndRemove(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	if err := s.Reschedule("missing", time.Minute); !errors.Is(err, ErrUnknownSchedule) {
		t.Fatalf("err=%v, want ErrUnknownSchedule", err)
	}
	_ = s.Every("monitor.cycle", time.Minute, 0, func(context.Context) error { return nil })
	if err := s.Reschedule("monitor.cycle", 30*time.Second); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if got := s.Snapshot().Schedules[0].Every; got != 30*time.Second {
		t.Fatalf("every=%s", got)
	}
	if !s.Remove("monitor.cycle") {
		t.Fatalf("Remove returned false")
	}
	if s.Remove("monitor.cycle") {
		t.Fatalf("second Remove returned true")
	}
	if !s.Next("monitor.cycle").IsZero() {
		t.Fatalf("expected no next run")
	}
}

func TestTriggerSharesOverlapGate(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var runs atomic.Int32
	_ = s.Every("monitor.cycle", time.Hour, 0, func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	})

	if err := s.Trigger("monitor.cycle"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	<-started
	if err := s.Trigger("monitor.cycle"); !errors.Is(err, engine.ErrOverlapSkip) {
		t.Fatalf("second Trigger err=%v, want ErrOverlapSkip", err)
	}
	if !s.Snapshot().Schedules[0].Busy {
		t.Fatalf("expected busy schedule")
	}
	close(release)
	eventually(t, 2*time.Second, func() bool { return !s.Snapshot().Schedules[0].Busy })
	if runs.Load() != 1 {
		t.Fatalf("runs=%d, want 1", runs.Load())
	}
	if err := s.Trigger("nope"); !errors.Is(err, ErrUnknownSchedule) {
		t.Fatalf("err=%v, want ErrUnknownSchedule", err)
	}
}

func TestCronFiresIntoEngine(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	var runs atomic.Int32
	_ = s.Every("tick", time.Second, 0, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	eventually(t, 3*time.Second, func() bool { return runs.Load() >= 1 })
}

func TestDisabledSchedulerDoesNotStart(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: false}, nil, logx.Nop())
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatalf("disabled scheduler should not run")
	}
	_ = s.Every("monitor.cycle", time.Minute, 0, func(context.Context) error { return nil })
	if err := s.Trigger("monitor.cycle"); !errors.Is(err, engine.ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped", err)
	}
}

func TestSetEnabledTogglesTriggering(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	_ = s.Every("monitor.cycle", time.Minute, 0, func(context.Context) error { return nil })

	ctx := context.Background()
	s.SetEnabled(ctx, false)
	if s.Enabled() || s.Snapshot().Running {
		t.Fatalf("scheduler still running after disable")
	}
	if !s.Next("monitor.cycle").IsZero() {
		t.Fatalf("paused schedule still has a next run")
	}

	s.SetEnabled(ctx, true)
	if !s.Snapshot().Running {
		t.Fatalf("scheduler not running after enable")
	}
	eventually(t, time.Second, func() bool { return !s.Next("monitor.cycle").IsZero() })
}

func TestReportCountsOverlapSkips(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t)
	_ = s.Every("monitor.cycle", time.Hour, 0, func(context.Context) error { return nil })
	s.mu.Lock()
	d := s.defs["monitor.cycle"]
	s.mu.Unlock()

	s.report(d, engine.ErrOverlapSkip)
	s.report(d, engine.ErrOverlapSkip)
	s.report(d, engine.ErrQueueFull)
	s.report(d, nil)
	if got := s.Snapshot().Schedules[0].Skipped; got != 2 {
		t.Fatalf("skipped=%d, want 2", got)
	}
	if d.lastWarn.Load() == 0 {
		t.Fatalf("expected queue-full warning to be recorded")
	}
}
