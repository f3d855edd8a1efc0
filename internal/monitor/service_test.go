package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockwatch/internal/storage"
	"stockwatch/internal/task/engine"
	"stockwatch/internal/task/scheduler"
	logx "stockwatch/pkg/logx"
)

func newService(t *testing.T, f *fixture) (*Service, *scheduler.Service) {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), f.bus)
	eng.Start(context.Background())
	sched := scheduler.New(scheduler.Config{Enabled: true}, eng, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Stop(ctx)
		eng.Stop(ctx)
	})
	return NewService(Config{}, f.runner, sched, f.store, logx.Nop()), sched
}

func TestServiceRegistersPolicyInterval(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.store.GetPolicy(ctx)
	p.CheckInterval = 45
	if _, err := f.store.SavePolicy(ctx, p); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}

	svc, sched := newService(t, f)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.Interval() != 45*time.Second {
		t.Fatalf("interval=%s", svc.Interval())
	}
	if svc.NextCycle().IsZero() {
		t.Fatalf("next cycle not scheduled")
	}

	p.CheckInterval = 5 // clamped to the minimum
	if err := svc.ApplyPolicy(p); err != nil {
		t.Fatalf("ApplyPolicy: %v", err)
	}
	snap := sched.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Name != JobName {
		t.Fatalf("schedules=%+v", snap.Schedules)
	}
	if got := snap.Schedules[0].Every; got != time.Duration(storage.MinCheckInterval)*time.Second {
		t.Fatalf("every=%s", got)
	}
}

func TestServiceTriggerCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	it := f.addItem(t, "manual", 1, false)
	f.pages.set("manual", "6")

	svc, _ := newService(t, f)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.TriggerCycle(); err != nil && !errors.Is(err, engine.ErrOverlapSkip) {
		t.Fatalf("TriggerCycle: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rep, ok := svc.LastReport(); ok {
			if rep.Changed != 1 {
				t.Fatalf("report=%+v", rep)
			}
			got, _ := f.store.GetItem(context.Background(), it.ID)
			if got.CurrentQuantity != 6 {
				t.Fatalf("item=%+v", got)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cycle did not run")
}

func TestServiceCheckItem(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	it := f.addItem(t, "single", 4, false)
	f.pages.set("single", "4")

	svc, _ := newService(t, f)
	res, err := svc.CheckItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("CheckItem: %v", err)
	}
	if res.Changed || res.Stock != 4 || res.OldStock != 4 {
		t.Fatalf("result=%+v", res)
	}
}

func TestRetryableCycleErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("database is locked")
	cases := []struct {
		name  string
		rep   CycleReport
		err   error
		retry bool
	}{
		{"ok", CycleReport{Checked: 2}, nil, false},
		{"failed before items", CycleReport{}, boom, true},
		{"failed mid cycle", CycleReport{Checked: 1}, boom, false},
		{"canceled", CycleReport{}, context.Canceled, false},
		{"timed out", CycleReport{}, context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := retryable(tc.rep, tc.err)
			if tc.err == nil {
				if got != nil {
					t.Fatalf("got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("lost cause: %v", got)
			}
			if engine.IsNoRetry(got) == tc.retry {
				t.Fatalf("retry=%v, want %v", !engine.IsNoRetry(got), tc.retry)
			}
		})
	}
}
