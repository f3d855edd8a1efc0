package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"stockwatch/internal/eventbus"
	logx "stockwatch/pkg/logx"
)

func (s *Service) work(ctx context.Context, stopCh <-chan struct{}, queue <-chan queued) {
	for {
		// stop wins over queued work
		if isClosed(stopCh) || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case q := <-queue:
			s.inFlight.Add(1)
			s.exec(ctx, stopCh, q)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) exec(ctx context.Context, stopCh <-chan struct{}, q queued) {
	defer q.gate.release()

	start := time.Now()
	rec := RunRecord{ID: q.task.ID, Name: q.task.Name, Started: start, QueueDelay: max(start.Sub(q.at), 0)}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskStarted, Time: start, Data: rec})
	log := s.log.With(logx.String("task", q.task.Name), logx.String("id", q.task.ID))

	var err error
	for attempt := 1; ; attempt++ {
		rec.Attempts = attempt
		err = s.runOnce(ctx, q.task)
		if err == nil || IsNoRetry(err) || attempt >= q.attempts || ctx.Err() != nil {
			break
		}
		delay := backoff(s.cfg, attempt)
		log.Debug("task retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-t.C:
			continue
		case <-ctx.Done():
			err = ctx.Err()
		case <-stopCh:
			err = ErrStopping
		}
		t.Stop()
		break
	}

	rec.Duration = time.Since(start)
	typ := eventbus.TypeTaskFinished
	if err != nil {
		if nr, ok := err.(*noRetryError); ok {
			err = nr.err
		}
		rec.Error = err.Error()
		typ = eventbus.TypeTaskFailed
		log.Warn("task failed", logx.Err(err), logx.Int("attempts", rec.Attempts), logx.Duration("took", rec.Duration))
	} else {
		log.Debug("task finished", logx.Int("attempts", rec.Attempts), logx.Duration("took", rec.Duration))
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: rec})
	s.record(rec)
}

// runOnce turns a panic into an error so the worker survives.
func (s *Service) runOnce(ctx context.Context, t Task) (err error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task panicked", logx.String("task", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}

// backoff returns the delay before attempt+1: RetryBase doubled per attempt,
// capped at RetryMaxDelay, with ±20% jitter.
func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
	return min(max(d, time.Millisecond), cfg.RetryMaxDelay)
}
