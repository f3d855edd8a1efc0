package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/eventbus"
	rtsup "stockwatch/internal/runtime/supervisor"
	logx "stockwatch/pkg/logx"
)

const dropWarnEvery = 5 * time.Second

// Service is a bounded FIFO queue drained by supervised workers.
type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	queue    chan queued
	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	gatesMu sync.Mutex
	gates   map[string]*RunState

	histMu  sync.Mutex
	history []RunRecord

	inFlight   atomic.Int32
	dropped    atomic.Uint64
	skipped    atomic.Uint64
	lastDropAt atomic.Int64
}

type queued struct {
	task     Task
	at       time.Time
	attempts int
	gate     *RunState
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		log:   log.With(logx.String("comp", "taskengine")),
		bus:   bus,
		gates: make(map[string]*RunState),
	}
}

// Start launches the workers. Calling it on a running or disabled engine
// does nothing.
func (s *Service) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	queue := make(chan queued, s.cfg.QueueSize)
	stopCh := make(chan struct{})
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.queue, s.stopCh, s.stopDone, s.sup = queue, stopCh, nil, sup

	for i := range s.cfg.Workers {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.work(c, stopCh, queue)
			if c.Err() != nil || isClosed(stopCh) {
				return nil
			}
			return errors.New("worker exited unexpectedly")
		})
	}
	s.log.Info("task engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop rejects new work, cancels the running task and waits for the workers
// until ctx is done. Tasks still queued are discarded and their gates freed.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	done := s.stopDone
	if done == nil {
		done = make(chan struct{})
		s.stopDone = done
		close(s.stopCh)
		sup, queue := s.sup, s.queue
		sup.Cancel()
		go func() {
			_ = sup.Wait(context.Background())
			for {
				select {
				case q := <-queue:
					q.gate.release()
					continue
				default:
				}
				break
			}
			s.mu.Lock()
			s.queue, s.stopCh, s.stopDone, s.sup = nil, nil, nil, nil
			s.mu.Unlock()
			close(done)
		}()
	}
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info("task engine stopped")
	case <-ctx.Done():
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue queues t without blocking.
func (s *Service) Enqueue(t Task) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	if t.Name = strings.TrimSpace(t.Name); t.Name == "" {
		return errors.New("task Name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	s.mu.Lock()
	queue, stopping := s.queue, s.stopDone != nil
	s.mu.Unlock()
	switch {
	case queue == nil:
		return ErrStopped
	case stopping:
		return ErrStopping
	}

	now := time.Now()
	var gate *RunState
	if t.Opt.Overlap == OverlapSkipIfRunning {
		gate = t.State
		if gate == nil {
			gate = s.StateFor(t.Name)
		}
		if !gate.tryAcquire() {
			s.skipped.Add(1)
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskSkipped, Time: now, Data: RunRecord{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"}})
			s.log.Debug("task skipped: overlap", logx.String("task", t.Name))
			return ErrOverlapSkip
		}
	}

	select {
	case queue <- queued{task: t, at: now, attempts: t.Opt.attempts(s.cfg), gate: gate}:
		return nil
	default:
	}
	gate.release()
	s.dropped.Add(1)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskDropped, Time: now, Data: RunRecord{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"}})
	if last := s.lastDropAt.Load(); now.UnixNano()-last >= int64(dropWarnEvery) && s.lastDropAt.CompareAndSwap(last, now.UnixNano()) {
		s.log.Warn("task dropped: queue full", logx.String("task", t.Name), logx.Int("queue_cap", cap(queue)), logx.Int64("dropped", int64(s.dropped.Load())))
	}
	return ErrQueueFull
}

// StateFor returns the overlap gate shared by every task with this name.
func (s *Service) StateFor(name string) *RunState {
	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()
	g := s.gates[name]
	if g == nil {
		g = &RunState{}
		s.gates[name] = g
	}
	return g
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	queue, running := s.queue, s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  running,
		Workers:  s.cfg.Workers,
		InFlight: int(s.inFlight.Load()),
		RetryMax: s.cfg.RetryMax,
		Dropped:  s.dropped.Load(),
		Skipped:  s.skipped.Load(),
	}
	if queue != nil {
		snap.QueueLen, snap.QueueCap = len(queue), cap(queue)
	}
	s.histMu.Lock()
	snap.History = append([]RunRecord(nil), s.history...)
	s.histMu.Unlock()
	return snap
}

func (s *Service) record(r RunRecord) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	s.history = append(s.history, r)
	if n := len(s.history) - s.cfg.HistorySize; n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
