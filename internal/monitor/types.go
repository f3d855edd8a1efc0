package monitor

import (
	"context"
	"time"

	"stockwatch/internal/notifier"
	"stockwatch/internal/storage"
)

// JobName is the schedule and task identity of the monitoring cycle.
const JobName = "monitor.cycle"

// Store is the subset of storage the cycle needs.
type Store interface {
	ListActiveItems(ctx context.Context) ([]storage.Item, error)
	GetItem(ctx context.Context, id int64) (storage.Item, error)
	GetPolicy(ctx context.Context) (storage.Policy, error)
	AtomicUpdate(ctx context.Context, id int64, qty int) (storage.UpdateResult, error)
}

type Reader interface {
	Read(ctx context.Context, url, rule string) (int, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, p storage.Policy, item storage.Item, kind notifier.Kind, magnitude int) notifier.DispatchResult
}

type Clock interface {
	Now() time.Time
}

type Config struct {
	// ItemDelay spaces out page reads within a cycle. 0 means one second;
	// negative disables throttling.
	ItemDelay time.Duration
	// CycleTimeout bounds one full cycle. 0 means no bound.
	CycleTimeout time.Duration
}

// CycleReport summarizes one monitoring cycle.
type CycleReport struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Checked  int           `json:"checked"`
	Changed  int           `json:"changed"`
	Failed   int           `json:"failed"`
	Notified int           `json:"notified"`
	Duration time.Duration `json:"duration"`
}

// CheckResult is the outcome of a synchronous single-item check.
type CheckResult struct {
	ItemID   int64 `json:"item_id"`
	Stock    int   `json:"stock"`
	OldStock int   `json:"old_stock"`
	Changed  bool  `json:"changed"`
	Version  int64 `json:"version"`
}

// ChangeEvent is published on stock.changed and exported to NATS.
type ChangeEvent struct {
	CycleID  string        `json:"cycle_id,omitempty"`
	ItemID   int64         `json:"item_id"`
	Name     string        `json:"name"`
	URL      string        `json:"url"`
	Old      int           `json:"old"`
	New      int           `json:"new"`
	Delta    int           `json:"delta"`
	Kind     notifier.Kind `json:"kind"`
	Notified bool          `json:"notified"`
	At       time.Time     `json:"at"`
}
