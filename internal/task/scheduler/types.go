package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/task/engine"
	logx "stockwatch/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ used for Next/Prev display, e.g. "Asia/Shanghai"
}

// Enqueuer is the slice of the task engine the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
	StateFor(name string) *engine.RunState
}

type scheduleDef struct {
	name    string
	every   time.Duration
	timeout time.Duration
	job     func(ctx context.Context) error
	opt     engine.TaskOptions
	entryID cron.EntryID

	skipped  atomic.Uint64
	lastWarn atomic.Int64 // unix nanos of the last enqueue warning
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	engine Enqueuer

	c    *cron.Cron
	defs map[string]*scheduleDef
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Every   time.Duration `json:"every"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next,omitzero"`
	Prev    time.Time     `json:"prev,omitzero"`
	Busy    bool          `json:"busy"`
	Skipped uint64        `json:"skipped"`
}

type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}
