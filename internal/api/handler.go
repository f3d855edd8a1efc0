// Package api serves the admin HTTP API: item management, notification
// policy, manual checks and system status.
package api

import (
	"context"
	"time"

	"stockwatch/internal/clock"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notifier"
	"stockwatch/internal/reader"
	rtsup "stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/storage"
	"stockwatch/internal/task/engine"
	"stockwatch/internal/task/scheduler"
	logx "stockwatch/pkg/logx"
)

// Store is the storage surface the API uses.
type Store interface {
	CreateItem(ctx context.Context, in storage.NewItem) (storage.Item, error)
	GetItem(ctx context.Context, id int64) (storage.Item, error)
	ListItems(ctx context.Context) ([]storage.Item, error)
	SetItemActive(ctx context.Context, id int64, active bool) (storage.Item, error)
	ListEvents(ctx context.Context, itemID int64, limit int) ([]storage.StockEvent, error)
	ListNotifications(ctx context.Context, limit int) ([]storage.NotificationRecord, error)
	ClearNotifications(ctx context.Context) (int64, error)
	GetPolicy(ctx context.Context) (storage.Policy, error)
	SavePolicy(ctx context.Context, p storage.Policy) (storage.Policy, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

type Monitor interface {
	TriggerCycle() error
	CheckItem(ctx context.Context, id int64) (monitor.CheckResult, error)
	ApplyPolicy(p storage.Policy) error
	Interval() time.Duration
	NextCycle() time.Time
	LastReport() (monitor.CycleReport, bool)
}

type Prober interface {
	Probe(ctx context.Context, url, rule string) (reader.Probe, error)
}

type Tester interface {
	TestTargets(ctx context.Context, p storage.Policy, only storage.TargetKind) ([]notifier.TargetResult, error)
}

type Clock interface {
	Now() time.Time
	Format(t time.Time) string
	Location() *time.Location
	Sync(ctx context.Context) (clock.SyncResult, error)
}

// Deps wires the handler. Engine and Scheduler are optional status sources.
type Deps struct {
	Store     Store
	Monitor   Monitor
	Reader    Prober
	Notifier  Tester
	Clock     Clock
	Bus       eventbus.Bus
	Engine    interface{ Snapshot() engine.Snapshot }
	Scheduler interface{ Snapshot() scheduler.Snapshot }
	// Runtime reports the app's supervised goroutines.
	Runtime   interface{ Counters() rtsup.Counters }

	// HistoryLimit bounds GET /api/items/{id}/history. Default 50.
	HistoryLimit int
	// NotificationLimit bounds GET /api/notifications. Default 50.
	NotificationLimit int
}

type Handler struct {
	d   Deps
	v   *Validator
	log logx.Logger
}

func NewHandler(d Deps, log logx.Logger) *Handler {
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 50
	}
	if d.NotificationLimit <= 0 {
		d.NotificationLimit = 50
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	return &Handler{d: d, v: NewValidator(), log: log.With(logx.String("comp", "api"))}
}
