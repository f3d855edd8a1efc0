package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

// Runner executes monitoring cycles and single-item checks.
type Runner struct {
	cfg    Config
	store  Store
	reader Reader
	notify Notifier
	clock  Clock
	bus    eventbus.Bus
	log    logx.Logger
}

func NewRunner(cfg Config, store Store, reader Reader, notify Notifier, clock Clock, bus eventbus.Bus, log logx.Logger) *Runner {
	if cfg.ItemDelay == 0 {
		cfg.ItemDelay = time.Second
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Runner{
		cfg:    cfg,
		store:  store,
		reader: reader,
		notify: notify,
		clock:  clock,
		bus:    bus,
		log:    log.With(logx.String("comp", "monitor")),
	}
}

func (r *Runner) throttle() *rate.Limiter {
	if r.cfg.ItemDelay < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(r.cfg.ItemDelay), 1)
}

// RunCycle checks every active item once, in order. The item list and the
// policy are read once at the start and used for the whole cycle. A failing
// item is logged and counted; only cancellation or a failure to load the
// cycle's inputs ends the cycle early.
func (r *Runner) RunCycle(ctx context.Context) (rep CycleReport, err error) {
	rep = CycleReport{ID: uuid.NewString(), Started: r.clock.Now()}
	log := r.log.With(logx.String("cycle_id", rep.ID))
	start := time.Now()
	defer func() {
		rep.Duration = time.Since(start)
		if err != nil {
			r.log.Warn("cycle ended early", logx.String("cycle_id", rep.ID), logx.Err(err))
		}
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleFinished, Data: rep})
	}()

	items, err := r.store.ListActiveItems(ctx)
	if err != nil {
		return rep, fmt.Errorf("list active items: %w", err)
	}
	policy, err := r.store.GetPolicy(ctx)
	if err != nil {
		return rep, fmt.Errorf("load policy: %w", err)
	}
	log.Info("cycle started",
		logx.Int("items", len(items)),
		logx.Bool("notifications", policy.HasCredential()),
		logx.Int("targets", policy.EnabledTargets()),
	)

	lim := r.throttle()
	for _, item := range items {
		if err := lim.Wait(ctx); err != nil {
			return rep, err
		}
		rep.Checked++
		changed, notified, err := r.checkOne(ctx, rep.ID, policy, item)
		if err != nil {
			rep.Failed++
			log.Warn("item check failed", logx.Int64("item_id", item.ID), logx.String("name", item.Name), logx.Err(err))
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			continue
		}
		if changed {
			rep.Changed++
		}
		if notified {
			rep.Notified++
		}
	}

	log.Info("cycle finished",
		logx.Int("checked", rep.Checked),
		logx.Int("changed", rep.Changed),
		logx.Int("failed", rep.Failed),
		logx.Int("notified", rep.Notified),
		logx.Duration("dur", time.Since(start)),
	)
	return rep, nil
}

// checkOne runs read → update → classify → dispatch for one item. A panic in
// any step is returned as an error so the cycle can go on.
func (r *Runner) checkOne(ctx context.Context, cycleID string, policy storage.Policy, item storage.Item) (changed, notified bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.log.Error("item check panicked", logx.Int64("item_id", item.ID), logx.Any("panic", p), logx.Stack(logx.StackTrace(3, 16)))
		}
	}()

	qty, err := r.reader.Read(ctx, item.URL, item.Selector)
	if err != nil {
		return false, false, fmt.Errorf("read: %w", err)
	}
	res, err := r.store.AtomicUpdate(ctx, item.ID, qty)
	if err != nil {
		return false, false, fmt.Errorf("update: %w", err)
	}
	if !res.Changed {
		r.log.Debug("stock unchanged", logx.Int64("item_id", item.ID), logx.Int("qty", qty))
		return false, false, nil
	}

	c := Classify(res.Old, res.New)
	if c.ShouldNotify {
		d := r.notify.Dispatch(ctx, policy, item, c.Kind, c.Magnitude)
		notified = d.Status == storage.StatusSent
	}
	r.publishChange(cycleID, item, res, c, notified)
	return true, notified, nil
}

// CheckItem reads one item now and records the reading. It does not notify.
func (r *Runner) CheckItem(ctx context.Context, id int64) (CheckResult, error) {
	item, err := r.store.GetItem(ctx, id)
	if err != nil {
		return CheckResult{}, err
	}
	qty, err := r.reader.Read(ctx, item.URL, item.Selector)
	if err != nil {
		return CheckResult{ItemID: id}, err
	}
	res, err := r.store.AtomicUpdate(ctx, item.ID, qty)
	if err != nil {
		return CheckResult{ItemID: id}, err
	}
	if res.Changed {
		r.publishChange("", item, res, Classify(res.Old, res.New), false)
	}
	r.log.Info("item checked",
		logx.Int64("item_id", id),
		logx.Int("stock", res.New),
		logx.Int("old_stock", res.Old),
		logx.Bool("changed", res.Changed),
	)
	return CheckResult{ItemID: id, Stock: res.New, OldStock: res.Old, Changed: res.Changed, Version: res.Version}, nil
}

func (r *Runner) publishChange(cycleID string, item storage.Item, res storage.UpdateResult, c Classification, notified bool) {
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeStockChanged, Data: ChangeEvent{
		CycleID:  cycleID,
		ItemID:   item.ID,
		Name:     item.Name,
		URL:      item.URL,
		Old:      res.Old,
		New:      res.New,
		Delta:    res.New - res.Old,
		Kind:     c.Kind,
		Notified: notified,
		At:       r.clock.Now(),
	}})
}
