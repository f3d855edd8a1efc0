package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/storage"
	kit "stockwatch/internal/transport"
	logx "stockwatch/pkg/logx"
)

// Store is the subset of storage the dispatcher needs.
type Store interface {
	GetItem(ctx context.Context, id int64) (storage.Item, error)
	AppendNotification(ctx context.Context, rec storage.NotificationRecord) (int64, error)
}

// Clock supplies the check time shown in messages.
type Clock interface {
	Now() time.Time
	Format(t time.Time) string
}

type Dispatcher struct {
	cfg     Config
	store   Store
	sender  kit.Sender
	clock   Clock
	bus     eventbus.Bus
	log     logx.Logger
	limiter *rate.Limiter
}

func New(cfg Config, store Store, sender kit.Sender, clock Clock, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if strings.TrimSpace(cfg.ButtonText) == "" {
		cfg.ButtonText = DefaultButtonText
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   store,
		sender:  sender,
		clock:   clock,
		bus:     bus,
		log:     log.With(logx.String("comp", "notifier")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func kindEnabled(p storage.Policy, kind Kind) bool {
	switch kind {
	case KindRestock:
		return p.RestockEnabled
	case KindSale:
		return p.SaleEnabled
	default:
		return false
	}
}

// Dispatch notifies every enabled target about a change of kind and
// magnitude on item. Without a credential, or with the kind disabled, it does
// nothing. Otherwise it records exactly one NotificationRecord.
func (d *Dispatcher) Dispatch(ctx context.Context, p storage.Policy, item storage.Item, kind Kind, magnitude int) DispatchResult {
	log := d.log.With(logx.Int64("item_id", item.ID), logx.String("kind", string(kind)))

	if !p.HasCredential() {
		log.Debug("dispatch skipped: no bot token")
		return DispatchResult{Skipped: "no credential"}
	}
	if !kindEnabled(p, kind) {
		log.Debug("dispatch skipped: kind disabled")
		return DispatchResult{Skipped: "kind disabled"}
	}

	// Format from the committed state, not the caller's snapshot.
	if fresh, err := d.store.GetItem(ctx, item.ID); err == nil {
		item = fresh
	} else {
		log.Warn("item re-read failed; formatting from snapshot", logx.Err(err))
	}

	res := DispatchResult{}
	msg, renderErr := FormatMessage(p, item, kind, magnitude, d.clock.Format(d.clock.Now()))
	if renderErr != nil {
		log.Warn("template render failed; used fallback", logx.Err(renderErr))
	}

	var aff *kit.Affordance
	if buy := strings.TrimSpace(item.BuyURL); buy != "" {
		aff = &kit.Affordance{Text: d.cfg.ButtonText, URL: buy}
	}

	if err := d.fanOut(ctx, p, msg, aff, &res); err != nil {
		res.Status = storage.StatusError
		res.Message = err.Error()
		log.Error("delivery failed", logx.Err(err))
	} else {
		res.Message = msg
		if res.Succeeded > 0 {
			res.Status = storage.StatusSent
			log.Info("notification sent", logx.Int("targets", res.Succeeded), logx.Int("attempted", res.Attempted))
		} else {
			res.Status = storage.StatusFailed
			log.Warn("notification not delivered", logx.Int("attempted", res.Attempted))
		}
	}

	d.record(ctx, item.ID, kind, res)
	return res
}

// fanOut sends to each usable target independently. A panic anywhere in the
// delivery layer is returned as an error.
func (d *Dispatcher) fanOut(ctx context.Context, p storage.Policy, msg string, aff *kit.Affordance, res *DispatchResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()

	for _, k := range storage.TargetKinds {
		t := p.Target(k)
		if !t.Usable() {
			continue
		}
		if werr := d.limiter.Wait(ctx); werr != nil {
			return werr
		}
		res.Attempted++
		if d.sender.SendToTarget(ctx, p.BotToken, t.ID, msg, aff) {
			res.Succeeded++
		} else {
			d.log.Warn("target send failed", logx.String("target", string(k)))
		}
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, itemID int64, kind Kind, res DispatchResult) {
	// Record even if the cycle is being cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	now := d.clock.Now()
	_, err := d.store.AppendNotification(rctx, storage.NotificationRecord{
		ItemID:    itemID,
		Kind:      string(kind),
		Message:   res.Message,
		Status:    res.Status,
		CreatedAt: now,
	})
	if err != nil {
		d.log.Warn("notification record failed", logx.Int64("item_id", itemID), logx.Err(err))
	}

	d.bus.Publish(eventbus.Event{
		Type: eventbus.TypeNotificationDispatched,
		Time: now,
		Data: DispatchEvent{
			ItemID:    itemID,
			Kind:      kind,
			Attempted: res.Attempted,
			Succeeded: res.Succeeded,
			Status:    res.Status,
			At:        now,
		},
	})
}

// TestTargets sends a sample message to the enabled targets. When only is
// non-empty, just that target kind is tried (it must still be configured).
// Nothing is recorded.
func (d *Dispatcher) TestTargets(ctx context.Context, p storage.Policy, only storage.TargetKind) ([]TargetResult, error) {
	if !p.HasCredential() {
		return nil, fmt.Errorf("%w: bot token not configured", storage.ErrInvalid)
	}
	msg := TestMessage(d.clock.Format(d.clock.Now()))

	var out []TargetResult
	for _, k := range storage.TargetKinds {
		if only != "" && only != k {
			continue
		}
		t := p.Target(k)
		if !t.Usable() {
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return out, err
		}
		ok := d.sender.SendToTarget(ctx, p.BotToken, t.ID, msg, nil)
		out = append(out, TargetResult{Target: k, ChatID: t.ID, Success: ok})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no enabled target", storage.ErrInvalid)
	}
	return out, nil
}
