package storage

import (
	"context"
	"errors"
	"strings"

	logx "stockwatch/pkg/logx"
)

// Store is the persistence API used by the monitor, notifier and admin API.
type Store interface {
	CreateItem(ctx context.Context, in NewItem) (Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	ListActiveItems(ctx context.Context) ([]Item, error)
	SetItemActive(ctx context.Context, id int64, active bool) (Item, error)

	// AtomicUpdate records a fresh quantity reading for an item. It sets
	// previous := current, current := qty, bumps version and updated_at, and
	// appends a StockEvent only when the quantity changed. All or nothing.
	AtomicUpdate(ctx context.Context, id int64, qty int) (UpdateResult, error)
	ListEvents(ctx context.Context, itemID int64, limit int) ([]StockEvent, error)

	AppendNotification(ctx context.Context, rec NotificationRecord) (int64, error)
	ListNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
	ClearNotifications(ctx context.Context) (int64, error)

	// GetPolicy returns the stored policy, creating it with defaults on first use.
	GetPolicy(ctx context.Context) (Policy, error)
	SavePolicy(ctx context.Context, p Policy) (Policy, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}

	switch driver {
	case "sqlite", "sqlite3":
		st, err := openSQLite(context.Background(), cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
