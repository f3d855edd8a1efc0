package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
	// ErrConflict means the row changed between read and write.
	ErrConflict = errors.New("concurrent modification")
	ErrStorage  = errors.New("storage failure")
	ErrInvalid  = errors.New("invalid input")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default

	// Now supplies timestamps for writes. Defaults to time.Now.
	Now func() time.Time
}

// Item is a monitored product page.
type Item struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	URL              string    `json:"url"`
	Selector         string    `json:"selector"`
	CurrentQuantity  int       `json:"current_quantity"`
	PreviousQuantity int       `json:"previous_quantity"`
	Version          int64     `json:"version"`
	Active           bool      `json:"active"`
	BuyURL           string    `json:"buy_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type NewItem struct {
	Name     string
	URL      string
	Selector string
	BuyURL   string
	// Quantity seeds current_quantity; the first successful read compares
	// against it.
	Quantity int
	Inactive bool
}

// UpdateResult is the outcome of AtomicUpdate.
type UpdateResult struct {
	Changed bool
	Old     int
	New     int
	Version int64
}

type ChangeType string

const (
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
)

// StockEvent is an append-only history row written when an update changes
// the quantity.
type StockEvent struct {
	ID             int64      `json:"id"`
	ItemID         int64      `json:"item_id"`
	QuantityBefore int        `json:"quantity_before"`
	QuantityAfter  int        `json:"quantity_after"`
	Delta          int        `json:"delta"`
	ChangeType     ChangeType `json:"change_type"`
	CreatedAt      time.Time  `json:"created_at"`
}

type NotificationStatus string

const (
	StatusAttempting NotificationStatus = "attempting"
	StatusSent       NotificationStatus = "sent"
	StatusFailed     NotificationStatus = "failed"
	StatusError      NotificationStatus = "error"
)

// NotificationRecord captures the aggregate outcome of one dispatch.
type NotificationRecord struct {
	ID        int64              `json:"id"`
	ItemID    int64              `json:"item_id"`
	ItemName  string             `json:"item_name,omitempty"`
	Kind      string             `json:"kind"`
	Message   string             `json:"message"`
	Status    NotificationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// Stats summarizes the item table.
type Stats struct {
	TotalItems    int        `json:"total_items"`
	ActiveItems   int        `json:"active_items"`
	InStockItems  int        `json:"in_stock_items"`
	OutStockItems int        `json:"out_stock_items"`
	LatestUpdate  *time.Time `json:"latest_update,omitempty"`
}
