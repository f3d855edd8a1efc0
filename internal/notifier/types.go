package notifier

import (
	"time"

	"stockwatch/internal/storage"
)

// Kind classifies a stock change for notification purposes.
type Kind string

const (
	KindNone    Kind = ""
	KindRestock Kind = "restock"
	KindSale    Kind = "sale"
)

// Config controls dispatch behavior.
type Config struct {
	// RatePerSec bounds outgoing sends across all targets.
	RatePerSec int
	// ButtonText labels the purchase link button.
	ButtonText string
}

const DefaultButtonText = "🛒 前往购买"

// DispatchResult reports what a dispatch did. A zero Attempted with a
// non-empty Skipped means nothing was sent and nothing was recorded.
type DispatchResult struct {
	Attempted int                        `json:"attempted"`
	Succeeded int                        `json:"succeeded"`
	Status    storage.NotificationStatus `json:"status,omitempty"`
	Message   string                     `json:"message,omitempty"`
	Skipped   string                     `json:"skipped,omitempty"`
}

// TargetResult is one row of a test-notification run.
type TargetResult struct {
	Target  storage.TargetKind `json:"target"`
	ChatID  string             `json:"chat_id"`
	Success bool               `json:"success"`
}

// DispatchEvent is published on the event bus after every recorded dispatch.
type DispatchEvent struct {
	ItemID    int64                      `json:"item_id"`
	Kind      Kind                       `json:"kind"`
	Attempted int                        `json:"attempted"`
	Succeeded int                        `json:"succeeded"`
	Status    storage.NotificationStatus `json:"status"`
	At        time.Time                  `json:"at"`
}
