package monitor

import "stockwatch/internal/notifier"

// Classification is the notification decision for one quantity change.
type Classification struct {
	ShouldNotify bool
	Kind         notifier.Kind
	Magnitude    int
}

// Classify maps (old, new) to a restock, a sale or nothing. Magnitude is the
// absolute difference.
func Classify(old, new int) Classification {
	switch {
	case new > old:
		return Classification{ShouldNotify: true, Kind: notifier.KindRestock, Magnitude: new - old}
	case new < old:
		return Classification{ShouldNotify: true, Kind: notifier.KindSale, Magnitude: old - new}
	default:
		return Classification{Kind: notifier.KindNone}
	}
}
