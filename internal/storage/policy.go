package storage

import (
	"strings"
	"time"
)

const (
	DefaultCheckInterval = 120
	MinCheckInterval     = 10
	MaxCheckInterval     = 3600

	DefaultTemplateRestock = "🎉 补货通知\n📦 商品名称: {product_name}\n📈 补货数量: {stock_difference}\n📊 当前库存: {current_stock}"
	DefaultTemplateSale    = "🎉 销售通知\n📦 商品名称: {product_name}\n📈 被购买: {stock_difference}\n📊 剩余库存: {current_stock}"
)

type TargetKind string

const (
	TargetChannel  TargetKind = "channel"
	TargetGroup    TargetKind = "group"
	TargetPersonal TargetKind = "personal"
	TargetUser     TargetKind = "user"
)

// TargetKinds lists the delivery targets in fan-out order.
var TargetKinds = []TargetKind{TargetChannel, TargetGroup, TargetPersonal, TargetUser}

type Target struct {
	Enabled bool   `json:"enabled"`
	ID      string `json:"id"`
}

// Usable reports whether a message should be sent to this target.
func (t Target) Usable() bool { return t.Enabled && strings.TrimSpace(t.ID) != "" }

// Policy is the singleton notification configuration.
type Policy struct {
	BotToken string `json:"bot_token"`

	Channel  Target `json:"channel"`
	Group    Target `json:"group"`
	Personal Target `json:"personal"`
	User     Target `json:"user"`

	// CheckInterval is in seconds, clamped to [MinCheckInterval, MaxCheckInterval].
	CheckInterval int `json:"check_interval"`

	RestockEnabled bool `json:"restock_enabled"`
	SaleEnabled    bool `json:"sale_enabled"`

	TemplateRestock string `json:"template_restock"`
	TemplateSale    string `json:"template_sale"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPolicy is what a fresh database starts with.
func DefaultPolicy() Policy {
	return Policy{
		CheckInterval:   DefaultCheckInterval,
		RestockEnabled:  true,
		SaleEnabled:     true,
		TemplateRestock: DefaultTemplateRestock,
		TemplateSale:    DefaultTemplateSale,
	}
}

// HasCredential reports whether a bot token is configured.
func (p Policy) HasCredential() bool { return strings.TrimSpace(p.BotToken) != "" }

// Target returns the target configured for kind.
func (p Policy) Target(kind TargetKind) Target {
	switch kind {
	case TargetChannel:
		return p.Channel
	case TargetGroup:
		return p.Group
	case TargetPersonal:
		return p.Personal
	case TargetUser:
		return p.User
	default:
		return Target{}
	}
}

// EnabledTargets counts usable targets.
func (p Policy) EnabledTargets() int {
	n := 0
	for _, k := range TargetKinds {
		if p.Target(k).Usable() {
			n++
		}
	}
	return n
}

// Interval returns the clamped check interval as a duration.
func (p Policy) Interval() time.Duration {
	return time.Duration(ClampInterval(p.CheckInterval)) * time.Second
}

// ClampInterval maps an interval in seconds into the allowed range; zero or
// negative means the default.
func ClampInterval(sec int) int {
	switch {
	case sec <= 0:
		return DefaultCheckInterval
	case sec < MinCheckInterval:
		return MinCheckInterval
	case sec > MaxCheckInterval:
		return MaxCheckInterval
	default:
		return sec
	}
}

// Normalize clamps the interval and trims identifiers.
func (p Policy) Normalize() Policy {
	p.BotToken = strings.TrimSpace(p.BotToken)
	p.Channel.ID = strings.TrimSpace(p.Channel.ID)
	p.Group.ID = strings.TrimSpace(p.Group.ID)
	p.Personal.ID = strings.TrimSpace(p.Personal.ID)
	p.User.ID = strings.TrimSpace(p.User.ID)
	p.CheckInterval = ClampInterval(p.CheckInterval)
	return p
}
