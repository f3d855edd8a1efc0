package config

// Config is the process-level configuration. It covers infrastructure only;
// the notification policy (bot credential, targets, interval, templates) is
// persisted in storage and edited through the admin API.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Clock    ClockConfig    `json:"clock"`
	Reader   ReaderConfig   `json:"reader"`
	Monitor  MonitorConfig  `json:"monitor"`
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http"`
	Events   EventsConfig   `json:"events"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./stockwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ClockConfig controls the network time source.
//
// Servers are tried in order; when none answers within Timeout the local
// clock is used.
type ClockConfig struct {
	Servers  []string `json:"servers,omitempty" validate:"omitempty,dive,required"`
	Timeout  string   `json:"timeout,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
	// Disabled skips NTP entirely and always uses the local clock.
	Disabled bool `json:"disabled,omitempty"`
}

type ReaderConfig struct {
	Timeout      string `json:"timeout,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty" validate:"gte=0"`
}

// MonitorConfig controls cycle execution.
//
// Defaults (when fields are omitted/zero):
//   - item_delay: "1s"
//   - cycle_timeout: "0s" (disabled)
//   - history_size: 50
type MonitorConfig struct {
	// Paused disables the periodic trigger; manual checks still work.
	Paused       bool   `json:"paused,omitempty"`
	ItemDelay    string `json:"item_delay,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`
	HistorySize  int    `json:"history_size,omitempty" validate:"gte=0"`
}

// TelegramConfig controls the Bot API client. The bot token itself lives in
// the stored notification policy.
type TelegramConfig struct {
	APIURL      string `json:"api_url,omitempty" validate:"omitempty,url"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// HTTPConfig controls the admin API server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback Addr requires Token, or AllowInsecure.
//
// The API is served unless Disabled is set.
type HTTPConfig struct {
	Disabled      bool   `json:"disabled,omitempty"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	// Pprof mounts net/http/pprof under /debug.
	Pprof        bool   `json:"pprof,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// EventsConfig controls the optional NATS export of stock change events.
type EventsConfig struct {
	NATSURL string `json:"nats_url,omitempty" validate:"omitempty,url"`
	Subject string `json:"subject,omitempty"`
}
