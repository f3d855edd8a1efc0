package config

import (
	"reflect"
	"strings"

	logx "stockwatch/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. URLs that may embed credentials are reported
// only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if !reflect.DeepEqual(oldCfg.Clock, newCfg.Clock) {
		changed = append(changed, "clock")
		attrs = append(attrs,
			logx.Int("clock.servers", len(newCfg.Clock.Servers)),
			logx.String("clock.timezone", newCfg.Clock.Timezone),
			logx.Bool("clock.disabled", newCfg.Clock.Disabled),
		)
	}

	if oldCfg.Reader != newCfg.Reader {
		changed = append(changed, "reader")
		attrs = append(attrs, logx.String("reader.timeout", newCfg.Reader.Timeout))
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.Bool("monitor.paused", newCfg.Monitor.Paused),
			logx.String("monitor.item_delay", newCfg.Monitor.ItemDelay),
		)
	}

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.String("telegram.send_timeout", newCfg.Telegram.SendTimeout))
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.disabled", newCfg.HTTP.Disabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		attrs = append(attrs,
			logx.Bool("events.nats_set", strings.TrimSpace(newCfg.Events.NATSURL) != ""),
			logx.String("events.subject", newCfg.Events.Subject),
		)
	}

	return changed, attrs
}

// RestartRequired reports sections whose changes only take effect on
// restart. Logging applies live; monitor.paused applies live and the other
// monitor fields are checked by the caller.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "storage", "clock", "reader", "telegram", "http", "events":
			out = append(out, c)
		}
	}
	return out
}
