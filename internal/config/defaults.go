package config

import "strings"

const (
	DefaultDBPath       = "./stockwatch.db"
	DefaultTimezone     = "Asia/Shanghai"
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	DefaultEventSubject = "stockwatch.stock.changed"
	DefaultTelegramAPI  = "https://api.telegram.org"
	DefaultHTTPAddr     = "127.0.0.1:8080"
)

// DefaultNTPServers is the ordered server list used when clock.servers is omitted.
var DefaultNTPServers = []string{
	"time.windows.com",
	"pool.ntp.org",
	"time.nist.gov",
	"cn.pool.ntp.org",
	"ntp.ntsc.ac.cn",
}

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	setStr := func(p *string, def string) {
		if strings.TrimSpace(*p) == "" {
			*p = def
		}
	}

	setStr(&cfg.Logging.Level, "info")

	setStr(&cfg.Storage.Driver, "sqlite")
	setStr(&cfg.Storage.Path, DefaultDBPath)
	setStr(&cfg.Storage.BusyTimeout, "5s")

	if len(cfg.Clock.Servers) == 0 {
		cfg.Clock.Servers = append([]string(nil), DefaultNTPServers...)
	}
	setStr(&cfg.Clock.Timeout, "5s")
	setStr(&cfg.Clock.Timezone, DefaultTimezone)

	setStr(&cfg.Reader.Timeout, "15s")
	setStr(&cfg.Reader.UserAgent, DefaultUserAgent)
	if cfg.Reader.MaxBodyBytes == 0 {
		cfg.Reader.MaxBodyBytes = 4 << 20
	}

	setStr(&cfg.Monitor.ItemDelay, "1s")
	if cfg.Monitor.HistorySize == 0 {
		cfg.Monitor.HistorySize = 50
	}

	setStr(&cfg.Telegram.APIURL, DefaultTelegramAPI)
	setStr(&cfg.Telegram.SendTimeout, "10s")

	setStr(&cfg.HTTP.Addr, DefaultHTTPAddr)
	setStr(&cfg.HTTP.ReadTimeout, "10s")
	setStr(&cfg.HTTP.WriteTimeout, "60s")

	setStr(&cfg.Events.Subject, DefaultEventSubject)
}
