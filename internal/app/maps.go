package app

import (
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/api"
	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/monitor"
	"stockwatch/internal/reader"
	"stockwatch/internal/storage"
	telegram "stockwatch/internal/transport/telegram/adapter"
	logx "stockwatch/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config, now func() time.Time) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "sqlite", "sqlite3":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
	}
	busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy, Now: now}, nil
}

func mapClockConfig(cfg *config.Config) (clock.Config, error) {
	timeout, err := config.ParseDuration("clock.timeout", cfg.Clock.Timeout, 5*time.Second)
	if err != nil {
		return clock.Config{}, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Clock.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return clock.Config{}, fmt.Errorf("clock.timezone: %w", err)
		}
	}
	return clock.Config{
		Servers:  cfg.Clock.Servers,
		Timeout:  timeout,
		Location: loc,
		Disabled: cfg.Clock.Disabled,
	}, nil
}

func mapReaderConfig(cfg *config.Config) (reader.Config, error) {
	timeout, err := config.ParseDuration("reader.timeout", cfg.Reader.Timeout, 15*time.Second)
	if err != nil {
		return reader.Config{}, err
	}
	return reader.Config{
		Timeout:      timeout,
		UserAgent:    cfg.Reader.UserAgent,
		MaxBodyBytes: cfg.Reader.MaxBodyBytes,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDuration("telegram.send_timeout", cfg.Telegram.SendTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{APIURL: cfg.Telegram.APIURL, SendTimeout: timeout}, nil
}

func mapMonitorConfig(cfg *config.Config) (monitor.Config, error) {
	delay, err := config.ParseDuration("monitor.item_delay", cfg.Monitor.ItemDelay, time.Second)
	if err != nil {
		return monitor.Config{}, err
	}
	cycle, err := config.ParseDuration("monitor.cycle_timeout", cfg.Monitor.CycleTimeout, 0)
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{ItemDelay: delay, CycleTimeout: cycle}, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	rt, err := config.ParseDuration("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	wt, err := config.ParseDuration("http.write_timeout", cfg.HTTP.WriteTimeout, 60*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Addr:          cfg.HTTP.Addr,
		Token:         strings.TrimSpace(cfg.HTTP.Token),
		AllowInsecure: cfg.HTTP.AllowInsecure,
		Pprof:         cfg.HTTP.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
		IdleTimeout:   2 * time.Minute,
	}, nil
}
