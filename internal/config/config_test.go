package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDecodeFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file string
		body string
	}{
		{"json", "c.json", `{"logging":{"level":"debug"},"http":{"addr":"127.0.0.1:9090"},"monitor":{"item_delay":"2s"}}`},
		{"yaml", "c.yaml", "logging:\n  level: debug\nhttp:\n  addr: 127.0.0.1:9090\nmonitor:\n  item_delay: 2s\n"},
		{"toml", "c.toml", "[logging]\nlevel = \"debug\"\n[http]\naddr = \"127.0.0.1:9090\"\n[monitor]\nitem_delay = \"2s\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tc.file, []byte(tc.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if cfg.Logging.Level != "debug" || cfg.HTTP.Addr != "127.0.0.1:9090" || cfg.Monitor.ItemDelay != "2s" {
				t.Fatalf("cfg=%+v", cfg)
			}
			// defaults fill the rest
			if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != DefaultDBPath {
				t.Fatalf("storage defaults=%+v", cfg.Storage)
			}
			if cfg.Events.Subject != DefaultEventSubject || len(cfg.Clock.Servers) != len(DefaultNTPServers) {
				t.Fatalf("defaults not applied: %+v %+v", cfg.Events, cfg.Clock)
			}
			if err := Validate(cfg); err != nil {
				t.Fatalf("Validate: %v", err)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file string
		body string
	}{
		{"unknown json field", "c.json", `{"loging":{}}`},
		{"unknown yaml field", "c.yml", "monitor:\n  delay: 1s\n"},
		{"trailing data", "c.json", `{}{}`},
		{"bad toml", "c.toml", "[http\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.file, []byte(tc.body)); err == nil {
				t.Fatalf("expected decode error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad duration", func(c *Config) { c.Reader.Timeout = "soon" }, "reader.timeout"},
		{"negative duration", func(c *Config) { c.Monitor.CycleTimeout = "-1s" }, "monitor.cycle_timeout"},
		{"bad timezone", func(c *Config) { c.Clock.Timezone = "Mars/Olympus" }, "clock.timezone"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, "Driver"},
		{"bad nats url", func(c *Config) { c.Events.NATSURL = "not a url" }, "NATSURL"},
		{"negative history", func(c *Config) { c.Monitor.HistorySize = -1 }, "HistorySize"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			ApplyDefaults(cfg)
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{}
	ApplyDefaults(oldCfg)
	newCfg := *oldCfg
	newCfg.Logging.Level = "debug"
	newCfg.HTTP.Token = "secret"
	newCfg.Clock.Servers = []string{"pool.ntp.org"}

	changed, attrs := SummarizeConfigChange(oldCfg, &newCfg)
	want := []string{"logging", "clock", "http"}
	for _, w := range want {
		if !slices.Contains(changed, w) {
			t.Fatalf("changed=%v, missing %s", changed, w)
		}
	}
	if len(changed) != len(want) || len(attrs) == 0 {
		t.Fatalf("changed=%v attrs=%d", changed, len(attrs))
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{"clock", "http"}) {
		t.Fatalf("restart required=%v", got)
	}

	if changed, _ := SummarizeConfigChange(oldCfg, oldCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}

func TestManagerLoadMissingFile(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.json"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr || m.Get() != cfg {
		t.Fatalf("cfg=%+v", cfg.HTTP)
	}
}

func TestManagerWatchPublishesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "stockwatch.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	// Each write restarts the reload debounce, so rewrite slower than it.
	tick := time.NewTicker(2 * reloadDebounce)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("published level=%q", cfg.Logging.Level)
			}
			if m.Get().Logging.Level != "debug" {
				t.Fatalf("not committed")
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			// Rewrite until the watcher is up and picks the change.
			_ = os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644)
		case <-deadline:
			t.Fatalf("no config published")
		}
	}
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if err := os.WriteFile(path, []byte(`{"reader":{"timeout":"later"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg.Reader)
	default:
	}
	if m.Get().Reader.Timeout != "15s" {
		t.Fatalf("committed config changed: %+v", m.Get().Reader)
	}
}
