package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	// The default timezone must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, duration strings and the timezone name.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(parts, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"clock.timeout", cfg.Clock.Timeout},
		{"reader.timeout", cfg.Reader.Timeout},
		{"monitor.item_delay", cfg.Monitor.ItemDelay},
		{"monitor.cycle_timeout", cfg.Monitor.CycleTimeout},
		{"telegram.send_timeout", cfg.Telegram.SendTimeout},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDuration(d.path, d.raw, 0); err != nil {
			return err
		}
	}

	if tz := strings.TrimSpace(cfg.Clock.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("clock.timezone: %w", err)
		}
	}
	return nil
}

// ParseDuration parses a Go duration string. Blank or zero values yield def;
// negative values are rejected. path names the field in errors.
func ParseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case d == 0:
		return def, nil
	}
	return d, nil
}
