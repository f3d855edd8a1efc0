// Package clock provides network-synchronized wall time.
//
// NTP servers are queried in order; the first valid answer sets the offset
// applied to the local clock. When every server fails the offset is left
// unchanged (zero before the first success), so Now always returns a time.
package clock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/beevik/ntp"

	logx "stockwatch/pkg/logx"
)

// DisplayLayout is the human-readable timestamp used in messages and the API.
const DisplayLayout = "2006-01-02 15:04:05"

var ErrNoServer = errors.New("no ntp server answered")

type Config struct {
	Servers  []string
	Timeout  time.Duration
	Location *time.Location
	// Disabled skips network queries; Now is the local clock.
	Disabled bool
}

// Querier returns the offset of the local clock against server.
type Querier func(server string, timeout time.Duration) (time.Duration, error)

// SyncResult reports which server (if any) answered.
type SyncResult struct {
	Server   string        `json:"server,omitempty"`
	Offset   time.Duration `json:"offset"`
	Time     time.Time     `json:"time"`
	Fallback bool          `json:"fallback"`
}

type Source struct {
	cfg   Config
	log   logx.Logger
	query Querier
	local func() time.Time

	mu     sync.RWMutex
	offset time.Duration
	last   SyncResult
}

func New(cfg Config, log logx.Logger) *Source {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Source{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "clock")),
		query: queryNTP,
		local: time.Now,
	}
}

// WithQuerier swaps the network query, for tests.
func (s *Source) WithQuerier(q Querier) *Source {
	s.query = q
	return s
}

func queryNTP(server string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Version: 3, Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

// Location is the display timezone.
func (s *Source) Location() *time.Location { return s.cfg.Location }

// Now returns the local clock corrected by the last synced offset, in the
// display timezone. It never blocks on the network.
func (s *Source) Now() time.Time {
	s.mu.RLock()
	off := s.offset
	s.mu.RUnlock()
	return s.local().Add(off).In(s.cfg.Location)
}

// Format renders t in the display timezone.
func (s *Source) Format(t time.Time) string {
	return t.In(s.cfg.Location).Format(DisplayLayout)
}

// Sync queries the configured servers in order and keeps the first offset
// that validates. On total failure it returns ErrNoServer together with a
// fallback result carrying the local time.
func (s *Source) Sync(ctx context.Context) (SyncResult, error) {
	if s.cfg.Disabled || len(s.cfg.Servers) == 0 {
		return s.fallback(), nil
	}

	for _, server := range s.cfg.Servers {
		server = strings.TrimSpace(server)
		if server == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.fallback(), err
		}
		off, err := s.query(server, s.cfg.Timeout)
		if err != nil {
			s.log.Warn("ntp query failed", logx.String("server", server), logx.Err(err))
			continue
		}

		s.mu.Lock()
		s.offset = off
		s.mu.Unlock()

		res := SyncResult{Server: server, Offset: off, Time: s.Now()}
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
		s.log.Debug("ntp synced", logx.String("server", server), logx.Duration("offset", off))
		return res, nil
	}

	s.log.Warn("all ntp servers unavailable; using local clock")
	return s.fallback(), ErrNoServer
}

func (s *Source) fallback() SyncResult {
	return SyncResult{Time: s.Now(), Fallback: true}
}

// NetworkNow syncs and returns the corrected time; failures fall back to Now.
func (s *Source) NetworkNow(ctx context.Context) time.Time {
	res, _ := s.Sync(ctx)
	return res.Time
}

// LastSync returns the most recent successful sync, if any.
func (s *Source) LastSync() (SyncResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last.Server != ""
}

// Run resyncs every interval until ctx is done.
func (s *Source) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 10 * time.Minute
	}
	_, _ = s.Sync(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_, _ = s.Sync(ctx)
		}
	}
}
