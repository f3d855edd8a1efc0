package api

import (
	"net/http"
	"time"

	"stockwatch/internal/monitor"
	rtsup "stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/storage"
	"stockwatch/internal/task/engine"
	"stockwatch/internal/task/scheduler"
)

type statusResponse struct {
	storage.Stats
	LatestUpdateFormatted string `json:"latest_update_formatted,omitempty"`

	CurrentTime          time.Time `json:"current_time"`
	CurrentTimeFormatted string    `json:"current_time_formatted"`

	BotConfigured        bool `json:"bot_configured"`
	NotificationChannels int  `json:"notification_channels"`
	CheckInterval        int  `json:"check_interval"`

	NextCycle *time.Time           `json:"next_cycle,omitempty"`
	LastCycle *monitor.CycleReport `json:"last_cycle,omitempty"`
	Engine    *engine.Snapshot     `json:"engine,omitempty"`
	Scheduler *scheduler.Snapshot  `json:"scheduler,omitempty"`
	Runtime   *rtsup.Counters      `json:"runtime,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.d.Store.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.d.Store.GetPolicy(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.d.Clock.Now()
	resp := statusResponse{
		Stats:                stats,
		CurrentTime:          now.In(h.d.Clock.Location()),
		CurrentTimeFormatted: h.d.Clock.Format(now),
		BotConfigured:        p.HasCredential(),
		NotificationChannels: p.EnabledTargets(),
		CheckInterval:        storage.ClampInterval(p.CheckInterval),
	}
	if stats.LatestUpdate != nil {
		resp.LatestUpdateFormatted = h.d.Clock.Format(*stats.LatestUpdate)
	}
	if next := h.d.Monitor.NextCycle(); !next.IsZero() {
		resp.NextCycle = &next
	}
	if rep, ok := h.d.Monitor.LastReport(); ok {
		resp.LastCycle = &rep
	}
	if h.d.Engine != nil {
		s := h.d.Engine.Snapshot()
		s.History = nil
		resp.Engine = &s
	}
	if h.d.Scheduler != nil {
		s := h.d.Scheduler.Snapshot()
		resp.Scheduler = &s
	}
	if h.d.Runtime != nil {
		c := h.d.Runtime.Counters()
		resp.Runtime = &c
	}
	ok(w, resp)
}

type timeResponse struct {
	CurrentTime   time.Time `json:"current_time"`
	FormattedTime string    `json:"formatted_time"`
	Timezone      string    `json:"timezone"`
	Timestamp     float64   `json:"timestamp"`
	Server        string    `json:"server,omitempty"`
	Fallback      bool      `json:"fallback"`
}

// syncTime forces a network time sync. When no server answers the local
// clock is reported with fallback set; that is not an error.
func (h *Handler) syncTime(w http.ResponseWriter, r *http.Request) {
	res, err := h.d.Clock.Sync(r.Context())
	if err != nil && r.Context().Err() != nil {
		h.fail(w, r, err)
		return
	}
	loc := h.d.Clock.Location()
	t := res.Time.In(loc)
	ok(w, timeResponse{
		CurrentTime:   t,
		FormattedTime: h.d.Clock.Format(t),
		Timezone:      loc.String(),
		Timestamp:     float64(t.UnixNano()) / 1e9,
		Server:        res.Server,
		Fallback:      res.Fallback,
	})
}
