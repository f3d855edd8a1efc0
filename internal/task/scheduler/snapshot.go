package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	snap := Snapshot{
		Enabled:   s.cfg.Enabled,
		Running:   s.c != nil,
		Timezone:  loc.String(),
		Schedules: make([]ScheduleInfo, 0, len(s.defs)),
	}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Every: d.every, Timeout: d.timeout, Skipped: d.skipped.Load()}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next.In(loc)
			if !e.Prev.IsZero() {
				it.Prev = e.Prev.In(loc)
			}
		}
		if s.engine != nil {
			it.Busy = s.engine.StateFor(d.name).Busy()
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}

// Next returns the next trigger time of name, or zero if it is not scheduled.
func (s *Service) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok || s.c == nil || d.entryID == 0 {
		return time.Time{}
	}
	return s.c.Entry(d.entryID).Next
}
