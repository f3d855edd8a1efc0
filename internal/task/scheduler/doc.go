// Package scheduler turns named interval schedules into task engine
// submissions.
//
// The scheduler only triggers; execution, overlap gating, retries and
// history live in the task engine. Schedules are keyed by name, so
// registering a name again replaces its entry instead of adding a second one.
package scheduler
