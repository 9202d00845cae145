package thermostat

import (
	"fmt"
	"time"
)

// Scheduler resolves which profile governs a thermostat at a point in time
// and when the next automatic transition occurs. It is pure computation and
// safe for concurrent use.
type Scheduler struct{}

// NewScheduler creates a scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// ResolveActiveProfile returns the profile governing the thermostat at now
// and the next schedule boundary.
//
// A pinned profile stays active indefinitely and the boundary is nil.
// Otherwise the profile owning the schedule window covering now wins; when
// no window covers now, no profile is active. Two windows covering the same
// instant is a configuration error, not a precedence decision.
func (s *Scheduler) ResolveActiveProfile(t *Thermostat, now time.Time) (*Profile, *time.Time, error) {
	if t.ActiveProfileID != nil {
		profile, ok := t.Profile(*t.ActiveProfileID)
		if !ok {
			return nil, nil, fmt.Errorf("%w: pinned profile %q", ErrProfileNotFound, *t.ActiveProfileID)
		}
		return profile, nil, nil
	}

	var active *Profile
	for i := range t.Profiles {
		p := &t.Profiles[i]
		for j := range p.Schedule {
			if !p.Schedule[j].Contains(now) {
				continue
			}
			if active != nil && active != p {
				return nil, nil, fmt.Errorf("%w: profiles %q and %q at %s",
					ErrScheduleOverlap, active.Name, p.Name, now.Format(time.RFC3339))
			}
			active = p
		}
	}

	next := s.NextBoundary(t, now)
	return active, next, nil
}

// Setpoint returns the target governing the profile at now, or false when no
// window covers the instant.
func (s *Scheduler) Setpoint(p *Profile, now time.Time) (Setpoint, bool) {
	if p == nil {
		return Setpoint{}, false
	}
	for i := range p.Schedule {
		if p.Schedule[i].Contains(now) {
			return Setpoint{Target: p.Schedule[i].Target, Mode: p.Schedule[i].Mode}, true
		}
	}
	return Setpoint{}, false
}

// NextBoundary returns the nearest future window start or end across all
// profiles, or nil when no schedule entry produces one. The scan covers the
// next eight days so every weekday-restricted entry gets a chance to fire.
func (s *Scheduler) NextBoundary(t *Thermostat, now time.Time) *time.Time {
	var nearest *time.Time

	consider := func(candidate time.Time) {
		if !candidate.After(now) {
			return
		}
		if nearest == nil || candidate.Before(*nearest) {
			nearest = &candidate
		}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := range t.Profiles {
		for j := range t.Profiles[i].Schedule {
			e := &t.Profiles[i].Schedule[j]
			// Offset -1 catches the tail of a wrapped window that started
			// yesterday and ends later today.
			for offset := -1; offset <= 8; offset++ {
				day := midnight.AddDate(0, 0, offset)
				if !e.appliesOn(day.Weekday()) {
					continue
				}
				consider(day.Add(time.Duration(e.StartMinute) * time.Minute))
				if e.wraps() {
					// A wrapped window started on this day ends on the next.
					consider(day.AddDate(0, 0, 1).Add(time.Duration(e.EndMinute) * time.Minute))
				} else {
					consider(day.Add(time.Duration(e.EndMinute) * time.Minute))
				}
			}
		}
	}

	return nearest
}
