package thermostat

import (
	"fmt"
	"regexp"
	"time"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

	// Size limits to keep aggregates bounded.
	maxProfiles        = 50
	maxRooms           = 100
	maxScheduleEntries = 100
	maxRoomChannels    = 50
)

var slugRegex = regexp.MustCompile(slugPattern)

// ValidateThermostat performs comprehensive validation on a thermostat
// aggregate. Returns an error describing the first validation failure found.
func ValidateThermostat(t *Thermostat) error {
	if t == nil {
		return ErrInvalidThermostat
	}

	if err := ValidateSlug(t.Slug); err != nil {
		return err
	}
	if t.UserID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidThermostat)
	}

	if len(t.Profiles) > maxProfiles {
		return fmt.Errorf("%w: too many profiles (max %d)", ErrInvalidThermostat, maxProfiles)
	}
	for i := range t.Profiles {
		if err := ValidateProfile(&t.Profiles[i]); err != nil {
			return err
		}
	}

	// Schedule windows compete across all profiles of a thermostat, so
	// overlap is checked aggregate-wide, not per profile.
	if err := ValidateSchedules(t.Profiles); err != nil {
		return err
	}

	if len(t.Rooms) > maxRooms {
		return fmt.Errorf("%w: too many rooms (max %d)", ErrInvalidThermostat, maxRooms)
	}
	for i := range t.Rooms {
		if err := ValidateRoom(&t.Rooms[i]); err != nil {
			return err
		}
	}

	// Referential integrity: the pinned profile must be owned.
	if t.ActiveProfileID != nil {
		if _, ok := t.Profile(*t.ActiveProfileID); !ok {
			return fmt.Errorf("%w: active profile %q", ErrProfileNotFound, *t.ActiveProfileID)
		}
	}

	// Runtime state keys must reference configured rooms, and a room must
	// never hold an action it has no devices for.
	for roomID, state := range t.RoomsState {
		room, ok := t.Room(roomID)
		if !ok {
			return fmt.Errorf("%w: state references room %q", ErrRoomNotFound, roomID)
		}
		if err := ValidateAction(state.Action); err != nil {
			return err
		}
		if !room.Supports(state.Action) {
			return fmt.Errorf("%w: room %q cannot hold action %q", ErrActionUnsupported, roomID, state.Action)
		}
	}

	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks a URL-safe slug.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with hyphens", ErrInvalidSlug, slug)
	}
	return nil
}

// ValidateProfile checks a single profile's name and schedule entries.
func ValidateProfile(p *Profile) error {
	if p.ID == "" {
		return fmt.Errorf("%w: profile id is required", ErrInvalidThermostat)
	}
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if len(p.Schedule) > maxScheduleEntries {
		return fmt.Errorf("%w: profile %q has too many entries (max %d)", ErrInvalidSchedule, p.Name, maxScheduleEntries)
	}
	for i := range p.Schedule {
		if err := ValidateScheduleEntry(&p.Schedule[i]); err != nil {
			return fmt.Errorf("profile %q entry %d: %w", p.Name, i, err)
		}
	}
	return nil
}

// ValidateScheduleEntry checks one schedule window.
func ValidateScheduleEntry(e *ScheduleEntry) error {
	if e.StartMinute < 0 || e.StartMinute >= minutesPerDay {
		return fmt.Errorf("%w: start minute %d out of range", ErrInvalidSchedule, e.StartMinute)
	}
	if e.EndMinute < 0 || e.EndMinute > minutesPerDay {
		return fmt.Errorf("%w: end minute %d out of range", ErrInvalidSchedule, e.EndMinute)
	}
	for _, d := range e.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidSchedule, d)
		}
	}
	switch e.Mode {
	case ModeHeat, ModeCool, ModeAuto:
	default:
		return fmt.Errorf("%w: invalid mode %q", ErrInvalidSchedule, e.Mode)
	}
	return nil
}

// ValidateSchedules rejects overlapping windows across all profiles of one
// thermostat. Two entries overlap when any instant of the week falls inside
// both; the scheduler has no precedence rule, so overlap is a configuration
// error.
func ValidateSchedules(profiles []Profile) error {
	type span struct {
		profile string
		start   int // minutes from Sunday 00:00
		end     int
	}

	var spans []span
	for i := range profiles {
		p := &profiles[i]
		for j := range p.Schedule {
			for _, s := range weekSpans(&p.Schedule[j]) {
				spans = append(spans, span{profile: p.Name, start: s[0], end: s[1]})
			}
		}
	}

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if a.start < b.end && b.start < a.end {
				return fmt.Errorf("%w: profiles %q and %q", ErrScheduleOverlap, a.profile, b.profile)
			}
		}
	}
	return nil
}

// ValidateAction checks an action value.
func ValidateAction(action Action) error {
	switch action {
	case ActionIdle, ActionHeating, ActionCooling:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// ValidateAggregation checks an aggregation policy value. The empty policy is
// valid and means mean.
func ValidateAggregation(policy AggregationPolicy) error {
	switch policy {
	case "", AggregationMean, AggregationMin, AggregationMax:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAggregation, policy)
	}
}

// ValidateRoom checks one room definition.
func ValidateRoom(r *Room) error {
	if r.ID == "" {
		return fmt.Errorf("%w: room id is required", ErrInvalidThermostat)
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if err := ValidateAggregation(r.Aggregation); err != nil {
		return err
	}
	total := len(r.Thermometers) + len(r.Heaters) + len(r.Coolers)
	if total > maxRoomChannels {
		return fmt.Errorf("%w: room %q references too many channels (max %d)", ErrInvalidThermostat, r.Name, maxRoomChannels)
	}
	return nil
}

// weekSpans expands an entry into half-open [start, end) intervals in minutes
// from Sunday 00:00. A wrapped window contributes two intervals per covered
// start day; an entry with no day restriction covers all seven.
func weekSpans(e *ScheduleEntry) [][2]int {
	var spans [][2]int
	for day := 0; day < 7; day++ {
		if !e.appliesOn(time.Weekday(day)) {
			continue
		}
		base := day * minutesPerDay
		if !e.wraps() {
			spans = append(spans, [2]int{base + e.StartMinute, base + e.EndMinute})
			continue
		}
		spans = append(spans, [2]int{base + e.StartMinute, base + minutesPerDay})
		if e.EndMinute > 0 {
			next := ((day + 1) % 7) * minutesPerDay
			spans = append(spans, [2]int{next, next + e.EndMinute})
		}
	}
	return spans
}
