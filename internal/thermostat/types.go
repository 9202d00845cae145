package thermostat

import "time"

// Thermostat is the aggregate root. It matches the database schema in
// migrations/20260301_100000_initial_schema.up.sql: rooms, per-room runtime
// state and the turned-on channel list are stored as JSON columns and the
// whole aggregate is written in one transaction (last-write-wins).
type Thermostat struct {
	// Identity
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	UserID string `json:"user_id"`

	// Enabled gates dispatch: when false, adjust is a no-op.
	Enabled bool `json:"enabled"`

	// ActiveProfileID pins one owned profile. When nil the scheduler picks
	// the profile by time of day.
	ActiveProfileID *string `json:"active_profile_id,omitempty"`

	// NextProfileChange is the next automatic schedule boundary, recomputed
	// on every dispatch cycle. Nil while a profile is pinned.
	NextProfileChange *time.Time `json:"next_profile_change,omitempty"`

	Profiles []Profile `json:"profiles"`
	Rooms    []Room    `json:"rooms"`

	// RoomsState maps room id to runtime state. Absent entries mean idle,
	// unforced.
	RoomsState map[string]RoomState `json:"rooms_state"`

	// DevicesState lists the channel ids this thermostat's own commands
	// turned on. It is how the engine distinguishes "on because of us" from
	// whatever else the remote API reports.
	DevicesState []int `json:"devices_state"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the thermostat belongs to the given user.
func (t *Thermostat) OwnedBy(userID string) bool {
	return t.UserID == userID
}

// Profile returns the owned profile with the given id.
func (t *Thermostat) Profile(id string) (*Profile, bool) {
	for i := range t.Profiles {
		if t.Profiles[i].ID == id {
			return &t.Profiles[i], true
		}
	}
	return nil, false
}

// Room returns the configured room with the given id.
func (t *Thermostat) Room(id string) (*Room, bool) {
	for i := range t.Rooms {
		if t.Rooms[i].ID == id {
			return &t.Rooms[i], true
		}
	}
	return nil, false
}

// RoomState returns the runtime state for a room, defaulting to idle and
// unforced when no state has been persisted yet.
func (t *Thermostat) RoomState(roomID string) RoomState {
	if s, ok := t.RoomsState[roomID]; ok {
		return s
	}
	return RoomState{Action: ActionIdle}
}

// SetRoomState writes a room's runtime state back into the aggregate.
func (t *Thermostat) SetRoomState(roomID string, state RoomState) {
	if t.RoomsState == nil {
		t.RoomsState = make(map[string]RoomState)
	}
	t.RoomsState[roomID] = state
}

// PinProfile sets the active profile to one owned by this thermostat.
// Returns ErrProfileNotFound for foreign or unknown profile ids.
func (t *Thermostat) PinProfile(profileID string) error {
	if _, ok := t.Profile(profileID); !ok {
		return ErrProfileNotFound
	}
	t.ActiveProfileID = &profileID
	t.NextProfileChange = nil
	return nil
}

// UnpinProfile clears the pinned profile; the scheduler resolves by time on
// the next cycle.
func (t *Thermostat) UnpinProfile() {
	t.ActiveProfileID = nil
}

// IsOn reports whether the engine considers the channel turned on by its own
// commands.
func (t *Thermostat) IsOn(channelID int) bool {
	for _, id := range t.DevicesState {
		if id == channelID {
			return true
		}
	}
	return false
}

// MarkOn records a channel as turned on by this thermostat.
func (t *Thermostat) MarkOn(channelID int) {
	if t.IsOn(channelID) {
		return
	}
	t.DevicesState = append(t.DevicesState, channelID)
}

// MarkOff removes a channel from the turned-on list.
func (t *Thermostat) MarkOff(channelID int) {
	for i, id := range t.DevicesState {
		if id == channelID {
			t.DevicesState = append(t.DevicesState[:i], t.DevicesState[i+1:]...)
			return
		}
	}
}

// Profile is a named setpoint schedule owned by one thermostat.
type Profile struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Schedule []ScheduleEntry `json:"schedule"`

	// SortOrder controls display order only; it carries no scheduling
	// precedence.
	SortOrder int `json:"sort_order"`
}

// ScheduleEntry is one time-of-day window mapping to a target temperature
// and mode. Minutes count from midnight; the window is [StartMinute,
// EndMinute) and wraps past midnight when StartMinute >= EndMinute.
type ScheduleEntry struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`

	// Days restricts the entry to the listed weekdays. Empty means every
	// day. For a wrapped window the day refers to the start day.
	Days []time.Weekday `json:"days,omitempty"`

	Target float64 `json:"target"`
	Mode   Mode    `json:"mode"`
}

// minutesPerDay is the length of a schedule day.
const minutesPerDay = 24 * 60

// wraps reports whether the window crosses midnight.
func (e *ScheduleEntry) wraps() bool {
	return e.StartMinute >= e.EndMinute
}

// appliesOn reports whether the entry's day restriction includes the given
// weekday as a start day.
func (e *ScheduleEntry) appliesOn(day time.Weekday) bool {
	if len(e.Days) == 0 {
		return true
	}
	for _, d := range e.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Contains reports whether the window covers the given instant.
func (e *ScheduleEntry) Contains(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	if !e.wraps() {
		return e.appliesOn(now.Weekday()) && minute >= e.StartMinute && minute < e.EndMinute
	}
	// Wrapped window: the tail past midnight belongs to the previous day's
	// start.
	if e.appliesOn(now.Weekday()) && minute >= e.StartMinute {
		return true
	}
	prev := (now.Weekday() + 6) % 7
	return e.appliesOn(prev) && minute < e.EndMinute
}

// Setpoint is the resolved target for one instant.
type Setpoint struct {
	Target float64 `json:"target"`
	Mode   Mode    `json:"mode"`
}

// Mode selects which directions a setpoint may actuate.
type Mode string

// Mode constants.
const (
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
	ModeAuto Mode = "auto"
)

// AllModes returns all valid mode values.
func AllModes() []Mode {
	return []Mode{ModeHeat, ModeCool, ModeAuto}
}

// Room is the static wiring of one room: which remote channel ids act as
// thermometers, heaters and coolers. A room may be heating-only or
// cooling-only.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Thermometers []int `json:"thermometers"`
	Heaters      []int `json:"heaters"`
	Coolers      []int `json:"coolers"`

	// Aggregation selects how multiple thermometer readings collapse into
	// one representative value. Empty means AggregationMean.
	Aggregation AggregationPolicy `json:"aggregation,omitempty"`
}

// CanHeat reports whether the room has at least one heater channel.
func (r *Room) CanHeat() bool { return len(r.Heaters) > 0 }

// CanCool reports whether the room has at least one cooler channel.
func (r *Room) CanCool() bool { return len(r.Coolers) > 0 }

// Supports reports whether the room has devices for the given action.
func (r *Room) Supports(action Action) bool {
	switch action {
	case ActionHeating:
		return r.CanHeat()
	case ActionCooling:
		return r.CanCool()
	case ActionIdle:
		return true
	default:
		return false
	}
}

// RoomState is the persisted runtime state of one room.
type RoomState struct {
	Action Action `json:"action"`

	// ForcedUntil marks a manual override. While it is in the future the
	// action must not be overwritten by automatic evaluation.
	ForcedUntil *time.Time `json:"forced_until,omitempty"`

	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
}

// Forced reports whether a manual override is still active at the given
// instant.
func (s *RoomState) Forced(now time.Time) bool {
	return s.ForcedUntil != nil && now.Before(*s.ForcedUntil)
}

// Action is a room's discrete output decision.
type Action string

// Action constants.
const (
	ActionIdle    Action = "idle"
	ActionHeating Action = "heating"
	ActionCooling Action = "cooling"
)

// AllActions returns all valid action values.
func AllActions() []Action {
	return []Action{ActionIdle, ActionHeating, ActionCooling}
}

// AggregationPolicy selects how a room's thermometer readings are combined.
type AggregationPolicy string

// AggregationPolicy constants.
const (
	AggregationMean AggregationPolicy = "mean"
	AggregationMin  AggregationPolicy = "min"
	AggregationMax  AggregationPolicy = "max"
)

// AllAggregationPolicies returns all valid aggregation policy values.
func AllAggregationPolicies() []AggregationPolicy {
	return []AggregationPolicy{AggregationMean, AggregationMin, AggregationMax}
}

// Aggregate collapses readings into one representative value per the policy.
// The second return is false when there are no readings.
func Aggregate(policy AggregationPolicy, readings []float64) (float64, bool) {
	if len(readings) == 0 {
		return 0, false
	}
	switch policy {
	case AggregationMin:
		v := readings[0]
		for _, r := range readings[1:] {
			if r < v {
				v = r
			}
		}
		return v, true
	case AggregationMax:
		v := readings[0]
		for _, r := range readings[1:] {
			if r > v {
				v = r
			}
		}
		return v, true
	default: // AggregationMean, including the empty policy
		var sum float64
		for _, r := range readings {
			sum += r
		}
		return sum / float64(len(readings)), true
	}
}
