package thermostat

import "errors"

// Domain errors for the thermostat package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, thermostat.ErrThermostatNotFound) {
//	    // handle not found case
//	}
var (
	// ErrThermostatNotFound is returned when a thermostat id or slug does not exist.
	ErrThermostatNotFound = errors.New("thermostat: not found")

	// ErrThermostatExists is returned when creating a thermostat whose id or slug is taken.
	ErrThermostatExists = errors.New("thermostat: already exists")

	// ErrProfileNotFound is returned when a referenced profile is not owned by the thermostat.
	ErrProfileNotFound = errors.New("thermostat: profile not found")

	// ErrRoomNotFound is returned when a referenced room id is not configured.
	ErrRoomNotFound = errors.New("thermostat: room not found")

	// ErrInvalidThermostat is returned when aggregate validation fails.
	ErrInvalidThermostat = errors.New("thermostat: invalid")

	// ErrInvalidName is returned when a name is empty or too long.
	ErrInvalidName = errors.New("thermostat: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("thermostat: invalid slug")

	// ErrInvalidSchedule is returned when a schedule entry is malformed.
	ErrInvalidSchedule = errors.New("thermostat: invalid schedule")

	// ErrScheduleOverlap is returned when two schedule windows cover the same
	// instant. Overlaps are a configuration error and are rejected at write
	// time rather than resolved by an arbitrary precedence rule.
	ErrScheduleOverlap = errors.New("thermostat: schedule windows overlap")

	// ErrInvalidAction is returned when an action value is not recognised.
	ErrInvalidAction = errors.New("thermostat: invalid action")

	// ErrActionUnsupported is returned when forcing an action the room has no
	// devices for (heating without heaters, cooling without coolers).
	ErrActionUnsupported = errors.New("thermostat: action unsupported by room")

	// ErrInvalidAggregation is returned when a sensor aggregation policy is not recognised.
	ErrInvalidAggregation = errors.New("thermostat: invalid aggregation policy")
)
