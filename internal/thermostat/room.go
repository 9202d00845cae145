package thermostat

import (
	"fmt"
	"time"
)

// Controller turns sensor readings and setpoints into per-room heat/cool/idle
// decisions. It is pure computation: all device I/O happens in the dispatch
// engine before and after evaluation.
type Controller struct {
	// Hysteresis is the symmetric dead band in degrees around the target.
	// The room heats below target-hysteresis and cools above
	// target+hysteresis, never both.
	Hysteresis float64
}

// NewController creates a controller with the given hysteresis band.
func NewController(hysteresis float64) *Controller {
	return &Controller{Hysteresis: hysteresis}
}

// Evaluate computes a room's next runtime state.
//
// An unexpired forced override wins outright: sensors and setpoints are not
// consulted. An expired override is cleared and evaluation falls through to
// the automatic path. Without a usable reading or setpoint the room idles.
func (c *Controller) Evaluate(room *Room, state RoomState, setpoint *Setpoint, reading *float64, now time.Time) RoomState {
	evaluated := now
	state.LastEvaluatedAt = &evaluated

	if state.Forced(now) {
		return state
	}
	state.ForcedUntil = nil

	state.Action = c.decide(room, setpoint, reading)
	return state
}

// decide picks the automatic action for a room.
func (c *Controller) decide(room *Room, setpoint *Setpoint, reading *float64) Action {
	if setpoint == nil || reading == nil {
		return ActionIdle
	}

	mayHeat := setpoint.Mode == ModeHeat || setpoint.Mode == ModeAuto
	mayCool := setpoint.Mode == ModeCool || setpoint.Mode == ModeAuto

	switch {
	case mayHeat && room.CanHeat() && *reading < setpoint.Target-c.Hysteresis:
		return ActionHeating
	case mayCool && room.CanCool() && *reading > setpoint.Target+c.Hysteresis:
		return ActionCooling
	default:
		return ActionIdle
	}
}

// Force overrides a room's action until now+duration. Automatic evaluation
// leaves the action untouched while the override is active. Forcing an
// action the room has no devices for is rejected.
func (c *Controller) Force(room *Room, state RoomState, action Action, duration time.Duration, now time.Time) (RoomState, error) {
	if err := ValidateAction(action); err != nil {
		return state, err
	}
	if !room.Supports(action) {
		return state, fmt.Errorf("%w: room %q cannot %s", ErrActionUnsupported, room.ID, action)
	}

	until := now.Add(duration)
	state.Action = action
	state.ForcedUntil = &until
	return state, nil
}

// ClearForce removes a room's override. The action itself is left as-is;
// the next evaluation recomputes it automatically.
func (c *Controller) ClearForce(state RoomState) RoomState {
	state.ForcedUntil = nil
	return state
}
