// Package thermostat holds the heating/cooling domain model for Hearth Core.
//
// A Thermostat is the aggregate root: it owns named setpoint Profiles, a set
// of Room definitions (which remote channels act as thermometers, heaters and
// coolers), the persisted per-room runtime state and the list of channels the
// engine itself turned on.
//
// # Key Types
//
//   - Thermostat: aggregate root, loaded and saved as one unit
//   - Profile: named schedule of time-of-day setpoint windows
//   - Room: static wiring of thermometer/heater/cooler channels
//   - RoomState: per-room runtime state (action, forced override, last eval)
//   - Scheduler: resolves the active profile and the next schedule boundary
//   - Controller: turns readings and setpoints into heat/cool/idle decisions
//
// # Usage
//
//	repo := thermostat.NewSQLiteRepository(db)
//	ts, err := repo.GetBySlug(ctx, "main-floor")
//	if err != nil {
//	    return err
//	}
//
//	scheduler := thermostat.NewScheduler()
//	profile, next, err := scheduler.ResolveActiveProfile(ts, time.Now())
//
//	ctrl := thermostat.NewController(0.5)
//	state := ctrl.Evaluate(&ts.Rooms[0], ts.RoomState(ts.Rooms[0].ID), setpoint, reading, time.Now())
//
// Scheduler and Controller are pure computation; all I/O lives in the
// Repository and in the dispatch engine that drives them.
//
// # Thread Safety
//
// The aggregate types are plain data and are not safe for concurrent
// mutation. The dispatch engine serialises access per thermostat id.
package thermostat
