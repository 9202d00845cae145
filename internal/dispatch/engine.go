package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hearthctl/hearth-core/internal/supla"
	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// Gateway is the slice of the actuation gateway the engine consumes. One
// gateway instance serves exactly one cycle so its device-list cache never
// outlives the cycle.
type Gateway interface {
	// Temperature reads a thermometer channel in degrees Celsius.
	Temperature(ctx context.Context, channelID int) (float64, error)

	// ChannelWithState returns a channel's description merged with live state.
	ChannelWithState(ctx context.Context, channelID int) (*supla.ChannelWithState, error)

	// TurnOn and TurnOff report (false, nil) for a definite device rejection
	// after the fallback chain is exhausted; only transport errors are
	// returned as errors.
	TurnOn(ctx context.Context, channelID int) (bool, error)
	TurnOff(ctx context.Context, channelID int) (bool, error)
}

// GatewayFactory builds a fresh per-cycle gateway bound to one user's
// remote API credentials.
type GatewayFactory interface {
	GatewayFor(ctx context.Context, userID string) (Gateway, error)
}

// MQTTClient is the interface for publishing cycle events to the broker.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Telemetry receives measurements from completed cycles. Implementations
// must not block; the InfluxDB client writes asynchronously.
type Telemetry interface {
	WriteRoomTemperature(thermostatID, roomID string, celsius float64)
	WriteCycle(thermostatID string, commands, failures int, duration time.Duration)
}

// AuditSink records user-visible activity per thermostat.
type AuditSink interface {
	Record(ctx context.Context, thermostatID, action, message string, details map[string]any) error
}

// Logger is the logging interface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// maxCycleTime is the hard limit for one dispatch cycle. Even a thermostat
// with many rooms against a slow remote API should finish well within this
// window; callers may impose shorter deadlines through ctx.
const maxCycleTime = 60 * time.Second

// sensorReadConcurrency bounds parallel room evaluations so a large
// thermostat cannot flood the remote API.
const sensorReadConcurrency = 4

// DeviceFailure records one device that could not be read or actuated
// during a cycle.
type DeviceFailure struct {
	RoomID    string `json:"room_id,omitempty"`
	ChannelID int    `json:"channel_id"`
	Op        string `json:"op"`
	Reason    string `json:"reason"`
}

// RoomResult is one room's outcome within a cycle.
type RoomResult struct {
	RoomID  string                `json:"room_id"`
	Action  thermostat.Action     `json:"action"`
	Forced  bool                  `json:"forced"`
	Reading *float64              `json:"reading,omitempty"`
	Target  *thermostat.Setpoint  `json:"target,omitempty"`
}

// Result summarises one dispatch cycle.
type Result struct {
	CycleID      string     `json:"cycle_id"`
	ThermostatID string     `json:"thermostat_id"`
	Skipped      bool       `json:"skipped"`

	ActiveProfileID   *string    `json:"active_profile_id,omitempty"`
	NextProfileChange *time.Time `json:"next_profile_change,omitempty"`

	Rooms    []RoomResult    `json:"rooms"`
	Commands int             `json:"commands"`
	Failures []DeviceFailure `json:"failures,omitempty"`

	// Channels annotates every referenced channel with its live state;
	// unreachable channels are flagged rather than dropped.
	Channels []supla.ChannelWithState `json:"channels"`

	Duration time.Duration `json:"-"`
}

// Engine orchestrates dispatch cycles.
//
// Thread Safety: Adjust and Apply are safe for concurrent use; cycles for
// the same thermostat id are serialised.
type Engine struct {
	repo       thermostat.Repository
	gateways   GatewayFactory
	scheduler  *thermostat.Scheduler
	controller *thermostat.Controller
	mqtt       MQTTClient
	hub        WSHub
	telemetry  Telemetry
	audit      AuditSink
	logger     Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a dispatch engine.
//
// Parameters:
//   - repo: Thermostat persistence
//   - gateways: Per-user actuation gateway factory
//   - hysteresis: Dead band in degrees for the room controller
//   - mqtt: Broker client for cycle events (may be nil)
//   - hub: WebSocket hub for cycle events (may be nil)
//   - telemetry: Measurement sink (may be nil)
//   - audit: Activity log sink (may be nil)
//   - logger: Logger instance (nil for silent operation)
func NewEngine(repo thermostat.Repository, gateways GatewayFactory, hysteresis float64,
	mqtt MQTTClient, hub WSHub, telemetry Telemetry, audit AuditSink, logger Logger,
) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		repo:       repo,
		gateways:   gateways,
		scheduler:  thermostat.NewScheduler(),
		controller: thermostat.NewController(hysteresis),
		mqtt:       mqtt,
		hub:        hub,
		telemetry:  telemetry,
		audit:      audit,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Adjust runs one dispatch cycle for the thermostat id.
func (e *Engine) Adjust(ctx context.Context, id string) (*Result, error) {
	return e.Apply(ctx, id, nil)
}

// Apply runs edit (when non-nil) against the freshly loaded aggregate and
// then runs a dispatch cycle, all under the thermostat's exclusion lock and
// persisted as one snapshot. An edit error aborts before any device command.
func (e *Engine) Apply(ctx context.Context, id string, edit func(*thermostat.Thermostat) error) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, maxCycleTime)
	defer cancel()

	unlock := e.lock(id)
	defer unlock()

	t, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if edit != nil {
		if err := edit(t); err != nil {
			return nil, err
		}
	}

	result, err := e.adjust(ctx, t)
	if err != nil {
		return nil, err
	}

	if err := e.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("persisting thermostat %q: %w", id, err)
	}

	e.report(ctx, t, result)
	return result, nil
}

// lock acquires the per-thermostat mutex and returns its release func.
func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	m, ok := e.locks[id]
	if !ok {
		m = &sync.Mutex{}
		e.locks[id] = m
	}
	e.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// adjust runs the cycle against an already-locked aggregate. It mutates the
// aggregate (room states, turned-on devices, next profile change) but does
// not persist it.
func (e *Engine) adjust(ctx context.Context, t *thermostat.Thermostat) (*Result, error) {
	started := time.Now()
	result := &Result{
		CycleID:      uuid.NewString(),
		ThermostatID: t.ID,
	}

	if !t.Enabled {
		result.Skipped = true
		e.logger.Debug("dispatch skipped", "thermostat_id", t.ID, "reason", "disabled")

		// A skipped cycle withholds commands, not visibility: the snapshot
		// still annotates every referenced channel with live state.
		gw, err := e.gateways.GatewayFor(ctx, t.UserID)
		if err != nil {
			e.logger.Warn("gateway unavailable for channel annotation",
				"thermostat_id", t.ID, "error", err)
			gw = nil
		}
		result.Channels = e.collectChannels(ctx, gw, t)
		result.Duration = time.Since(started)
		return result, nil
	}

	gw, err := e.gateways.GatewayFor(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("gateway for user %q: %w", t.UserID, err)
	}

	now := time.Now().UTC()

	// Configuration problems (overlapping windows, dangling pins) abort
	// before any device command.
	profile, next, err := e.scheduler.ResolveActiveProfile(t, now)
	if err != nil {
		return nil, err
	}
	if t.ActiveProfileID == nil {
		t.NextProfileChange = next
	} else {
		t.NextProfileChange = nil
	}
	if profile != nil {
		pid := profile.ID
		result.ActiveProfileID = &pid
	}
	result.NextProfileChange = t.NextProfileChange

	var setpoint *thermostat.Setpoint
	if sp, ok := e.scheduler.Setpoint(profile, now); ok {
		setpoint = &sp
	}

	// Phase 1: read sensors and evaluate every room. Reads run concurrently;
	// a failed thermometer degrades its room to no-reading (idle) instead of
	// aborting the cycle.
	type evaluation struct {
		room     *thermostat.Room
		state    thermostat.RoomState
		reading  *float64
		failures []DeviceFailure
	}
	evals := make([]evaluation, len(t.Rooms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sensorReadConcurrency)
	for i := range t.Rooms {
		i := i
		room := &t.Rooms[i]
		g.Go(func() error {
			var readings []float64
			var failures []DeviceFailure
			for _, ch := range room.Thermometers {
				temp, err := gw.Temperature(gctx, ch)
				if err != nil {
					failures = append(failures, DeviceFailure{
						RoomID: room.ID, ChannelID: ch, Op: "read", Reason: err.Error(),
					})
					continue
				}
				readings = append(readings, temp)
			}

			var reading *float64
			if v, ok := thermostat.Aggregate(room.Aggregation, readings); ok {
				reading = &v
			}

			state := e.controller.Evaluate(room, t.RoomState(room.ID), setpoint, reading, now)
			evals[i] = evaluation{room: room, state: state, reading: reading, failures: failures}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // room goroutines never return errors

	// Phase 2: actuate sequentially. The aggregate's turned-on bookkeeping
	// is not safe for concurrent mutation and command volume is small.
	for i := range evals {
		ev := &evals[i]
		if ev.room == nil {
			// Context died before this room was evaluated.
			continue
		}

		t.SetRoomState(ev.room.ID, ev.state)
		result.Failures = append(result.Failures, ev.failures...)

		commands, failures := e.actuate(ctx, gw, t, ev.room, ev.state.Action)
		result.Commands += commands
		result.Failures = append(result.Failures, failures...)

		result.Rooms = append(result.Rooms, RoomResult{
			RoomID:  ev.room.ID,
			Action:  ev.state.Action,
			Forced:  ev.state.Forced(now),
			Reading: ev.reading,
			Target:  setpoint,
		})

		if e.telemetry != nil && ev.reading != nil {
			e.telemetry.WriteRoomTemperature(t.ID, ev.room.ID, *ev.reading)
		}
	}

	// Phase 3: annotate every referenced channel with live state for the
	// caller's snapshot. The gateway's device cache makes this cheap.
	result.Channels = e.collectChannels(ctx, gw, t)

	result.Duration = time.Since(started)
	return result, nil
}

// actuate issues the commands realising one room's action. Commands are
// idempotent against the aggregate's own bookkeeping: a channel already
// marked on is not turned on again, a channel not marked on is not turned
// off. A failed turn-on leaves the channel unmarked, a failed turn-off
// leaves it marked, so the next cycle retries.
func (e *Engine) actuate(ctx context.Context, gw Gateway, t *thermostat.Thermostat, room *thermostat.Room, action thermostat.Action) (int, []DeviceFailure) {
	var on, off []int
	switch action {
	case thermostat.ActionHeating:
		on, off = room.Heaters, room.Coolers
	case thermostat.ActionCooling:
		on, off = room.Coolers, room.Heaters
	default:
		off = append(append([]int{}, room.Heaters...), room.Coolers...)
	}

	var commands int
	var failures []DeviceFailure

	for _, ch := range on {
		if t.IsOn(ch) {
			continue
		}
		ok, err := gw.TurnOn(ctx, ch)
		switch {
		case err != nil:
			failures = append(failures, DeviceFailure{RoomID: room.ID, ChannelID: ch, Op: "turn_on", Reason: err.Error()})
		case !ok:
			failures = append(failures, DeviceFailure{RoomID: room.ID, ChannelID: ch, Op: "turn_on", Reason: "rejected by device"})
		default:
			t.MarkOn(ch)
			commands++
		}
	}

	for _, ch := range off {
		if !t.IsOn(ch) {
			continue
		}
		ok, err := gw.TurnOff(ctx, ch)
		switch {
		case err != nil:
			failures = append(failures, DeviceFailure{RoomID: room.ID, ChannelID: ch, Op: "turn_off", Reason: err.Error()})
		case !ok:
			failures = append(failures, DeviceFailure{RoomID: room.ID, ChannelID: ch, Op: "turn_off", Reason: "rejected by device"})
		default:
			t.MarkOff(ch)
			commands++
		}
	}

	return commands, failures
}

// collectChannels merges every channel referenced by the thermostat with its
// live state, flagging channels the remote API could not serve. A nil
// gateway marks every channel unreachable.
func (e *Engine) collectChannels(ctx context.Context, gw Gateway, t *thermostat.Thermostat) []supla.ChannelWithState {
	seen := make(map[int]struct{})
	var ids []int
	for i := range t.Rooms {
		room := &t.Rooms[i]
		for _, group := range [][]int{room.Thermometers, room.Heaters, room.Coolers} {
			for _, ch := range group {
				if _, ok := seen[ch]; ok {
					continue
				}
				seen[ch] = struct{}{}
				ids = append(ids, ch)
			}
		}
	}

	channels := make([]supla.ChannelWithState, 0, len(ids))
	for _, id := range ids {
		if gw == nil {
			channels = append(channels, supla.ChannelWithState{
				Channel:     supla.Channel{ID: id},
				Unreachable: true,
			})
			continue
		}
		cws, err := gw.ChannelWithState(ctx, id)
		if err != nil {
			e.logger.Warn("channel state unavailable", "thermostat_id", t.ID, "channel_id", id, "error", err)
			channels = append(channels, supla.ChannelWithState{
				Channel:     supla.Channel{ID: id},
				Unreachable: true,
			})
			continue
		}
		channels = append(channels, *cws)
	}
	return channels
}

// report publishes a completed cycle to the broker, the WebSocket hub, the
// telemetry sink and the audit log. Reporting failures are logged, never
// propagated.
func (e *Engine) report(ctx context.Context, t *thermostat.Thermostat, result *Result) {
	if result.Skipped {
		return
	}

	e.logger.Info("dispatch cycle complete",
		"thermostat_id", t.ID,
		"cycle_id", result.CycleID,
		"rooms", len(result.Rooms),
		"commands", result.Commands,
		"failures", len(result.Failures),
		"duration_ms", result.Duration.Milliseconds(),
	)

	if e.telemetry != nil {
		e.telemetry.WriteCycle(t.ID, result.Commands, len(result.Failures), result.Duration)
	}

	if e.mqtt != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			topic := "hearth/thermostat/" + t.Slug + "/dispatch"
			if pubErr := e.mqtt.Publish(topic, payload, 1, false); pubErr != nil {
				e.logger.Error("failed to publish cycle event", "topic", topic, "error", pubErr)
			}
		}
	}

	if e.hub != nil {
		e.hub.Broadcast("thermostat.adjusted", map[string]any{
			"thermostat_id": t.ID,
			"slug":          t.Slug,
			"cycle_id":      result.CycleID,
			"commands":      result.Commands,
			"failures":      len(result.Failures),
		})
	}

	if e.audit != nil {
		details := map[string]any{
			"cycle_id": result.CycleID,
			"commands": result.Commands,
			"failures": len(result.Failures),
		}
		msg := fmt.Sprintf("dispatch cycle issued %d commands", result.Commands)
		if err := e.audit.Record(ctx, t.ID, "dispatch", msg, details); err != nil {
			e.logger.Error("failed to record audit entry", "thermostat_id", t.ID, "error", err)
		}
	}
}
