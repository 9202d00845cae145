package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hearthctl/hearth-core/internal/supla"
	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockRepository keeps aggregates in memory and hands out copies, the way a
// real load does.
type mockRepository struct {
	mu    sync.Mutex
	store map[string]*thermostat.Thermostat
	saves int
}

func newMockRepository(thermostats ...*thermostat.Thermostat) *mockRepository {
	m := &mockRepository{store: make(map[string]*thermostat.Thermostat)}
	for _, t := range thermostats {
		m.store[t.ID] = t
	}
	return m
}

func cloneThermostat(t *thermostat.Thermostat) *thermostat.Thermostat {
	raw, _ := json.Marshal(t)
	var cpy thermostat.Thermostat
	_ = json.Unmarshal(raw, &cpy)
	return &cpy
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*thermostat.Thermostat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil, thermostat.ErrThermostatNotFound
	}
	return cloneThermostat(t), nil
}

func (m *mockRepository) GetBySlug(_ context.Context, slug string) (*thermostat.Thermostat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.store {
		if t.Slug == slug {
			return cloneThermostat(t), nil
		}
	}
	return nil, thermostat.ErrThermostatNotFound
}

func (m *mockRepository) GetFirstForUser(_ context.Context, userID string) (*thermostat.Thermostat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.store {
		if t.UserID == userID {
			return cloneThermostat(t), nil
		}
	}
	return nil, thermostat.ErrThermostatNotFound
}

func (m *mockRepository) ListEnabled(_ context.Context) ([]thermostat.Thermostat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []thermostat.Thermostat
	for _, t := range m.store {
		if t.Enabled {
			out = append(out, *cloneThermostat(t))
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, t *thermostat.Thermostat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[t.ID] = cloneThermostat(t)
	return nil
}

func (m *mockRepository) Save(_ context.Context, t *thermostat.Thermostat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[t.ID]; !ok {
		return thermostat.ErrThermostatNotFound
	}
	m.store[t.ID] = cloneThermostat(t)
	m.saves++
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func (m *mockRepository) saved(id string) *thermostat.Thermostat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneThermostat(m.store[id])
}

// mockGateway records every call and serves scripted readings.
type mockGateway struct {
	mu    sync.Mutex
	calls []gatewayCall

	temps     map[int]float64
	tempErrs  map[int]error
	rejectOn  map[int]bool
	actionErr error
	readDelay time.Duration
}

type gatewayCall struct {
	Op        string
	ChannelID int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		temps:    make(map[int]float64),
		tempErrs: make(map[int]error),
		rejectOn: make(map[int]bool),
	}
}

func (m *mockGateway) record(op string, channelID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, gatewayCall{Op: op, ChannelID: channelID})
}

func (m *mockGateway) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *mockGateway) has(op string, channelID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.Op == op && c.ChannelID == channelID {
			return true
		}
	}
	return false
}

func (m *mockGateway) Temperature(_ context.Context, channelID int) (float64, error) {
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	m.record("read", channelID)
	if err := m.tempErrs[channelID]; err != nil {
		return 0, err
	}
	temp, ok := m.temps[channelID]
	if !ok {
		return 0, supla.ErrNoTemperature
	}
	return temp, nil
}

func (m *mockGateway) ChannelWithState(_ context.Context, channelID int) (*supla.ChannelWithState, error) {
	m.record("state", channelID)
	if temp, ok := m.temps[channelID]; ok {
		return &supla.ChannelWithState{
			Channel: supla.Channel{ID: channelID, Function: "THERMOMETER"},
			State:   &supla.ChannelState{Connected: true, Temperature: &temp},
		}, nil
	}
	if err := m.tempErrs[channelID]; err != nil {
		return nil, err
	}
	return &supla.ChannelWithState{
		Channel: supla.Channel{ID: channelID, Function: "POWERSWITCH"},
		State:   &supla.ChannelState{Connected: true},
	}, nil
}

func (m *mockGateway) TurnOn(_ context.Context, channelID int) (bool, error) {
	m.record("turn_on", channelID)
	if m.actionErr != nil {
		return false, m.actionErr
	}
	return !m.rejectOn[channelID], nil
}

func (m *mockGateway) TurnOff(_ context.Context, channelID int) (bool, error) {
	m.record("turn_off", channelID)
	if m.actionErr != nil {
		return false, m.actionErr
	}
	return true, nil
}

// mockFactory hands out the same gateway for every cycle.
type mockFactory struct {
	gw  *mockGateway
	err error
}

func (f *mockFactory) GatewayFor(_ context.Context, _ string) (Gateway, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.gw, nil
}

// mockAudit records audit entries.
type mockAudit struct {
	mu      sync.Mutex
	entries []string
}

func (m *mockAudit) Record(_ context.Context, _, action, _ string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, action)
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// allDay is a schedule window covering every minute of every day.
func allDay(target float64, mode thermostat.Mode) []thermostat.ScheduleEntry {
	return []thermostat.ScheduleEntry{{StartMinute: 0, EndMinute: 1440, Target: target, Mode: mode}}
}

func dispatchThermostat() *thermostat.Thermostat {
	return &thermostat.Thermostat{
		ID:      "th-001",
		Slug:    "main-floor",
		UserID:  "user-001",
		Enabled: true,
		Profiles: []thermostat.Profile{
			{ID: "prof-day", Name: "Day", Schedule: allDay(21, thermostat.ModeAuto)},
		},
		Rooms: []thermostat.Room{
			{ID: "room-living", Name: "Living Room", Thermometers: []int{100}, Heaters: []int{200}},
		},
	}
}

func setupEngine(t *testing.T, ts *thermostat.Thermostat) (*Engine, *mockGateway, *mockRepository) {
	t.Helper()

	gw := newMockGateway()
	repo := newMockRepository(ts)
	engine := NewEngine(repo, &mockFactory{gw: gw}, 0.5, nil, nil, nil, nil, noopLogger{})
	return engine, gw, repo
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestAdjustHeatingScenario(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, repo := setupEngine(t, ts)
	gw.temps[100] = 18.0

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if len(result.Rooms) != 1 || result.Rooms[0].Action != thermostat.ActionHeating {
		t.Fatalf("room result = %+v, want heating", result.Rooms)
	}
	if got := gw.count("turn_on"); got != 1 {
		t.Errorf("turn_on calls = %d, want 1", got)
	}
	if !gw.has("turn_on", 200) {
		t.Error("heater channel 200 was not turned on")
	}
	if got := gw.count("turn_off"); got != 0 {
		t.Errorf("turn_off calls = %d, want 0 (no coolers)", got)
	}
	if result.Commands != 1 || len(result.Failures) != 0 {
		t.Errorf("commands=%d failures=%v, want 1 and none", result.Commands, result.Failures)
	}

	// The persisted aggregate remembers the heater as on.
	saved := repo.saved("th-001")
	if !saved.IsOn(200) {
		t.Error("heater not marked on in persisted aggregate")
	}
	if saved.RoomState("room-living").Action != thermostat.ActionHeating {
		t.Error("room state not persisted")
	}
}

func TestAdjustIdempotence(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, _ := setupEngine(t, ts)
	gw.temps[100] = 18.0

	if _, err := engine.Adjust(context.Background(), "th-001"); err != nil {
		t.Fatalf("first Adjust: %v", err)
	}

	before := gw.count("turn_on") + gw.count("turn_off")

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("second Adjust: %v", err)
	}

	after := gw.count("turn_on") + gw.count("turn_off")
	if after != before {
		t.Errorf("second cycle issued %d extra commands, want 0", after-before)
	}
	if result.Commands != 0 {
		t.Errorf("second cycle reported %d commands, want 0", result.Commands)
	}
}

func TestAdjustForcedCooling(t *testing.T) {
	ts := dispatchThermostat()
	ts.Rooms[0].Coolers = []int{300}
	// A previous heating cycle left the heater on; a user then forced
	// cooling for half an hour, ten minutes ago.
	ts.DevicesState = []int{200}
	forcedUntil := time.Now().UTC().Add(20 * time.Minute)
	ts.RoomsState = map[string]thermostat.RoomState{
		"room-living": {Action: thermostat.ActionCooling, ForcedUntil: &forcedUntil},
	}

	engine, gw, _ := setupEngine(t, ts)
	gw.temps[100] = 18.0 // cold room: automatic evaluation would heat

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if result.Rooms[0].Action != thermostat.ActionCooling {
		t.Fatalf("action = %q, want forced cooling", result.Rooms[0].Action)
	}
	if !result.Rooms[0].Forced {
		t.Error("result must report the action as forced")
	}
	if !gw.has("turn_off", 200) {
		t.Error("heater 200 was not turned off")
	}
	if !gw.has("turn_on", 300) {
		t.Error("cooler 300 was not turned on")
	}
}

func TestAdjustDisabled(t *testing.T) {
	ts := dispatchThermostat()
	ts.Enabled = false
	engine, gw, _ := setupEngine(t, ts)
	gw.temps[100] = 18.0

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if !result.Skipped {
		t.Error("expected a skipped cycle for a disabled thermostat")
	}
	if n := gw.count("read") + gw.count("turn_on") + gw.count("turn_off"); n != 0 {
		t.Errorf("skipped cycle issued %d device operations: %v", n, gw.calls)
	}
	// Channel annotation still runs so snapshots of a disabled thermostat
	// keep live state.
	if len(result.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(result.Channels))
	}
	for _, ch := range result.Channels {
		if ch.Unreachable {
			t.Errorf("channel %d unreachable with a working gateway", ch.ID)
		}
	}

	t.Run("gateway unavailable", func(t *testing.T) {
		ts := dispatchThermostat()
		ts.Enabled = false
		repo := newMockRepository(ts)
		engine := NewEngine(repo, &mockFactory{err: errors.New("token expired")}, 0.5, nil, nil, nil, nil, noopLogger{})

		result, err := engine.Adjust(context.Background(), "th-001")
		if err != nil {
			t.Fatalf("Adjust: %v", err)
		}
		if len(result.Channels) != 2 {
			t.Fatalf("channels = %d, want 2", len(result.Channels))
		}
		for _, ch := range result.Channels {
			if !ch.Unreachable {
				t.Errorf("channel %d not flagged unreachable without a gateway", ch.ID)
			}
		}
	})
}

func TestAdjustSensorFailureIsolation(t *testing.T) {
	ts := dispatchThermostat()
	ts.Rooms = append(ts.Rooms, thermostat.Room{
		ID: "room-office", Name: "Office", Thermometers: []int{110}, Heaters: []int{210},
	})

	engine, gw, _ := setupEngine(t, ts)
	gw.tempErrs[100] = supla.ErrUpstreamUnavailable // living room sensor down
	gw.temps[110] = 17.0                            // office reads fine

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	actions := make(map[string]thermostat.Action)
	for _, r := range result.Rooms {
		actions[r.RoomID] = r.Action
	}
	if actions["room-living"] != thermostat.ActionIdle {
		t.Errorf("sensorless room = %q, want idle", actions["room-living"])
	}
	if actions["room-office"] != thermostat.ActionHeating {
		t.Errorf("healthy room = %q, want heating", actions["room-office"])
	}

	var sawReadFailure bool
	for _, f := range result.Failures {
		if f.Op == "read" && f.ChannelID == 100 {
			sawReadFailure = true
		}
	}
	if !sawReadFailure {
		t.Errorf("read failure for channel 100 not recorded: %v", result.Failures)
	}
	if !gw.has("turn_on", 210) {
		t.Error("office heater was not turned on")
	}
}

func TestAdjustCommandFailureRetriedNextCycle(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, repo := setupEngine(t, ts)
	gw.temps[100] = 18.0
	gw.rejectOn[200] = true

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if result.Commands != 0 {
		t.Errorf("commands = %d, want 0 for a rejected turn-on", result.Commands)
	}
	var sawFailure bool
	for _, f := range result.Failures {
		if f.Op == "turn_on" && f.ChannelID == 200 {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("rejection not recorded: %v", result.Failures)
	}
	if repo.saved("th-001").IsOn(200) {
		t.Fatal("rejected channel must not be marked on")
	}

	// The device recovers; the next cycle retries the command.
	gw.rejectOn[200] = false
	if _, err := engine.Adjust(context.Background(), "th-001"); err != nil {
		t.Fatalf("second Adjust: %v", err)
	}
	if got := gw.count("turn_on"); got != 2 {
		t.Errorf("turn_on calls = %d, want 2 (one retry)", got)
	}
	if !repo.saved("th-001").IsOn(200) {
		t.Error("recovered channel not marked on")
	}
}

func TestAdjustConfigurationErrorBeforeCommands(t *testing.T) {
	ts := dispatchThermostat()
	ts.Profiles = append(ts.Profiles, thermostat.Profile{
		ID: "prof-eco", Name: "Eco", Schedule: allDay(18, thermostat.ModeHeat),
	})

	engine, gw, _ := setupEngine(t, ts)
	gw.temps[100] = 18.0

	_, err := engine.Adjust(context.Background(), "th-001")
	if !errors.Is(err, thermostat.ErrScheduleOverlap) {
		t.Fatalf("expected ErrScheduleOverlap, got %v", err)
	}
	if gw.count("turn_on")+gw.count("turn_off") != 0 {
		t.Errorf("commands issued despite configuration error: %v", gw.calls)
	}
}

func TestAdjustAnnotatesUnreachableChannels(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, _ := setupEngine(t, ts)
	gw.temps[100] = 18.0
	gw.tempErrs[205] = supla.ErrChannelNotFound
	// The repository shares the seeded aggregate, so the extra heater is
	// visible on the next load.
	ts.Rooms[0].Heaters = append(ts.Rooms[0].Heaters, 205)

	result, err := engine.Adjust(context.Background(), "th-001")
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	var flagged bool
	for _, ch := range result.Channels {
		if ch.ID == 205 && ch.Unreachable {
			flagged = true
		}
		if ch.ID == 100 && ch.Unreachable {
			t.Error("healthy channel 100 flagged unreachable")
		}
	}
	if !flagged {
		t.Errorf("channel 205 not flagged unreachable: %+v", result.Channels)
	}
}

func TestApplyEditThenDispatch(t *testing.T) {
	ts := dispatchThermostat()
	ts.Rooms[0].Coolers = []int{300}
	engine, gw, repo := setupEngine(t, ts)
	gw.temps[100] = 18.0

	ctrl := thermostat.NewController(0.5)
	result, err := engine.Apply(context.Background(), "th-001", func(t *thermostat.Thermostat) error {
		room, _ := t.Room("room-living")
		state, err := ctrl.Force(room, t.RoomState(room.ID), thermostat.ActionCooling, 30*time.Minute, time.Now().UTC())
		if err != nil {
			return err
		}
		t.SetRoomState(room.ID, state)
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if result.Rooms[0].Action != thermostat.ActionCooling {
		t.Errorf("action = %q, want forced cooling", result.Rooms[0].Action)
	}
	saved := repo.saved("th-001")
	if saved.RoomState("room-living").ForcedUntil == nil {
		t.Error("forced override not persisted")
	}
}

func TestApplyEditErrorAbortsCycle(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, repo := setupEngine(t, ts)
	gw.temps[100] = 18.0

	wantErr := errors.New("bad edit")
	_, err := engine.Apply(context.Background(), "th-001", func(*thermostat.Thermostat) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected edit error, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("gateway reached despite edit error: %v", gw.calls)
	}
	if repo.saves != 0 {
		t.Errorf("aggregate saved despite edit error")
	}
}

func TestAdjustSerializedPerThermostat(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, _ := setupEngine(t, ts)
	gw.temps[100] = 18.0
	gw.readDelay = 10 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Adjust(context.Background(), "th-001"); err != nil {
				t.Errorf("concurrent Adjust: %v", err)
			}
		}()
	}
	wg.Wait()

	// Serialised cycles see each other's bookkeeping: only the first issues
	// the turn-on command.
	if got := gw.count("turn_on"); got != 1 {
		t.Errorf("turn_on calls = %d, want 1 across serialised cycles", got)
	}
}

func TestAdjustRecordsAudit(t *testing.T) {
	ts := dispatchThermostat()
	gw := newMockGateway()
	gw.temps[100] = 18.0
	repo := newMockRepository(ts)
	audit := &mockAudit{}
	engine := NewEngine(repo, &mockFactory{gw: gw}, 0.5, nil, nil, nil, audit, noopLogger{})

	if _, err := engine.Adjust(context.Background(), "th-001"); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 || audit.entries[0] != "dispatch" {
		t.Errorf("audit entries = %v, want one dispatch entry", audit.entries)
	}
}
