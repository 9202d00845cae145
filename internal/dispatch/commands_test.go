package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestHandleAdjustBySlug(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, repo := setupEngine(t, ts)
	gw.temps[100] = 18.0

	consumer := NewCommandConsumer(repo, engine, time.Second, noopLogger{})
	if err := consumer.HandleAdjust("hearth/thermostat/main-floor/adjust", nil); err != nil {
		t.Fatalf("HandleAdjust: %v", err)
	}

	// 18 degrees against the 21 degree target turns the heater on.
	if !gw.has("turn_on", 200) {
		t.Errorf("heater 200 not turned on, calls: %v", gw.calls)
	}
	saved := repo.saved("th-001")
	if saved == nil {
		t.Fatal("aggregate not persisted after broker-triggered cycle")
	}
	if !saved.IsOn(200) {
		t.Error("persisted aggregate does not mark heater 200 on")
	}
}

func TestHandleAdjustUnknownSlug(t *testing.T) {
	ts := dispatchThermostat()
	engine, gw, repo := setupEngine(t, ts)

	consumer := NewCommandConsumer(repo, engine, time.Second, noopLogger{})
	if err := consumer.HandleAdjust("hearth/thermostat/no-such-floor/adjust", nil); err != nil {
		t.Fatalf("unknown slug should be dropped, got: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Errorf("unknown slug reached the gateway: %v", gw.calls)
	}
}

func TestHandleAdjustMalformedTopic(t *testing.T) {
	ts := dispatchThermostat()
	engine, _, repo := setupEngine(t, ts)

	consumer := NewCommandConsumer(repo, engine, time.Second, noopLogger{})
	if err := consumer.HandleAdjust("adjust", nil); err == nil {
		t.Error("expected an error for a topic without a slug segment")
	}
}

func TestHandleAdjustPropagatesEngineError(t *testing.T) {
	ts := dispatchThermostat()
	// Two all-day profiles overlap; the cycle aborts with a configuration
	// error that must surface to the broker wrapper.
	ts.Profiles = append(ts.Profiles, ts.Profiles[0])
	ts.Profiles[1].ID = "prof-clone"
	engine, _, repo := setupEngine(t, ts)

	consumer := NewCommandConsumer(repo, engine, time.Second, noopLogger{})
	if err := consumer.HandleAdjust("hearth/thermostat/main-floor/adjust", nil); err == nil {
		t.Error("expected the engine error to propagate")
	}

	// The consumer still resolves the slug before dispatching.
	if _, err := repo.GetBySlug(context.Background(), "main-floor"); err != nil {
		t.Fatalf("fixture lost its slug: %v", err)
	}
}
