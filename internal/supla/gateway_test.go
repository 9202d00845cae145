package supla

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeClient is a scriptable Client that records every call.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	devices    []Device
	listErr    error
	states     map[int]*ChannelState
	stateErr   error
	turnOnOK   bool
	turnOffOK  bool
	openClsOK  bool
	openOK     bool
	actionErr  error
	listCalled int
}

func newFakeClient() *fakeClient {
	on := true
	temp := 18.0
	return &fakeClient{
		devices: []Device{
			{
				ID:        1,
				Name:      "Living room hub",
				Enabled:   true,
				Connected: true,
				Channels: []Channel{
					{ID: 100, DeviceID: 1, Function: "THERMOMETER"},
					{ID: 200, DeviceID: 1, Function: "POWERSWITCH"},
					{ID: 300, DeviceID: 1, Function: "CONTROLLINGTHEROLLERSHUTTER"},
				},
			},
		},
		states: map[int]*ChannelState{
			100: {Connected: true, Temperature: &temp},
			200: {Connected: true, On: &on},
			300: {Connected: true}, // no definite on/off state
		},
		turnOnOK:  true,
		turnOffOK: true,
		openClsOK: true,
		openOK:    true,
	}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cpy := make([]string, len(f.calls))
	copy(cpy, f.calls)
	return cpy
}

func (f *fakeClient) IODevices(_ context.Context) ([]Device, error) {
	f.record("iodevices")
	f.mu.Lock()
	f.listCalled++
	f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.devices, nil
}

func (f *fakeClient) State(_ context.Context, channelID int) (*ChannelState, error) {
	f.record("state")
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	s, ok := f.states[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return s, nil
}

func (f *fakeClient) TurnOn(_ context.Context, _ int) (bool, error) {
	f.record("turn_on")
	return f.turnOnOK, f.actionErr
}

func (f *fakeClient) TurnOff(_ context.Context, _ int) (bool, error) {
	f.record("turn_off")
	return f.turnOffOK, f.actionErr
}

func (f *fakeClient) OpenClose(_ context.Context, _ int) (bool, error) {
	f.record("open_close")
	return f.openClsOK, f.actionErr
}

func (f *fakeClient) Open(_ context.Context, _ int) (bool, error) {
	f.record("open")
	return f.openOK, f.actionErr
}

func TestDevicesCachedForGatewayLifetime(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, false, nil)
	ctx := context.Background()

	if _, err := gw.Devices(ctx); err != nil {
		t.Fatalf("first Devices call failed: %v", err)
	}
	if _, err := gw.Devices(ctx); err != nil {
		t.Fatalf("second Devices call failed: %v", err)
	}
	if _, err := gw.Channel(ctx, 200); err != nil {
		t.Fatalf("Channel lookup failed: %v", err)
	}

	if client.listCalled != 1 {
		t.Errorf("expected one remote listing, got %d", client.listCalled)
	}
}

func TestChannelNotFound(t *testing.T) {
	gw := NewGateway(newFakeClient(), false, nil)

	_, err := gw.Channel(context.Background(), 999)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestTurnOnDirectPrimitive(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, false, nil)

	ok, err := gw.TurnOn(context.Background(), 200)
	if err != nil || !ok {
		t.Fatalf("TurnOn = (%v, %v), want (true, nil)", ok, err)
	}

	calls := client.recorded()
	if len(calls) != 1 || calls[0] != "turn_on" {
		t.Errorf("expected single turn_on call, got %v", calls)
	}
}

func TestTurnOnFallbackChain(t *testing.T) {
	tests := []struct {
		name      string
		openClsOK bool
		openOK    bool
		want      bool
		wantCalls []string
	}{
		{
			name:      "open_close succeeds",
			openClsOK: true,
			openOK:    false,
			want:      true,
			wantCalls: []string{"turn_on", "open_close"},
		},
		{
			name:      "open succeeds after open_close rejected",
			openClsOK: false,
			openOK:    true,
			want:      true,
			wantCalls: []string{"turn_on", "open_close", "open"},
		},
		{
			name:      "entire chain rejected",
			openClsOK: false,
			openOK:    false,
			want:      false,
			wantCalls: []string{"turn_on", "open_close", "open"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.turnOnOK = false
			client.openClsOK = tt.openClsOK
			client.openOK = tt.openOK
			gw := NewGateway(client, false, nil)

			ok, err := gw.TurnOn(context.Background(), 200)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.want {
				t.Errorf("TurnOn = %v, want %v", ok, tt.want)
			}

			calls := client.recorded()
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", calls, tt.wantCalls)
			}
			for i := range calls {
				if calls[i] != tt.wantCalls[i] {
					t.Errorf("call %d = %q, want %q", i, calls[i], tt.wantCalls[i])
				}
			}
		})
	}
}

func TestTurnOffTransportErrorPropagates(t *testing.T) {
	client := newFakeClient()
	client.turnOffOK = false
	client.actionErr = ErrUpstreamUnavailable
	gw := NewGateway(client, false, nil)

	_, err := gw.TurnOff(context.Background(), 200)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestToggleUsesReportedState(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, false, nil)

	// Channel 200 reports on=true, so toggle must turn it off.
	ok, err := gw.Toggle(context.Background(), 200)
	if err != nil || !ok {
		t.Fatalf("Toggle = (%v, %v), want (true, nil)", ok, err)
	}

	var sawTurnOff bool
	for _, call := range client.recorded() {
		if call == "turn_on" {
			t.Error("toggle of an on channel must not call turn_on")
		}
		if call == "turn_off" {
			sawTurnOff = true
		}
	}
	if !sawTurnOff {
		t.Error("expected turn_off call")
	}
}

func TestToggleWithoutDefiniteStateUsesFallback(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, false, nil)

	// Channel 300 (shutter) has no on/off state.
	ok, err := gw.Toggle(context.Background(), 300)
	if err != nil || !ok {
		t.Fatalf("Toggle = (%v, %v), want (true, nil)", ok, err)
	}

	for _, call := range client.recorded() {
		if call == "turn_on" || call == "turn_off" {
			t.Errorf("unexpected direct primitive %q for stateless channel", call)
		}
	}
}

func TestReadOnlyModeSkipsWrites(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, true, nil)
	ctx := context.Background()

	if ok, err := gw.TurnOn(ctx, 200); err != nil || !ok {
		t.Fatalf("TurnOn in read-only mode = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := gw.TurnOff(ctx, 200); err != nil || !ok {
		t.Fatalf("TurnOff in read-only mode = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := gw.Toggle(ctx, 300); err != nil || !ok {
		t.Fatalf("Toggle in read-only mode = (%v, %v), want (true, nil)", ok, err)
	}

	for _, call := range client.recorded() {
		switch call {
		case "turn_on", "turn_off", "open_close", "open":
			t.Errorf("write call %q reached the remote API in read-only mode", call)
		}
	}

	// Reads must still work.
	if _, err := gw.Temperature(ctx, 100); err != nil {
		t.Errorf("Temperature read failed in read-only mode: %v", err)
	}
}

func TestTemperatureMissingReading(t *testing.T) {
	client := newFakeClient()
	gw := NewGateway(client, false, nil)

	_, err := gw.Temperature(context.Background(), 200)
	if !errors.Is(err, ErrNoTemperature) {
		t.Errorf("expected ErrNoTemperature, got %v", err)
	}
}
