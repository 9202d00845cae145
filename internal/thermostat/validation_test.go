package thermostat

import (
	"errors"
	"testing"
	"time"
)

func validThermostat() *Thermostat {
	return &Thermostat{
		ID:     "th-001",
		Slug:   "main-floor",
		UserID: "user-001",
		Profiles: []Profile{
			{
				ID:   "prof-day",
				Name: "Day",
				Schedule: []ScheduleEntry{
					{StartMinute: 6 * 60, EndMinute: 22 * 60, Target: 21, Mode: ModeHeat},
				},
			},
		},
		Rooms: []Room{
			{ID: "room-living", Name: "Living Room", Thermometers: []int{100}, Heaters: []int{200}},
		},
	}
}

func TestValidateThermostat(t *testing.T) {
	if err := ValidateThermostat(validThermostat()); err != nil {
		t.Fatalf("valid thermostat rejected: %v", err)
	}
}

func TestValidateThermostatSlug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"main-floor", true},
		{"a", true},
		{"floor-2", true},
		{"", false},
		{"Main-Floor", false},
		{"main_floor", false},
		{"-leading", false},
		{"trailing-", false},
	}

	for _, tt := range tests {
		ts := validThermostat()
		ts.Slug = tt.slug
		err := ValidateThermostat(ts)
		if tt.valid && err != nil {
			t.Errorf("slug %q rejected: %v", tt.slug, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidSlug) {
			t.Errorf("slug %q: expected ErrInvalidSlug, got %v", tt.slug, err)
		}
	}
}

func TestValidateThermostatActiveProfileIntegrity(t *testing.T) {
	ts := validThermostat()
	foreign := "prof-foreign"
	ts.ActiveProfileID = &foreign

	if err := ValidateThermostat(ts); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestValidateThermostatStateKeys(t *testing.T) {
	ts := validThermostat()
	ts.RoomsState = map[string]RoomState{
		"room-ghost": {Action: ActionIdle},
	}

	if err := ValidateThermostat(ts); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestValidateThermostatStateActionSupport(t *testing.T) {
	ts := validThermostat()
	// The living room has no coolers.
	ts.RoomsState = map[string]RoomState{
		"room-living": {Action: ActionCooling},
	}

	if err := ValidateThermostat(ts); !errors.Is(err, ErrActionUnsupported) {
		t.Errorf("expected ErrActionUnsupported, got %v", err)
	}
}

func TestValidateScheduleEntryBounds(t *testing.T) {
	tests := []struct {
		name  string
		entry ScheduleEntry
		valid bool
	}{
		{"plain window", ScheduleEntry{StartMinute: 0, EndMinute: 720, Mode: ModeHeat}, true},
		{"wrapped window", ScheduleEntry{StartMinute: 1320, EndMinute: 360, Mode: ModeHeat}, true},
		{"negative start", ScheduleEntry{StartMinute: -1, EndMinute: 360, Mode: ModeHeat}, false},
		{"start past midnight", ScheduleEntry{StartMinute: 1440, EndMinute: 360, Mode: ModeHeat}, false},
		{"end past midnight", ScheduleEntry{StartMinute: 0, EndMinute: 1441, Mode: ModeHeat}, false},
		{"bad mode", ScheduleEntry{StartMinute: 0, EndMinute: 720, Mode: Mode("boost")}, false},
		{"bad weekday", ScheduleEntry{StartMinute: 0, EndMinute: 720, Mode: ModeHeat, Days: []time.Weekday{9}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScheduleEntry(&tt.entry)
			if tt.valid && err != nil {
				t.Errorf("rejected: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("expected ErrInvalidSchedule, got %v", err)
			}
		})
	}
}

func TestValidateSchedulesOverlap(t *testing.T) {
	tests := []struct {
		name     string
		profiles []Profile
		overlap  bool
	}{
		{
			name: "disjoint windows",
			profiles: []Profile{
				{ID: "p1", Name: "Day", Schedule: []ScheduleEntry{{StartMinute: 360, EndMinute: 1320, Mode: ModeHeat}}},
				{ID: "p2", Name: "Night", Schedule: []ScheduleEntry{{StartMinute: 1320, EndMinute: 360, Mode: ModeHeat}}},
			},
			overlap: false,
		},
		{
			name: "same-day overlap across profiles",
			profiles: []Profile{
				{ID: "p1", Name: "Day", Schedule: []ScheduleEntry{{StartMinute: 360, EndMinute: 1320, Mode: ModeHeat}}},
				{ID: "p2", Name: "Noon", Schedule: []ScheduleEntry{{StartMinute: 600, EndMinute: 840, Mode: ModeHeat}}},
			},
			overlap: true,
		},
		{
			name: "overlap within one profile",
			profiles: []Profile{
				{ID: "p1", Name: "Day", Schedule: []ScheduleEntry{
					{StartMinute: 360, EndMinute: 720, Mode: ModeHeat},
					{StartMinute: 700, EndMinute: 900, Mode: ModeHeat},
				}},
			},
			overlap: true,
		},
		{
			name: "wrapped tail collides with morning window",
			profiles: []Profile{
				{ID: "p1", Name: "Night", Schedule: []ScheduleEntry{{StartMinute: 1320, EndMinute: 420, Mode: ModeHeat}}},
				{ID: "p2", Name: "Morning", Schedule: []ScheduleEntry{{StartMinute: 360, EndMinute: 540, Mode: ModeHeat}}},
			},
			overlap: true,
		},
		{
			name: "weekday separation avoids overlap",
			profiles: []Profile{
				{ID: "p1", Name: "Weekday", Schedule: []ScheduleEntry{
					{StartMinute: 360, EndMinute: 1320, Mode: ModeHeat, Days: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}},
				}},
				{ID: "p2", Name: "Weekend", Schedule: []ScheduleEntry{
					{StartMinute: 360, EndMinute: 1320, Mode: ModeHeat, Days: []time.Weekday{time.Saturday, time.Sunday}},
				}},
			},
			overlap: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedules(tt.profiles)
			if tt.overlap && !errors.Is(err, ErrScheduleOverlap) {
				t.Errorf("expected ErrScheduleOverlap, got %v", err)
			}
			if !tt.overlap && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPinUnpinProfile(t *testing.T) {
	ts := validThermostat()

	if err := ts.PinProfile("prof-ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("pinning unknown profile: expected ErrProfileNotFound, got %v", err)
	}

	if err := ts.PinProfile("prof-day"); err != nil {
		t.Fatalf("PinProfile: %v", err)
	}
	if ts.ActiveProfileID == nil || *ts.ActiveProfileID != "prof-day" {
		t.Fatalf("active profile = %v, want prof-day", ts.ActiveProfileID)
	}

	ts.UnpinProfile()
	if ts.ActiveProfileID != nil {
		t.Error("UnpinProfile must clear the reference")
	}
}

func TestMarkOnOff(t *testing.T) {
	ts := validThermostat()

	ts.MarkOn(200)
	ts.MarkOn(200) // duplicate is a no-op
	ts.MarkOn(300)
	if len(ts.DevicesState) != 2 {
		t.Fatalf("devices state = %v, want two entries", ts.DevicesState)
	}
	if !ts.IsOn(200) || !ts.IsOn(300) {
		t.Error("expected channels 200 and 300 marked on")
	}

	ts.MarkOff(200)
	if ts.IsOn(200) {
		t.Error("channel 200 still marked on after MarkOff")
	}
	ts.MarkOff(999) // unknown channel is a no-op
	if !ts.IsOn(300) {
		t.Error("channel 300 lost its mark")
	}
}
