package thermostat

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the thermostat tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE users (
			id              TEXT PRIMARY KEY,
			username        TEXT NOT NULL UNIQUE,
			display_name    TEXT NOT NULL DEFAULT '',
			is_active       INTEGER NOT NULL DEFAULT 1,
			api_server_url  TEXT NOT NULL DEFAULT '',
			api_token       TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE thermostats (
			id                  TEXT PRIMARY KEY,
			slug                TEXT NOT NULL UNIQUE,
			user_id             TEXT NOT NULL REFERENCES users(id),
			enabled             INTEGER NOT NULL DEFAULT 0,
			active_profile_id   TEXT,
			next_profile_change TEXT,
			rooms               TEXT NOT NULL DEFAULT '[]',
			rooms_state         TEXT NOT NULL DEFAULT '{}',
			devices_state       TEXT NOT NULL DEFAULT '[]',
			created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		CREATE TABLE profiles (
			id            TEXT PRIMARY KEY,
			thermostat_id TEXT NOT NULL REFERENCES thermostats(id) ON DELETE CASCADE,
			name          TEXT NOT NULL,
			schedule      TEXT NOT NULL DEFAULT '[]',
			sort_order    INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);

		INSERT INTO users (id, username) VALUES ('user-001', 'alice');
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func repositoryThermostat() *Thermostat {
	return &Thermostat{
		ID:      "th-001",
		Slug:    "main-floor",
		UserID:  "user-001",
		Enabled: true,
		Profiles: []Profile{
			{
				ID:   "prof-day",
				Name: "Day",
				Schedule: []ScheduleEntry{
					{StartMinute: 360, EndMinute: 1320, Target: 21, Mode: ModeHeat},
				},
			},
			{
				ID:        "prof-night",
				Name:      "Night",
				SortOrder: 1,
				Schedule: []ScheduleEntry{
					{StartMinute: 1320, EndMinute: 360, Target: 17, Mode: ModeHeat},
				},
			},
		},
		Rooms: []Room{
			{ID: "room-living", Name: "Living Room", Thermometers: []int{100}, Heaters: []int{200}, Coolers: []int{300}},
		},
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, repositoryThermostat()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "th-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Slug != "main-floor" || !got.Enabled {
		t.Errorf("unexpected thermostat: %+v", got)
	}
	if len(got.Profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(got.Profiles))
	}
	// Profiles come back in sort order.
	if got.Profiles[0].ID != "prof-day" || got.Profiles[1].ID != "prof-night" {
		t.Errorf("profile order = %s, %s", got.Profiles[0].ID, got.Profiles[1].ID)
	}
	if len(got.Profiles[1].Schedule) != 1 || got.Profiles[1].Schedule[0].Target != 17 {
		t.Errorf("night schedule lost: %+v", got.Profiles[1].Schedule)
	}
	if len(got.Rooms) != 1 || got.Rooms[0].Heaters[0] != 200 {
		t.Errorf("rooms lost: %+v", got.Rooms)
	}
}

func TestRepositoryGetBySlug(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, repositoryThermostat()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetBySlug(ctx, "main-floor")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got.ID != "th-001" {
		t.Errorf("id = %q, want th-001", got.ID)
	}

	if _, err := repo.GetBySlug(ctx, "nowhere"); !errors.Is(err, ErrThermostatNotFound) {
		t.Errorf("expected ErrThermostatNotFound, got %v", err)
	}
}

func TestRepositoryGetFirstForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	first := repositoryThermostat()
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}

	second := repositoryThermostat()
	second.ID = "th-002"
	second.Slug = "upstairs"
	second.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	got, err := repo.GetFirstForUser(ctx, "user-001")
	if err != nil {
		t.Fatalf("GetFirstForUser: %v", err)
	}
	if got.ID != "th-001" {
		t.Errorf("id = %q, want th-001 (oldest)", got.ID)
	}

	if _, err := repo.GetFirstForUser(ctx, "user-ghost"); !errors.Is(err, ErrThermostatNotFound) {
		t.Errorf("expected ErrThermostatNotFound, got %v", err)
	}
}

func TestRepositoryListEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	enabled := repositoryThermostat()
	if err := repo.Create(ctx, enabled); err != nil {
		t.Fatalf("Create enabled: %v", err)
	}

	disabled := repositoryThermostat()
	disabled.ID = "th-002"
	disabled.Slug = "upstairs"
	disabled.Enabled = false
	if err := repo.Create(ctx, disabled); err != nil {
		t.Fatalf("Create disabled: %v", err)
	}

	list, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(list) != 1 || list[0].ID != "th-001" {
		t.Fatalf("expected only th-001, got %+v", list)
	}
	if len(list[0].Profiles) != 2 {
		t.Errorf("profiles not loaded for listed thermostat")
	}
}

func TestRepositorySaveRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	ts := repositoryThermostat()
	if err := repo.Create(ctx, ts); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutate the aggregate the way a dispatch cycle does.
	forced := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	next := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	ts.NextProfileChange = &next
	ts.SetRoomState("room-living", RoomState{Action: ActionCooling, ForcedUntil: &forced})
	ts.MarkOn(300)
	ts.Profiles = ts.Profiles[:1] // drop a profile

	if err := repo.Save(ctx, ts); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.GetByID(ctx, "th-001")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Profiles) != 1 {
		t.Fatalf("dropped profile survived: %+v", got.Profiles)
	}
	state := got.RoomState("room-living")
	if state.Action != ActionCooling {
		t.Errorf("room action = %q, want cooling", state.Action)
	}
	if state.ForcedUntil == nil || !state.ForcedUntil.Equal(forced) {
		t.Errorf("forced until = %v, want %v", state.ForcedUntil, forced)
	}
	if !got.IsOn(300) {
		t.Error("devices state lost channel 300")
	}
	if got.NextProfileChange == nil || !got.NextProfileChange.Equal(next) {
		t.Errorf("next profile change = %v, want %v", got.NextProfileChange, next)
	}
}

func TestRepositorySaveMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	err := repo.Save(context.Background(), repositoryThermostat())
	if !errors.Is(err, ErrThermostatNotFound) {
		t.Errorf("expected ErrThermostatNotFound, got %v", err)
	}
}

func TestRepositoryCreateDuplicateSlug(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, repositoryThermostat()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := repositoryThermostat()
	dup.ID = "th-002"
	dup.Profiles = nil // fresh profile ids not needed; the slug collides first
	err := repo.Create(ctx, dup)
	if !errors.Is(err, ErrThermostatExists) {
		t.Errorf("expected ErrThermostatExists, got %v", err)
	}
}

func TestRepositoryDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, repositoryThermostat()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(ctx, "th-001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, "th-001"); !errors.Is(err, ErrThermostatNotFound) {
		t.Errorf("expected ErrThermostatNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "th-001"); !errors.Is(err, ErrThermostatNotFound) {
		t.Errorf("expected ErrThermostatNotFound on double delete, got %v", err)
	}
}
