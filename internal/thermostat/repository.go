package thermostat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for thermostat persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a thermostat aggregate by id.
	// Returns ErrThermostatNotFound if the thermostat does not exist.
	GetByID(ctx context.Context, id string) (*Thermostat, error)

	// GetBySlug retrieves a thermostat aggregate by its public slug.
	// Returns ErrThermostatNotFound if the slug does not exist.
	GetBySlug(ctx context.Context, slug string) (*Thermostat, error)

	// GetFirstForUser retrieves the user's first thermostat (by creation
	// time). Returns ErrThermostatNotFound when the user owns none.
	GetFirstForUser(ctx context.Context, userID string) (*Thermostat, error)

	// ListEnabled retrieves all thermostats with dispatch enabled.
	ListEnabled(ctx context.Context) ([]Thermostat, error)

	// Create inserts a new thermostat aggregate with its profiles.
	// Returns ErrThermostatExists on id or slug collision.
	Create(ctx context.Context, t *Thermostat) error

	// Save writes the whole aggregate back in one transaction: the
	// thermostat row plus a full replace of its profile rows
	// (last-write-wins per aggregate).
	// Returns ErrThermostatNotFound if the thermostat does not exist.
	Save(ctx context.Context, t *Thermostat) error

	// Delete removes a thermostat and, via cascade, its profiles.
	// Returns ErrThermostatNotFound if the thermostat does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const thermostatColumns = `id, slug, user_id, enabled, active_profile_id,
	next_profile_change, rooms, rooms_state, devices_state, created_at, updated_at`

// GetByID retrieves a thermostat aggregate by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Thermostat, error) {
	query := `SELECT ` + thermostatColumns + ` FROM thermostats WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetBySlug retrieves a thermostat aggregate by its public slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Thermostat, error) {
	query := `SELECT ` + thermostatColumns + ` FROM thermostats WHERE slug = ?`
	return r.getOne(ctx, query, slug)
}

// GetFirstForUser retrieves the user's first thermostat.
func (r *SQLiteRepository) GetFirstForUser(ctx context.Context, userID string) (*Thermostat, error) {
	query := `SELECT ` + thermostatColumns + ` FROM thermostats
		WHERE user_id = ? ORDER BY created_at, id LIMIT 1`
	return r.getOne(ctx, query, userID)
}

// ListEnabled retrieves all thermostats with dispatch enabled.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Thermostat, error) {
	query := `SELECT ` + thermostatColumns + ` FROM thermostats WHERE enabled = 1 ORDER BY slug`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying thermostats: %w", err)
	}
	defer rows.Close()

	var thermostats []Thermostat
	for rows.Next() {
		t, err := scanThermostat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning thermostat: %w", err)
		}
		thermostats = append(thermostats, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thermostats: %w", err)
	}

	for i := range thermostats {
		profiles, err := r.loadProfiles(ctx, thermostats[i].ID)
		if err != nil {
			return nil, err
		}
		thermostats[i].Profiles = profiles
	}

	return thermostats, nil
}

// Create inserts a new thermostat aggregate with its profiles.
func (r *SQLiteRepository) Create(ctx context.Context, t *Thermostat) error {
	roomsJSON, roomsStateJSON, devicesStateJSON, err := marshalAggregate(t)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		INSERT INTO thermostats (
			id, slug, user_id, enabled, active_profile_id, next_profile_change,
			rooms, rooms_state, devices_state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		t.ID,
		t.Slug,
		t.UserID,
		boolToInt(t.Enabled),
		nullableString(t.ActiveProfileID),
		nullableTime(t.NextProfileChange),
		roomsJSON,
		roomsStateJSON,
		devicesStateJSON,
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrThermostatExists
		}
		return fmt.Errorf("inserting thermostat: %w", err)
	}

	if err := insertProfiles(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Save writes the whole aggregate back in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, t *Thermostat) error {
	roomsJSON, roomsStateJSON, devicesStateJSON, err := marshalAggregate(t)
	if err != nil {
		return err
	}

	t.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
		UPDATE thermostats SET
			slug = ?, user_id = ?, enabled = ?, active_profile_id = ?,
			next_profile_change = ?, rooms = ?, rooms_state = ?,
			devices_state = ?, updated_at = ?
		WHERE id = ?`

	result, err := tx.ExecContext(ctx, query,
		t.Slug,
		t.UserID,
		boolToInt(t.Enabled),
		nullableString(t.ActiveProfileID),
		nullableTime(t.NextProfileChange),
		roomsJSON,
		roomsStateJSON,
		devicesStateJSON,
		t.UpdatedAt.Format(time.RFC3339),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating thermostat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrThermostatNotFound
	}

	// Full replace keeps profile rows in step with the aggregate without
	// diffing.
	if _, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE thermostat_id = ?", t.ID); err != nil {
		return fmt.Errorf("clearing profiles: %w", err)
	}
	if err := insertProfiles(ctx, tx, t); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes a thermostat and its profiles.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM thermostats WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting thermostat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrThermostatNotFound
	}
	return nil
}

// getOne runs a single-row thermostat query and loads the owned profiles.
func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*Thermostat, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	t, err := scanThermostat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThermostatNotFound
		}
		return nil, fmt.Errorf("querying thermostat: %w", err)
	}

	profiles, err := r.loadProfiles(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Profiles = profiles
	return t, nil
}

// loadProfiles fetches a thermostat's profiles ordered by sort order.
func (r *SQLiteRepository) loadProfiles(ctx context.Context, thermostatID string) ([]Profile, error) {
	query := `
		SELECT id, name, schedule, sort_order
		FROM profiles
		WHERE thermostat_id = ?
		ORDER BY sort_order, name`

	rows, err := r.db.QueryContext(ctx, query, thermostatID)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		var scheduleJSON string
		if err := rows.Scan(&p.ID, &p.Name, &scheduleJSON, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		if err := json.Unmarshal([]byte(scheduleJSON), &p.Schedule); err != nil {
			return nil, fmt.Errorf("unmarshalling schedule: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return profiles, nil
}

// insertProfiles writes the aggregate's profile rows inside a transaction.
func insertProfiles(ctx context.Context, tx *sql.Tx, t *Thermostat) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO profiles (id, thermostat_id, name, schedule, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	for i := range t.Profiles {
		p := &t.Profiles[i]
		scheduleJSON, err := json.Marshal(p.Schedule)
		if err != nil {
			return fmt.Errorf("marshalling schedule: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			p.ID, t.ID, p.Name, string(scheduleJSON), p.SortOrder, now, now,
		); err != nil {
			return fmt.Errorf("inserting profile: %w", err)
		}
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanThermostat scans a row or rows result into a Thermostat (profiles are
// loaded separately).
func scanThermostat(scanner rowScanner) (*Thermostat, error) {
	var t Thermostat
	var enabled int
	var activeProfileID, nextProfileChange sql.NullString
	var roomsJSON, roomsStateJSON, devicesStateJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&t.ID,
		&t.Slug,
		&t.UserID,
		&enabled,
		&activeProfileID,
		&nextProfileChange,
		&roomsJSON,
		&roomsStateJSON,
		&devicesStateJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Enabled = enabled != 0
	if activeProfileID.Valid {
		t.ActiveProfileID = &activeProfileID.String
	}
	if nextProfileChange.Valid {
		ts, err := time.Parse(time.RFC3339, nextProfileChange.String)
		if err == nil {
			t.NextProfileChange = &ts
		}
	}

	var parseErr error
	t.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	t.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	if err := json.Unmarshal([]byte(roomsJSON), &t.Rooms); err != nil {
		return nil, fmt.Errorf("unmarshalling rooms: %w", err)
	}
	if err := json.Unmarshal([]byte(roomsStateJSON), &t.RoomsState); err != nil {
		return nil, fmt.Errorf("unmarshalling rooms_state: %w", err)
	}
	if err := json.Unmarshal([]byte(devicesStateJSON), &t.DevicesState); err != nil {
		return nil, fmt.Errorf("unmarshalling devices_state: %w", err)
	}

	return &t, nil
}

// marshalAggregate serialises the JSON columns of a thermostat row.
func marshalAggregate(t *Thermostat) (rooms, roomsState, devicesState string, err error) {
	roomsJSON, err := json.Marshal(orEmptySlice(t.Rooms))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling rooms: %w", err)
	}
	stateJSON, err := json.Marshal(orEmptyMap(t.RoomsState))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling rooms_state: %w", err)
	}
	devicesJSON, err := json.Marshal(orEmptyInts(t.DevicesState))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling devices_state: %w", err)
	}
	return string(roomsJSON), string(stateJSON), string(devicesJSON), nil
}

// orEmptySlice keeps nil room lists serialising as [] rather than null.
func orEmptySlice(rooms []Room) []Room {
	if rooms == nil {
		return []Room{}
	}
	return rooms
}

// orEmptyMap keeps nil state maps serialising as {} rather than null.
func orEmptyMap(m map[string]RoomState) map[string]RoomState {
	if m == nil {
		return map[string]RoomState{}
	}
	return m
}

// orEmptyInts keeps nil id lists serialising as [] rather than null.
func orEmptyInts(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
