package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hearthctl/hearth-core/internal/audit"
	"github.com/hearthctl/hearth-core/internal/auth"
	"github.com/hearthctl/hearth-core/internal/dispatch"
	"github.com/hearthctl/hearth-core/internal/supla"
	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// thermostatSnapshot is the response body for thermostat reads and patches.
// It combines the persisted aggregate with the dispatch cycle the request
// triggered, so clients always see post-adjustment state.
type thermostatSnapshot struct {
	ID                string                          `json:"id"`
	Slug              string                          `json:"slug"`
	Enabled           bool                            `json:"enabled"`
	Profiles          []thermostat.Profile            `json:"profiles"`
	Rooms             []thermostat.Room               `json:"rooms"`
	ActiveProfile     *thermostat.Profile             `json:"activeProfile,omitempty"`
	NextProfileChange *string                         `json:"nextProfileChange,omitempty"`
	RoomsState        map[string]thermostat.RoomState `json:"roomsState"`

	// TurnedOnDevices carries the full channel object for every device the
	// engine currently holds on, enriched from the cycle's channel states.
	TurnedOnDevices []supla.ChannelWithState `json:"turnedOnDevices"`

	// Channels carries every referenced device channel with live state.
	// Unreachable channels are flagged, never omitted.
	Channels []supla.ChannelWithState `json:"channels"`

	Failures []dispatch.DeviceFailure `json:"failures,omitempty"`
}

// optionalString distinguishes an absent JSON field from an explicit null.
// Used for activeProfileId where null means "unpin".
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// roomActionPatch forces or clears a manual room override.
type roomActionPatch struct {
	RoomID          string `json:"roomId"`
	Action          string `json:"action,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Clear           bool   `json:"clear,omitempty"`
}

// patchThermostatRequest is the request body for PATCH /thermostats/{id}.
// All fields are optional; present fields are applied together with the
// dispatch cycle under the thermostat's exclusion lock.
type patchThermostatRequest struct {
	Enabled         *bool            `json:"enabled"`
	ActiveProfileID optionalString   `json:"activeProfileId"`
	RoomAction      *roomActionPatch `json:"roomAction"`
}

// handleGetDefaultThermostat returns the authenticated user's first
// thermostat, freshly adjusted.
func (s *Server) handleGetDefaultThermostat(w http.ResponseWriter, r *http.Request) {
	t, err := s.repo.GetFirstForUser(r.Context(), userID(r))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snapshot, err := s.dispatchAndSnapshot(r.Context(), t.ID, nil)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleGetThermostatBySlug returns a thermostat by its public slug,
// freshly adjusted. No authentication: slugs act as capability URLs for
// wall panels on the local network.
func (s *Server) handleGetThermostatBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "ref")

	t, err := s.repo.GetBySlug(r.Context(), slug)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snapshot, err := s.dispatchAndSnapshot(r.Context(), t.ID, nil)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handlePatchThermostat applies partial updates (enable/disable, profile
// pin/unpin, room overrides) and runs a dispatch cycle in the same critical
// section, returning the resulting snapshot.
func (s *Server) handlePatchThermostat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ref")
	uid := userID(r)

	var req patchThermostatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var applied []auditedChange
	edit := func(t *thermostat.Thermostat) error {
		if !t.OwnedBy(uid) {
			return auth.ErrPermissionDenied
		}
		changes, err := s.applyPatch(t, &req)
		if err != nil {
			return err
		}
		applied = changes
		return nil
	}

	snapshot, err := s.dispatchAndSnapshot(r.Context(), id, edit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	for _, c := range applied {
		s.recordAudit(r.Context(), id, c)
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// auditedChange describes one applied patch mutation for the activity log.
type auditedChange struct {
	action  string
	message string
	details map[string]any
}

// applyPatch mutates the aggregate per the request. Called inside the
// engine's edit callback, so any returned error aborts before device
// commands or persistence.
func (s *Server) applyPatch(t *thermostat.Thermostat, req *patchThermostatRequest) ([]auditedChange, error) {
	var changes []auditedChange

	if req.Enabled != nil {
		t.Enabled = *req.Enabled
		action := "disable"
		if t.Enabled {
			action = "enable"
		}
		changes = append(changes, auditedChange{
			action:  action,
			message: "thermostat " + action + "d",
		})
	}

	if req.ActiveProfileID.Set {
		if req.ActiveProfileID.Value == nil {
			t.UnpinProfile()
			changes = append(changes, auditedChange{
				action:  "unpin",
				message: "profile pin removed, schedule resumes",
			})
		} else {
			pid := *req.ActiveProfileID.Value
			if err := t.PinProfile(pid); err != nil {
				return nil, err
			}
			changes = append(changes, auditedChange{
				action:  "pin",
				message: "profile pinned",
				details: map[string]any{"profile_id": pid},
			})
		}
	}

	if req.RoomAction != nil {
		change, err := s.applyRoomAction(t, req.RoomAction)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}

	return changes, nil
}

// applyRoomAction forces or clears a manual override on one room.
func (s *Server) applyRoomAction(t *thermostat.Thermostat, ra *roomActionPatch) (auditedChange, error) {
	room, ok := t.Room(ra.RoomID)
	if !ok {
		return auditedChange{}, thermostat.ErrRoomNotFound
	}
	state := t.RoomState(ra.RoomID)

	if ra.Clear {
		t.SetRoomState(ra.RoomID, s.controller.ClearForce(state))
		return auditedChange{
			action:  "clear",
			message: "room override cleared",
			details: map[string]any{"room_id": ra.RoomID},
		}, nil
	}

	duration := s.forceDuration
	if ra.DurationMinutes > 0 {
		duration = time.Duration(ra.DurationMinutes) * time.Minute
	}

	forced, err := s.controller.Force(room, state, thermostat.Action(ra.Action), duration, time.Now().UTC())
	if err != nil {
		return auditedChange{}, err
	}
	t.SetRoomState(ra.RoomID, forced)

	return auditedChange{
		action:  "force",
		message: "room action forced",
		details: map[string]any{
			"room_id":          ra.RoomID,
			"action":           ra.Action,
			"duration_minutes": int(duration.Minutes()),
		},
	}, nil
}

// dispatchAndSnapshot runs edit (when non-nil) plus a dispatch cycle through
// the engine and builds the response snapshot from the adjusted aggregate.
func (s *Server) dispatchAndSnapshot(ctx context.Context, id string, edit func(*thermostat.Thermostat) error) (*thermostatSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	// Capture the aggregate the engine loads; after Apply returns it holds
	// the fully adjusted, persisted state.
	var adjusted *thermostat.Thermostat
	wrapped := func(t *thermostat.Thermostat) error {
		adjusted = t
		if edit != nil {
			return edit(t)
		}
		return nil
	}

	result, err := s.engine.Apply(ctx, id, wrapped)
	if err != nil {
		return nil, err
	}

	return buildSnapshot(adjusted, result), nil
}

// buildSnapshot merges the adjusted aggregate with the cycle's result.
func buildSnapshot(t *thermostat.Thermostat, result *dispatch.Result) *thermostatSnapshot {
	snap := &thermostatSnapshot{
		ID:              t.ID,
		Slug:            t.Slug,
		Enabled:         t.Enabled,
		Profiles:        t.Profiles,
		Rooms:           t.Rooms,
		RoomsState:      t.RoomsState,
		TurnedOnDevices: turnedOnChannels(t.DevicesState, result.Channels),
		Channels:        result.Channels,
		Failures:        result.Failures,
	}

	if snap.Profiles == nil {
		snap.Profiles = []thermostat.Profile{}
	}
	if snap.Rooms == nil {
		snap.Rooms = []thermostat.Room{}
	}
	if snap.RoomsState == nil {
		snap.RoomsState = map[string]thermostat.RoomState{}
	}
	if snap.Channels == nil {
		snap.Channels = []supla.ChannelWithState{}
	}

	if result.ActiveProfileID != nil {
		if p, ok := t.Profile(*result.ActiveProfileID); ok {
			snap.ActiveProfile = p
		}
	}
	if result.NextProfileChange != nil {
		v := result.NextProfileChange.UTC().Format(time.RFC3339)
		snap.NextProfileChange = &v
	}

	return snap
}

// turnedOnChannels resolves the ids of turned-on devices against the
// cycle's collected channel states. A device the cycle did not annotate
// is reported unreachable rather than dropped.
func turnedOnChannels(ids []int, channels []supla.ChannelWithState) []supla.ChannelWithState {
	byID := make(map[int]supla.ChannelWithState, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	out := make([]supla.ChannelWithState, 0, len(ids))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
			continue
		}
		out = append(out, supla.ChannelWithState{
			Channel:     supla.Channel{ID: id},
			Unreachable: true,
		})
	}
	return out
}

// recordAudit writes one activity entry, best-effort.
func (s *Server) recordAudit(ctx context.Context, thermostatID string, c auditedChange) {
	if s.auditRepo == nil {
		return
	}
	entry := &audit.Entry{
		ThermostatID: thermostatID,
		Action:       c.action,
		Message:      c.message,
		Details:      c.details,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Warn("audit write failed", "thermostat_id", thermostatID, "action", c.action, "error", err)
	}
}

// handleListAudit returns paginated activity entries for one thermostat.
//
// Query parameters:
//   - action: filter by action (dispatch, enable, disable, pin, unpin, force, clear)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	id := chi.URLParam(r, "ref")
	t, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !t.OwnedBy(userID(r)) {
		s.writeDomainError(w, auth.ErrPermissionDenied)
		return
	}

	filter := audit.Filter{
		ThermostatID: id,
		Action:       r.URL.Query().Get("action"),
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed.
func queryInt(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
