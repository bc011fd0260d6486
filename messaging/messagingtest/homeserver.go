// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagingtest provides an in-memory Matrix homeserver for
// tests. It serves the subset of the client-server API the messaging
// package calls over httptest, applies the membership and power level
// rules a real homeserver enforces, and records every mutation with a
// timestamp from an injectable clock so tests can assert both what
// changed and when.
package messagingtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/inviter/lib/clock"
	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/lib/testutil"
	"github.com/bureau-foundation/inviter/messaging"
)

// Mutation kinds recorded by the homeserver.
const (
	KindCreateRoom = "create_room"
	KindInvite     = "invite"
	KindKick       = "kick"
	KindLeave      = "leave"
	KindState      = "state"
	KindMessage    = "message"
)

// Mutation is one accepted write.
type Mutation struct {
	Kind   string
	RoomID ref.RoomID
	// Target is the affected user for invite, kick, and leave, and the
	// event type for state and message writes.
	Target  string
	Content json.RawMessage
	At      time.Time
}

// Config configures a Homeserver.
type Config struct {
	// ServerName is the homeserver's name. Created room IDs and aliases
	// use it.
	ServerName ref.ServerName

	// Agent is the user the access token authenticates as.
	Agent ref.UserID

	// AccessToken defaults to "test-token".
	AccessToken string

	// Clock stamps mutations. Defaults to clock.Real().
	Clock clock.Clock
}

// Homeserver is an in-memory Matrix homeserver.
type Homeserver struct {
	server      *httptest.Server
	serverName  ref.ServerName
	agent       ref.UserID
	accessToken string
	clock       clock.Clock

	mu        sync.Mutex
	aliases   map[ref.RoomAlias]ref.RoomID
	rooms     map[ref.RoomID]*room
	mutations []Mutation
	failures  []failure
}

type room struct {
	members map[ref.UserID]string
	state   map[stateKey]json.RawMessage
}

type stateKey struct {
	eventType ref.EventType
	key       string
}

type failure struct {
	kind       string
	target     string
	statusCode int
	errcode    string
}

// New starts a homeserver. It is closed when the test ends.
func New(t testing.TB, config Config) *Homeserver {
	t.Helper()
	if config.AccessToken == "" {
		config.AccessToken = "test-token"
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	homeserver := &Homeserver{
		serverName:  config.ServerName,
		agent:       config.Agent,
		accessToken: config.AccessToken,
		clock:       config.Clock,
		aliases:     make(map[ref.RoomAlias]ref.RoomID),
		rooms:       make(map[ref.RoomID]*room),
	}
	homeserver.server = httptest.NewServer(homeserver.handler())
	t.Cleanup(homeserver.server.Close)
	return homeserver
}

// URL returns the homeserver's base URL.
func (h *Homeserver) URL() string { return h.server.URL }

// AccessToken returns the token that authenticates as the agent.
func (h *Homeserver) AccessToken() string { return h.accessToken }

// AddRoom creates a room directly, bypassing createRoom and the
// mutation log. The room starts empty with default power levels. A zero
// alias creates a room with no alias.
func (h *Homeserver) AddRoom(alias ref.RoomAlias) ref.RoomID {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID := h.newRoomLocked()
	if !alias.IsZero() {
		h.aliases[alias] = roomID
		h.rooms[roomID].setState(schema.MatrixEventTypeCanonicalAlias, "", schema.CanonicalAliasContent{Alias: alias.String()})
	}
	return roomID
}

// SetMembership sets a user's membership in a room (join, invite,
// leave, ban).
func (h *Homeserver) SetMembership(roomID ref.RoomID, userID ref.UserID, membership string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mustRoomLocked(roomID).members[userID] = membership
}

// SetUserLevel sets one user's power level in a room.
func (h *Homeserver) SetUserLevel(roomID ref.RoomID, userID ref.UserID, level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	target := h.mustRoomLocked(roomID)
	powerLevels := target.powerLevels()
	powerLevels.SetUserLevel(userID, level)
	target.setState(schema.MatrixEventTypePowerLevels, "", powerLevels)
}

// SetState stores a state event without recording a mutation.
func (h *Homeserver) SetState(roomID ref.RoomID, eventType ref.EventType, key string, content any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mustRoomLocked(roomID).setState(eventType, key, content)
}

// Membership returns a user's membership in a room, or "" if the room
// has never seen the user.
func (h *Homeserver) Membership(roomID ref.RoomID, userID ref.UserID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mustRoomLocked(roomID).members[userID]
}

// PowerLevels returns a copy of a room's power levels.
func (h *Homeserver) PowerLevels(roomID ref.RoomID) *schema.PowerLevels {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mustRoomLocked(roomID).powerLevels()
}

// State returns a room's state event content.
func (h *Homeserver) State(roomID ref.RoomID, eventType ref.EventType, key string) (json.RawMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	content, ok := h.mustRoomLocked(roomID).state[stateKey{eventType, key}]
	return content, ok
}

// RoomID returns the room an alias points to.
func (h *Homeserver) RoomID(alias ref.RoomAlias) (ref.RoomID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, ok := h.aliases[alias]
	return roomID, ok
}

// Mutations returns the accepted writes in the order they arrived.
func (h *Homeserver) Mutations() []Mutation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.mutations)
}

// MutationsOf returns the accepted writes of one kind.
func (h *Homeserver) MutationsOf(kind string) []Mutation {
	var matching []Mutation
	for _, mutation := range h.Mutations() {
		if mutation.Kind == kind {
			matching = append(matching, mutation)
		}
	}
	return matching
}

// ResetMutations clears the mutation log.
func (h *Homeserver) ResetMutations() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mutations = nil
}

// Fail makes every request of kind against target fail with the given
// status and errcode until ClearFailures. Target is a user ID for
// invite and kick, an event type for state writes, and "" to match any
// target. KindCreateRoom and KindLeave take "".
func (h *Homeserver) Fail(kind, target string, statusCode int, errcode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, failure{kind: kind, target: target, statusCode: statusCode, errcode: errcode})
}

// ClearFailures removes every injected failure.
func (h *Homeserver) ClearFailures() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = nil
}

func (h *Homeserver) newRoomLocked() ref.RoomID {
	roomID := ref.MustParseRoomID("!" + testutil.UniqueID("room") + ":" + h.serverName.String())
	target := &room{
		members: make(map[ref.UserID]string),
		state:   make(map[stateKey]json.RawMessage),
	}
	target.setState(schema.MatrixEventTypePowerLevels, "", schema.PowerLevels{
		Users:         map[string]int{},
		UsersDefault:  schema.Level(0),
		EventsDefault: schema.Level(0),
		StateDefault:  schema.Level(50),
		Invite:        schema.Level(0),
		Kick:          schema.Level(50),
		Ban:           schema.Level(50),
		Redact:        schema.Level(50),
	})
	h.rooms[roomID] = target
	return roomID
}

func (h *Homeserver) mustRoomLocked(roomID ref.RoomID) *room {
	target, ok := h.rooms[roomID]
	if !ok {
		panic(fmt.Sprintf("messagingtest: unknown room %s", roomID))
	}
	return target
}

func (h *Homeserver) recordLocked(kind string, roomID ref.RoomID, target string, content json.RawMessage) {
	h.mutations = append(h.mutations, Mutation{
		Kind:    kind,
		RoomID:  roomID,
		Target:  target,
		Content: content,
		At:      h.clock.Now(),
	})
}

func (h *Homeserver) injectedLocked(kind, target string) *failure {
	for index := range h.failures {
		candidate := &h.failures[index]
		if candidate.kind == kind && (candidate.target == "" || candidate.target == target) {
			return candidate
		}
	}
	return nil
}

func (r *room) setState(eventType ref.EventType, key string, content any) {
	data, err := json.Marshal(content)
	if err != nil {
		panic(fmt.Sprintf("messagingtest: marshaling %s: %v", eventType, err))
	}
	r.state[stateKey{eventType, key}] = data
}

func (r *room) powerLevels() *schema.PowerLevels {
	var powerLevels schema.PowerLevels
	if content, ok := r.state[stateKey{schema.MatrixEventTypePowerLevels, ""}]; ok {
		if err := json.Unmarshal(content, &powerLevels); err != nil {
			panic(fmt.Sprintf("messagingtest: corrupt power levels: %v", err))
		}
	}
	return &powerLevels
}

func threshold(level *int, fallback int) int {
	if level == nil {
		return fallback
	}
	return *level
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errcode, format string, args ...any) {
	writeJSON(w, status, map[string]string{
		"errcode": errcode,
		"error":   fmt.Sprintf(format, args...),
	})
}

func writeInjected(w http.ResponseWriter, injected *failure) {
	writeError(w, injected.statusCode, injected.errcode, "injected failure")
}

// handler routes requests. Path segments are split on the raw path and
// unescaped individually because the client escapes room IDs, aliases,
// and state keys.
func (h *Homeserver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+h.accessToken {
			writeError(w, http.StatusUnauthorized, messaging.ErrCodeUnknownToken, "unknown token")
			return
		}

		rawPath := r.URL.RawPath
		if rawPath == "" {
			rawPath = r.URL.Path
		}
		const prefix = "/_matrix/client/v3/"
		if !strings.HasPrefix(rawPath, prefix) {
			http.NotFound(w, r)
			return
		}
		segments := strings.Split(rawPath[len(prefix):], "/")
		for index, segment := range segments {
			unescaped, err := url.PathUnescape(segment)
			if err != nil {
				writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "bad path segment %q", segment)
				return
			}
			segments[index] = unescaped
		}

		body, _ := io.ReadAll(r.Body)

		h.mu.Lock()
		defer h.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && len(segments) == 2 && segments[0] == "account" && segments[1] == "whoami":
			writeJSON(w, http.StatusOK, messaging.WhoAmIResponse{UserID: h.agent})
		case r.Method == http.MethodGet && len(segments) == 1 && segments[0] == "joined_rooms":
			h.handleJoinedRooms(w)
		case r.Method == http.MethodGet && len(segments) == 3 && segments[0] == "directory" && segments[1] == "room":
			h.handleResolveAlias(w, segments[2])
		case r.Method == http.MethodPost && len(segments) == 1 && segments[0] == "createRoom":
			h.handleCreateRoom(w, body)
		case len(segments) >= 3 && segments[0] == "rooms":
			h.handleRoom(w, r.Method, segments[1], segments[2:], body)
		default:
			writeError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized request %s %s", r.Method, rawPath)
		}
	})
}

func (h *Homeserver) handleJoinedRooms(w http.ResponseWriter) {
	joined := []ref.RoomID{}
	for roomID, target := range h.rooms {
		if target.members[h.agent] == messaging.MembershipJoin {
			joined = append(joined, roomID)
		}
	}
	slices.SortFunc(joined, func(a, b ref.RoomID) int { return strings.Compare(a.String(), b.String()) })
	writeJSON(w, http.StatusOK, messaging.JoinedRoomsResponse{JoinedRooms: joined})
}

func (h *Homeserver) handleResolveAlias(w http.ResponseWriter, rawAlias string) {
	alias, err := ref.ParseRoomAlias(rawAlias)
	if err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "%v", err)
		return
	}
	roomID, ok := h.aliases[alias]
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "room alias %s not found", alias)
		return
	}
	writeJSON(w, http.StatusOK, messaging.ResolveAliasResponse{RoomID: roomID, Servers: []string{h.serverName.String()}})
}

func (h *Homeserver) handleCreateRoom(w http.ResponseWriter, body []byte) {
	if injected := h.injectedLocked(KindCreateRoom, ""); injected != nil {
		writeInjected(w, injected)
		return
	}
	var request struct {
		Name         string `json:"name"`
		Alias        string `json:"room_alias_name"`
		Preset       string `json:"preset"`
		InitialState []struct {
			Type     ref.EventType   `json:"type"`
			StateKey string          `json:"state_key"`
			Content  json.RawMessage `json:"content"`
		} `json:"initial_state"`
	}
	if err := json.Unmarshal(body, &request); err != nil {
		writeError(w, http.StatusBadRequest, "M_NOT_JSON", "%v", err)
		return
	}

	var alias ref.RoomAlias
	if request.Alias != "" {
		parsed, err := ref.NewRoomAlias(request.Alias, h.serverName)
		if err != nil {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "%v", err)
			return
		}
		if _, taken := h.aliases[parsed]; taken {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeRoomInUse, "room alias already taken")
			return
		}
		alias = parsed
	}

	roomID := h.newRoomLocked()
	created := h.rooms[roomID]
	created.members[h.agent] = messaging.MembershipJoin
	powerLevels := created.powerLevels()
	powerLevels.SetUserLevel(h.agent, schema.TierAdmin.Level())
	created.setState(schema.MatrixEventTypePowerLevels, "", powerLevels)
	if !alias.IsZero() {
		h.aliases[alias] = roomID
		created.setState(schema.MatrixEventTypeCanonicalAlias, "", schema.CanonicalAliasContent{Alias: alias.String()})
	}
	if request.Name != "" {
		created.setState(schema.MatrixEventTypeRoomName, "", schema.RoomNameContent{Name: request.Name})
	}
	for _, event := range request.InitialState {
		created.state[stateKey{event.Type, event.StateKey}] = event.Content
	}

	h.recordLocked(KindCreateRoom, roomID, alias.String(), body)
	writeJSON(w, http.StatusOK, messaging.CreateRoomResponse{RoomID: roomID})
}

func (h *Homeserver) handleRoom(w http.ResponseWriter, method, rawRoomID string, rest []string, body []byte) {
	roomID, err := ref.ParseRoomID(rawRoomID)
	if err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "%v", err)
		return
	}
	target, ok := h.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room %s", roomID)
		return
	}
	if target.members[h.agent] != messaging.MembershipJoin {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "%s is not in room %s", h.agent, roomID)
		return
	}

	switch {
	case method == http.MethodGet && len(rest) == 1 && rest[0] == "members":
		h.handleMembers(w, target)
	case method == http.MethodGet && len(rest) == 3 && rest[0] == "state":
		content, ok := target.state[stateKey{ref.EventType(rest[1]), rest[2]}]
		if !ok {
			writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "event not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(content)
	case method == http.MethodPut && len(rest) == 3 && rest[0] == "state":
		h.handlePutState(w, roomID, target, ref.EventType(rest[1]), rest[2], body)
	case method == http.MethodPost && len(rest) == 1 && rest[0] == "invite":
		h.handleInvite(w, roomID, target, body)
	case method == http.MethodPost && len(rest) == 1 && rest[0] == "kick":
		h.handleKick(w, roomID, target, body)
	case method == http.MethodPost && len(rest) == 1 && rest[0] == "leave":
		if injected := h.injectedLocked(KindLeave, ""); injected != nil {
			writeInjected(w, injected)
			return
		}
		target.members[h.agent] = messaging.MembershipLeave
		h.recordLocked(KindLeave, roomID, h.agent.String(), nil)
		writeJSON(w, http.StatusOK, struct{}{})
	case method == http.MethodPut && len(rest) == 3 && rest[0] == "send":
		if injected := h.injectedLocked(KindMessage, rest[1]); injected != nil {
			writeInjected(w, injected)
			return
		}
		h.recordLocked(KindMessage, roomID, rest[1], body)
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$" + testutil.UniqueID("event")})
	default:
		writeError(w, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized room request %s %v", method, rest)
	}
}

func (h *Homeserver) handleMembers(w http.ResponseWriter, target *room) {
	response := messaging.RoomMembersResponse{Chunk: []messaging.RoomMemberEvent{}}
	for userID, membership := range target.members {
		response.Chunk = append(response.Chunk, messaging.RoomMemberEvent{
			Type:     "m.room.member",
			StateKey: userID.String(),
			Sender:   userID.String(),
			Content:  messaging.RoomMemberContent{Membership: membership},
		})
	}
	slices.SortFunc(response.Chunk, func(a, b messaging.RoomMemberEvent) int {
		return strings.Compare(a.StateKey, b.StateKey)
	})
	writeJSON(w, http.StatusOK, response)
}

func (h *Homeserver) handleInvite(w http.ResponseWriter, roomID ref.RoomID, target *room, body []byte) {
	var request messaging.InviteRequest
	if err := json.Unmarshal(body, &request); err != nil {
		writeError(w, http.StatusBadRequest, "M_NOT_JSON", "%v", err)
		return
	}
	if injected := h.injectedLocked(KindInvite, request.UserID.String()); injected != nil {
		writeInjected(w, injected)
		return
	}
	powerLevels := target.powerLevels()
	if powerLevels.UserLevel(h.agent) < threshold(powerLevels.Invite, 0) {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "insufficient power to invite")
		return
	}
	switch target.members[request.UserID] {
	case messaging.MembershipJoin:
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "%s is already in the room", request.UserID)
		return
	case messaging.MembershipBan:
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "%s is banned from the room", request.UserID)
		return
	}
	target.members[request.UserID] = messaging.MembershipInvite
	h.recordLocked(KindInvite, roomID, request.UserID.String(), body)
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Homeserver) handleKick(w http.ResponseWriter, roomID ref.RoomID, target *room, body []byte) {
	var request messaging.KickRequest
	if err := json.Unmarshal(body, &request); err != nil {
		writeError(w, http.StatusBadRequest, "M_NOT_JSON", "%v", err)
		return
	}
	if injected := h.injectedLocked(KindKick, request.UserID.String()); injected != nil {
		writeInjected(w, injected)
		return
	}
	membership := target.members[request.UserID]
	if membership != messaging.MembershipJoin && membership != messaging.MembershipInvite {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "%s is not in the room", request.UserID)
		return
	}
	powerLevels := target.powerLevels()
	own := powerLevels.UserLevel(h.agent)
	if own < threshold(powerLevels.Kick, 50) || powerLevels.UserLevel(request.UserID) >= own {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "insufficient power to kick %s", request.UserID)
		return
	}
	target.members[request.UserID] = messaging.MembershipLeave
	h.recordLocked(KindKick, roomID, request.UserID.String(), body)
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Homeserver) handlePutState(w http.ResponseWriter, roomID ref.RoomID, target *room, eventType ref.EventType, key string, body []byte) {
	if injected := h.injectedLocked(KindState, string(eventType)); injected != nil {
		writeInjected(w, injected)
		return
	}
	current := target.powerLevels()
	own := current.UserLevel(h.agent)
	required := threshold(current.StateDefault, 50)
	if level, ok := current.Events[string(eventType)]; ok {
		required = level
	}
	if own < required {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "insufficient power to send %s", eventType)
		return
	}

	if eventType == schema.MatrixEventTypePowerLevels {
		var proposed schema.PowerLevels
		if err := json.Unmarshal(body, &proposed); err != nil {
			writeError(w, http.StatusBadRequest, "M_BAD_JSON", "%v", err)
			return
		}
		if err := checkPowerLevelChange(h.agent, current, &proposed); err != nil {
			writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "%v", err)
			return
		}
	}

	target.state[stateKey{eventType, key}] = json.RawMessage(body)
	h.recordLocked(KindState, roomID, string(eventType), body)
	writeJSON(w, http.StatusOK, map[string]string{"event_id": "$" + testutil.UniqueID("event")})
}

// checkPowerLevelChange applies the room version rule that a user may
// not raise anyone above their own level nor change the level of
// another user at or above their own level.
func checkPowerLevelChange(sender ref.UserID, current, proposed *schema.PowerLevels) error {
	own := current.UserLevel(sender)
	users := make(map[string]bool)
	for userID := range current.Users {
		users[userID] = true
	}
	for userID := range proposed.Users {
		users[userID] = true
	}
	for rawUserID := range users {
		userID, err := ref.ParseUserID(rawUserID)
		if err != nil {
			return err
		}
		before, after := current.UserLevel(userID), proposed.UserLevel(userID)
		if before == after {
			continue
		}
		if after > own {
			return fmt.Errorf("cannot raise %s above own level %d", userID, own)
		}
		if userID != sender && before >= own {
			return fmt.Errorf("cannot change level of %s at %d", userID, before)
		}
	}
	return nil
}
