// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"github.com/bureau-foundation/inviter/lib/ref"
	"github.com/bureau-foundation/inviter/lib/schema"
	"github.com/bureau-foundation/inviter/lib/secret"
)

// testBuffer creates a secret.Buffer from a string for testing. The buffer
// is automatically closed when the test completes.
func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// testSession starts server with handler and returns a session against
// it.
func testSession(t *testing.T, handler http.HandlerFunc) *DirectSession {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client.SessionFromToken(ref.MustParseUserID("@inviter:example.org"), testBuffer(t, "syt_token"))
}

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "http://localhost:6167/"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.baseURL != "http://localhost:6167" {
			t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		if err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewClient(ClientConfig{HomeserverURL: "://invalid"})
		if err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})
}

func TestRequestHeaders(t *testing.T) {
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer syt_token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := request.Header.Get("User-Agent"); !strings.HasPrefix(got, "inviter/") {
			t.Errorf("User-Agent = %q, want inviter/ prefix", got)
		}
		json.NewEncoder(writer).Encode(WhoAmIResponse{UserID: ref.MustParseUserID("@inviter:example.org")})
	})

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID != session.UserID() {
		t.Errorf("WhoAmI = %s, want %s", userID, session.UserID())
	}
}

func TestMatrixErrorDecoding(t *testing.T) {
	t.Run("matrix error body", func(t *testing.T) {
		session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(map[string]string{
				"errcode": "M_NOT_FOUND",
				"error":   "Room alias #missing:example.org not found",
			})
		})

		_, err := session.ResolveAlias(context.Background(), ref.MustParseRoomAlias("#missing:example.org"))
		if !IsNotFound(err) {
			t.Fatalf("expected M_NOT_FOUND, got %v", err)
		}
		var matrixErr *MatrixError
		if !errors.As(err, &matrixErr) {
			t.Fatalf("expected *MatrixError in chain, got %T", err)
		}
		if matrixErr.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want 404", matrixErr.StatusCode)
		}
	})

	t.Run("non-JSON body", func(t *testing.T) {
		session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusBadGateway)
			io.WriteString(writer, "<html>bad gateway</html>")
		})

		_, err := session.JoinedRooms(context.Background())
		var matrixErr *MatrixError
		if !errors.As(err, &matrixErr) {
			t.Fatalf("expected *MatrixError, got %v", err)
		}
		if matrixErr.Code != ErrCodeUnknown {
			t.Errorf("Code = %q, want %q", matrixErr.Code, ErrCodeUnknown)
		}
		if !strings.Contains(matrixErr.Message, "bad gateway") {
			t.Errorf("Message = %q, want the response body", matrixErr.Message)
		}
		if !IsTransient(err) {
			t.Error("502 should be transient")
		}
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &MatrixError{Code: ErrCodeLimitExceeded, StatusCode: 429}, true},
		{"bare 429", &MatrixError{Code: ErrCodeUnknown, StatusCode: 429}, true},
		{"server error", &MatrixError{Code: ErrCodeUnknown, StatusCode: 503}, true},
		{"forbidden", &MatrixError{Code: ErrCodeForbidden, StatusCode: 403}, false},
		{"not found", &MatrixError{Code: ErrCodeNotFound, StatusCode: 404}, false},
		{"wrapped rate limit", fmt.Errorf("inviting: %w", &MatrixError{Code: ErrCodeLimitExceeded, StatusCode: 429}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.want {
				t.Errorf("IsTransient(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestGetRoomMembers(t *testing.T) {
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/rooms/!room:example.org/members" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		json.NewEncoder(writer).Encode(RoomMembersResponse{Chunk: []RoomMemberEvent{
			{Type: "m.room.member", StateKey: "@alice:example.org", Content: RoomMemberContent{Membership: MembershipJoin, DisplayName: "Alice"}},
			{Type: "m.room.member", StateKey: "not-a-user", Content: RoomMemberContent{Membership: MembershipJoin}},
			{Type: "m.room.member", StateKey: "@bob:other.org", Content: RoomMemberContent{Membership: MembershipInvite}},
		}})
	})

	members, err := session.GetRoomMembers(context.Background(), ref.MustParseRoomID("!room:example.org"))
	if err != nil {
		t.Fatalf("GetRoomMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2 (invalid state key skipped): %+v", len(members), members)
	}
	if members[0].UserID != ref.MustParseUserID("@alice:example.org") || members[0].DisplayName != "Alice" {
		t.Errorf("members[0] = %+v", members[0])
	}
	if members[1].Membership != MembershipInvite {
		t.Errorf("members[1].Membership = %q, want invite", members[1].Membership)
	}
}

func TestSendStateEvent(t *testing.T) {
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		want := "/_matrix/client/v3/rooms/%21room:example.org/state/m.room.power_levels/"
		if request.URL.EscapedPath() != want {
			t.Errorf("path = %s, want %s", request.URL.EscapedPath(), want)
		}
		var content schema.PowerLevels
		if err := json.NewDecoder(request.Body).Decode(&content); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if content.Users["@alice:example.org"] != 100 {
			t.Errorf("users = %v", content.Users)
		}
		json.NewEncoder(writer).Encode(map[string]string{"event_id": "$abc"})
	})

	content := schema.PowerLevels{}
	content.SetUserLevel(ref.MustParseUserID("@alice:example.org"), 100)
	eventID, err := session.SendStateEvent(context.Background(), ref.MustParseRoomID("!room:example.org"), schema.MatrixEventTypePowerLevels, "", content)
	if err != nil {
		t.Fatalf("SendStateEvent failed: %v", err)
	}
	if eventID.String() != "$abc" {
		t.Errorf("event ID = %s, want $abc", eventID)
	}
}

func TestSendEventUsesFreshTransactionIDs(t *testing.T) {
	seen := make(map[string]bool)
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		segments := strings.Split(request.URL.Path, "/")
		transactionID := segments[len(segments)-1]
		if seen[transactionID] {
			t.Errorf("transaction ID %q reused", transactionID)
		}
		seen[transactionID] = true
		json.NewEncoder(writer).Encode(map[string]string{"event_id": "$" + transactionID})
	})

	roomID := ref.MustParseRoomID("!room:example.org")
	for range 3 {
		if _, err := session.SendMessage(context.Background(), roomID, NewTextMessage("hello")); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}
	if len(seen) != 3 {
		t.Errorf("saw %d transaction IDs, want 3", len(seen))
	}
}

func TestKickUser(t *testing.T) {
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		var body KickRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body.UserID != ref.MustParseUserID("@mallory:example.org") || body.Reason != "not in directory" {
			t.Errorf("kick body = %+v", body)
		}
		writer.Write([]byte("{}"))
	})

	err := session.KickUser(context.Background(), ref.MustParseRoomID("!room:example.org"),
		ref.MustParseUserID("@mallory:example.org"), "not in directory")
	if err != nil {
		t.Fatalf("KickUser failed: %v", err)
	}
}

func TestGetState(t *testing.T) {
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		json.NewEncoder(writer).Encode(schema.RoomNameContent{Name: "Team"})
	})

	name, err := GetState[schema.RoomNameContent](context.Background(), session,
		ref.MustParseRoomID("!room:example.org"), schema.MatrixEventTypeRoomName, "")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if name.Name != "Team" {
		t.Errorf("name = %q, want Team", name.Name)
	}
}

func TestResolveRoom(t *testing.T) {
	session := testSession(t, func(writer http.ResponseWriter, request *http.Request) {
		json.NewEncoder(writer).Encode(ResolveAliasResponse{RoomID: ref.MustParseRoomID("!resolved:example.org")})
	})

	tests := []struct {
		identifier string
		want       string
		wantErr    bool
	}{
		{"!direct:example.org", "!direct:example.org", false},
		{"#admins:example.org", "!resolved:example.org", false},
		{"admins", "", true},
	}
	for _, test := range tests {
		t.Run(test.identifier, func(t *testing.T) {
			roomID, err := ResolveRoom(context.Background(), session, test.identifier)
			if test.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", roomID)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRoom failed: %v", err)
			}
			if roomID.String() != test.want {
				t.Errorf("ResolveRoom = %s, want %s", roomID, test.want)
			}
		})
	}
}

func TestNewMarkdownMessage(t *testing.T) {
	content := NewMarkdownMessage("**#team:example.org**\n\n- invited `@alice:example.org`\n")
	if content.MsgType != "m.notice" {
		t.Errorf("MsgType = %q, want m.notice", content.MsgType)
	}
	if content.Format != FormatHTML {
		t.Errorf("Format = %q, want %q", content.Format, FormatHTML)
	}
	for _, fragment := range []string{"<strong>#team:example.org</strong>", "<li>", "<code>@alice:example.org</code>"} {
		if !strings.Contains(content.FormattedBody, fragment) {
			t.Errorf("FormattedBody missing %q:\n%s", fragment, content.FormattedBody)
		}
	}
	if !strings.HasPrefix(content.Body, "**#team") {
		t.Errorf("Body should keep the Markdown source, got %q", content.Body)
	}
}
