package chat_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/huddle/internal/app/features/chat"
	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/system/auth"
	chatsys "github.com/dalemusser/huddle/internal/app/system/chat"
	"github.com/dalemusser/huddle/internal/domain/models"
	"github.com/dalemusser/huddle/internal/testutil"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*chat.Handler, *testutil.FakeBackend) {
	t.Helper()
	logger := zap.NewNop()
	backend := testutil.NewFakeBackend()

	broker := live.NewBroker(backend, live.DefaultBackoff, logger)
	t.Cleanup(broker.Close)

	stream := chatsys.New(backend, broker, logger)
	return chat.NewHandler(stream, logger), backend
}

func signedIn(req *http.Request, uid, name string) *http.Request {
	return auth.WithTestUser(req, testutil.Identity(uid, name))
}

func TestServeRoom(t *testing.T) {
	handler, backend := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	creator := testutil.Identity("uid-creator", "Creator")
	roomID, err := backend.Append(ctx, "activities", testutil.ActivityFields(t, creator, "Game Night", time.Hour))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/chat/"+roomID, nil)
	req = testutil.WithChiURLParam(req, "roomID", roomID)
	rec := httptest.NewRecorder()
	handler.ServeRoom(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["id"] != roomID {
		t.Errorf("id: got %q, want %q", resp["id"], roomID)
	}
	if resp["title"] != "Game Night" {
		t.Errorf("title: got %q, want %q", resp["title"], "Game Night")
	}
}

func TestServeRoom_UnknownRoomFallsBackToDefaultTitle(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/chat/doc-9999", nil)
	req = testutil.WithChiURLParam(req, "roomID", "doc-9999")
	rec := httptest.NewRecorder()
	handler.ServeRoom(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["title"] != "Huddle Chat" {
		t.Errorf("title: got %q, want %q", resp["title"], "Huddle Chat")
	}
}

func TestServeSend_TextMessage(t *testing.T) {
	handler, backend := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	body := `{"text": "hello room"}`
	req := signedIn(httptest.NewRequest("POST", "/chat/room-1/messages", strings.NewReader(body)), "uid-1", "Sender")
	req = testutil.WithChiURLParam(req, "roomID", "room-1")
	rec := httptest.NewRecorder()
	handler.ServeSend(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatal("expected a message id in the response")
	}

	var msg models.Message
	if err := backend.GetOnce(ctx, "messages", resp["id"], &msg); err != nil {
		t.Fatalf("GetOnce failed: %v", err)
	}
	if msg.Text != "hello room" {
		t.Errorf("text: got %q, want %q", msg.Text, "hello room")
	}
	if msg.RoomID != "room-1" {
		t.Errorf("room_id: got %q, want %q", msg.RoomID, "room-1")
	}
	if msg.SenderID != "uid-1" || msg.SenderName != "Sender" {
		t.Errorf("attribution: got %q/%q, want uid-1/Sender", msg.SenderID, msg.SenderName)
	}
}

func TestServeSend_Validation(t *testing.T) {
	handler, _ := newTestHandler(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty payload", `{}`},
		{"whitespace text", `{"text": "   "}`},
		{"both text and media", `{"text": "hi", "media_url": "https://media.test/a.gif"}`},
		{"bad json", `nope`},
	}
	for _, tc := range cases {
		req := signedIn(httptest.NewRequest("POST", "/chat/room-1/messages", strings.NewReader(tc.body)), "uid-1", "Sender")
		req = testutil.WithChiURLParam(req, "roomID", "room-1")
		rec := httptest.NewRecorder()
		handler.ServeSend(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", tc.name, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestServeSend_RequiresSignIn(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest("POST", "/chat/room-1/messages", strings.NewReader(`{"text": "hi"}`))
	req = testutil.WithChiURLParam(req, "roomID", "room-1")
	rec := httptest.NewRecorder()
	handler.ServeSend(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
