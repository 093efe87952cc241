package chat_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/app/system/chat"
	"github.com/dalemusser/huddle/internal/domain/models"
	"github.com/dalemusser/huddle/internal/testutil"
)

var fastBackoff = live.Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond, Attempts: 3}

func newStream(t *testing.T) (*chat.Stream, *testutil.FakeBackend) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	broker := live.NewBroker(backend, fastBackoff, zap.NewNop())
	t.Cleanup(broker.Close)
	return chat.New(backend, broker, zap.NewNop()), backend
}

func TestSend_TextMessage(t *testing.T) {
	stream, backend := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sender := testutil.Identity("u1", "Avery")
	id, err := stream.Send(ctx, "room1", sender, chat.Payload{Text: "  hello there  "})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var m models.Message
	if err := backend.GetOnce(ctx, mongostore.CollMessages, id, &m); err != nil {
		t.Fatalf("GetOnce failed: %v", err)
	}
	if m.Type != models.MessageTypeText {
		t.Errorf("type: got %q, want %q", m.Type, models.MessageTypeText)
	}
	if m.Text != "hello there" {
		t.Errorf("text: got %q, want trimmed %q", m.Text, "hello there")
	}
	if m.RoomID != "room1" || m.SenderID != "u1" || m.SenderName != "Avery" {
		t.Errorf("attribution: got %s/%s/%s", m.RoomID, m.SenderID, m.SenderName)
	}
	if m.CreatedAt.IsZero() {
		t.Error("created_at was not assigned by the store")
	}
	if m.MediaURL != "" {
		t.Errorf("media_url on text message: %q", m.MediaURL)
	}
}

func TestSend_StripsMarkup(t *testing.T) {
	stream, backend := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id, err := stream.Send(ctx, "room1", testutil.Identity("u1", "Avery"),
		chat.Payload{Text: `hello <b>world</b><script>alert("x")</script>`})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var m models.Message
	if err := backend.GetOnce(ctx, mongostore.CollMessages, id, &m); err != nil {
		t.Fatalf("GetOnce failed: %v", err)
	}
	if strings.Contains(m.Text, "<") {
		t.Errorf("markup survived sanitization: %q", m.Text)
	}
	if !strings.Contains(m.Text, "hello") || !strings.Contains(m.Text, "world") {
		t.Errorf("legitimate text lost: %q", m.Text)
	}
}

func TestSend_GifMessage(t *testing.T) {
	stream, backend := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	url := "https://media.giphy.com/abc/giphy.gif"
	id, err := stream.Send(ctx, "room1", testutil.Identity("u1", "Avery"), chat.Payload{MediaURL: url})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var m models.Message
	if err := backend.GetOnce(ctx, mongostore.CollMessages, id, &m); err != nil {
		t.Fatalf("GetOnce failed: %v", err)
	}
	if m.Type != models.MessageTypeGif {
		t.Errorf("type: got %q, want %q", m.Type, models.MessageTypeGif)
	}
	if m.MediaURL != url {
		t.Errorf("media_url: got %q, want %q", m.MediaURL, url)
	}
	if m.Text != "" {
		t.Errorf("text on gif message: %q", m.Text)
	}
}

func TestSend_Validation(t *testing.T) {
	stream, _ := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sender := testutil.Identity("u1", "Avery")

	tests := []struct {
		name    string
		roomID  string
		payload chat.Payload
	}{
		{"missing room", "", chat.Payload{Text: "hi"}},
		{"empty payload", "room1", chat.Payload{}},
		{"whitespace text only", "room1", chat.Payload{Text: "   "}},
		{"both text and media", "room1", chat.Payload{Text: "hi", MediaURL: "https://x/y.gif"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stream.Send(ctx, tt.roomID, sender, tt.payload)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *chat.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestSubscribe_OrderedDelivery(t *testing.T) {
	stream, _ := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sender := testutil.Identity("u1", "Avery")
	first, _ := stream.Send(ctx, "room1", sender, chat.Payload{Text: "first"})
	second, _ := stream.Send(ctx, "room1", sender, chat.Payload{Text: "second"})

	batches := make(chan []models.Message, 16)
	sub, err := stream.Subscribe("room1", func(msgs []models.Message) { batches <- msgs }, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	var seen []models.Message
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case msgs := <-batches:
			seen = append(seen, msgs...)
		case <-deadline:
			t.Fatalf("timed out, saw %d messages", len(seen))
		}
	}

	if seen[0].ID != first || seen[1].ID != second {
		t.Errorf("order: got [%s %s], want [%s %s]", seen[0].ID, seen[1].ID, first, second)
	}
	if seen[0].Text != "first" || seen[1].Text != "second" {
		t.Errorf("texts: got [%q %q]", seen[0].Text, seen[1].Text)
	}
	if !seen[0].CreatedAt.Before(seen[1].CreatedAt) {
		t.Errorf("timestamps out of order: %s vs %s", seen[0].CreatedAt, seen[1].CreatedAt)
	}

	// A later send arrives after the earlier ones.
	third, _ := stream.Send(ctx, "room1", sender, chat.Payload{Text: "third"})
	select {
	case msgs := <-batches:
		if msgs[len(msgs)-1].ID != third {
			t.Errorf("live message: got %s, want %s", msgs[len(msgs)-1].ID, third)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received the live message")
	}
}

func TestSubscribe_FiltersByRoom(t *testing.T) {
	stream, _ := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sender := testutil.Identity("u1", "Avery")
	mine, _ := stream.Send(ctx, "room1", sender, chat.Payload{Text: "for room1"})
	_, _ = stream.Send(ctx, "room2", sender, chat.Payload{Text: "for room2"})

	batches := make(chan []models.Message, 16)
	sub, err := stream.Subscribe("room1", func(msgs []models.Message) { batches <- msgs }, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case msgs := <-batches:
		if len(msgs) != 1 || msgs[0].ID != mine {
			t.Errorf("snapshot: got %+v, want only %s", msgs, mine)
		}
		if msgs[0].RoomID != "room1" {
			t.Errorf("room leak: %q", msgs[0].RoomID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot batch")
	}
}

func TestSubscribe_RequiresRoom(t *testing.T) {
	stream, _ := newStream(t)
	if _, err := stream.Subscribe("", func([]models.Message) {}, nil); err == nil {
		t.Fatal("expected error for empty room id")
	}
}

func TestRoomTitle(t *testing.T) {
	stream, backend := newStream(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	id, _ := backend.Append(ctx, mongostore.CollActivities,
		testutil.ActivityFields(t, testutil.Identity("u1", "Avery"), "Movie Night", time.Hour))

	if got := stream.RoomTitle(ctx, id); got != "Movie Night" {
		t.Errorf("RoomTitle: got %q, want %q", got, "Movie Night")
	}
	if got := stream.RoomTitle(ctx, "swept-room"); got != "Huddle Chat" {
		t.Errorf("RoomTitle fallback: got %q, want %q", got, "Huddle Chat")
	}
}
