package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/firstserv/chat-platform/internal/auth"
	"github.com/firstserv/chat-platform/internal/dispatch"
	"github.com/firstserv/chat-platform/internal/model"
	"github.com/firstserv/chat-platform/internal/registry"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/pkg/logger"
)

type wsFixture struct {
	store         *store.Store
	registry      *registry.Registry
	authenticator *auth.Authenticator
	server        *httptest.Server
	convID        string
}

// newWSFixture wires a real store, registry, and dispatcher behind a test
// server, with alice and bob sharing one conversation.
func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	log := logger.NewNop()
	st, err := store.Open(t.TempDir(), log)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, handle := range []string{"alice", "bob", "mallory"} {
		if err := st.CreateUser(&model.UserRecord{
			ID:        uuid.NewString(),
			Name:      handle,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("creating user %q: %v", handle, err)
		}
	}

	conv := &model.Conversation{
		ID:           uuid.NewString(),
		Participants: []string{"alice", "bob"},
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateConversation(conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	reg := registry.New(st, log)
	disp := dispatch.New(st, reg, log)
	authenticator := auth.NewAuthenticator("test-secret", time.Minute)
	handler := NewHandler(authenticator, reg, disp, Config{}, log)

	r := chi.NewRouter()
	r.Get("/api/v1/conversations/{id}/ws", handler.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &wsFixture{
		store:         st,
		registry:      reg,
		authenticator: authenticator,
		server:        srv,
		convID:        conv.ID,
	}
}

func (f *wsFixture) url(convID, token string) string {
	base := "ws" + strings.TrimPrefix(f.server.URL, "http")
	return base + "/api/v1/conversations/" + convID + "/ws?token=" + token
}

func (f *wsFixture) token(t *testing.T, handle string) string {
	t.Helper()
	token, err := f.authenticator.IssueToken(handle)
	if err != nil {
		t.Fatalf("issuing token for %q: %v", handle, err)
	}
	return token
}

func (f *wsFixture) dial(t *testing.T, handle string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url(f.convID, f.token(t, handle)), nil)
	if err != nil {
		t.Fatalf("dialing as %q: %v", handle, err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// waitForSubscribers blocks until n connections are registered, since the
// server finishes subscribing after the client handshake returns.
func (f *wsFixture) waitForSubscribers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for f.registry.Len(f.convID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("registry has %d subscribers, want %d", f.registry.Len(f.convID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) *model.ServerEvent {
	t.Helper()
	var ev model.ServerEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	return &ev
}

func expectPolicyViolation(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("read = %v, want close 1008", err)
	}
}

func TestMessageReachesAllSubscribers(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	f.waitForSubscribers(t, 2)

	err := alice.WriteJSON(&model.ClientEvent{Type: model.EventTypeMessage, Content: "hello bob"})
	if err != nil {
		t.Fatalf("sending message: %v", err)
	}

	// The sender is a subscriber like any other and gets its own message back.
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readEvent(t, conn)
		if ev.Type != model.EventTypeMessage {
			t.Fatalf("event type = %q, want message", ev.Type)
		}
		if ev.Sender != "alice" {
			t.Errorf("sender = %q, want alice", ev.Sender)
		}
		if ev.Content == nil || *ev.Content != "hello bob" {
			t.Errorf("content = %v, want %q", ev.Content, "hello bob")
		}
		if ev.ID == "" || ev.Timestamp == nil {
			t.Error("event is missing server-assigned identifier or timestamp")
		}
	}

	msgs, err := f.store.ListMessages(f.convID)
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello bob" {
		t.Errorf("persisted log = %+v, want one message", msgs)
	}
}

func TestInvalidCredentialClosedWithPolicyViolation(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(f.convID, "not-a-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectPolicyViolation(t, conn)
	if n := f.registry.Len(f.convID); n != 0 {
		t.Errorf("rejected connection registered, Len = %d", n)
	}
}

func TestNonParticipantClosedWithPolicyViolation(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(f.convID, f.token(t, "mallory")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectPolicyViolation(t, conn)
	if n := f.registry.Len(f.convID); n != 0 {
		t.Errorf("rejected connection registered, Len = %d", n)
	}
}

func TestUnknownConversationClosedWithPolicyViolation(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(uuid.NewString(), f.token(t, "alice")), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	expectPolicyViolation(t, conn)
}

func TestTypingDeliveredButNotPersisted(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	f.waitForSubscribers(t, 2)

	if err := alice.WriteJSON(&model.ClientEvent{Type: model.EventTypeTyping}); err != nil {
		t.Fatalf("sending typing indicator: %v", err)
	}

	ev := readEvent(t, bob)
	if ev.Type != model.EventTypeTyping {
		t.Fatalf("event type = %q, want typing", ev.Type)
	}
	if ev.User != "alice" {
		t.Errorf("typing user = %q, want alice", ev.User)
	}

	msgs, err := f.store.ListMessages(f.convID)
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("typing indicator persisted %d messages", len(msgs))
	}
}

func TestMalformedFrameDoesNotDropConnection(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	f.waitForSubscribers(t, 2)

	if err := alice.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("sending malformed frame: %v", err)
	}
	if err := alice.WriteJSON(&model.ClientEvent{Type: model.EventTypeMessage, Content: "still here"}); err != nil {
		t.Fatalf("sending message: %v", err)
	}

	ev := readEvent(t, bob)
	if ev.Content == nil || *ev.Content != "still here" {
		t.Fatalf("bob received %+v, want the message after the malformed frame", ev)
	}
}

func TestUnsubscribeOnDisconnect(t *testing.T) {
	f := newWSFixture(t)

	alice := f.dial(t, "alice")
	f.waitForSubscribers(t, 1)

	_ = alice.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	alice.Close()

	f.waitForSubscribers(t, 0)
}
