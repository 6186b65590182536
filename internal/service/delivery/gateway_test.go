package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

func newSocketServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.Serve(r.URL.Query().Get("user"), ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitOnline(t *testing.T, g *Gateway, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !g.Online(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never came online", userID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyReachesWebSocket(t *testing.T) {
	g := NewGateway(nil)
	srv := newSocketServer(t, g)

	ws := dial(t, srv, "u1")
	waitOnline(t, g, "u1")

	conv := &chat.Conversation{ID: "c1", RoomID: "r1"}
	g.Notify(context.Background(), "u1", chat.Event{
		Type:           chat.EventMessage,
		RoomID:         "r1",
		ConversationID: "c1",
		Conversation:   conv,
	})

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != chat.EventMessage || env.RoomID != "r1" || env.ConversationID != "c1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Data == nil || env.Data.ID != "c1" {
		t.Fatalf("expected conversation snapshot, got %+v", env.Data)
	}
	if env.Timestamp == 0 {
		t.Fatalf("expected timestamp")
	}
}

func TestReconnectReplacesPreviousSocket(t *testing.T) {
	g := NewGateway(nil)
	srv := newSocketServer(t, g)

	first := dial(t, srv, "u1")
	waitOnline(t, g, "u1")
	g.mu.RLock()
	firstConn := g.sockets["u1"]
	g.mu.RUnlock()

	second := dial(t, srv, "u1")
	deadline := time.Now().Add(2 * time.Second)
	for {
		g.mu.RLock()
		current := g.sockets["u1"]
		g.mu.RUnlock()
		if current != nil && current != firstConn {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second connection never replaced the first")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); !websocket.IsCloseError(err, 4001) {
		t.Fatalf("expected first socket closed with 4001, got %v", err)
	}

	g.Notify(context.Background(), "u1", chat.Event{Type: chat.EventConversationDeleted, RoomID: "r1", ConversationID: "c1"})
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err != nil {
		t.Fatalf("expected event on the new socket: %v", err)
	}
}

func TestOfflineUserIsNoop(t *testing.T) {
	g := NewGateway(nil)
	if n := g.Deliver("ghost", []byte(`{}`)); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
	g.Notify(context.Background(), "ghost", chat.Event{Type: chat.EventMessage})
}

func TestSubscribeReceivesEvents(t *testing.T) {
	g := NewGateway(nil)
	sub := g.Subscribe("u2")
	defer g.Unsubscribe(sub)

	g.Notify(context.Background(), "u2", chat.Event{Type: chat.EventConversationDeleted, RoomID: "r9", ConversationID: "c9"})

	select {
	case payload := <-sub.C:
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type != chat.EventConversationDeleted || env.Data != nil {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected payload on subscriber")
	}

	g.Unsubscribe(sub)
	if n := g.Deliver("u2", []byte(`{}`)); n != 0 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", n)
	}
}

type stubBroker struct {
	mu        sync.Mutex
	err       error
	published []string
}

func (b *stubBroker) Publish(_ context.Context, userID string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, userID)
	return b.err
}

func TestBrokerRelaysInsteadOfLocalDelivery(t *testing.T) {
	broker := &stubBroker{}
	g := NewGateway(broker)
	sub := g.Subscribe("u1")
	defer g.Unsubscribe(sub)

	g.Notify(context.Background(), "u1", chat.Event{Type: chat.EventMessage})

	if len(broker.published) != 1 || broker.published[0] != "u1" {
		t.Fatalf("expected publish for u1, got %v", broker.published)
	}
	select {
	case <-sub.C:
		t.Fatalf("payload must arrive through the relay, not locally")
	default:
	}
}

func TestBrokerFailureFallsBackToLocal(t *testing.T) {
	g := NewGateway(&stubBroker{err: errors.New("redis down")})
	sub := g.Subscribe("u1")
	defer g.Unsubscribe(sub)

	g.Notify(context.Background(), "u1", chat.Event{Type: chat.EventMessage})

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatalf("expected local fallback delivery")
	}
}

func TestDiscardIsNoop(t *testing.T) {
	Discard.Notify(context.Background(), "u1", chat.Event{Type: chat.EventMessage})
}
