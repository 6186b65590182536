package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rent-in-out1/rent-in-out-backend/internal/middleware"
	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	"github.com/rent-in-out1/rent-in-out-backend/internal/service/delivery"
)

func newServer(t *testing.T) (*httptest.Server, *delivery.Gateway) {
	t.Helper()
	gateway := delivery.NewGateway(nil)
	r := chi.NewRouter()
	r.Use(middleware.Identity)
	New(gateway).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		gateway.Close()
		srv.Close()
	})
	return srv, gateway
}

func TestEventStreamDeliversNotifications(t *testing.T) {
	srv, gateway := newServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	req.Header.Set(middleware.UserIDHeader, "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q (%v)", line, err)
	}

	gateway.Notify(context.Background(), "u1", chat.Event{Type: chat.EventConversationDeleted, RoomID: "r1", ConversationID: "c1"})

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if event != "chat" || !strings.Contains(data, `"conversationDeleted"`) {
		t.Fatalf("unexpected event %q data %q", event, data)
	}
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	srv, _ := newServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure without identity")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestWebSocketAttachesUser(t *testing.T) {
	srv, gateway := newServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?userId=u7"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !gateway.Online("u7") {
		if time.Now().After(deadline) {
			t.Fatalf("user never came online")
		}
		time.Sleep(5 * time.Millisecond)
	}

	gateway.Notify(context.Background(), "u7", chat.Event{Type: chat.EventMessage, RoomID: "r1", ConversationID: "c1"})
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := ws.ReadMessage(); err != nil || !strings.Contains(string(data), `"r1"`) {
		t.Fatalf("expected event, got %q (%v)", data, err)
	}
}
