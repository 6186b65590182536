package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	chatModel "github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	chatService "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
	"github.com/rent-in-out1/rent-in-out-backend/internal/service/delivery"
)

func newTestRouter() http.Handler {
	store := chatModel.NewMemoryStore(chatModel.User{ID: "u1"}, chatModel.User{ID: "u2"})
	gateway := delivery.NewGateway(nil)
	svc := chatService.NewService(store, store, gateway)
	return NewRouter(svc, gateway, Options{CORSOrigins: []string{"*"}})
}

func TestRouterHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRouterChatRoutesRequireIdentity(t *testing.T) {
	r := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/chats", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chats", bytes.NewBufferString(`{"counterpartId":"u2","message":{"body":"hi"}}`))
	req.Header.Set("X-User-ID", "u1")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRouterUsersArePublic(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
