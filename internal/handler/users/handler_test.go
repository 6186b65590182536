package users

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	chatservice "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
)

func setupRouter(n int, superID string) *chi.Mux {
	users := make([]chat.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, chat.User{ID: fmt.Sprintf("u%02d", i), Role: "user"})
	}
	store := chat.NewMemoryStore(users...)
	handler := New(chatservice.NewService(store, store, nil), chat.NewExclusion(superID))

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestListUsersHidesSuperUser(t *testing.T) {
	r := setupRouter(5, "u00")

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var users []chat.User
	if err := json.Unmarshal(resp.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 4 {
		t.Fatalf("expected 4 users, got %d", len(users))
	}
	for _, u := range users {
		if u.ID == "u00" {
			t.Fatalf("superuser must not be listed")
		}
	}
}

func TestListUsersCapsPageSize(t *testing.T) {
	r := setupRouter(30, "")

	req := httptest.NewRequest(http.MethodGet, "/users?perPage=50&page=1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var users []chat.User
	if err := json.Unmarshal(resp.Body.Bytes(), &users); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 20 {
		t.Fatalf("expected page capped at 20, got %d", len(users))
	}
}

func TestListUsersRejectsBadPaging(t *testing.T) {
	r := setupRouter(1, "")

	req := httptest.NewRequest(http.MethodGet, "/users?page=two", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCountUsers(t *testing.T) {
	r := setupRouter(3, "u01")

	req := httptest.NewRequest(http.MethodGet, "/users/count", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var body map[string]int64
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 2 {
		t.Fatalf("expected count 2, got %d", body["count"])
	}
}
