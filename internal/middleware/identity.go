package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rent-in-out1/rent-in-out-backend/pkg/utils"
)

// UserIDHeader carries the authenticated user id. Sessions are issued
// elsewhere; the proxy in front of the API sets this header.
const UserIDHeader = "X-User-ID"

type userIDKey struct{}

// WithUserID returns a child context carrying the caller's user id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the caller's user id, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Identity rejects requests without a user id. Browsers cannot set headers
// on websocket or EventSource requests, so the userId query parameter is
// accepted as a fallback.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if id == "" {
			id = strings.TrimSpace(r.URL.Query().Get("userId"))
		}
		if id == "" {
			utils.RespondError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}
