package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rent-in-out1/rent-in-out-backend/internal/handler/chat"
	"github.com/rent-in-out1/rent-in-out-backend/internal/handler/events"
	"github.com/rent-in-out1/rent-in-out-backend/internal/handler/users"
	middlewarePkg "github.com/rent-in-out1/rent-in-out-backend/internal/middleware"
	chatModel "github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	chatService "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
	"github.com/rent-in-out1/rent-in-out-backend/internal/service/delivery"
	"github.com/rent-in-out1/rent-in-out-backend/pkg/utils"
)

// Options carries the router's non-service settings.
type Options struct {
	CORSOrigins []string
	Exclude     chatModel.Exclusion
}

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, gateway *delivery.Gateway, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.CORSOrigins))

	chatHandler := chat.New(chatSvc)
	usersHandler := users.New(chatSvc, opts.Exclude)
	eventsHandler := events.New(gateway)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		// Directory listings are public, as in the signup flow.
		usersHandler.RegisterRoutes(api)

		api.Group(func(authed chi.Router) {
			authed.Use(middlewarePkg.Identity)
			chatHandler.RegisterRoutes(authed)
			eventsHandler.RegisterRoutes(authed)
		})
	})

	return r
}
