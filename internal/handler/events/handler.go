package events

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rent-in-out1/rent-in-out-backend/internal/middleware"
	"github.com/rent-in-out1/rent-in-out-backend/internal/service/delivery"
	"github.com/rent-in-out1/rent-in-out-backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler 把推送网关暴露为 WebSocket 和 SSE 两种通道
type Handler struct {
	gateway  *delivery.Gateway
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// New 创建推送处理器
func New(gateway *delivery.Gateway) *Handler {
	return &Handler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.Default().WithPrefix("http.events"),
	}
}

// RegisterRoutes 注册推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
	r.Get("/events", h.handleEventStream)
}

// handleWebSocket 升级为 WebSocket 连接并订阅当前用户的事件
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user", userID, "err", err)
		return
	}
	h.gateway.Serve(userID, ws)
}

// handleEventStream 以 SSE 推送当前用户的事件
func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.gateway.Subscribe(userID)
	defer h.gateway.Unsubscribe(sub)

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEComment(w, flusher, "connected")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event stream closed", "user", userID)
			return
		case payload := <-sub.C:
			utils.SendSSERaw(w, flusher, "chat", payload)
		case <-ticker.C:
			utils.SendSSEComment(w, flusher, "heartbeat")
		}
	}
}
