package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/rent-in-out1/rent-in-out-backend/internal/middleware"
	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	chatService "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
	"github.com/rent-in-out1/rent-in-out-backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *log.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  log.Default().WithPrefix("http.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由。调用方负责挂载 Identity 中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chats", func(r chi.Router) {
		r.Post("/", h.handleSubmitMessage)
		r.Get("/", h.handleListConversations)
		r.Get("/{roomID}", h.handleListMessages)
		r.Delete("/{roomID}", h.handleDeleteConversation)
		r.Delete("/{roomID}/messages/{index}", h.handleDeleteMessageAt)
		r.Delete("/{roomID}/messages/id/{messageID}", h.handleDeleteMessageByID)
	})
	r.Post("/conversations/{conversationID}/repair", h.handleRepair)
}

type submitPayload struct {
	CounterpartID string         `json:"counterpartId"`
	RoomID        string         `json:"roomId"`
	Message       chat.Message   `json:"message"`
	Messages      []chat.Message `json:"messages"`
	Version       *int64         `json:"version"`
}

// handleSubmitMessage 新建房间或写入已有房间
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.CounterpartID == "" {
		utils.RespondError(w, http.StatusBadRequest, "counterpartId is required")
		return
	}

	conv, err := h.chatSvc.UpsertMessage(r.Context(), chatService.SubmitRequest{
		OwnerID:         userID,
		CounterpartID:   payload.CounterpartID,
		RoomID:          payload.RoomID,
		Message:         payload.Message,
		Transcript:      payload.Messages,
		ExpectedVersion: payload.Version,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conv)
}

// handleListConversations 按最近更新时间倒序列出房间
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	summaries, err := h.chatSvc.ListMyConversations(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

// handleListMessages 返回房间内的消息，仅限参与者
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	messages, err := h.chatSvc.ListMessagesInRoom(r.Context(), userID, chi.URLParam(r, "roomID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleDeleteConversation 删除整个房间并清理双方的会话引用
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if !h.authorize(w, r, roomID) {
		return
	}

	outcome, err := h.chatSvc.DeleteConversation(r.Context(), roomID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, outcome)
}

// handleDeleteMessageAt 按下标删除消息，最后一条消息被删除时房间随之删除
func (h *Handler) handleDeleteMessageAt(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "message index must be an integer")
		return
	}
	if !h.authorize(w, r, roomID) {
		return
	}

	outcome, err := h.chatSvc.DeleteMessageAt(r.Context(), roomID, index)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, outcome)
}

// handleDeleteMessageByID 按消息ID删除消息
func (h *Handler) handleDeleteMessageByID(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if !h.authorize(w, r, roomID) {
		return
	}

	outcome, err := h.chatSvc.DeleteMessage(r.Context(), roomID, chi.URLParam(r, "messageID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, outcome)
}

// handleRepair 修复会话引用，仅限参与者或仍持有该引用的用户
func (h *Handler) handleRepair(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.chatSvc.AuthorizeRepair(r.Context(), userID, conversationID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	report, err := h.chatSvc.Repair(r.Context(), conversationID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, report)
}

// authorize 校验调用方是否为房间参与者，失败时写入错误响应并返回 false
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, roomID string) bool {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.chatSvc.Authorize(r.Context(), userID, roomID); err != nil {
		h.respondServiceError(w, r, err)
		return false
	}
	return true
}

// respondServiceError 将服务层错误映射为HTTP响应
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := utils.ErrorBody{Error: err.Error(), Retryable: chat.Retryable(err)}

	var partial *chat.PartialFailure
	if errors.As(err, &partial) {
		body.ConversationID = partial.ConversationID
		body.Pending = partial.Pending
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	utils.RespondErrorBody(w, status, body)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, chat.ErrPartialCascade):
		return http.StatusInternalServerError
	case errors.Is(err, chat.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
