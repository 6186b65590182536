package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
	chatService "github.com/rent-in-out1/rent-in-out-backend/internal/service/chat"
	"github.com/rent-in-out1/rent-in-out-backend/pkg/utils"
)

// Handler 用户目录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	exclude chat.Exclusion
}

// New 创建用户目录处理器。exclude 中的账号不会出现在列表和计数里。
func New(chatSvc *chatService.Service, exclude chat.Exclusion) *Handler {
	return &Handler{chatSvc: chatSvc, exclude: exclude}
}

// RegisterRoutes 注册用户目录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.handleList)
	r.Get("/users/count", h.handleCount)
}

// handleList 分页列出用户，支持按角色、邮箱或创建时间排序
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := optionalInt(query.Get("page"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	perPage, err := optionalInt(query.Get("perPage"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "perPage must be an integer")
		return
	}
	reverse, _ := strconv.ParseBool(query.Get("reverse"))

	users, err := h.chatSvc.ListUsers(r.Context(), chat.ListUsersQuery{
		Page:    page,
		PerPage: perPage,
		Sort:    query.Get("sort"),
		Reverse: reverse,
		Exclude: h.exclude,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, users)
}

// handleCount 统计未被排除的用户数量
func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.chatSvc.CountUsers(r.Context(), h.exclude)
	if err != nil {
		respondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, chat.ErrStorage) {
		status = http.StatusServiceUnavailable
	}
	utils.RespondErrorBody(w, status, utils.ErrorBody{Error: err.Error(), Retryable: chat.Retryable(err)})
}
