package utils

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
)

// ErrorBody 是所有错误响应的结构
type ErrorBody struct {
	Error          string   `json:"error"`
	Retryable      bool     `json:"retryable"`
	ConversationID string   `json:"conversationId,omitempty"`
	Pending        []string `json:"pending,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("failed to encode response", "err", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// RespondErrorBody 发送带重试信息的错误响应
func RespondErrorBody(w http.ResponseWriter, status int, body ErrorBody) {
	RespondJSON(w, status, body)
}
