package utils

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
)

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// SendSSERaw 发送已编码好的SSE消息
func SendSSERaw(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		log.Debug("failed to write sse event", "event", event, "err", err)
		return
	}
	flusher.Flush()
}

// SendSSEComment 发送SSE注释行，用作心跳
func SendSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		log.Debug("failed to write sse comment", "err", err)
		return
	}
	flusher.Flush()
}
