package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type statusResponse struct {
	Relays             []string `json:"relays"`
	Topic              string   `json:"topic"`
	Watermark          int64    `json:"watermark"`
	WatermarkTime      string   `json:"watermark_time"`
	LastNotificationAt string   `json:"last_notification_at,omitempty"`
}

type notifyResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	wm := s.watcher.Watermark()

	resp := statusResponse{
		Relays:        s.relays,
		Topic:         s.topic,
		Watermark:     wm.Unix(),
		WatermarkTime: wm.UTC().Format(time.RFC3339),
	}
	if last := s.gate.LastSentAt(); !last.IsZero() {
		resp.LastNotificationAt = last.UTC().Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	id, err := s.sender.Send(r.Context())
	if err != nil {
		s.logger.Error("manual notification failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, notifyResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	s.logger.Info("manual notification sent", zap.String("messageID", id))
	writeJSON(w, http.StatusOK, notifyResponse{
		Success:   true,
		MessageID: id,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
