package controllers

import (
	"encoding/json"
	"net/http"
	"time"
)

type HealthController struct {
	started time.Time
	backend string
}

func NewHealthController(chatBackend string) *HealthController {
	return &HealthController{started: time.Now(), backend: chatBackend}
}

func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":       "ok",
		"chat_backend": h.backend,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
	})
}
