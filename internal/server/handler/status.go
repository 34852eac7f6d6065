package handler

import (
	"net/http"
	"time"
)

// Status describes the running instance.
type Status struct {
	Mode          string `json:"mode"`
	Escrow        string `json:"escrow"`
	ChainID       int64  `json:"chain_id"`
	FeeBps        int64  `json:"fee_bps"`
	StoreBackend  string `json:"store_backend"`
	TokenProvider string `json:"token_provider"`
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	status    Status
	startedAt time.Time
}

func NewStatusHandler(status Status) *StatusHandler {
	return &StatusHandler{status: status, startedAt: time.Now()}
}

// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status
		UptimeSeconds int64 `json:"uptime_seconds"`
	}{h.status, int64(time.Since(h.startedAt).Seconds())})
}
