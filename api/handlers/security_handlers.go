package handlers

import (
	"net/http"
	"strconv"
	"time"

	"trustgate/config"
	"trustgate/core/secmon"
	"trustgate/core/store"
	"trustgate/core/utils"

	"github.com/go-chi/chi/v5"
)

// SecurityHandler serves the read side of the security ledger plus blocklist
// management. All routes sit behind an authenticated session.
type SecurityHandler struct {
	cfg       *config.AppConfig
	attempts  store.AttemptsStore
	events    store.EventsStore
	blocklist store.BlocklistStore
	monitor   *secmon.Monitor
	logger    *utils.Logger
}

func NewSecurityHandler(cfg *config.AppConfig, attempts store.AttemptsStore, events store.EventsStore, blocklist store.BlocklistStore, monitor *secmon.Monitor, logger *utils.Logger) *SecurityHandler {
	return &SecurityHandler{cfg: cfg, attempts: attempts, events: events, blocklist: blocklist, monitor: monitor, logger: logger}
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return 100
	}
	return n
}

func (h *SecurityHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	var (
		events []store.SecurityEvent
		err    error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		since := time.Now().UTC().Add(-30 * 24 * time.Hour)
		events, err = h.events.ListByType(r.Context(), store.EventType(t), since, limit)
	} else {
		events, err = h.events.ListRecent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Errorf("security events list: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *SecurityHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.attempts.ListRecent(r.Context(), queryLimit(r))
	if err != nil {
		h.logger.Errorf("login attempts list: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (h *SecurityHandler) Blocklist(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.blocklist.List(r.Context())
	if err != nil {
		h.logger.Errorf("blocklist list: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked": blocked})
}

func (h *SecurityHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.monitor.Unblock(r.Context(), ip); err != nil {
		h.logger.Errorf("unblock %s: %v", ip, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
