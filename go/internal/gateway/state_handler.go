package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the synchronous HTTP queries
type StateHandler struct {
	engine      Engine
	presence    Presence
	connections *ConnectionManager
}

func NewStateHandler(engine Engine, presence Presence, connections *ConnectionManager) *StateHandler {
	return &StateHandler{
		engine:      engine,
		presence:    presence,
		connections: connections,
	}
}

// HandleUsersByCountry returns {countryCode: count}, filtered by the optional room in ?code=
func (h *StateHandler) HandleUsersByCountry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	room := r.URL.Query().Get("code")
	writeJSON(w, http.StatusOK, h.presence.CountsByCountry(room))
}

// HandleGameState returns the current round snapshot
func (h *StateHandler) HandleGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := h.engine.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get game snapshot")
		http.Error(w, "game state unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.connections.ConnectionCount(),
	})
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/users-by-country", h.HandleUsersByCountry)
	mux.HandleFunc("/api/game/state", h.HandleGameState)
	mux.HandleFunc("/health", h.HandleHealth)
}
