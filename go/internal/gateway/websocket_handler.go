package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/mcdev12/globalquiz/go/clients/geo_client"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for the game endpoint
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	commands          CommandHandler
}

func NewWebSocketHandler(cm *ConnectionManager, commands CommandHandler) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		commands:          commands,
	}
}

// HandleGameConnection upgrades the request; identity is established later by a register command
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	sourceIP := SourceIP(r)

	if err := h.connectionManager.UpgradeConnection(w, r, sourceIP, h.commands); err != nil {
		// The upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("ip", sourceIP).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": h.connectionManager.ConnectionCount(),
	})
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/game", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

// SourceIP returns the first X-Forwarded-For entry, else the peer address,
// with any IPv4-mapped IPv6 prefix removed
func SourceIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return geo_client.NormalizeIP(ip)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return geo_client.NormalizeIP(host)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
