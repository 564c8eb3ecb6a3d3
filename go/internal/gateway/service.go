package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mcdev12/globalquiz/go/internal/game"
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/mcdev12/globalquiz/go/internal/identity"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Registry defines what the gateway needs from the identity registry
type Registry interface {
	Register(ctx context.Context, nickname, connectionID, sourceAddress string) (models.Participant, error)
	Disconnect(connectionID string)
	NameForConnection(connectionID string) (string, bool)
}

// Engine defines the game operations reachable from clients
type Engine interface {
	Join(ctx context.Context, nickname string) error
	Leave(ctx context.Context, nickname string) error
	Submit(ctx context.Context, nickname string, option int) error
	Snapshot(ctx context.Context) (game.Snapshot, error)
}

// Presence answers per-country participant counts
type Presence interface {
	CountsByCountry(room string) map[string]int
}

// Service translates client commands into registry and engine calls
type Service struct {
	connectionManager *ConnectionManager
	broadcaster       *RoomBroadcaster
	registry          Registry
	engine            Engine
	presence          Presence
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// NewService creates the gateway over an existing connection manager and broadcaster
func NewService(cm *ConnectionManager, broadcaster *RoomBroadcaster, registry Registry, engine Engine, presence Presence) *Service {
	s := &Service{
		connectionManager: cm,
		broadcaster:       broadcaster,
		registry:          registry,
		engine:            engine,
		presence:          presence,
	}
	s.wsHandler = NewWebSocketHandler(cm, s)
	s.stateHandler = NewStateHandler(engine, presence, cm)
	return s
}

// Start runs the connection manager until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("game gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("game gateway routes registered")
}

// HandleCommand dispatches one inbound frame
func (s *Service) HandleCommand(ctx context.Context, conn *Connection, message []byte) {
	var cmd events.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("dropping malformed client message")
		return
	}

	if cmd.Type == events.CommandRegisterNickname {
		s.handleRegister(ctx, conn, cmd.Data)
		return
	}

	nickname, ok := s.registry.NameForConnection(conn.ID)
	if !ok {
		log.Warn().
			Err(identity.ErrUnknownParticipant).
			Str("connection_id", conn.ID).
			Str("command", string(cmd.Type)).
			Msg("dropping command from unregistered connection")
		return
	}

	var err error
	switch cmd.Type {
	case events.CommandJoinGame:
		err = s.engine.Join(ctx, nickname)
	case events.CommandLeaveGame:
		err = s.engine.Leave(ctx, nickname)
	case events.CommandSubmitAnswer:
		err = s.handleSubmit(ctx, nickname, cmd.Data)
	case events.CommandRequestPresence:
		err = s.handlePresence(conn, cmd.Data)
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}

	if err != nil {
		event := log.Warn()
		if errors.Is(err, game.ErrStaleSubmission) {
			event = log.Debug()
		}
		event.
			Err(err).
			Str("nickname", nickname).
			Str("command", string(cmd.Type)).
			Msg("command not applied")
	}
}

// HandleDisconnect starts the grace period for the connection's nickname
func (s *Service) HandleDisconnect(conn *Connection) {
	s.registry.Disconnect(conn.ID)
}

func (s *Service) handleRegister(ctx context.Context, conn *Connection, data json.RawMessage) {
	var nickname string
	if err := json.Unmarshal(data, &nickname); err != nil {
		log.Warn().Err(err).Str("connection_id", conn.ID).Msg("invalid register payload")
		s.broadcaster.SendToConnection(conn.ID, events.TypeNicknameUnavailable, events.NicknameUnavailablePayload{})
		return
	}

	p, err := s.registry.Register(ctx, nickname, conn.ID, conn.SourceIP)
	if err != nil {
		log.Info().
			Err(err).
			Str("nickname", nickname).
			Str("connection_id", conn.ID).
			Msg("nickname rejected")
		s.broadcaster.SendToConnection(conn.ID, events.TypeNicknameUnavailable, events.NicknameUnavailablePayload{
			Nickname: nickname,
		})
		return
	}

	s.broadcaster.SendToConnection(conn.ID, events.TypeNicknameAccepted, events.NicknameAcceptedPayload{
		Nickname: p.Nickname,
		Country:  p.Country,
	})
}

func (s *Service) handleSubmit(ctx context.Context, nickname string, data json.RawMessage) error {
	var option int
	if err := json.Unmarshal(data, &option); err != nil {
		return fmt.Errorf("invalid answer payload: %w", err)
	}
	return s.engine.Submit(ctx, nickname, option)
}

func (s *Service) handlePresence(conn *Connection, data json.RawMessage) error {
	var req events.PresenceRequestPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("invalid presence request: %w", err)
		}
	}

	counts := s.presence.CountsByCountry(req.Code)
	s.broadcaster.SendToConnection(conn.ID, events.TypePresenceCounts, events.PresenceCountsPayload(counts))
	return nil
}
