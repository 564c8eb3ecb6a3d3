package gateway

import (
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Addressbook resolves room members and nicknames to live connections
type Addressbook interface {
	ConnectionsInRoom(room, exclude string) []string
	ConnectionOf(nickname string) (string, bool)
}

// RoomBroadcaster delivers game events through the connection manager.
// Recipients are resolved when the call is made, not when the frame is written.
type RoomBroadcaster struct {
	connections *ConnectionManager
	addressbook Addressbook
	clock       clockwork.Clock
}

func NewRoomBroadcaster(connections *ConnectionManager, addressbook Addressbook, clock clockwork.Clock) *RoomBroadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoomBroadcaster{
		connections: connections,
		addressbook: addressbook,
		clock:       clock,
	}
}

// BroadcastToRoom sends to every current member of room except exclude
func (b *RoomBroadcaster) BroadcastToRoom(room, exclude string, eventType events.Type, payload any) {
	ids := b.addressbook.ConnectionsInRoom(room, exclude)
	if len(ids) == 0 {
		return
	}
	b.send(ids, eventType, payload)
}

// SendToParticipant sends to the participant's current connection, if any
func (b *RoomBroadcaster) SendToParticipant(nickname string, eventType events.Type, payload any) {
	id, ok := b.addressbook.ConnectionOf(nickname)
	if !ok {
		log.Debug().
			Str("nickname", nickname).
			Str("event_type", string(eventType)).
			Msg("participant has no live connection, skipping")
		return
	}
	b.send([]string{id}, eventType, payload)
}

// SendToConnection replies directly on a connection, named or not
func (b *RoomBroadcaster) SendToConnection(connectionID string, eventType events.Type, payload any) {
	b.send([]string{connectionID}, eventType, payload)
}

func (b *RoomBroadcaster) send(ids []string, eventType events.Type, payload any) {
	env, err := events.NewEnvelope(eventType, payload, b.clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build event envelope")
		return
	}
	b.connections.Send(ids, env)
}
