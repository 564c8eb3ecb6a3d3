package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the wire name of an outbound event
type Type string

const (
	TypeNicknameAccepted    Type = "nickname accepted"
	TypeNicknameUnavailable Type = "nickname unavailable"
	TypePlayerJoined        Type = "player joined global game"
	TypeGameStarted         Type = "global game started"
	TypeNextQuestion        Type = "next global game question"
	TypeTimerUpdate         Type = "global game timer update"
	TypeRevealAnswer        Type = "reveal global game answer"
	TypeScoreUpdate         Type = "update global game score"
	TypeGameOver            Type = "global game over"
	TypePresenceCounts      Type = "presence counts"
)

// CommandType is the wire name of an inbound client command
type CommandType string

const (
	CommandRegisterNickname CommandType = "register nickname"
	CommandJoinGame         CommandType = "join global game"
	CommandLeaveGame        CommandType = "leave global game"
	CommandSubmitAnswer     CommandType = "submit global game answer"
	CommandRequestPresence  CommandType = "request presence counts"
)

// Envelope is the outbound frame written to clients and the lifecycle feed
type Envelope struct {
	ID        string          `json:"id"`        // Event UUID
	Type      Type            `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// NewEnvelope marshals payload into a new envelope
func NewEnvelope(eventType Type, payload any, now time.Time) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// Command is an inbound client frame
type Command struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IsLifecycle reports whether the event marks a round transition rather than a
// per-connection or per-tick update
func (t Type) IsLifecycle() bool {
	switch t {
	case TypeGameStarted, TypeNextQuestion, TypeRevealAnswer, TypeGameOver:
		return true
	}
	return false
}
