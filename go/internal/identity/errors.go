package identity

import "errors"

var (
	// ErrNameTaken is returned when the nickname is held by another live connection
	ErrNameTaken = errors.New("nickname unavailable")

	// ErrInvalidName is returned for empty or whitespace-only nicknames
	ErrInvalidName = errors.New("invalid nickname")

	// ErrUnknownParticipant is returned when an action references a name or
	// connection the registry does not know
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrNotInRoom is returned when a participant acts on a room it has not joined
	ErrNotInRoom = errors.New("participant not in room")
)
