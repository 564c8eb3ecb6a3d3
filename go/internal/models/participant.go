package models

import "time"

// GlobalRoom is the single shared room every participant plays in
const GlobalRoom = "global game"

// Participant represents a registered display name and its game state
type Participant struct {
	Nickname     string    `json:"nickname"`
	ConnectionID string    `json:"connection_id"`
	Country      string    `json:"country,omitempty"` // empty until resolved
	Room         string    `json:"room,omitempty"`
	Score        int       `json:"score"`
	Connected    bool      `json:"connected"`
	RegisteredAt time.Time `json:"registered_at"`

	// PendingCorrect holds whether the latest submission for the open question was correct.
	// It is applied and cleared at reveal time.
	PendingCorrect bool `json:"-"`

	// Seq is the registration order, used to break leaderboard ties
	Seq uint64 `json:"-"`
}

// InRoom reports whether the participant currently belongs to room
func (p *Participant) InRoom(room string) bool {
	return room != "" && p.Room == room
}

// LeaderboardEntry is one ranked row of a finished round
type LeaderboardEntry struct {
	Nickname string `json:"nickname"`
	Country  string `json:"country"`
	Score    int    `json:"score"`
}

// ScoreChange is an individual score update produced at reveal time
type ScoreChange struct {
	Nickname string
	Score    int
}
