package events

import "github.com/mcdev12/globalquiz/go/internal/models"

// Event payload types shared between the game engine, the gateway and the feed

type NicknameAcceptedPayload struct {
	Nickname string `json:"nickname"`
	Country  string `json:"country"`
}

type NicknameUnavailablePayload struct {
	Nickname string `json:"nickname"`
}

// PlayerJoinedPayload is sent to the other room members when someone joins
type PlayerJoinedPayload struct {
	Nickname string `json:"nickname"`
	Country  string `json:"country"`
	Score    int    `json:"score"`
}

type GameStartedPayload struct {
	Theme      string `json:"theme"`
	Difficulty string `json:"difficulty"`
}

// QuestionPayload withholds the correct answer and explanation
type QuestionPayload struct {
	Theme          string   `json:"theme"`
	Difficulty     string   `json:"difficulty"`
	QuestionIndex  int      `json:"questionIndex"`
	TotalQuestions int      `json:"totalQuestions"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	RemainingTime  int      `json:"remainingTime"`
}

type TimerUpdatePayload struct {
	RemainingTime int `json:"remainingTime"`
}

// RevealPayload repeats the question fields alongside the answer
type RevealPayload struct {
	QuestionPayload
	CorrectAnswerIndex int    `json:"correctAnswerIndex"`
	Explanation        string `json:"explanation"`
}

type ScoreUpdatePayload struct {
	Score int `json:"score"`
}

type GameOverPayload struct {
	Theme         string                    `json:"theme"`
	Difficulty    string                    `json:"difficulty"`
	Leaderboard   []models.LeaderboardEntry `json:"leaderboard"`
	RemainingTime int                       `json:"remainingTime"`
}

// PresenceCountsPayload maps country code to participant count
type PresenceCountsPayload map[string]int

type PresenceRequestPayload struct {
	Code string `json:"code"`
}
