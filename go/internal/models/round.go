package models

// Phase describes what the shared round is currently displaying.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseIdle        Phase = "idle"
	PhaseQuestion    Phase = "question"
	PhaseExplanation Phase = "explanation"
	PhaseLeaderboard Phase = "leaderboard"
)

// GameRound is the state of the shared game's current run.
type GameRound struct {
	Active               bool   `json:"active"`
	Theme                string `json:"theme"`
	Difficulty           string `json:"difficulty"`
	CurrentQuestionIndex int    `json:"current_question_index"` // -1 before the first question
	Phase                Phase  `json:"phase"`
}

// NewGameRound returns a round that has not started yet
func NewGameRound(theme, difficulty string) GameRound {
	return GameRound{
		Theme:                theme,
		Difficulty:           difficulty,
		CurrentQuestionIndex: -1,
		Phase:                PhaseNone,
	}
}
