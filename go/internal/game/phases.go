package game

import (
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

// startRound resets room scores and shows question 0 after the pre-roll
func (e *Engine) startRound() {
	e.cancelScheduled()
	e.roster.ResetScores(e.config.Room)

	e.leaderboard = nil
	e.remaining = 0
	e.round = models.NewGameRound(e.catalog.Theme(), e.catalog.Difficulty())
	e.round.Active = true
	e.round.Phase = models.PhaseIdle

	e.after("pre-roll", e.config.PreRoll, func() { e.advanceToQuestion(0) })

	log.Info().Str("theme", e.round.Theme).Msg("starting round")
	e.emit(events.TypeGameStarted, e.gameStartedPayload())
}

func (e *Engine) advanceToQuestion(i int) {
	if i >= e.catalog.Len() {
		e.endRound()
		return
	}

	e.round.CurrentQuestionIndex = i
	e.round.Phase = models.PhaseQuestion
	e.remaining = e.config.QuestionTicks
	e.every("question countdown", e.onTick)

	log.Info().Int("question_index", i).Msg("showing question")
	e.emit(events.TypeNextQuestion, e.questionPayload())
}

func (e *Engine) onTick() {
	if e.remaining > 0 {
		e.remaining--
	}
	e.broadcaster.BroadcastToRoom(e.config.Room, "", events.TypeTimerUpdate, events.TimerUpdatePayload{
		RemainingTime: e.remaining,
	})

	if e.remaining > 0 {
		return
	}

	switch e.round.Phase {
	case models.PhaseQuestion:
		e.revealAnswer()
	case models.PhaseExplanation:
		e.advanceToQuestion(e.round.CurrentQuestionIndex + 1)
	case models.PhaseLeaderboard:
		e.startRound()
	default:
		log.Warn().Str("phase", string(e.round.Phase)).Msg("countdown expired in unexpected phase")
		e.cancelScheduled()
	}
}

// revealAnswer scores pending correct answers and shows the explanation
func (e *Engine) revealAnswer() {
	changes := e.roster.AwardPending(e.config.Room, e.config.PointsPerAnswer)
	for _, c := range changes {
		e.broadcaster.SendToParticipant(c.Nickname, events.TypeScoreUpdate, events.ScoreUpdatePayload{Score: c.Score})
	}

	e.round.Phase = models.PhaseExplanation
	e.remaining = e.config.ExplanationTicks
	e.every("explanation countdown", e.onTick)

	log.Info().
		Int("question_index", e.round.CurrentQuestionIndex).
		Int("scorers", len(changes)).
		Msg("revealing answer")
	e.emit(events.TypeRevealAnswer, e.revealPayload())
}

// endRound publishes the final standings; the round restarts when the leaderboard countdown expires
func (e *Engine) endRound() {
	e.leaderboard = e.roster.Standings(e.config.Room)
	e.round.Active = false
	e.round.Phase = models.PhaseLeaderboard
	e.remaining = e.config.LeaderboardTicks
	e.every("leaderboard countdown", e.onTick)

	log.Info().Int("participants", len(e.leaderboard)).Msg("round over")
	e.emit(events.TypeGameOver, e.gameOverPayload())
}

// abandonRound drops the current round and restarts after the pre-roll
func (e *Engine) abandonRound() {
	e.cancelScheduled()
	e.round.Active = false
	e.round.Phase = models.PhaseIdle
	e.remaining = 0
	e.after("restart", e.config.PreRoll, e.startRound)
}

func (e *Engine) emit(eventType events.Type, payload any) {
	e.broadcaster.BroadcastToRoom(e.config.Room, "", eventType, payload)
	e.publisher.Publish(eventType, payload)
}

// currentPhaseEvent rebuilds the latest phase event with the current remaining time
func (e *Engine) currentPhaseEvent() (events.Type, any, bool) {
	switch e.round.Phase {
	case models.PhaseIdle:
		if !e.round.Active {
			return "", nil, false
		}
		return events.TypeGameStarted, e.gameStartedPayload(), true
	case models.PhaseQuestion:
		return events.TypeNextQuestion, e.questionPayload(), true
	case models.PhaseExplanation:
		return events.TypeRevealAnswer, e.revealPayload(), true
	case models.PhaseLeaderboard:
		return events.TypeGameOver, e.gameOverPayload(), true
	}
	return "", nil, false
}

func (e *Engine) gameStartedPayload() events.GameStartedPayload {
	return events.GameStartedPayload{
		Theme:      e.round.Theme,
		Difficulty: e.round.Difficulty,
	}
}

func (e *Engine) questionPayload() events.QuestionPayload {
	q, _ := e.catalog.Question(e.round.CurrentQuestionIndex)
	return events.QuestionPayload{
		Theme:          e.round.Theme,
		Difficulty:     e.round.Difficulty,
		QuestionIndex:  e.round.CurrentQuestionIndex,
		TotalQuestions: e.catalog.Len(),
		Question:       q.Prompt,
		Options:        q.Options,
		RemainingTime:  e.remaining,
	}
}

func (e *Engine) revealPayload() events.RevealPayload {
	q, _ := e.catalog.Question(e.round.CurrentQuestionIndex)
	return events.RevealPayload{
		QuestionPayload:    e.questionPayload(),
		CorrectAnswerIndex: q.CorrectOption,
		Explanation:        q.Explanation,
	}
}

func (e *Engine) gameOverPayload() events.GameOverPayload {
	leaderboard := make([]models.LeaderboardEntry, len(e.leaderboard))
	copy(leaderboard, e.leaderboard)
	return events.GameOverPayload{
		Theme:         e.round.Theme,
		Difficulty:    e.round.Difficulty,
		Leaderboard:   leaderboard,
		RemainingTime: e.remaining,
	}
}
