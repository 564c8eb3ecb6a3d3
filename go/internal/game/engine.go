package game

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/mcdev12/globalquiz/go/internal/identity"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrStaleSubmission is returned for an answer outside the question window
	// or from someone outside the room. It is never surfaced to clients.
	ErrStaleSubmission = errors.New("stale submission")

	// ErrEngineStopped is returned by operations issued after Run has exited
	ErrEngineStopped = errors.New("game engine stopped")
)

// Config holds phase timing and scoring settings
type Config struct {
	Room             string
	TickInterval     time.Duration
	PreRoll          time.Duration
	QuestionTicks    int
	ExplanationTicks int
	LeaderboardTicks int
	PointsPerAnswer  int
}

// DefaultConfig returns the standard global game timings
func DefaultConfig() Config {
	return Config{
		Room:             models.GlobalRoom,
		TickInterval:     time.Second,
		PreRoll:          3 * time.Second,
		QuestionTicks:    15,
		ExplanationTicks: 5,
		LeaderboardTicks: 10,
		PointsPerAnswer:  100,
	}
}

// Catalog is the read-only question source
type Catalog interface {
	Theme() string
	Difficulty() string
	Len() int
	Question(i int) (models.Question, bool)
}

// Roster defines what the engine needs from the identity registry
type Roster interface {
	JoinRoom(nickname, room string) (models.Participant, bool)
	LeaveRoom(nickname string) bool
	ResetScores(room string)
	RecordAnswer(nickname, room string, correct bool) error
	AwardPending(room string, points int) []models.ScoreChange
	Standings(room string) []models.LeaderboardEntry
}

// Broadcaster delivers events to clients. Calls are made from the engine
// loop and must not block.
type Broadcaster interface {
	// BroadcastToRoom sends to every current room member except exclude
	BroadcastToRoom(room, exclude string, eventType events.Type, payload any)
	SendToParticipant(nickname string, eventType events.Type, payload any)
}

// Publisher mirrors round lifecycle events to an external feed. Must not block.
type Publisher interface {
	Publish(eventType events.Type, payload any)
}

// Snapshot is the state a late joiner or the state endpoint sees
type Snapshot struct {
	Round          models.GameRound `json:"round"`
	RemainingTime  int              `json:"remainingTime"`
	TotalQuestions int              `json:"totalQuestions"`
	EventType      events.Type      `json:"eventType,omitempty"`
	Event          any              `json:"event,omitempty"`
}

// Engine runs the single global round. All round state is owned by the Run
// goroutine; other goroutines reach it through queued tasks.
type Engine struct {
	config      Config
	catalog     Catalog
	roster      Roster
	broadcaster Broadcaster
	publisher   Publisher
	clock       clockwork.Clock

	tasks   chan func()
	stopped chan struct{}

	// loop-owned
	round       models.GameRound
	remaining   int
	leaderboard []models.LeaderboardEntry
	scheduled   *scheduledTask
}

// NewEngine creates an engine. publisher and clock may be nil.
func NewEngine(config Config, catalog Catalog, roster Roster, broadcaster Broadcaster, publisher Publisher, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if config.Room == "" {
		config.Room = models.GlobalRoom
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	return &Engine{
		config:      config,
		catalog:     catalog,
		roster:      roster,
		broadcaster: broadcaster,
		publisher:   publisher,
		clock:       clock,
		tasks:       make(chan func(), 64),
		stopped:     make(chan struct{}),
		round:       models.NewGameRound(catalog.Theme(), catalog.Difficulty()),
	}
}

// Run starts the first round and processes timers and queued tasks until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	defer e.cancelScheduled()

	log.Info().
		Str("room", e.config.Room).
		Str("theme", e.catalog.Theme()).
		Int("questions", e.catalog.Len()).
		Msg("game engine started")

	e.safely("start round", e.startRound)

	for {
		var fired <-chan time.Time
		if e.scheduled != nil {
			fired = e.scheduled.channel()
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("game engine stopping")
			return ctx.Err()

		case task := <-e.tasks:
			e.safely("queued task", task)

		case <-fired:
			task := e.scheduled
			if task.oneShot() {
				e.scheduled = nil
			}
			e.safely(task.name, task.fire)
		}
	}
}

// safely runs fn and turns a panic into an abandoned round
func (e *Engine) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("task", name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("game task panicked, abandoning round")
			e.abandonRound()
		}
	}()
	fn()
}

// do queues fn on the loop and waits for it to finish
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}

	select {
	case e.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// Submit records nickname's answer for the open question. The last
// submission before the deadline wins.
func (e *Engine) Submit(ctx context.Context, nickname string, option int) error {
	var result error
	if err := e.do(ctx, func() { result = e.submit(nickname, option) }); err != nil {
		return err
	}
	return result
}

// Join adds nickname to the room, notifies the other members and sends the
// joiner the current phase
func (e *Engine) Join(ctx context.Context, nickname string) error {
	var result error
	if err := e.do(ctx, func() { result = e.join(nickname) }); err != nil {
		return err
	}
	return result
}

// Leave removes nickname from the room
func (e *Engine) Leave(ctx context.Context, nickname string) error {
	var result error
	err := e.do(ctx, func() {
		if !e.roster.LeaveRoom(nickname) {
			result = fmt.Errorf("%w: %s", identity.ErrUnknownParticipant, nickname)
		}
	})
	if err != nil {
		return err
	}
	return result
}

// Snapshot returns the current round state and the phase event a joiner would receive
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func() {
		snap = Snapshot{
			Round:          e.round,
			RemainingTime:  e.remaining,
			TotalQuestions: e.catalog.Len(),
		}
		if eventType, payload, ok := e.currentPhaseEvent(); ok {
			snap.EventType = eventType
			snap.Event = payload
		}
	})
	return snap, err
}

func (e *Engine) submit(nickname string, option int) error {
	if e.round.Phase != models.PhaseQuestion {
		return fmt.Errorf("%w: phase is %q", ErrStaleSubmission, e.round.Phase)
	}

	q, ok := e.catalog.Question(e.round.CurrentQuestionIndex)
	if !ok {
		return fmt.Errorf("%w: no open question", ErrStaleSubmission)
	}

	if err := e.roster.RecordAnswer(nickname, e.config.Room, q.IsCorrect(option)); err != nil {
		return fmt.Errorf("%w: %w", ErrStaleSubmission, err)
	}

	log.Debug().
		Str("nickname", nickname).
		Int("question_index", q.Index).
		Int("option", option).
		Msg("answer recorded")
	return nil
}

func (e *Engine) join(nickname string) error {
	p, ok := e.roster.JoinRoom(nickname, e.config.Room)
	if !ok {
		return fmt.Errorf("%w: %s", identity.ErrUnknownParticipant, nickname)
	}

	e.broadcaster.BroadcastToRoom(e.config.Room, nickname, events.TypePlayerJoined, events.PlayerJoinedPayload{
		Nickname: p.Nickname,
		Country:  p.Country,
		Score:    p.Score,
	})

	if eventType, payload, ok := e.currentPhaseEvent(); ok {
		e.broadcaster.SendToParticipant(nickname, eventType, payload)
	}

	log.Info().
		Str("nickname", nickname).
		Str("phase", string(e.round.Phase)).
		Msg("participant joined room")
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Type, any) {}
