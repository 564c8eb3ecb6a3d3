package game

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/mcdev12/globalquiz/go/internal/identity"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/mcdev12/globalquiz/go/internal/quiz"
)

type sent struct {
	Room    string // empty for individually addressed events
	Exclude string
	To      string
	Type    events.Type
	Payload any
}

type recorder struct {
	ch chan sent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan sent, 1024)}
}

func (r *recorder) BroadcastToRoom(room, exclude string, eventType events.Type, payload any) {
	r.ch <- sent{Room: room, Exclude: exclude, Type: eventType, Payload: payload}
}

func (r *recorder) SendToParticipant(nickname string, eventType events.Type, payload any) {
	r.ch <- sent{To: nickname, Type: eventType, Payload: payload}
}

type published struct {
	count atomic.Int32
}

func (p *published) Publish(events.Type, any) { p.count.Add(1) }

func testConfig() Config {
	return Config{
		Room:             models.GlobalRoom,
		TickInterval:     time.Second,
		PreRoll:          3 * time.Second,
		QuestionTicks:    2,
		ExplanationTicks: 1,
		LeaderboardTicks: 2,
		PointsPerAnswer:  100,
	}
}

type harness struct {
	t         *testing.T
	clock     *clockwork.FakeClock
	registry  *identity.Registry
	rec       *recorder
	publisher *published
	engine    *Engine
	catalog   *quiz.Catalog
	cancel    context.CancelFunc
	done      chan error
}

func newHarness(t *testing.T, roster func(*identity.Registry) Roster) *harness {
	t.Helper()

	clock := clockwork.NewFakeClock()
	registry := identity.NewRegistry(identity.DefaultConfig(), nil, clock)
	h := &harness{
		t:         t,
		clock:     clock,
		registry:  registry,
		rec:       newRecorder(),
		publisher: &published{},
		catalog:   quiz.Default(),
		done:      make(chan error, 1),
	}

	var r Roster = registry
	if roster != nil {
		r = roster(registry)
	}
	h.engine = NewEngine(testConfig(), h.catalog, r, h.rec, h.publisher, clock)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.engine.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})

	return h
}

func (h *harness) next() sent {
	h.t.Helper()
	select {
	case s := <-h.rec.ch:
		return s
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for event")
		return sent{}
	}
}

// expect reads len(want) events and checks their types in order
func (h *harness) expect(want ...events.Type) []sent {
	h.t.Helper()
	got := make([]sent, 0, len(want))
	types := make([]events.Type, 0, len(want))
	for range want {
		s := h.next()
		got = append(got, s)
		types = append(types, s.Type)
	}
	if diff := cmp.Diff(want, types); diff != "" {
		h.t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	return got
}

func (h *harness) advance(d time.Duration, want ...events.Type) []sent {
	h.t.Helper()
	h.clock.Advance(d)
	return h.expect(want...)
}

func (h *harness) assertQuiet() {
	h.t.Helper()
	select {
	case s := <-h.rec.ch:
		h.t.Fatalf("unexpected event %q", s.Type)
	default:
	}
}

func (h *harness) register(names ...string) {
	h.t.Helper()
	ctx := context.Background()
	for _, name := range names {
		if _, err := h.registry.Register(ctx, name, "conn-"+name, ""); err != nil {
			h.t.Fatalf("register %s: %v", name, err)
		}
		if err := h.engine.Join(ctx, name); err != nil {
			h.t.Fatalf("join %s: %v", name, err)
		}
		h.expect(events.TypePlayerJoined, h.currentType())
	}
}

func (h *harness) currentType() events.Type {
	h.t.Helper()
	snap, err := h.engine.Snapshot(context.Background())
	if err != nil {
		h.t.Fatal(err)
	}
	return snap.EventType
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	snap, err := h.engine.Snapshot(context.Background())
	if err != nil {
		h.t.Fatal(err)
	}
	return snap
}

func TestPhaseCycle(t *testing.T) {
	h := newHarness(t, nil)
	tick := time.Second

	started := h.expect(events.TypeGameStarted)
	if diff := cmp.Diff(events.GameStartedPayload{Theme: "Programming", Difficulty: "Medium"}, started[0].Payload); diff != "" {
		t.Errorf("started payload mismatch (-want +got):\n%s", diff)
	}

	for round := 0; round < 2; round++ {
		got := h.advance(3*time.Second, events.TypeNextQuestion)
		if q := got[0].Payload.(events.QuestionPayload); q.QuestionIndex != 0 || q.RemainingTime != 2 || q.TotalQuestions != 3 {
			t.Fatalf("round %d first question payload = %+v", round, q)
		}

		for i := 0; i < h.catalog.Len(); i++ {
			timer := h.advance(tick, events.TypeTimerUpdate)
			if rt := timer[0].Payload.(events.TimerUpdatePayload).RemainingTime; rt != 1 {
				t.Errorf("question %d remaining = %d, want 1", i, rt)
			}

			reveal := h.advance(tick, events.TypeTimerUpdate, events.TypeRevealAnswer)[1].Payload.(events.RevealPayload)
			want, _ := h.catalog.Question(i)
			if reveal.QuestionIndex != i || reveal.CorrectAnswerIndex != want.CorrectOption || reveal.Explanation != want.Explanation {
				t.Errorf("reveal %d payload = %+v", i, reveal)
			}
			if reveal.RemainingTime != 1 {
				t.Errorf("reveal remaining = %d, want 1", reveal.RemainingTime)
			}

			if i < h.catalog.Len()-1 {
				next := h.advance(tick, events.TypeTimerUpdate, events.TypeNextQuestion)[1].Payload.(events.QuestionPayload)
				if next.QuestionIndex != i+1 {
					t.Errorf("next question index = %d, want %d", next.QuestionIndex, i+1)
				}
			} else {
				over := h.advance(tick, events.TypeTimerUpdate, events.TypeGameOver)[1].Payload.(events.GameOverPayload)
				if over.RemainingTime != 2 {
					t.Errorf("game over remaining = %d, want 2", over.RemainingTime)
				}
			}
		}

		if snap := h.snapshot(); snap.Round.Active || snap.Round.Phase != models.PhaseLeaderboard {
			t.Errorf("after last question round = %+v", snap.Round)
		}

		h.advance(tick, events.TypeTimerUpdate)
		h.advance(tick, events.TypeTimerUpdate, events.TypeGameStarted)

		if snap := h.snapshot(); !snap.Round.Active || snap.Round.Phase != models.PhaseIdle || snap.Round.CurrentQuestionIndex != -1 {
			t.Errorf("restarted round = %+v", snap.Round)
		}
	}

	// 4 lifecycle events per question cycle plus start and end, two rounds
	if got := h.publisher.count.Load(); got < 2*(1+2*3+1) {
		t.Errorf("published lifecycle events = %d", got)
	}
}

func TestScoringAnaAlwaysRightBoAlwaysWrong(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	tick := time.Second

	h.expect(events.TypeGameStarted)
	h.register("Ana", "Bo")
	h.advance(3*time.Second, events.TypeNextQuestion)

	var over events.GameOverPayload
	for i := 0; i < h.catalog.Len(); i++ {
		q, _ := h.catalog.Question(i)
		if err := h.engine.Submit(ctx, "Ana", q.CorrectOption); err != nil {
			t.Fatalf("Ana submit: %v", err)
		}
		if err := h.engine.Submit(ctx, "Bo", (q.CorrectOption+1)%len(q.Options)); err != nil {
			t.Fatalf("Bo submit: %v", err)
		}

		h.advance(tick, events.TypeTimerUpdate)
		got := h.advance(tick, events.TypeTimerUpdate, events.TypeScoreUpdate, events.TypeRevealAnswer)
		if got[1].To != "Ana" {
			t.Errorf("score update addressed to %q, want Ana", got[1].To)
		}
		if score := got[1].Payload.(events.ScoreUpdatePayload).Score; score != 100*(i+1) {
			t.Errorf("Ana score after question %d = %d", i, score)
		}

		if i < h.catalog.Len()-1 {
			h.advance(tick, events.TypeTimerUpdate, events.TypeNextQuestion)
		} else {
			over = h.advance(tick, events.TypeTimerUpdate, events.TypeGameOver)[1].Payload.(events.GameOverPayload)
		}
	}

	want := []models.LeaderboardEntry{
		{Nickname: "Ana", Score: 300},
		{Nickname: "Bo", Score: 0},
	}
	if diff := cmp.Diff(want, over.Leaderboard); diff != "" {
		t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
	}

	// A new round resets scores
	h.advance(tick, events.TypeTimerUpdate)
	h.advance(tick, events.TypeTimerUpdate, events.TypeGameStarted)
	if p, _ := h.registry.Participant("Ana"); p.Score != 0 {
		t.Errorf("Ana score after restart = %d, want 0", p.Score)
	}
}

func TestLastSubmissionWins(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.expect(events.TypeGameStarted)
	h.register("Ana")
	h.advance(3*time.Second, events.TypeNextQuestion)

	q, _ := h.catalog.Question(0)
	_ = h.engine.Submit(ctx, "Ana", q.CorrectOption)
	_ = h.engine.Submit(ctx, "Ana", q.CorrectOption+1)

	h.advance(time.Second, events.TypeTimerUpdate)
	h.advance(time.Second, events.TypeTimerUpdate, events.TypeRevealAnswer)

	if p, _ := h.registry.Participant("Ana"); p.Score != 0 {
		t.Errorf("score = %d, want 0", p.Score)
	}
}

func TestStaleSubmissionDropped(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.expect(events.TypeGameStarted)
	h.register("Ana")

	// Before the first question opens
	if err := h.engine.Submit(ctx, "Ana", 1); !errors.Is(err, ErrStaleSubmission) {
		t.Errorf("submit during pre-roll error = %v, want ErrStaleSubmission", err)
	}

	h.advance(3*time.Second, events.TypeNextQuestion)

	// Registered but not in the room
	if _, err := h.registry.Register(ctx, "Bo", "conn-Bo", ""); err != nil {
		t.Fatal(err)
	}
	err := h.engine.Submit(ctx, "Bo", 1)
	if !errors.Is(err, ErrStaleSubmission) || !errors.Is(err, identity.ErrNotInRoom) {
		t.Errorf("submit outside room error = %v", err)
	}

	h.advance(time.Second, events.TypeTimerUpdate)
	h.advance(time.Second, events.TypeTimerUpdate, events.TypeRevealAnswer)

	q, _ := h.catalog.Question(0)
	if err := h.engine.Submit(ctx, "Ana", q.CorrectOption); !errors.Is(err, ErrStaleSubmission) {
		t.Errorf("submit during explanation error = %v, want ErrStaleSubmission", err)
	}

	h.advance(time.Second, events.TypeTimerUpdate, events.TypeNextQuestion)
	h.advance(time.Second, events.TypeTimerUpdate)
	h.advance(time.Second, events.TypeTimerUpdate, events.TypeRevealAnswer)

	if p, _ := h.registry.Participant("Ana"); p.Score != 0 {
		t.Errorf("late answer was scored: %d", p.Score)
	}
}

func TestLateJoinerReceivesSingleStateSync(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.expect(events.TypeGameStarted)
	h.register("Ana")
	h.advance(3*time.Second, events.TypeNextQuestion)
	h.advance(time.Second, events.TypeTimerUpdate)

	if _, err := h.registry.Register(ctx, "Cy", "conn-Cy", ""); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Join(ctx, "Cy"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	got := h.expect(events.TypePlayerJoined, events.TypeNextQuestion)

	joined := got[0]
	if joined.Room != models.GlobalRoom || joined.Exclude != "Cy" {
		t.Errorf("peer joined routed to room=%q exclude=%q", joined.Room, joined.Exclude)
	}
	if diff := cmp.Diff(events.PlayerJoinedPayload{Nickname: "Cy"}, joined.Payload); diff != "" {
		t.Errorf("peer joined payload mismatch (-want +got):\n%s", diff)
	}

	sync := got[1]
	if sync.To != "Cy" {
		t.Errorf("state sync addressed to %q, want Cy", sync.To)
	}
	if q := sync.Payload.(events.QuestionPayload); q.RemainingTime != 1 || q.QuestionIndex != 0 {
		t.Errorf("state sync payload = %+v", q)
	}

	h.assertQuiet()
}

func TestJoinUnknownParticipant(t *testing.T) {
	h := newHarness(t, nil)
	h.expect(events.TypeGameStarted)

	err := h.engine.Join(context.Background(), "ghost")
	if !errors.Is(err, identity.ErrUnknownParticipant) {
		t.Errorf("Join() error = %v, want ErrUnknownParticipant", err)
	}
	if err := h.engine.Leave(context.Background(), "ghost"); !errors.Is(err, identity.ErrUnknownParticipant) {
		t.Errorf("Leave() error = %v, want ErrUnknownParticipant", err)
	}
	h.assertQuiet()
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.expect(events.TypeGameStarted)
	h.register("Ana")
	h.advance(3*time.Second, events.TypeNextQuestion)

	q, _ := h.catalog.Question(0)
	_ = h.engine.Submit(ctx, "Ana", q.CorrectOption)
	if err := h.engine.Leave(ctx, "Ana"); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}

	h.advance(time.Second, events.TypeTimerUpdate)
	h.advance(time.Second, events.TypeTimerUpdate, events.TypeRevealAnswer)

	p, _ := h.registry.Participant("Ana")
	if p.Room != "" || p.Score != 0 {
		t.Errorf("participant after leave = %+v", p)
	}
}

type panickingRoster struct {
	*identity.Registry
	panicked atomic.Bool
}

func (p *panickingRoster) AwardPending(room string, points int) []models.ScoreChange {
	if p.panicked.CompareAndSwap(false, true) {
		panic("scoring exploded")
	}
	return p.Registry.AwardPending(room, points)
}

func TestPanicAbandonsRoundAndRestarts(t *testing.T) {
	h := newHarness(t, func(r *identity.Registry) Roster {
		return &panickingRoster{Registry: r}
	})

	h.expect(events.TypeGameStarted)
	h.advance(3*time.Second, events.TypeNextQuestion)
	h.advance(time.Second, events.TypeTimerUpdate)
	h.advance(time.Second, events.TypeTimerUpdate)

	snap := h.snapshot()
	if snap.Round.Active || snap.Round.Phase != models.PhaseIdle {
		t.Fatalf("round after panic = %+v", snap.Round)
	}
	if snap.EventType != "" {
		t.Errorf("abandoned round exposes event %q", snap.EventType)
	}

	h.advance(3*time.Second, events.TypeGameStarted)
	got := h.advance(3*time.Second, events.TypeNextQuestion)
	if q := got[0].Payload.(events.QuestionPayload); q.QuestionIndex != 0 {
		t.Errorf("restart question index = %d, want 0", q.QuestionIndex)
	}
	h.advance(time.Second, events.TypeTimerUpdate)
	h.advance(time.Second, events.TypeTimerUpdate, events.TypeRevealAnswer)
}

func TestOperationsAfterStop(t *testing.T) {
	h := newHarness(t, nil)
	h.expect(events.TypeGameStarted)

	h.cancel()
	<-h.done
	h.done <- nil // let cleanup observe the stop

	err := h.engine.Submit(context.Background(), "Ana", 0)
	if !errors.Is(err, ErrEngineStopped) {
		t.Errorf("Submit() after stop error = %v, want ErrEngineStopped", err)
	}
}

func TestReplacedTaskNeverFires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(testConfig(), quiz.Default(), identity.NewRegistry(identity.DefaultConfig(), nil, clock), newRecorder(), nil, clock)

	fired := 0
	e.after("first", time.Second, func() { fired++ })
	first := e.scheduled
	e.after("second", 2*time.Second, func() {})

	clock.Advance(time.Second)
	select {
	case <-first.channel():
		t.Error("replaced timer fired")
	default:
	}
	if e.scheduled.name != "second" {
		t.Errorf("scheduled = %q, want second", e.scheduled.name)
	}

	e.cancelScheduled()
	if e.scheduled != nil {
		t.Error("cancelScheduled() left a task installed")
	}
	if fired != 0 {
		t.Errorf("fired = %d", fired)
	}
}
