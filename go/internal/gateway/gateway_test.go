package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/internal/game"
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/mcdev12/globalquiz/go/internal/identity"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/mcdev12/globalquiz/go/internal/presence"
	"github.com/mcdev12/globalquiz/go/internal/quiz"
)

type recordingResolver struct {
	mu  sync.Mutex
	ips []string
}

func (r *recordingResolver) ResolveCountry(_ context.Context, ip string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ips = append(r.ips, ip)
	return "US", nil
}

func (r *recordingResolver) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ips...)
}

type testServer struct {
	srv      *httptest.Server
	clock    *clockwork.FakeClock
	registry *identity.Registry
	resolver *recordingResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClock()
	resolver := &recordingResolver{}
	registry := identity.NewRegistry(identity.DefaultConfig(), resolver, clock)

	cm := NewConnectionManager(DefaultConnectionConfig())
	broadcaster := NewRoomBroadcaster(cm, registry, clock)
	engine := game.NewEngine(game.Config{
		Room:             models.GlobalRoom,
		TickInterval:     time.Second,
		PreRoll:          3 * time.Second,
		QuestionTicks:    2,
		ExplanationTicks: 1,
		LeaderboardTicks: 2,
		PointsPerAnswer:  100,
	}, quiz.Default(), registry, broadcaster, nil, clock)
	svc := NewService(cm, broadcaster, registry, engine, presence.NewTracker(registry))

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Start(ctx) }()
	go func() { _ = engine.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &testServer{srv: srv, clock: clock, registry: registry, resolver: resolver}
}

func (ts *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/game"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (ts *testServer) getJSON(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func send(t *testing.T, conn *websocket.Conn, commandType events.CommandType, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(events.Command{Type: commandType, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", commandType, err)
	}
}

// expect reads the next frame, checks its type and decodes its data into out
func expect(t *testing.T, conn *websocket.Conn, want events.Type, out any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env events.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("waiting for %q: %v", want, err)
	}
	if env.Type != want {
		t.Fatalf("got event %q, want %q (data %s)", env.Type, want, env.Data)
	}
	if env.ID == "" {
		t.Error("envelope without id")
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode %q: %v", want, err)
		}
	}
}

// syncCommands round-trips a presence request so every earlier command on conn has been applied
func syncCommands(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, events.CommandRequestPresence, events.PresenceRequestPayload{})
	expect(t, conn, events.TypePresenceCounts, nil)
}

func TestGameFlowOverWebSocket(t *testing.T) {
	ts := newTestServer(t)

	ana := ts.dial(t, http.Header{"X-Forwarded-For": {"::ffff:81.2.69.142, 10.0.0.1"}})
	send(t, ana, events.CommandRegisterNickname, "Ana")
	var accepted events.NicknameAcceptedPayload
	expect(t, ana, events.TypeNicknameAccepted, &accepted)
	if diff := cmp.Diff(events.NicknameAcceptedPayload{Nickname: "Ana", Country: "US"}, accepted); diff != "" {
		t.Errorf("accepted payload mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"81.2.69.142"}, ts.resolver.seen()); diff != "" {
		t.Errorf("resolved addresses mismatch (-want +got):\n%s", diff)
	}

	bo := ts.dial(t, nil)
	send(t, bo, events.CommandRegisterNickname, "Ana")
	var unavailable events.NicknameUnavailablePayload
	expect(t, bo, events.TypeNicknameUnavailable, &unavailable)
	if unavailable.Nickname != "Ana" {
		t.Errorf("unavailable nickname = %q", unavailable.Nickname)
	}
	send(t, bo, events.CommandRegisterNickname, "Bo")
	expect(t, bo, events.TypeNicknameAccepted, nil)

	send(t, ana, events.CommandJoinGame, nil)
	expect(t, ana, events.TypeGameStarted, nil)

	send(t, bo, events.CommandJoinGame, nil)
	var joined events.PlayerJoinedPayload
	expect(t, ana, events.TypePlayerJoined, &joined)
	if diff := cmp.Diff(events.PlayerJoinedPayload{Nickname: "Bo", Country: "US"}, joined); diff != "" {
		t.Errorf("joined payload mismatch (-want +got):\n%s", diff)
	}
	expect(t, bo, events.TypeGameStarted, nil)

	ts.clock.Advance(3 * time.Second)
	var question events.QuestionPayload
	expect(t, ana, events.TypeNextQuestion, &question)
	expect(t, bo, events.TypeNextQuestion, nil)
	if question.QuestionIndex != 0 || question.TotalQuestions != 3 || question.RemainingTime != 2 {
		t.Errorf("question payload = %+v", question)
	}

	send(t, ana, events.CommandSubmitAnswer, 1)
	send(t, bo, events.CommandSubmitAnswer, 0)
	syncCommands(t, ana)
	syncCommands(t, bo)

	ts.clock.Advance(time.Second)
	expect(t, ana, events.TypeTimerUpdate, nil)
	expect(t, bo, events.TypeTimerUpdate, nil)

	ts.clock.Advance(time.Second)
	var score events.ScoreUpdatePayload
	var reveal events.RevealPayload
	expect(t, ana, events.TypeTimerUpdate, nil)
	expect(t, ana, events.TypeScoreUpdate, &score)
	expect(t, ana, events.TypeRevealAnswer, &reveal)
	expect(t, bo, events.TypeTimerUpdate, nil)
	expect(t, bo, events.TypeRevealAnswer, nil)

	if score.Score != 100 {
		t.Errorf("Ana score = %d, want 100", score.Score)
	}
	if reveal.CorrectAnswerIndex != 1 || reveal.Explanation == "" {
		t.Errorf("reveal payload = %+v", reveal)
	}

	// Commands from a connection without a nickname are dropped
	cy := ts.dial(t, nil)
	send(t, cy, events.CommandJoinGame, nil)
	send(t, cy, events.CommandRegisterNickname, "Cy")
	expect(t, cy, events.TypeNicknameAccepted, nil)

	var roomCounts map[string]int
	ts.getJSON(t, "/users-by-country?code="+url.QueryEscape(models.GlobalRoom), &roomCounts)
	if diff := cmp.Diff(map[string]int{"US": 2}, roomCounts); diff != "" {
		t.Errorf("room counts mismatch (-want +got):\n%s", diff)
	}
	var allCounts map[string]int
	ts.getJSON(t, "/users-by-country", &allCounts)
	if diff := cmp.Diff(map[string]int{"US": 3}, allCounts); diff != "" {
		t.Errorf("all counts mismatch (-want +got):\n%s", diff)
	}

	var state struct {
		Round         models.GameRound `json:"round"`
		RemainingTime int              `json:"remainingTime"`
		EventType     events.Type      `json:"eventType"`
	}
	ts.getJSON(t, "/api/game/state", &state)
	if state.Round.Phase != models.PhaseExplanation || state.EventType != events.TypeRevealAnswer {
		t.Errorf("state = %+v", state)
	}

	// Reconnect within the grace period keeps the score
	ana.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, live := ts.registry.ConnectionOf("Ana"); !live {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnect not observed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ana2 := ts.dial(t, nil)
	send(t, ana2, events.CommandRegisterNickname, "Ana")
	expect(t, ana2, events.TypeNicknameAccepted, &accepted)
	if accepted.Country != "US" {
		t.Errorf("country after reconnect = %q", accepted.Country)
	}
	if p, _ := ts.registry.Participant("Ana"); p.Score != 100 || p.Room != models.GlobalRoom {
		t.Errorf("participant after reconnect = %+v", p)
	}
	if n := len(ts.resolver.seen()); n != 3 {
		t.Errorf("resolver calls = %d, want 3 (Ana, Bo, Cy)", n)
	}
}

func TestUnregisteredConnectionCommandsDropped(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, nil)

	send(t, conn, events.CommandJoinGame, nil)
	send(t, conn, events.CommandRequestPresence, events.PresenceRequestPayload{})
	send(t, conn, events.CommandSubmitAnswer, 1)

	// Commands are applied in order, so the first frame back must be the acceptance
	send(t, conn, events.CommandRegisterNickname, "Zed")
	var accepted events.NicknameAcceptedPayload
	expect(t, conn, events.TypeNicknameAccepted, &accepted)
	if accepted.Nickname != "Zed" {
		t.Errorf("accepted = %+v", accepted)
	}
	if p, ok := ts.registry.Participant("Zed"); !ok || p.InRoom(models.GlobalRoom) {
		t.Errorf("participant = %+v, %v; join before register must be dropped", p, ok)
	}

	var health map[string]any
	ts.getJSON(t, "/health", &health)
	if diff := cmp.Diff(map[string]any{"status": "ok", "connections": float64(1)}, health); diff != "" {
		t.Errorf("/health mismatch (-want +got):\n%s", diff)
	}

	var stats map[string]int
	ts.getJSON(t, "/ws/stats", &stats)
	if stats["total_connections"] != 1 {
		t.Errorf("/ws/stats = %v", stats)
	}
}

func TestSourceIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{name: "forwarded chain", forwarded: "203.0.113.7, 10.0.0.1", remoteAddr: "10.0.0.2:5000", want: "203.0.113.7"},
		{name: "mapped forwarded", forwarded: "::ffff:198.51.100.4", remoteAddr: "10.0.0.2:5000", want: "198.51.100.4"},
		{name: "remote only", remoteAddr: "192.0.2.10:4242", want: "192.0.2.10"},
		{name: "mapped remote", remoteAddr: "[::ffff:192.0.2.11]:4242", want: "192.0.2.11"},
		{name: "ipv6 remote", remoteAddr: "[2001:db8::1]:80", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/game", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := SourceIP(r); got != tt.want {
				t.Errorf("SourceIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
