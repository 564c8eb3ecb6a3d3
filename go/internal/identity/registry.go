package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultGracePeriod is how long a disconnected nickname stays reserved
	DefaultGracePeriod = 30 * time.Second

	// DefaultLookupTimeout bounds the country lookup done at registration
	DefaultLookupTimeout = 3 * time.Second
)

// CountryResolver resolves a source address to an ISO country code
type CountryResolver interface {
	ResolveCountry(ctx context.Context, ip string) (string, error)
}

// Config holds registry timing configuration
type Config struct {
	GracePeriod   time.Duration
	LookupTimeout time.Duration
}

// DefaultConfig returns the registry defaults
func DefaultConfig() Config {
	return Config{
		GracePeriod:   DefaultGracePeriod,
		LookupTimeout: DefaultLookupTimeout,
	}
}

type entry struct {
	models.Participant

	// lookupStarted is set once a country lookup has been issued for this identity
	lookupStarted bool
}

type pendingRemoval struct {
	timer    clockwork.Timer
	deadline time.Time
}

// Registry owns every Participant record. All methods are safe for concurrent use.
type Registry struct {
	mu           sync.Mutex
	participants map[string]*entry         // nickname -> participant
	connections  map[string]string         // connection ID -> nickname
	pending      map[string]*pendingRemoval // nickname -> scheduled removal
	nextSeq      uint64

	resolver CountryResolver
	clock    clockwork.Clock
	config   Config
}

// NewRegistry creates an empty registry. resolver may be nil, in which case
// countries stay unresolved.
func NewRegistry(config Config, resolver CountryResolver, clock clockwork.Clock) *Registry {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Registry{
		participants: make(map[string]*entry),
		connections:  make(map[string]string),
		pending:      make(map[string]*pendingRemoval),
		resolver:     resolver,
		clock:        clock,
		config:       config,
	}
}

// Register binds nickname to connectionID. A nickname with a pending removal is
// treated as a reconnect and keeps its score and country.
func (r *Registry) Register(ctx context.Context, nickname, connectionID, sourceAddress string) (models.Participant, error) {
	if strings.TrimSpace(nickname) == "" {
		return models.Participant{}, ErrInvalidName
	}

	r.mu.Lock()
	e, exists := r.participants[nickname]
	if exists && e.ConnectionID != connectionID {
		p, isPending := r.pending[nickname]
		if !isPending {
			r.mu.Unlock()
			return models.Participant{}, fmt.Errorf("%w: %s", ErrNameTaken, nickname)
		}

		p.timer.Stop()
		delete(r.pending, nickname)

		log.Info().
			Str("nickname", nickname).
			Str("country", e.Country).
			Msg("participant reconnected before timeout")
	}

	// A connection holds a single nickname; switching names releases the old one
	if previous, ok := r.connections[connectionID]; ok && previous != nickname {
		r.removeLocked(previous)
		log.Info().
			Str("connection_id", connectionID).
			Str("previous", previous).
			Str("nickname", nickname).
			Msg("connection switched nickname")
	}

	if !exists {
		r.nextSeq++
		e = &entry{Participant: models.Participant{
			Nickname:     nickname,
			Seq:          r.nextSeq,
			RegisteredAt: r.clock.Now(),
		}}
		r.participants[nickname] = e
	}

	e.ConnectionID = connectionID
	e.Connected = true
	r.connections[connectionID] = nickname

	needsLookup := !e.lookupStarted && r.resolver != nil
	e.lookupStarted = true
	snapshot := e.Participant
	r.mu.Unlock()

	if needsLookup {
		snapshot = r.resolveCountry(ctx, e, sourceAddress)
	}

	log.Info().
		Str("nickname", nickname).
		Str("connection_id", connectionID).
		Str("country", snapshot.Country).
		Str("ip", sourceAddress).
		Msg("participant registered")

	return snapshot, nil
}

// resolveCountry performs the lookup outside the registry lock and stores the
// result if the identity still exists.
func (r *Registry) resolveCountry(ctx context.Context, e *entry, sourceAddress string) models.Participant {
	lookupCtx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	country, err := r.resolver.ResolveCountry(lookupCtx, sourceAddress)
	if err != nil {
		log.Warn().
			Err(err).
			Str("nickname", e.Nickname).
			Str("ip", sourceAddress).
			Msg("country lookup failed, leaving unresolved")
		country = ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.participants[e.Nickname]; ok && current == e {
		e.Country = country
	}
	return e.Participant
}

// Disconnect schedules removal of the nickname owned by connectionID after the grace period
func (r *Registry) Disconnect(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nickname, ok := r.connections[connectionID]
	if !ok {
		return
	}
	delete(r.connections, connectionID)

	e, ok := r.participants[nickname]
	if !ok || e.ConnectionID != connectionID {
		return
	}
	e.Connected = false

	if existing, ok := r.pending[nickname]; ok {
		existing.timer.Stop()
	}

	p := &pendingRemoval{deadline: r.clock.Now().Add(r.config.GracePeriod)}
	p.timer = r.clock.AfterFunc(r.config.GracePeriod, func() {
		r.expire(nickname, p)
	})
	r.pending[nickname] = p

	log.Debug().
		Str("nickname", nickname).
		Str("connection_id", connectionID).
		Time("deadline", p.deadline).
		Msg("scheduled participant removal")
}

// expire removes nickname unless its pending removal was cancelled or replaced
func (r *Registry) expire(nickname string, p *pendingRemoval) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[nickname] != p {
		return
	}

	country := ""
	if e, ok := r.participants[nickname]; ok {
		country = e.Country
	}
	r.removeLocked(nickname)

	log.Info().
		Str("nickname", nickname).
		Str("country", country).
		Msg("participant removed after timeout")
}

func (r *Registry) removeLocked(nickname string) {
	if p, ok := r.pending[nickname]; ok {
		p.timer.Stop()
		delete(r.pending, nickname)
	}
	if e, ok := r.participants[nickname]; ok {
		if r.connections[e.ConnectionID] == nickname {
			delete(r.connections, e.ConnectionID)
		}
		delete(r.participants, nickname)
	}
}

// JoinRoom places the participant in room. Unknown names are logged and ignored.
func (r *Registry) JoinRoom(nickname, room string) (models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.participants[nickname]
	if !ok {
		log.Warn().Str("nickname", nickname).Str("room", room).Msg("join room: participant not found")
		return models.Participant{}, false
	}
	e.Room = room
	return e.Participant, true
}

// LeaveRoom clears the participant's room and any unscored answer
func (r *Registry) LeaveRoom(nickname string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.participants[nickname]
	if !ok {
		log.Warn().Str("nickname", nickname).Msg("leave room: participant not found")
		return false
	}
	e.Room = ""
	e.PendingCorrect = false
	return true
}

// ResetScores zeroes score and pending answer of every participant in room
func (r *Registry) ResetScores(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.participants {
		if e.InRoom(room) {
			e.Score = 0
			e.PendingCorrect = false
		}
	}
}

// RecordAnswer overwrites the participant's pending correctness flag
func (r *Registry) RecordAnswer(nickname, room string, correct bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.participants[nickname]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, nickname)
	}
	if !e.InRoom(room) {
		return fmt.Errorf("%w: %s", ErrNotInRoom, nickname)
	}
	e.PendingCorrect = correct
	return nil
}

// AwardPending adds points to every room participant whose pending answer is
// correct, clears the flags, and returns the new scores of those who scored.
func (r *Registry) AwardPending(room string, points int) []models.ScoreChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []models.ScoreChange
	for _, e := range r.sortedLocked() {
		if !e.InRoom(room) {
			continue
		}
		if e.PendingCorrect {
			e.Score += points
			changes = append(changes, models.ScoreChange{Nickname: e.Nickname, Score: e.Score})
		}
		e.PendingCorrect = false
	}
	return changes
}

// Standings ranks room participants by score, ties in registration order
func (r *Registry) Standings(room string) []models.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var members []*entry
	for _, e := range r.sortedLocked() {
		if e.InRoom(room) {
			members = append(members, e)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Score > members[j].Score
	})

	leaderboard := make([]models.LeaderboardEntry, 0, len(members))
	for _, e := range members {
		leaderboard = append(leaderboard, models.LeaderboardEntry{
			Nickname: e.Nickname,
			Country:  e.Country,
			Score:    e.Score,
		})
	}
	return leaderboard
}

// ConnectionsInRoom returns the live connection IDs of room members, skipping exclude
func (r *Registry) ConnectionsInRoom(room, exclude string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, e := range r.sortedLocked() {
		if e.InRoom(room) && e.Connected && e.Nickname != exclude {
			ids = append(ids, e.ConnectionID)
		}
	}
	return ids
}

// ConnectionOf returns the live connection currently bound to nickname
func (r *Registry) ConnectionOf(nickname string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.participants[nickname]
	if !ok || !e.Connected {
		return "", false
	}
	return e.ConnectionID, true
}

// NameForConnection returns the nickname registered by connectionID
func (r *Registry) NameForConnection(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nickname, ok := r.connections[connectionID]
	return nickname, ok
}

// Participant returns a copy of the named participant
func (r *Registry) Participant(nickname string) (models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.participants[nickname]
	if !ok {
		return models.Participant{}, false
	}
	return e.Participant, true
}

// Participants returns copies of all participants in registration order
func (r *Registry) Participants() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	out := make([]models.Participant, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, e.Participant)
	}
	return out
}

// PendingRemovals returns the nicknames currently waiting out their grace period
func (r *Registry) PendingRemovals() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]time.Time, len(r.pending))
	for nickname, p := range r.pending {
		out[nickname] = p.deadline
	}
	return out
}

func (r *Registry) sortedLocked() []*entry {
	sorted := make([]*entry, 0, len(r.participants))
	for _, e := range r.participants {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Seq < sorted[j].Seq
	})
	return sorted
}
