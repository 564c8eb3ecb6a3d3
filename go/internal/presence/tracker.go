package presence

import (
	"github.com/mcdev12/globalquiz/go/internal/models"
)

// UnresolvedCountry is the bucket for participants whose country lookup failed or is pending
const UnresolvedCountry = "GLOBAL"

// ParticipantLister is the read side of the identity registry
type ParticipantLister interface {
	Participants() []models.Participant
}

// Tracker derives per-country participant counts from the registry
type Tracker struct {
	participants ParticipantLister
}

func NewTracker(participants ParticipantLister) *Tracker {
	return &Tracker{participants: participants}
}

// CountsByCountry counts participants per country code. An empty room counts everyone.
func (t *Tracker) CountsByCountry(room string) map[string]int {
	counts := make(map[string]int)
	for _, p := range t.participants.Participants() {
		if room != "" && p.Room != room {
			continue
		}
		country := p.Country
		if country == "" {
			country = UnresolvedCountry
		}
		counts[country]++
	}
	return counts
}

// Total returns the number of participants in room, or all participants for an empty room
func (t *Tracker) Total(room string) int {
	total := 0
	for _, n := range t.CountsByCountry(room) {
		total += n
	}
	return total
}
