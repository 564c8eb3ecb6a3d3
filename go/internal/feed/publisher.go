package feed

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/globalquiz/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

const defaultQueueSize = 256

// Sink delivers an envelope to the external feed
type Sink interface {
	Send(ctx context.Context, env events.Envelope) error
}

// Publisher queues lifecycle events from the game engine and forwards them to
// a Sink on its own goroutine, so a slow broker never stalls the round.
type Publisher struct {
	sink    Sink
	clock   clockwork.Clock
	queue   chan events.Envelope
	timeout time.Duration
}

func NewPublisher(sink Sink, clock clockwork.Clock) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Publisher{
		sink:    sink,
		clock:   clock,
		queue:   make(chan events.Envelope, defaultQueueSize),
		timeout: 5 * time.Second,
	}
}

// Publish enqueues lifecycle events and drops everything else. Never blocks.
func (p *Publisher) Publish(eventType events.Type, payload any) {
	if !eventType.IsLifecycle() {
		return
	}

	env, err := events.NewEnvelope(eventType, payload, p.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build feed envelope")
		return
	}

	select {
	case p.queue <- env:
	default:
		log.Warn().Str("event_type", string(eventType)).Msg("feed queue full, dropping event")
	}
}

// Run forwards queued events until ctx is done
func (p *Publisher) Run(ctx context.Context) {
	log.Info().Msg("starting lifecycle feed publisher")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lifecycle feed publisher stopping")
			return
		case env := <-p.queue:
			sendCtx, cancel := context.WithTimeout(ctx, p.timeout)
			if err := p.sink.Send(sendCtx, env); err != nil {
				log.Error().
					Err(err).
					Str("event_id", env.ID).
					Str("event_type", string(env.Type)).
					Msg("failed to publish lifecycle event")
			}
			cancel()
		}
	}
}
