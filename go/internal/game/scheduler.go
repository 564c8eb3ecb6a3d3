package game

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// scheduledTask is the single pending timed action of the engine. It wraps
// either a one-shot timer or a repeating ticker.
type scheduledTask struct {
	name   string
	timer  clockwork.Timer
	ticker clockwork.Ticker
	fire   func()
}

func (s *scheduledTask) channel() <-chan time.Time {
	if s.ticker != nil {
		return s.ticker.Chan()
	}
	return s.timer.Chan()
}

func (s *scheduledTask) oneShot() bool {
	return s.timer != nil
}

func (s *scheduledTask) stop() {
	if s.ticker != nil {
		s.ticker.Stop()
		return
	}
	stopAndDrainTimer(s.timer)
}

// after schedules fire once after d
func (e *Engine) after(name string, d time.Duration, fire func()) {
	e.replaceScheduled(&scheduledTask{
		name:  name,
		timer: e.clock.NewTimer(d),
		fire:  fire,
	})
}

// every schedules fire on each tick interval until replaced
func (e *Engine) every(name string, fire func()) {
	e.replaceScheduled(&scheduledTask{
		name:   name,
		ticker: e.clock.NewTicker(e.config.TickInterval),
		fire:   fire,
	})
}

// replaceScheduled cancels the current task before installing next. The loop
// only selects on the installed task, so a replaced task can never fire.
func (e *Engine) replaceScheduled(next *scheduledTask) {
	e.cancelScheduled()
	e.scheduled = next
}

func (e *Engine) cancelScheduled() {
	if e.scheduled != nil {
		e.scheduled.stop()
		e.scheduled = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
