// Package syncgate implements the "all hold simultaneously" challenge
// gate: a level-triggered predicate requiring every squad member to
// report a qualifying state continuously for a minimum duration.
package syncgate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/heistnight/internal/squad"
	"github.com/rs/zerolog/log"
)

// Report is the outcome of one gate evaluation.
type Report struct {
	// Satisfied is true when every member holds a fresh qualifying state.
	Satisfied bool
	// Held is the elapsed continuous hold. Zero whenever the predicate
	// is broken: no partial credit survives an interruption.
	Held time.Duration
	// Fired is true on the single evaluation at which the required hold
	// duration was reached.
	Fired bool
}

// Gate evaluates the hold predicate for many squads. It owns the
// per-squad hold-start timestamps and the cancellable success timers;
// the member state itself lives on the squad and is passed in on every
// evaluation.
//
// The gate never decides success from a timer alone. A timer firing is
// only a wake-up: its callback must re-evaluate the predicate under the
// session's lock, so a success scheduled against wall-clock time can
// never land after the state has changed underneath it.
type Gate struct {
	clock     clockwork.Clock
	staleness time.Duration
	hold      time.Duration
	wake      func(squadID uuid.UUID)

	mu     sync.Mutex
	holds  map[uuid.UUID]time.Time
	timers map[uuid.UUID]clockwork.Timer
	closed bool
}

// New creates a gate. wake is invoked from a timer goroutine when a
// squad's hold duration may have elapsed; the callback must call
// Evaluate again with current state.
func New(clock clockwork.Clock, staleness, hold time.Duration, wake func(squadID uuid.UUID)) *Gate {
	return &Gate{
		clock:     clock,
		staleness: staleness,
		hold:      hold,
		wake:      wake,
		holds:     make(map[uuid.UUID]time.Time),
		timers:    make(map[uuid.UUID]clockwork.Timer),
	}
}

// Evaluate recomputes the predicate for one squad from scratch. States
// older than the staleness window are treated as absent. The gate is
// satisfied iff the number of fresh states equals size and every fresh
// state is qualifying.
func (g *Gate) Evaluate(squadID uuid.UUID, size int, states map[uuid.UUID]squad.MemberState) Report {
	now := g.clock.Now()

	fresh := 0
	allQualifying := true
	for _, st := range states {
		if now.Sub(st.At) > g.staleness {
			continue
		}
		fresh++
		if !st.Qualifying {
			allQualifying = false
		}
	}
	satisfied := size > 0 && fresh == size && allQualifying

	g.mu.Lock()
	defer g.mu.Unlock()

	if !satisfied {
		// Predicate broke: the hold resets to zero and any scheduled
		// success must be cancelled before it can fire stale.
		if _, holding := g.holds[squadID]; holding {
			delete(g.holds, squadID)
			g.cancelTimerLocked(squadID)
		}
		return Report{}
	}

	start, holding := g.holds[squadID]
	if !holding {
		start = now
		g.holds[squadID] = start
	}

	elapsed := now.Sub(start)
	if elapsed >= g.hold {
		// One-time success: clear the hold start so a second firing
		// needs a fresh qualifying window.
		delete(g.holds, squadID)
		g.cancelTimerLocked(squadID)
		return Report{Satisfied: true, Held: elapsed, Fired: true}
	}

	g.scheduleWakeLocked(squadID, g.hold-elapsed)
	return Report{Satisfied: true, Held: elapsed}
}

// Drop discards a squad's hold state and cancels its timer. Used when a
// squad finishes or is destroyed.
func (g *Gate) Drop(squadID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.holds, squadID)
	g.cancelTimerLocked(squadID)
}

// Reset clears all per-squad state.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range g.timers {
		g.cancelTimerLocked(id)
	}
	g.holds = make(map[uuid.UUID]time.Time)
}

// Close cancels every timer.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for id := range g.timers {
		g.cancelTimerLocked(id)
	}
	g.holds = make(map[uuid.UUID]time.Time)
}

// scheduleWakeLocked arms a one-shot wake for the moment the hold would
// complete, replacing any existing timer for the squad. AfterFunc keeps
// re-arming cheap: a replaced timer is just stopped, with no goroutine
// parked per arm.
func (g *Gate) scheduleWakeLocked(squadID uuid.UUID, in time.Duration) {
	if g.closed || g.wake == nil {
		return
	}
	if existing, ok := g.timers[squadID]; ok {
		existing.Stop()
	}

	var timer clockwork.Timer
	timer = g.clock.AfterFunc(in, func() {
		g.mu.Lock()
		// Only act if this is still the armed timer; a replacement may
		// have been installed, or the gate closed, since arming.
		if g.closed || g.timers[squadID] != timer {
			g.mu.Unlock()
			return
		}
		delete(g.timers, squadID)
		g.mu.Unlock()
		log.Debug().Str("squad_id", squadID.String()).Msg("gate timer fired - waking evaluator")
		g.wake(squadID)
	})
	g.timers[squadID] = timer
}

// cancelTimerLocked stops and removes a squad's armed timer.
func (g *Gate) cancelTimerLocked(squadID uuid.UUID) {
	if timer, ok := g.timers[squadID]; ok {
		timer.Stop()
		delete(g.timers, squadID)
	}
}
