package session

// Phase is the state of the session phase machine.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseTutorial Phase = "tutorial"
	PhaseLobby    Phase = "lobby"
	PhaseChain    Phase = "chain"
	PhaseHeist    Phase = "heist"
	PhaseGetaway  Phase = "getaway"
	PhaseComplete Phase = "complete"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseStart, PhaseTutorial, PhaseLobby, PhaseChain, PhaseHeist, PhaseGetaway, PhaseComplete:
		return true
	}
	return false
}

// CanTransitionTo checks whether a transition from p to target is
// allowed. The tutorial is a side branch of start with no game-state
// side effects; reset back to start is a separate operation and is
// allowed from any phase.
func (p Phase) CanTransitionTo(target Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseStart:    {PhaseTutorial, PhaseLobby},
		PhaseTutorial: {PhaseStart},
		PhaseLobby:    {PhaseChain},
		PhaseChain:    {PhaseHeist},
		PhaseHeist:    {PhaseGetaway},
		PhaseGetaway:  {PhaseComplete},
	}

	for _, allowed := range validTransitions[p] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Squad view labels. Leaderboard ranking of unfinished squads uses the
// fixed ordinal mapping below.
const (
	ViewLobby   = "lobby"
	ViewChain   = "chain"
	ViewPuzzle  = "puzzle"
	ViewVault   = "vault"
	ViewKeypad  = "keypad"
	ViewEscaped = "escaped"
)

// viewScores maps a view label to a coarse progress percentage.
var viewScores = map[string]int{
	ViewLobby:   0,
	ViewChain:   10,
	ViewPuzzle:  40,
	ViewVault:   60,
	ViewKeypad:  80,
	ViewEscaped: 100,
}

// ViewScore returns the coarse progress score for a view label.
// Unknown labels score zero.
func ViewScore(view string) int {
	return viewScores[view]
}

// KnownView reports whether view is one of the fixed view labels.
func KnownView(view string) bool {
	_, ok := viewScores[view]
	return ok
}
