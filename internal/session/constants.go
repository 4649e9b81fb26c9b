package session

const (
	// DefaultTeamSize is the squad size restored on session reset.
	DefaultTeamSize = 4

	// MinTeamSize and MaxTeamSize bound the configurable squad size.
	MinTeamSize = 2
	MaxTeamSize = 10

	// ProgressPerGuess is the progress increment for a correct puzzle
	// answer.
	ProgressPerGuess = 25

	// ProgressPerHold is the progress increment when the hold-together
	// gate fires.
	ProgressPerHold = 25

	// KeypadAlphabet is the fragment alphabet. Every character must be
	// representable on a simple physical keypad.
	KeypadAlphabet = "0123456789ABCDEF"

	// TumblerAngleMax bounds per-player tumbler target angles, in
	// degrees.
	TumblerAngleMax = 360
)

// DefaultPrompts is the fixed prompt pool for registration drawings.
var DefaultPrompts = []string{
	"draw your getaway vehicle",
	"draw your heist disguise",
	"draw the tool you would crack a safe with",
	"draw your lookout signal",
	"draw the alarm you fear most",
	"draw your share of the loot",
	"draw your escape route",
	"draw the guard dog",
	"draw your crew's secret handshake",
	"draw the vault door",
}
