package session

import "github.com/google/uuid"

// Every externally callable operation returns a result value rather
// than raising. Validation failures carry a human-readable reason;
// lookup failures degrade to zero-value results; wrong targets, wrong
// answers and wrong codes are plain failed results, the normal
// "try again" path of the game.

// RegisterRequest carries a registration.
type RegisterRequest struct {
	Name    string
	Drawing string
	Blurb   string
	Prompt  string
}

// RegisterResult is the created player record.
type RegisterResult struct {
	PlayerID uuid.UUID
	Name     string
	Prompt   string
	ScanCode string
}

// ValidationResult reports a precondition check. State is unchanged
// when OK is false.
type ValidationResult struct {
	OK     bool
	Reason string
}

// TargetInfo is the public profile of a player's required target.
type TargetInfo struct {
	TargetID uuid.UUID
	Name     string
	Drawing  string
	Blurb    string
	Prompt   string
	ScanCode string
}

// ConfirmResult reports a scan confirmation attempt.
type ConfirmResult struct {
	OK           bool
	LoopComplete bool // true when this confirmation just closed the loop
}

// TeamStatus summarizes a squad's chain progress.
type TeamStatus struct {
	Confirmed    int
	Total        int
	AllConfirmed bool
}

// GuessResult reports a puzzle answer attempt.
type GuessResult struct {
	OK       bool
	Progress int
}

// PuzzleInfo is a member's view of the squad puzzle: the shared grid
// plus the clue assigned to their position.
type PuzzleInfo struct {
	PuzzleID string
	Grid     []string
	Clue     string
	Progress int
}

// FragmentInfo is a member's slice of the squad secret.
type FragmentInfo struct {
	Fragment string
	Position int // 1-based
	Total    int
}

// VerifyResult reports a secret code submission.
type VerifyResult struct {
	OK       bool
	Position int
	Winner   bool
}

// AdvanceResult reports a squad view-advance request.
type AdvanceResult struct {
	OK     bool
	Reason string
}

// HoldReport mirrors the synchronization gate outcome for the caller.
type HoldReport struct {
	Satisfied bool
	HeldMS    int64
	Fired     bool
}
