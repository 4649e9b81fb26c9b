// Package squad holds the per-team trust-chain state: the circular
// target relationship fixed at formation, scan confirmations, heist
// progress, secret fragments, and the ephemeral minigame state consumed
// by the synchronization gate.
package squad

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/heistnight/internal/catalog"
)

// MemberState is the last-reported minigame state for one member.
type MemberState struct {
	Qualifying bool
	At         time.Time
}

// Chain is one squad. Member order is fixed at formation time; the
// member at position i must locate and confirm the member at position
// (i+1) mod N.
type Chain struct {
	ID uuid.UUID

	members   []uuid.UUID
	positions map[uuid.UUID]int
	confirmed map[uuid.UUID]uuid.UUID
	loopDone  bool

	progress  int
	view      string
	finishPos int

	puzzle *catalog.Assignment
	code   string

	minigame  map[uuid.UUID]MemberState
	tumblers  map[uuid.UUID]int
	downSince map[uuid.UUID]time.Time
}

// New creates a squad with the given fixed member order.
func New(id uuid.UUID, members []uuid.UUID, view string) *Chain {
	c := &Chain{
		ID:        id,
		members:   append([]uuid.UUID(nil), members...),
		positions: make(map[uuid.UUID]int, len(members)),
		confirmed: make(map[uuid.UUID]uuid.UUID, len(members)),
		view:      view,
		minigame:  make(map[uuid.UUID]MemberState),
		tumblers:  make(map[uuid.UUID]int),
		downSince: make(map[uuid.UUID]time.Time),
	}
	for i, m := range c.members {
		c.positions[m] = i
	}
	return c
}

// Members returns the fixed member order.
func (c *Chain) Members() []uuid.UUID {
	return append([]uuid.UUID(nil), c.members...)
}

// Size returns the fixed member count.
func (c *Chain) Size() int {
	return len(c.members)
}

// Has reports whether id is a member of this squad.
func (c *Chain) Has(id uuid.UUID) bool {
	_, ok := c.positions[id]
	return ok
}

// Target returns the member that id must confirm: the one at position
// (position(id)+1) mod N. The second return is false for non-members.
func (c *Chain) Target(id uuid.UUID) (uuid.UUID, bool) {
	pos, ok := c.positions[id]
	if !ok {
		return uuid.Nil, false
	}
	return c.members[(pos+1)%len(c.members)], true
}

// Confirm records scanner's claim of having located target. The claim
// is accepted only when target is exactly scanner's required target;
// a wrong target is a normal failure outcome and leaves state
// unchanged. On acceptance, loop completion is recomputed from scratch.
// Returns (accepted, loop just completed).
func (c *Chain) Confirm(scanner, target uuid.UUID) (bool, bool) {
	want, ok := c.Target(scanner)
	if !ok || want != target {
		return false, false
	}
	wasDone := c.loopDone
	c.confirmed[scanner] = target
	c.recomputeLoop()
	return true, c.loopDone && !wasDone
}

// recomputeLoop rechecks every member's recorded confirmation against
// the circular assignment. Never trusted incrementally.
func (c *Chain) recomputeLoop() {
	for i, m := range c.members {
		want := c.members[(i+1)%len(c.members)]
		if got, ok := c.confirmed[m]; !ok || got != want {
			c.loopDone = false
			return
		}
	}
	c.loopDone = true
}

// LoopComplete reports whether every member has confirmed their
// required target.
func (c *Chain) LoopComplete() bool {
	return c.loopDone
}

// ConfirmedCount returns the number of recorded confirmations. It is
// monotonically non-decreasing within a round.
func (c *Chain) ConfirmedCount() int {
	return len(c.confirmed)
}

// HasConfirmed reports whether member has a recorded confirmation.
func (c *Chain) HasConfirmed(member uuid.UUID) bool {
	_, ok := c.confirmed[member]
	return ok
}

// AssignPuzzle sets the squad's deduction puzzle for the round.
func (c *Chain) AssignPuzzle(a catalog.Assignment) {
	c.puzzle = &a
}

// Puzzle returns the assigned puzzle, if any.
func (c *Chain) Puzzle() (catalog.Assignment, bool) {
	if c.puzzle == nil {
		return catalog.Assignment{}, false
	}
	return *c.puzzle, true
}

// Clue returns the clue assigned to a member's position.
func (c *Chain) Clue(member uuid.UUID) (string, bool) {
	pos, ok := c.positions[member]
	if !ok || c.puzzle == nil || pos >= len(c.puzzle.Clues) {
		return "", false
	}
	return c.puzzle.Clues[pos], true
}

// AssignCode sets the squad's secret code. Its length must equal the
// member count: one single-character fragment per member position.
func (c *Chain) AssignCode(code string) {
	c.code = code
}

// Code returns the assigned secret code.
func (c *Chain) Code() string {
	return c.code
}

// Fragment returns a member's single secret character, its 1-based
// position, and the code length.
func (c *Chain) Fragment(member uuid.UUID) (frag string, position, total int, ok bool) {
	pos, isMember := c.positions[member]
	if !isMember || pos >= len(c.code) {
		return "", 0, 0, false
	}
	return string(c.code[pos]), pos + 1, len(c.code), true
}

// SetTumbler records a member's tumbler target angle. Assigned once;
// stable thereafter.
func (c *Chain) SetTumbler(member uuid.UUID, angle int) {
	if _, exists := c.tumblers[member]; exists {
		return
	}
	c.tumblers[member] = angle
}

// Tumbler returns a member's tumbler angle, if one has been assigned.
func (c *Chain) Tumbler(member uuid.UUID) (int, bool) {
	angle, ok := c.tumblers[member]
	return angle, ok
}

// UpdateMinigameState merges a member's reported state with a fresh
// timestamp. Non-members are ignored.
func (c *Chain) UpdateMinigameState(member uuid.UUID, qualifying bool, now time.Time) {
	if !c.Has(member) {
		return
	}
	c.minigame[member] = MemberState{Qualifying: qualifying, At: now}
}

// MinigameStates returns the last-known state per member.
func (c *Chain) MinigameStates() map[uuid.UUID]MemberState {
	out := make(map[uuid.UUID]MemberState, len(c.minigame))
	for k, v := range c.minigame {
		out[k] = v
	}
	return out
}

// ResetMinigame clears the ephemeral minigame state.
func (c *Chain) ResetMinigame() {
	c.minigame = make(map[uuid.UUID]MemberState)
}

// AdvanceProgress adds delta to the progress counter, clamped to
// [0,100], and returns the new value.
func (c *Chain) AdvanceProgress(delta int) int {
	c.progress += delta
	if c.progress > 100 {
		c.progress = 100
	}
	if c.progress < 0 {
		c.progress = 0
	}
	return c.progress
}

// Progress returns the current progress counter.
func (c *Chain) Progress() int {
	return c.progress
}

// SetView updates the squad's current view label.
func (c *Chain) SetView(view string) {
	c.view = view
}

// View returns the squad's current view label.
func (c *Chain) View() string {
	return c.view
}

// MarkFinished records the squad's finish position, forces progress to
// 100 and moves the view to the terminal label. No-op when already
// finished.
func (c *Chain) MarkFinished(position int, terminalView string) {
	if c.finishPos != 0 {
		return
	}
	c.finishPos = position
	c.progress = 100
	c.view = terminalView
}

// FinishPos returns the finish position, or 0 when unfinished.
func (c *Chain) FinishPos() int {
	return c.finishPos
}

// Finished reports whether the squad has a finish position.
func (c *Chain) Finished() bool {
	return c.finishPos != 0
}

// MarkDisconnected records when a member dropped. Confirmation history
// is untouched.
func (c *Chain) MarkDisconnected(member uuid.UUID, now time.Time) {
	if !c.Has(member) {
		return
	}
	if _, already := c.downSince[member]; already {
		return
	}
	c.downSince[member] = now
}

// MarkReconnected clears a member's disconnect record.
func (c *Chain) MarkReconnected(member uuid.UUID) {
	delete(c.downSince, member)
}

// StaleDisconnected returns members disconnected for longer than grace,
// for liveness reconciliation.
func (c *Chain) StaleDisconnected(grace time.Duration, now time.Time) []uuid.UUID {
	var stale []uuid.UUID
	for _, m := range c.members {
		since, down := c.downSince[m]
		if down && now.Sub(since) > grace {
			stale = append(stale, m)
		}
	}
	return stale
}
