// Package session implements the phase state machine that runs a heist
// party session: squad formation, chain verification, challenge
// issuance, finish ranking and liveness reconciliation.
package session

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/heistnight/internal/catalog"
	"github.com/mcdev12/heistnight/internal/events"
	"github.com/mcdev12/heistnight/internal/registry"
	"github.com/mcdev12/heistnight/internal/squad"
	"github.com/mcdev12/heistnight/internal/syncgate"
	"github.com/rs/zerolog/log"
)

// Config holds the tunable parameters of one session.
type Config struct {
	TeamSize  int
	Grace     time.Duration // disconnect grace before auto-resolution
	Staleness time.Duration // minigame state older than this is absent
	Hold      time.Duration // required continuous hold for the gate
	Prompts   []string
	Seed      int64 // 0 seeds from the clock
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		TeamSize:  DefaultTeamSize,
		Grace:     30 * time.Second,
		Staleness: 2 * time.Second,
		Hold:      3 * time.Second,
		Prompts:   DefaultPrompts,
	}
}

// Orchestrator owns all mutable session state. Every inbound action is
// handled to completion under one mutex; timer callbacks re-acquire the
// mutex and re-validate preconditions before mutating. All maps are
// owned by the instance so that Reset clears everything and two
// sessions can never observe each other's state.
type Orchestrator struct {
	mu    sync.Mutex
	clock clockwork.Clock
	rng   *rand.Rand
	cfg   Config

	phase    Phase
	teamSize int

	players    *registry.Registry
	squads     map[uuid.UUID]*squad.Chain
	squadOrder []uuid.UUID // formation order, used for tie-breaks

	catalog *catalog.Catalog
	gate    *syncgate.Gate
	bus     events.Publisher

	finishCounter int
}

// New creates an orchestrator in the start phase.
func New(cfg Config, cat *catalog.Catalog, bus events.Publisher, clock clockwork.Clock) *Orchestrator {
	if cfg.TeamSize < MinTeamSize || cfg.TeamSize > MaxTeamSize {
		cfg.TeamSize = DefaultTeamSize
	}
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = DefaultPrompts
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	o := &Orchestrator{
		clock:    clock,
		rng:      rand.New(rand.NewSource(seed)),
		cfg:      cfg,
		phase:    PhaseStart,
		teamSize: cfg.TeamSize,
		players:  registry.New(),
		squads:   make(map[uuid.UUID]*squad.Chain),
		catalog:  cat,
		bus:      bus,
	}
	o.gate = syncgate.New(clock, cfg.Staleness, cfg.Hold, o.onGateWake)
	return o
}

// Close stops the gate's timers.
func (o *Orchestrator) Close() {
	o.gate.Close()
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// TeamSize returns the configured squad size.
func (o *Orchestrator) TeamSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.teamSize
}

// Register creates a player record. Display names need not be unique.
// When the caller supplies no prompt, one is chosen uniformly from the
// prompt pool.
func (o *Orchestrator) Register(req RegisterRequest) RegisterResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	prompt := req.Prompt
	if prompt == "" {
		prompt = o.cfg.Prompts[o.rng.Intn(len(o.cfg.Prompts))]
	}
	p := o.players.Add(req.Name, req.Drawing, req.Blurb, prompt, o.clock.Now())

	log.Info().
		Str("player_id", p.ID.String()).
		Str("name", p.Name).
		Int("player_count", o.players.Count()).
		Msg("player registered")

	o.bus.Publish(events.New(events.TypePlayerJoined, events.ToObservers(), events.PlayerJoinedPayload{
		PlayerID:    p.ID.String(),
		Name:        p.Name,
		Prompt:      p.Prompt,
		PlayerCount: o.players.Count(),
	}))

	return RegisterResult{PlayerID: p.ID, Name: p.Name, Prompt: p.Prompt, ScanCode: p.ScanCode}
}

// RandomPrompt returns a prompt chosen uniformly from the prompt pool.
func (o *Orchestrator) RandomPrompt() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.Prompts[o.rng.Intn(len(o.cfg.Prompts))]
}

// SetTeamSize updates the squad size used at the next formation. It has
// no effect on already-formed squads.
func (o *Orchestrator) SetTeamSize(n int) ValidationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n < MinTeamSize || n > MaxTeamSize {
		return ValidationResult{Reason: fmt.Sprintf("team size must be between %d and %d", MinTeamSize, MaxTeamSize)}
	}
	o.teamSize = n
	log.Info().Int("team_size", n).Msg("team size updated")
	return ValidationResult{OK: true}
}

// SetPhase validates the target phase's preconditions and commits the
// transition, running its side effects first. On failure the phase does
// not change.
func (o *Orchestrator) SetPhase(target Phase) ValidationResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !target.Valid() {
		return ValidationResult{Reason: fmt.Sprintf("unknown phase %q", target)}
	}
	if !o.phase.CanTransitionTo(target) {
		return ValidationResult{Reason: fmt.Sprintf("cannot enter %s from %s", target, o.phase)}
	}

	switch target {
	case PhaseChain:
		count := o.players.Count()
		if need := playersNeeded(count, o.teamSize); need > 0 {
			return ValidationResult{Reason: fmt.Sprintf("need %d more players to fill squads of %d", need, o.teamSize)}
		}
		o.formSquadsLocked()
	case PhaseHeist:
		o.issueHeistLocked()
	}

	o.phase = target
	log.Info().Str("phase", target.String()).Msg("phase changed")
	o.bus.Publish(events.New(events.TypePhaseChanged, events.ToAll(), events.PhaseChangedPayload{
		Phase:     target.String(),
		ChangedAt: o.clock.Now(),
	}))
	return ValidationResult{OK: true}
}

// playersNeeded returns how many more players are required before the
// pool divides into full squads of size. Zero means the chain phase may
// begin.
func playersNeeded(count, size int) int {
	if count < size {
		return size - count
	}
	if rem := count % size; rem != 0 {
		return size - rem
	}
	return 0
}

// FormSquads shuffles all registered players and partitions them into
// contiguous groups of exactly the configured team size. A remainder is
// left unassigned; that path is only reachable when the chain-phase
// precondition was bypassed.
func (o *Orchestrator) FormSquads() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.formSquadsLocked()
}

func (o *Orchestrator) formSquadsLocked() {
	o.squads = make(map[uuid.UUID]*squad.Chain)
	o.squadOrder = nil
	o.gate.Reset()
	o.players.ClearSquads()

	players := o.players.All()
	o.rng.Shuffle(len(players), func(i, j int) {
		players[i], players[j] = players[j], players[i]
	})

	for i := 0; i+o.teamSize <= len(players); i += o.teamSize {
		group := players[i : i+o.teamSize]
		ids := make([]uuid.UUID, len(group))
		for j, p := range group {
			ids[j] = p.ID
		}
		ch := squad.New(uuid.New(), ids, ViewChain)
		o.squads[ch.ID] = ch
		o.squadOrder = append(o.squadOrder, ch.ID)
		for _, p := range group {
			o.players.AssignSquad(p.ID, ch.ID)
		}
	}

	log.Info().
		Int("squads", len(o.squadOrder)).
		Int("team_size", o.teamSize).
		Int("players", len(players)).
		Msg("squads formed")
}

// issueHeistLocked assigns every squad a puzzle, a fragment code and a
// fresh minigame context.
func (o *Orchestrator) issueHeistLocked() {
	o.gate.Reset()
	for _, id := range o.squadOrder {
		ch := o.squads[id]
		ch.AssignPuzzle(o.catalog.Assign(o.rng, ch.Size()))
		ch.AssignCode(o.generateCode(ch.Size()))
		ch.ResetMinigame()
		ch.SetView(ViewPuzzle)
	}
	log.Info().Int("squads", len(o.squadOrder)).Msg("heist challenges issued")
}

// generateCode draws n fragments from the keypad alphabet.
func (o *Orchestrator) generateCode(n int) string {
	code := make([]byte, n)
	for i := range code {
		code[i] = KeypadAlphabet[o.rng.Intn(len(KeypadAlphabet))]
	}
	return string(code)
}

// squadOfLocked resolves a player to their squad. Either may be gone
// due to a disconnect race; callers degrade to a safe default.
func (o *Orchestrator) squadOfLocked(playerID uuid.UUID) *squad.Chain {
	p, ok := o.players.Get(playerID)
	if !ok || p.SquadID == nil {
		return nil
	}
	return o.squads[*p.SquadID]
}

// TargetInfo returns the public profile of a player's required target.
func (o *Orchestrator) TargetInfo(playerID uuid.UUID) (TargetInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return TargetInfo{}, false
	}
	targetID, ok := ch.Target(playerID)
	if !ok {
		return TargetInfo{}, false
	}
	tp, ok := o.players.Get(targetID)
	if !ok {
		return TargetInfo{}, false
	}
	return TargetInfo{
		TargetID: tp.ID,
		Name:     tp.Name,
		Drawing:  tp.Drawing,
		Blurb:    tp.Blurb,
		Prompt:   tp.Prompt,
		ScanCode: tp.ScanCode,
	}, true
}

// ResolveConfirmation delegates a scan claim to the confirmer's squad.
func (o *Orchestrator) ResolveConfirmation(confirmerID, targetID uuid.UUID) ConfirmResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(confirmerID)
	if ch == nil {
		return ConfirmResult{}
	}
	accepted, just := ch.Confirm(confirmerID, targetID)
	if !accepted {
		// Wrong target: the normal try-again path, not a system error.
		return ConfirmResult{}
	}

	payload := events.ScanConfirmedPayload{
		SquadID:        ch.ID.String(),
		ScannerID:      confirmerID.String(),
		ConfirmedCount: ch.ConfirmedCount(),
		TotalCount:     ch.Size(),
	}
	o.bus.Publish(events.New(events.TypeScanConfirmed, events.ToSquad(ch.ID, ch.Members()), payload))
	o.bus.Publish(events.New(events.TypeScanConfirmed, events.ToObservers(), payload))
	if just {
		log.Info().Str("squad_id", ch.ID.String()).Msg("squad chain loop completed")
		o.bus.Publish(events.New(events.TypeSquadActivated, events.ToSquad(ch.ID, ch.Members()), events.SquadActivatedPayload{
			SquadID: ch.ID.String(),
		}))
	}
	return ConfirmResult{OK: true, LoopComplete: just}
}

// TeamStatus summarizes chain progress for a player's squad.
func (o *Orchestrator) TeamStatus(playerID uuid.UUID) (TeamStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return TeamStatus{}, false
	}
	return TeamStatus{
		Confirmed:    ch.ConfirmedCount(),
		Total:        ch.Size(),
		AllConfirmed: ch.LoopComplete(),
	}, true
}

// ReportMinigameState records a member's qualifying state and
// re-evaluates the hold gate for their squad.
func (o *Orchestrator) ReportMinigameState(playerID uuid.UUID, qualifying bool) HoldReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != PhaseHeist && o.phase != PhaseGetaway {
		return HoldReport{}
	}
	ch := o.squadOfLocked(playerID)
	if ch == nil || ch.Finished() {
		return HoldReport{}
	}
	ch.UpdateMinigameState(playerID, qualifying, o.clock.Now())
	rep := o.evaluateGateLocked(ch)
	return HoldReport{Satisfied: rep.Satisfied, HeldMS: rep.Held.Milliseconds(), Fired: rep.Fired}
}

// onGateWake is reached from a gate timer goroutine. State is
// re-validated under the lock before any mutation: the squad may have
// finished or been destroyed since the timer was armed.
func (o *Orchestrator) onGateWake(squadID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch, ok := o.squads[squadID]
	if !ok || ch.Finished() {
		o.gate.Drop(squadID)
		return
	}
	o.evaluateGateLocked(ch)
}

func (o *Orchestrator) evaluateGateLocked(ch *squad.Chain) syncgate.Report {
	rep := o.gate.Evaluate(ch.ID, ch.Size(), ch.MinigameStates())
	if !rep.Fired {
		return rep
	}

	progress := ch.AdvanceProgress(ProgressPerHold)
	ch.SetView(ViewKeypad)
	log.Info().
		Str("squad_id", ch.ID.String()).
		Dur("held", rep.Held).
		Int("progress", progress).
		Msg("hold gate fired")

	o.bus.Publish(events.New(events.TypeHoldSuccess, events.ToSquad(ch.ID, ch.Members()), events.HoldSuccessPayload{
		SquadID: ch.ID.String(),
		HeldMS:  rep.Held.Milliseconds(),
	}))
	o.bus.Publish(events.New(events.TypeSquadProgress, events.ToObservers(), events.SquadProgressPayload{
		SquadID:  ch.ID.String(),
		Progress: progress,
	}))
	return rep
}

// PuzzleInfo returns a member's view of their squad puzzle.
func (o *Orchestrator) PuzzleInfo(playerID uuid.UUID) (PuzzleInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return PuzzleInfo{}, false
	}
	p, ok := ch.Puzzle()
	if !ok {
		return PuzzleInfo{}, false
	}
	clue, _ := ch.Clue(playerID)
	return PuzzleInfo{
		PuzzleID: p.PuzzleID,
		Grid:     p.Grid,
		Clue:     clue,
		Progress: ch.Progress(),
	}, true
}

// ResolvePuzzleGuess checks a member's answer against their squad's
// puzzle. A match advances progress by a fixed increment; a mismatch is
// a failed result without penalty.
func (o *Orchestrator) ResolvePuzzleGuess(playerID uuid.UUID, answer int) GuessResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return GuessResult{}
	}
	p, ok := ch.Puzzle()
	if !ok {
		return GuessResult{}
	}
	if answer != p.Answer {
		o.bus.Publish(events.New(events.TypeSquadError, events.ToObservers(), events.SquadErrorPayload{
			SquadID: ch.ID.String(),
		}))
		return GuessResult{Progress: ch.Progress()}
	}

	progress := ch.AdvanceProgress(ProgressPerGuess)
	o.bus.Publish(events.New(events.TypeSquadProgress, events.ToSquad(ch.ID, ch.Members()), events.SquadProgressPayload{
		SquadID:  ch.ID.String(),
		Progress: progress,
	}))
	return GuessResult{OK: true, Progress: progress}
}

// Fragment returns a member's single character of the squad secret.
func (o *Orchestrator) Fragment(playerID uuid.UUID) (FragmentInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return FragmentInfo{}, false
	}
	frag, pos, total, ok := ch.Fragment(playerID)
	if !ok {
		return FragmentInfo{}, false
	}
	return FragmentInfo{Fragment: frag, Position: pos, Total: total}, true
}

// TumblerAngle returns a player's tumbler target angle, assigning one
// on first request. Stable thereafter.
func (o *Orchestrator) TumblerAngle(playerID uuid.UUID) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return 0, false
	}
	if angle, ok := ch.Tumbler(playerID); ok {
		return angle, true
	}
	ch.SetTumbler(playerID, o.rng.Intn(TumblerAngleMax))
	angle, _ := ch.Tumbler(playerID)
	return angle, true
}

// VerifySecret compares a submitted code against the caller's squad
// secret, case-insensitively. The first success for a squad takes the
// next finish position; resubmission returns the stored position
// without advancing the counter.
func (o *Orchestrator) VerifySecret(playerID uuid.UUID, code string) VerifyResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil || ch.Code() == "" {
		return VerifyResult{}
	}
	if !strings.EqualFold(code, ch.Code()) {
		return VerifyResult{}
	}
	// Re-check right before assigning: another member's submission may
	// have finished the squad already.
	if ch.Finished() {
		pos := ch.FinishPos()
		return VerifyResult{OK: true, Position: pos, Winner: pos == 1}
	}

	o.finishCounter++
	pos := o.finishCounter
	ch.MarkFinished(pos, ViewEscaped)
	o.gate.Drop(ch.ID)

	log.Info().
		Str("squad_id", ch.ID.String()).
		Int("position", pos).
		Msg("squad finished")

	payload := events.SecretVerifiedPayload{
		SquadID:  ch.ID.String(),
		Position: pos,
		Winner:   pos == 1,
	}
	o.bus.Publish(events.New(events.TypeSecretVerified, events.ToSquad(ch.ID, ch.Members()), payload))
	o.bus.Publish(events.New(events.TypeSecretVerified, events.ToObservers(), payload))
	o.bus.Publish(events.New(events.TypeLeaderboardUpdated, events.ToAll(), o.leaderboardLocked()))

	return VerifyResult{OK: true, Position: pos, Winner: pos == 1}
}

// RequestSquadAdvance moves a squad to a view. Denied unless the
// squad's loop is complete; the denial goes only to the requester.
func (o *Orchestrator) RequestSquadAdvance(playerID uuid.UUID, view string) AdvanceResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := o.squadOfLocked(playerID)
	if ch == nil {
		return AdvanceResult{Reason: "no squad"}
	}
	if !KnownView(view) {
		return AdvanceResult{Reason: fmt.Sprintf("unknown view %q", view)}
	}
	if !ch.LoopComplete() {
		o.bus.Publish(events.New(events.TypeViewChanged, events.ToPlayer(playerID), events.ViewChangedPayload{
			View:   view,
			Denied: true,
			Reason: "squad not fully confirmed",
		}))
		return AdvanceResult{Reason: "squad not fully confirmed"}
	}

	ch.SetView(view)
	o.bus.Publish(events.New(events.TypeViewChanged, events.ToSquad(ch.ID, ch.Members()), events.ViewChangedPayload{
		SquadID: ch.ID.String(),
		View:    view,
	}))
	return AdvanceResult{OK: true}
}

// Heartbeat refreshes a player's connectivity. It never resurrects a
// fully removed record.
func (o *Orchestrator) Heartbeat(playerID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.players.Heartbeat(playerID, o.clock.Now()) {
		return
	}
	if ch := o.squadOfLocked(playerID); ch != nil {
		ch.MarkReconnected(playerID)
	}
}

// MarkDisconnected soft-deletes a player: the connectivity flag flips
// and the record is retained.
func (o *Orchestrator) MarkDisconnected(playerID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	o.players.MarkDisconnected(playerID, now)
	if ch := o.squadOfLocked(playerID); ch != nil {
		ch.MarkDisconnected(playerID, now)
	}
}

// MarkReconnected restores a previously disconnected player.
func (o *Orchestrator) MarkReconnected(playerID uuid.UUID) {
	o.Heartbeat(playerID)
}

// SweepStale auto-resolves the pending chain step of every member
// disconnected beyond the grace period who lacks a confirmation:
// prolonged absence is an automatic pass. Fail-open by policy.
func (o *Orchestrator) SweepStale() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	resolved := 0
	now := o.clock.Now()
	for _, id := range o.squadOrder {
		ch := o.squads[id]
		for _, m := range ch.StaleDisconnected(o.cfg.Grace, now) {
			if ch.HasConfirmed(m) {
				continue
			}
			target, ok := ch.Target(m)
			if !ok {
				continue
			}
			accepted, just := ch.Confirm(m, target)
			if !accepted {
				continue
			}
			resolved++
			log.Info().
				Str("squad_id", ch.ID.String()).
				Str("member_id", m.String()).
				Msg("auto-resolved chain step for timed-out member")
			o.bus.Publish(events.New(events.TypeAutoResolved, events.ToSquad(ch.ID, ch.Members()), events.AutoResolvedPayload{
				SquadID:  ch.ID.String(),
				MemberID: m.String(),
			}))
			if just {
				o.bus.Publish(events.New(events.TypeSquadActivated, events.ToSquad(ch.ID, ch.Members()), events.SquadActivatedPayload{
					SquadID: ch.ID.String(),
				}))
			}
		}
	}
	return resolved
}

// Reset clears all players, squads and per-session state, restores the
// default team size and returns the phase machine to start. Nothing
// survives the boundary.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.players.Reset()
	o.squads = make(map[uuid.UUID]*squad.Chain)
	o.squadOrder = nil
	o.gate.Reset()
	o.finishCounter = 0
	o.teamSize = o.cfg.TeamSize
	o.phase = PhaseStart

	log.Info().Msg("session reset")
	o.bus.Publish(events.New(events.TypeSessionReset, events.ToAll(), events.SessionResetPayload{
		ResetAt: o.clock.Now(),
	}))
}
