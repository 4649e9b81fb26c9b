package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/heistnight/internal/catalog"
	"github.com/mcdev12/heistnight/internal/events"
)

// captureBus records every published event for assertion.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) ofType(t events.Type) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (b *captureBus) waitForType(t events.Type, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(b.ofType(t)) > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func newTestSession(t *testing.T, teamSize int) (*Orchestrator, *captureBus, *clockwork.FakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TeamSize = teamSize
	cfg.Seed = 42
	clock := clockwork.NewFakeClock()
	bus := &captureBus{}
	o := New(cfg, catalog.Default(), bus, clock)
	t.Cleanup(o.Close)
	return o, bus, clock
}

func registerPlayers(t *testing.T, o *Orchestrator, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range ids {
		res := o.Register(RegisterRequest{Name: fmt.Sprintf("player-%02d", i)})
		if res.PlayerID == uuid.Nil {
			t.Fatalf("registration %d returned nil id", i)
		}
		ids[i] = res.PlayerID
	}
	return ids
}

func advanceToChain(t *testing.T, o *Orchestrator) {
	t.Helper()
	if v := o.SetPhase(PhaseLobby); !v.OK {
		t.Fatalf("enter lobby: %s", v.Reason)
	}
	if v := o.SetPhase(PhaseChain); !v.OK {
		t.Fatalf("enter chain: %s", v.Reason)
	}
}

// ringOf walks the target relationship starting at seed and returns the
// squad's members in chain order.
func ringOf(t *testing.T, o *Orchestrator, seed uuid.UUID) []uuid.UUID {
	t.Helper()
	ring := []uuid.UUID{seed}
	cur := seed
	for {
		info, ok := o.TargetInfo(cur)
		if !ok {
			t.Fatalf("no target for %v", cur)
		}
		if info.TargetID == seed {
			return ring
		}
		ring = append(ring, info.TargetID)
		cur = info.TargetID
		if len(ring) > MaxTeamSize {
			t.Fatalf("target walk from %v did not close", seed)
		}
	}
}

func completeLoop(t *testing.T, o *Orchestrator, ring []uuid.UUID) {
	t.Helper()
	for i, m := range ring {
		target := ring[(i+1)%len(ring)]
		if res := o.ResolveConfirmation(m, target); !res.OK {
			t.Fatalf("confirmation %d rejected", i)
		}
	}
}

// allRings partitions the given players into their squads via the
// target relationship.
func allRings(t *testing.T, o *Orchestrator, ids []uuid.UUID) [][]uuid.UUID {
	t.Helper()
	seen := map[uuid.UUID]bool{}
	var rings [][]uuid.UUID
	for _, id := range ids {
		if seen[id] {
			continue
		}
		ring := ringOf(t, o, id)
		for _, m := range ring {
			seen[m] = true
		}
		rings = append(rings, ring)
	}
	return rings
}

func TestRegisterAssignsPromptAndScanCode(t *testing.T) {
	o, bus, _ := newTestSession(t, 4)

	codes := map[string]bool{}
	for i := 0; i < 20; i++ {
		res := o.Register(RegisterRequest{Name: "dup-name"})
		if res.Prompt == "" {
			t.Fatal("registration without a prompt must assign one")
		}
		if len(res.ScanCode) != 6 {
			t.Fatalf("scan code %q, want 6 characters", res.ScanCode)
		}
		for _, ch := range res.ScanCode {
			if !strings.ContainsRune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789", ch) {
				t.Fatalf("scan code %q contains %q outside the code alphabet", res.ScanCode, ch)
			}
		}
		if codes[res.ScanCode] {
			t.Fatalf("scan code %q issued twice", res.ScanCode)
		}
		codes[res.ScanCode] = true
	}

	if got := len(bus.ofType(events.TypePlayerJoined)); got != 20 {
		t.Errorf("PlayerJoined events = %d, want 20", got)
	}

	// A caller-supplied prompt is kept verbatim.
	res := o.Register(RegisterRequest{Name: "x", Prompt: "a getaway driver"})
	if res.Prompt != "a getaway driver" {
		t.Errorf("prompt = %q, want the supplied one", res.Prompt)
	}
}

func TestPhaseTransitions(t *testing.T) {
	o, bus, _ := newTestSession(t, 4)

	if v := o.SetPhase(PhaseHeist); v.OK {
		t.Fatal("start -> heist must be rejected")
	}
	if v := o.SetPhase(Phase("warmup")); v.OK || !strings.Contains(v.Reason, "unknown phase") {
		t.Fatalf("unknown phase accepted: %+v", v)
	}
	if o.Phase() != PhaseStart {
		t.Fatalf("phase = %s after rejected transitions, want start", o.Phase())
	}

	// Tutorial is a side branch of start.
	if v := o.SetPhase(PhaseTutorial); !v.OK {
		t.Fatalf("start -> tutorial: %s", v.Reason)
	}
	if v := o.SetPhase(PhaseLobby); v.OK {
		t.Fatal("tutorial -> lobby must be rejected")
	}
	if v := o.SetPhase(PhaseStart); !v.OK {
		t.Fatalf("tutorial -> start: %s", v.Reason)
	}

	if got := len(bus.ofType(events.TypePhaseChanged)); got != 2 {
		t.Errorf("PhaseChanged events = %d, want 2", got)
	}
}

func TestChainPhaseRequiresFullSquads(t *testing.T) {
	o, _, _ := newTestSession(t, 4)
	registerPlayers(t, o, 6)

	if v := o.SetPhase(PhaseLobby); !v.OK {
		t.Fatalf("enter lobby: %s", v.Reason)
	}
	v := o.SetPhase(PhaseChain)
	if v.OK {
		t.Fatal("chain phase must be rejected with a partial squad")
	}
	if !strings.Contains(v.Reason, "need 2 more players") {
		t.Fatalf("reason = %q, want the exact shortfall", v.Reason)
	}
	if o.Phase() != PhaseLobby {
		t.Fatalf("phase = %s after rejected transition, want lobby", o.Phase())
	}
}

func TestSquadFormation(t *testing.T) {
	cases := []struct {
		teamSize, players int
	}{
		{2, 6},
		{3, 9},
		{4, 8},
		{5, 5},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("size_%d_players_%d", tc.teamSize, tc.players), func(t *testing.T) {
			o, _, _ := newTestSession(t, tc.teamSize)
			ids := registerPlayers(t, o, tc.players)
			advanceToChain(t, o)

			rings := allRings(t, o, ids)
			if want := tc.players / tc.teamSize; len(rings) != want {
				t.Fatalf("squads = %d, want %d", len(rings), want)
			}
			assigned := map[uuid.UUID]bool{}
			for _, ring := range rings {
				if len(ring) != tc.teamSize {
					t.Fatalf("squad size = %d, want %d", len(ring), tc.teamSize)
				}
				for _, m := range ring {
					if assigned[m] {
						t.Fatalf("player %v assigned twice", m)
					}
					assigned[m] = true
				}
			}
			if len(assigned) != tc.players {
				t.Fatalf("assigned %d players, want all %d", len(assigned), tc.players)
			}
		})
	}
}

func TestConfirmationFlow(t *testing.T) {
	o, bus, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 4)
	advanceToChain(t, o)

	ring := ringOf(t, o, ids[0])

	// Confirming anyone but the required target is a plain failure.
	wrong := ring[2]
	if res := o.ResolveConfirmation(ring[0], wrong); res.OK {
		t.Fatal("confirmation of a non-target must fail")
	}
	status, _ := o.TeamStatus(ring[0])
	if status.Confirmed != 0 {
		t.Fatalf("confirmed = %d after rejected scan, want 0", status.Confirmed)
	}

	for i := 0; i < 3; i++ {
		res := o.ResolveConfirmation(ring[i], ring[i+1])
		if !res.OK || res.LoopComplete {
			t.Fatalf("confirmation %d = %+v, want accepted and loop open", i, res)
		}
	}
	res := o.ResolveConfirmation(ring[3], ring[0])
	if !res.OK || !res.LoopComplete {
		t.Fatalf("final confirmation = %+v, want loop complete", res)
	}

	status, _ = o.TeamStatus(ring[0])
	if !status.AllConfirmed || status.Confirmed != 4 || status.Total != 4 {
		t.Fatalf("status = %+v, want 4/4 confirmed", status)
	}
	if got := len(bus.ofType(events.TypeSquadActivated)); got != 1 {
		t.Errorf("SquadActivated events = %d, want 1", got)
	}
}

func TestAdvanceDeniedBeforeLoopComplete(t *testing.T) {
	o, _, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 4)
	advanceToChain(t, o)

	ring := ringOf(t, o, ids[0])
	if res := o.RequestSquadAdvance(ring[0], ViewVault); res.OK {
		t.Fatal("advance must be denied before the loop completes")
	}
	if res := o.RequestSquadAdvance(ring[0], "penthouse"); res.OK || !strings.Contains(res.Reason, "unknown view") {
		t.Fatalf("unknown view accepted: %+v", res)
	}

	completeLoop(t, o, ring)
	if res := o.RequestSquadAdvance(ring[0], ViewVault); !res.OK {
		t.Fatalf("advance after loop complete: %+v", res)
	}
}

func TestHeistIssuance(t *testing.T) {
	o, _, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 8)
	advanceToChain(t, o)

	rings := allRings(t, o, ids)
	for _, ring := range rings {
		completeLoop(t, o, ring)
	}
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	for _, ring := range rings {
		positions := map[int]bool{}
		for _, m := range ring {
			info, ok := o.PuzzleInfo(m)
			if !ok {
				t.Fatalf("no puzzle for member %v", m)
			}
			if info.PuzzleID == "" || len(info.Grid) == 0 || info.Clue == "" {
				t.Fatalf("incomplete puzzle info: %+v", info)
			}

			frag, ok := o.Fragment(m)
			if !ok {
				t.Fatalf("no fragment for member %v", m)
			}
			if frag.Total != len(ring) {
				t.Fatalf("fragment total = %d, want %d", frag.Total, len(ring))
			}
			if frag.Position < 1 || frag.Position > frag.Total {
				t.Fatalf("fragment position %d out of range 1..%d", frag.Position, frag.Total)
			}
			if positions[frag.Position] {
				t.Fatalf("fragment position %d issued twice", frag.Position)
			}
			positions[frag.Position] = true
			if len(frag.Fragment) != 1 || !strings.Contains(KeypadAlphabet, frag.Fragment) {
				t.Fatalf("fragment %q outside the keypad alphabet", frag.Fragment)
			}
		}
		// Gapless: every position 1..N present.
		for p := 1; p <= len(ring); p++ {
			if !positions[p] {
				t.Fatalf("fragment position %d missing", p)
			}
		}
	}
}

// codeOf reassembles a squad's secret from its members' fragments.
func codeOf(t *testing.T, o *Orchestrator, ring []uuid.UUID) string {
	t.Helper()
	parts := make([]string, len(ring))
	for _, m := range ring {
		frag, ok := o.Fragment(m)
		if !ok {
			t.Fatalf("no fragment for member %v", m)
		}
		parts[frag.Position-1] = frag.Fragment
	}
	return strings.Join(parts, "")
}

func TestVerifySecret(t *testing.T) {
	o, bus, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 8)
	advanceToChain(t, o)
	rings := allRings(t, o, ids)
	for _, ring := range rings {
		completeLoop(t, o, ring)
	}
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	first, second := rings[0], rings[1]

	if res := o.VerifySecret(first[0], "WRONGX"); res.OK {
		t.Fatal("wrong code must fail")
	}

	// Case-insensitive match; first squad home takes position 1.
	res := o.VerifySecret(first[0], strings.ToLower(codeOf(t, o, first)))
	if !res.OK || res.Position != 1 || !res.Winner {
		t.Fatalf("first verification = %+v, want position 1 winner", res)
	}

	// A teammate resubmitting gets the stored position; the counter
	// does not advance.
	res = o.VerifySecret(first[1], codeOf(t, o, first))
	if !res.OK || res.Position != 1 || !res.Winner {
		t.Fatalf("resubmission = %+v, want stored position 1", res)
	}

	res = o.VerifySecret(second[0], codeOf(t, o, second))
	if !res.OK || res.Position != 2 || res.Winner {
		t.Fatalf("second squad = %+v, want position 2, not winner", res)
	}

	if got := len(bus.ofType(events.TypeLeaderboardUpdated)); got != 2 {
		t.Errorf("LeaderboardUpdated events = %d, want 2", got)
	}
}

func TestPuzzleGuess(t *testing.T) {
	o, bus, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 4)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])
	completeLoop(t, o, ring)
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	info, _ := o.PuzzleInfo(ring[0])
	wrong := 0
	if info.Progress != 0 {
		t.Fatalf("initial progress = %d, want 0", info.Progress)
	}

	// Find a wrong answer by trying grid indexes until one fails.
	answer := -1
	for i := range info.Grid {
		if res := o.ResolvePuzzleGuess(ring[0], i); res.OK {
			answer = i
			break
		}
		wrong++
	}
	if answer == -1 {
		t.Fatal("no grid index matched the puzzle answer")
	}

	// Wrong guesses carried no penalty and emitted observer errors.
	if got := len(bus.ofType(events.TypeSquadError)); got != wrong {
		t.Errorf("SquadError events = %d, want %d", got, wrong)
	}
	info, _ = o.PuzzleInfo(ring[0])
	if info.Progress != ProgressPerGuess {
		t.Fatalf("progress after correct guess = %d, want %d", info.Progress, ProgressPerGuess)
	}

	// A repeat correct answer advances again, clamped at 100 overall.
	if res := o.ResolvePuzzleGuess(ring[0], answer); !res.OK || res.Progress != 2*ProgressPerGuess {
		t.Fatalf("second correct guess = %+v", res)
	}
}

func TestHoldGateFiresViaTimerWake(t *testing.T) {
	o, bus, clock := newTestSession(t, 2)
	ids := registerPlayers(t, o, 2)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])
	completeLoop(t, o, ring)
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	report := func() HoldReport {
		var last HoldReport
		for _, m := range ring {
			last = o.ReportMinigameState(m, true)
		}
		return last
	}

	// All members qualifying: the hold starts but cannot fire yet.
	if rep := report(); !rep.Satisfied || rep.Fired {
		t.Fatalf("initial report = %+v, want satisfied, not fired", rep)
	}

	// Keep reports flowing inside the staleness window. The hold needs
	// 3s; the last report at 2s arms a wake for the deadline.
	clock.Advance(time.Second)
	if rep := report(); !rep.Satisfied || rep.Fired {
		t.Fatalf("report at 1s = %+v", rep)
	}
	clock.Advance(time.Second)
	if rep := report(); !rep.Satisfied || rep.HeldMS != 2000 {
		t.Fatalf("report at 2s = %+v, want 2000ms held", rep)
	}

	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("wake timer never armed: %v", err)
	}
	clock.Advance(time.Second)

	if !bus.waitForType(events.TypeHoldSuccess, 2*time.Second) {
		t.Fatal("HoldSuccess never published after the hold elapsed")
	}
	info, _ := o.PuzzleInfo(ring[0])
	if info.Progress != ProgressPerHold {
		t.Errorf("progress after hold = %d, want %d", info.Progress, ProgressPerHold)
	}
}

func TestHoldGateResetByDropout(t *testing.T) {
	o, bus, clock := newTestSession(t, 2)
	ids := registerPlayers(t, o, 2)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])
	completeLoop(t, o, ring)
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	for _, m := range ring {
		o.ReportMinigameState(m, true)
	}
	clock.Advance(2 * time.Second)

	// One member leaves the qualifying zone just before the deadline.
	for _, m := range ring[:1] {
		o.ReportMinigameState(m, true)
	}
	if rep := o.ReportMinigameState(ring[1], false); rep.Satisfied {
		t.Fatalf("report with a non-qualifying member = %+v", rep)
	}

	// No credit survives: another 2s of holding is still short of 3s.
	for _, m := range ring {
		o.ReportMinigameState(m, true)
	}
	clock.Advance(2 * time.Second)
	rep := HoldReport{}
	for _, m := range ring {
		rep = o.ReportMinigameState(m, true)
	}
	if rep.Fired {
		t.Fatal("gate fired without a full continuous hold")
	}
	if rep.HeldMS != 2000 {
		t.Fatalf("held = %dms after restart, want 2000", rep.HeldMS)
	}
	if got := len(bus.ofType(events.TypeHoldSuccess)); got != 0 {
		t.Errorf("HoldSuccess events = %d, want 0", got)
	}
}

func TestReportMinigameStateGatedByPhase(t *testing.T) {
	o, _, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 4)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])

	if rep := o.ReportMinigameState(ring[0], true); rep.Satisfied || rep.Fired {
		t.Fatalf("minigame report outside heist = %+v, want ignored", rep)
	}
}

func TestTumblerAngleStable(t *testing.T) {
	o, _, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 4)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])

	angle, ok := o.TumblerAngle(ring[0])
	if !ok {
		t.Fatal("no tumbler angle assigned")
	}
	if angle < 0 || angle >= TumblerAngleMax {
		t.Fatalf("angle %d outside [0,%d)", angle, TumblerAngleMax)
	}
	for i := 0; i < 5; i++ {
		again, _ := o.TumblerAngle(ring[0])
		if again != angle {
			t.Fatalf("angle changed between requests: %d then %d", angle, again)
		}
	}
}

func TestSweepStaleAutoResolves(t *testing.T) {
	o, bus, clock := newTestSession(t, 4)
	ids := registerPlayers(t, o, 4)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])

	o.MarkDisconnected(ring[0])
	clock.Advance(31 * time.Second)

	if got := o.SweepStale(); got != 1 {
		t.Fatalf("SweepStale = %d, want 1", got)
	}
	status, _ := o.TeamStatus(ring[1])
	if status.Confirmed != 1 {
		t.Fatalf("confirmed = %d after sweep, want 1", status.Confirmed)
	}
	if got := len(bus.ofType(events.TypeAutoResolved)); got != 1 {
		t.Errorf("AutoResolved events = %d, want 1", got)
	}

	// Idempotent: the member already has a confirmation.
	if got := o.SweepStale(); got != 0 {
		t.Fatalf("second SweepStale = %d, want 0", got)
	}
}

func TestSweepStaleCompletesLoop(t *testing.T) {
	o, bus, clock := newTestSession(t, 2)
	ids := registerPlayers(t, o, 2)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])

	// One member confirms normally; the other goes dark past grace.
	if res := o.ResolveConfirmation(ring[0], ring[1]); !res.OK {
		t.Fatal("normal confirmation rejected")
	}
	o.MarkDisconnected(ring[1])
	clock.Advance(31 * time.Second)

	if got := o.SweepStale(); got != 1 {
		t.Fatalf("SweepStale = %d, want 1", got)
	}
	status, _ := o.TeamStatus(ring[0])
	if !status.AllConfirmed {
		t.Fatal("loop not complete after auto-resolution")
	}
	if got := len(bus.ofType(events.TypeSquadActivated)); got != 1 {
		t.Errorf("SquadActivated events = %d, want 1", got)
	}
}

func TestHeartbeatClearsDisconnect(t *testing.T) {
	o, _, clock := newTestSession(t, 2)
	ids := registerPlayers(t, o, 2)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])

	o.MarkDisconnected(ring[0])
	clock.Advance(20 * time.Second)
	o.Heartbeat(ring[0])
	clock.Advance(20 * time.Second)

	// Reconnection inside grace cancels the pending auto-resolution.
	if got := o.SweepStale(); got != 0 {
		t.Fatalf("SweepStale = %d after reconnect, want 0", got)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	o, _, _ := newTestSession(t, 2)
	ids := registerPlayers(t, o, 8)
	advanceToChain(t, o)
	rings := allRings(t, o, ids)
	for _, ring := range rings {
		completeLoop(t, o, ring)
	}
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	// rings[0] finishes; rings[1] advances to the vault; the rest stay
	// on the puzzle.
	if res := o.VerifySecret(rings[0][0], codeOf(t, o, rings[0])); !res.OK {
		t.Fatal("verification failed")
	}
	if res := o.RequestSquadAdvance(rings[1][0], ViewVault); !res.OK {
		t.Fatalf("advance: %+v", res)
	}

	board := o.Leaderboard()
	if len(board) != 4 {
		t.Fatalf("leaderboard entries = %d, want 4", len(board))
	}
	if board[0].FinishPos != 1 || board[0].View != ViewEscaped || board[0].Score != 100 {
		t.Fatalf("rank 1 = %+v, want the finished squad", board[0])
	}
	if board[1].View != ViewVault {
		t.Fatalf("rank 2 view = %q, want vault", board[1].View)
	}
	for i, e := range board {
		if e.Rank != i+1 {
			t.Fatalf("rank at index %d = %d, want %d", i, e.Rank, i+1)
		}
		if len(e.Members) != 2 {
			t.Fatalf("entry %d has %d member names, want 2", i, len(e.Members))
		}
	}
	// Puzzle-view squads tie; stable order must hold across calls.
	again := o.Leaderboard()
	for i := range board {
		if board[i].SquadID != again[i].SquadID {
			t.Fatal("leaderboard order unstable across calls")
		}
	}
}

func TestSetTeamSizeBounds(t *testing.T) {
	o, _, _ := newTestSession(t, 4)

	if v := o.SetTeamSize(1); v.OK {
		t.Fatal("team size below minimum accepted")
	}
	if v := o.SetTeamSize(11); v.OK {
		t.Fatal("team size above maximum accepted")
	}
	if v := o.SetTeamSize(3); !v.OK {
		t.Fatalf("team size 3 rejected: %s", v.Reason)
	}
	if o.TeamSize() != 3 {
		t.Fatalf("team size = %d, want 3", o.TeamSize())
	}
}

func TestResetClearsEverything(t *testing.T) {
	o, bus, _ := newTestSession(t, 4)
	ids := registerPlayers(t, o, 8)
	advanceToChain(t, o)
	rings := allRings(t, o, ids)
	for _, ring := range rings {
		completeLoop(t, o, ring)
	}
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}
	o.VerifySecret(rings[0][0], codeOf(t, o, rings[0]))
	o.SetTeamSize(2)

	o.Reset()

	if o.Phase() != PhaseStart {
		t.Fatalf("phase = %s after reset, want start", o.Phase())
	}
	if o.TeamSize() != 4 {
		t.Fatalf("team size = %d after reset, want the configured default", o.TeamSize())
	}
	if got := len(o.Leaderboard()); got != 0 {
		t.Fatalf("leaderboard entries = %d after reset, want 0", got)
	}
	if _, ok := o.TargetInfo(ids[0]); ok {
		t.Fatal("old player still resolvable after reset")
	}
	if got := len(bus.ofType(events.TypeSessionReset)); got != 1 {
		t.Errorf("SessionReset events = %d, want 1", got)
	}

	// The finish counter restarted: a fresh round's first squad wins.
	ids = registerPlayers(t, o, 4)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])
	completeLoop(t, o, ring)
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}
	res := o.VerifySecret(ring[0], codeOf(t, o, ring))
	if !res.OK || res.Position != 1 || !res.Winner {
		t.Fatalf("first finish after reset = %+v, want position 1", res)
	}
}

func TestVerifyAfterFinishKeepsGateQuiet(t *testing.T) {
	o, bus, clock := newTestSession(t, 2)
	ids := registerPlayers(t, o, 2)
	advanceToChain(t, o)
	ring := ringOf(t, o, ids[0])
	completeLoop(t, o, ring)
	if v := o.SetPhase(PhaseHeist); !v.OK {
		t.Fatalf("enter heist: %s", v.Reason)
	}

	// Arm a hold, then finish the squad before the deadline.
	for _, m := range ring {
		o.ReportMinigameState(m, true)
	}
	if res := o.VerifySecret(ring[0], codeOf(t, o, ring)); !res.OK {
		t.Fatal("verification failed")
	}

	clock.Advance(5 * time.Second)
	time.Sleep(50 * time.Millisecond) // let any stray wake goroutine run

	if got := len(bus.ofType(events.TypeHoldSuccess)); got != 0 {
		t.Errorf("HoldSuccess events after finish = %d, want 0", got)
	}
	for _, m := range ring {
		if rep := o.ReportMinigameState(m, true); rep.Satisfied || rep.Fired {
			t.Fatalf("finished squad still evaluated: %+v", rep)
		}
	}
}
