package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/heistnight/internal/session"
	"github.com/rs/zerolog/log"
)

// Core defines what the gateway needs from the session orchestrator.
type Core interface {
	Register(req session.RegisterRequest) session.RegisterResult
	RandomPrompt() string
	TargetInfo(playerID uuid.UUID) (session.TargetInfo, bool)
	ResolveConfirmation(confirmerID, targetID uuid.UUID) session.ConfirmResult
	TeamStatus(playerID uuid.UUID) (session.TeamStatus, bool)
	ReportMinigameState(playerID uuid.UUID, qualifying bool) session.HoldReport
	PuzzleInfo(playerID uuid.UUID) (session.PuzzleInfo, bool)
	ResolvePuzzleGuess(playerID uuid.UUID, answer int) session.GuessResult
	Fragment(playerID uuid.UUID) (session.FragmentInfo, bool)
	TumblerAngle(playerID uuid.UUID) (int, bool)
	VerifySecret(playerID uuid.UUID, code string) session.VerifyResult
	RequestSquadAdvance(playerID uuid.UUID, view string) session.AdvanceResult
	Heartbeat(playerID uuid.UUID)
	MarkDisconnected(playerID uuid.UUID)
	MarkReconnected(playerID uuid.UUID)
	SetPhase(target session.Phase) session.ValidationResult
	SetTeamSize(n int) session.ValidationResult
	Reset()
	Snapshot() session.SnapshotView
	PublishSnapshot()
	Leaderboard() []session.LeaderboardEntry
}

// RegisterRoutes registers the websocket and state routes.
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/play", func(w http.ResponseWriter, r *http.Request) {
		if err := h.Upgrade(w, r, false); err != nil {
			log.Error().Err(err).Msg("failed to upgrade player connection")
			http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/ws/observe", func(w http.ResponseWriter, r *http.Request) {
		if err := h.Upgrade(w, r, true); err != nil {
			log.Error().Err(err).Msg("failed to upgrade observer connection")
			http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		}
	})
}

// dispatch routes one validated inbound frame to the core. Every branch
// replies with a result value; a failed outcome is a normal reply, not
// a fault. Unexpected internal faults map to a generic failure response
// without crashing the session for other participants.
func (h *Hub) dispatch(c *Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("connection_id", c.ID).Msg("recovered from handler panic")
			c.reply(Response{Type: "error", Reason: "internal error"})
		}
	}()

	msg, err := decodeClientMessage(raw)
	if err != nil {
		c.reply(Response{Type: "error", Reason: err.Error()})
		return
	}

	if c.observer {
		// Observers are pure consumers.
		c.reply(Response{Type: msg.Type + "_result", Reason: "observers cannot send commands"})
		return
	}

	c.mu.Lock()
	playerID := c.playerID
	c.mu.Unlock()

	// Register is the only message accepted before a connection is
	// bound to a player.
	if msg.Type == MsgRegister {
		h.handleRegister(c, msg)
		return
	}
	if playerID == uuid.Nil {
		c.reply(Response{Type: msg.Type + "_result", Reason: "register first"})
		return
	}

	switch msg.Type {
	case MsgHeartbeat:
		h.core.Heartbeat(playerID)

	case MsgGetPrompt:
		c.reply(Response{Type: "get_prompt_result", OK: true, Data: map[string]string{
			"prompt": h.core.RandomPrompt(),
		}})

	case MsgTargetInfo:
		info, ok := h.core.TargetInfo(playerID)
		if !ok {
			// Lookup failure degrades to a null target.
			c.reply(Response{Type: "target_info_result", OK: true, Data: nil})
			return
		}
		c.reply(Response{Type: "target_info_result", OK: true, Data: map[string]interface{}{
			"target_id": info.TargetID.String(),
			"name":      info.Name,
			"drawing":   info.Drawing,
			"blurb":     info.Blurb,
			"prompt":    info.Prompt,
			"scan_code": info.ScanCode,
		}})

	case MsgConfirmScan:
		targetID, err := decodeConfirmScan(msg.Data)
		if err != nil {
			c.reply(Response{Type: "confirm_scan_result", Reason: err.Error()})
			return
		}
		res := h.core.ResolveConfirmation(playerID, targetID)
		c.reply(Response{Type: "confirm_scan_result", OK: res.OK, Data: map[string]bool{
			"loop_complete": res.LoopComplete,
		}})

	case MsgTeamStatus:
		status, ok := h.core.TeamStatus(playerID)
		if !ok {
			c.reply(Response{Type: "team_status_result", OK: true, Data: session.TeamStatus{}})
			return
		}
		c.reply(Response{Type: "team_status_result", OK: true, Data: map[string]interface{}{
			"confirmed":     status.Confirmed,
			"total":         status.Total,
			"all_confirmed": status.AllConfirmed,
		}})

	case MsgMinigameState:
		p, err := decodeMinigameState(msg.Data)
		if err != nil {
			c.reply(Response{Type: "minigame_state_result", Reason: err.Error()})
			return
		}
		// Fire-and-forget; success rides on the broadcast channel.
		h.core.ReportMinigameState(playerID, p.Qualifying)

	case MsgPuzzleInfo:
		info, ok := h.core.PuzzleInfo(playerID)
		c.reply(Response{Type: "puzzle_info_result", OK: ok, Data: info})

	case MsgPuzzleGuess:
		answer, err := decodePuzzleGuess(msg.Data)
		if err != nil {
			c.reply(Response{Type: "puzzle_guess_result", Reason: err.Error()})
			return
		}
		res := h.core.ResolvePuzzleGuess(playerID, answer)
		c.reply(Response{Type: "puzzle_guess_result", OK: res.OK, Data: map[string]int{
			"progress": res.Progress,
		}})

	case MsgGetFragment:
		frag, ok := h.core.Fragment(playerID)
		c.reply(Response{Type: "get_fragment_result", OK: ok, Data: frag})

	case MsgGetTumbler:
		angle, ok := h.core.TumblerAngle(playerID)
		c.reply(Response{Type: "get_tumbler_result", OK: ok, Data: map[string]int{
			"angle": angle,
		}})

	case MsgVerifySecret:
		code, err := decodeVerifySecret(msg.Data)
		if err != nil {
			c.reply(Response{Type: "verify_secret_result", Reason: err.Error()})
			return
		}
		res := h.core.VerifySecret(playerID, code)
		c.reply(Response{Type: "verify_secret_result", OK: res.OK, Data: map[string]interface{}{
			"position": res.Position,
			"winner":   res.Winner,
		}})

	case MsgAdvance:
		view, err := decodeAdvance(msg.Data)
		if err != nil {
			c.reply(Response{Type: "advance_result", Reason: err.Error()})
			return
		}
		res := h.core.RequestSquadAdvance(playerID, view)
		c.reply(Response{Type: "advance_result", OK: res.OK, Reason: res.Reason})
	}
}

// handleRegister creates the player and binds the connection.
func (h *Hub) handleRegister(c *Conn, msg ClientMessage) {
	p, err := decodeRegister(msg.Data)
	if err != nil {
		c.reply(Response{Type: "register_result", Reason: err.Error()})
		return
	}
	res := h.core.Register(session.RegisterRequest{
		Name:    p.Name,
		Drawing: p.Drawing,
		Blurb:   p.Blurb,
		Prompt:  p.Prompt,
	})
	h.bindPlayer(c, res.PlayerID)
	c.reply(Response{Type: "register_result", OK: true, Data: map[string]string{
		"player_id": res.PlayerID.String(),
		"name":      res.Name,
		"prompt":    res.Prompt,
		"scan_code": res.ScanCode,
	}})
}
