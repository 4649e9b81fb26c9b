package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Inbound messages are a closed set of tagged shapes, validated here
// before they reach any domain logic.

// Client message types.
const (
	MsgRegister      = "register"
	MsgHeartbeat     = "heartbeat"
	MsgGetPrompt     = "get_prompt"
	MsgTargetInfo    = "target_info"
	MsgConfirmScan   = "confirm_scan"
	MsgTeamStatus    = "team_status"
	MsgMinigameState = "minigame_state"
	MsgPuzzleInfo    = "puzzle_info"
	MsgPuzzleGuess   = "puzzle_guess"
	MsgGetFragment   = "get_fragment"
	MsgGetTumbler    = "get_tumbler"
	MsgVerifySecret  = "verify_secret"
	MsgAdvance       = "advance"
)

// ClientMessage is the envelope for every inbound websocket message.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the envelope for direct replies. Broadcast notifications
// use the events.Event envelope instead.
type Response struct {
	Type   string      `json:"type"`
	OK     bool        `json:"ok"`
	Reason string      `json:"reason,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// RegisterPayload carries a registration request.
type RegisterPayload struct {
	Name    string `json:"name"`
	Drawing string `json:"drawing"`
	Blurb   string `json:"blurb"`
	Prompt  string `json:"prompt,omitempty"`
}

// ConfirmScanPayload carries a scan confirmation claim.
type ConfirmScanPayload struct {
	TargetID string `json:"target_id"`
}

// MinigameStatePayload carries a partial minigame state report.
type MinigameStatePayload struct {
	Qualifying bool `json:"qualifying"`
}

// PuzzleGuessPayload carries a puzzle answer.
type PuzzleGuessPayload struct {
	Answer *int `json:"answer"`
}

// VerifySecretPayload carries a secret code submission.
type VerifySecretPayload struct {
	Code string `json:"code"`
}

// AdvancePayload carries a squad view-advance request.
type AdvancePayload struct {
	View string `json:"view"`
}

// decodeClientMessage parses and validates one inbound frame against
// the closed message set. Malformed payloads are rejected before they
// can reach domain logic.
func decodeClientMessage(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("malformed message: %w", err)
	}
	switch msg.Type {
	case MsgRegister, MsgHeartbeat, MsgGetPrompt, MsgTargetInfo, MsgConfirmScan,
		MsgTeamStatus, MsgMinigameState, MsgPuzzleInfo, MsgPuzzleGuess,
		MsgGetFragment, MsgGetTumbler, MsgVerifySecret, MsgAdvance:
		return msg, nil
	case "":
		return ClientMessage{}, fmt.Errorf("missing message type")
	default:
		return ClientMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func decodeRegister(data json.RawMessage) (RegisterPayload, error) {
	var p RegisterPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("malformed register payload: %w", err)
	}
	if p.Name == "" {
		return p, fmt.Errorf("register requires a name")
	}
	return p, nil
}

func decodeConfirmScan(data json.RawMessage) (uuid.UUID, error) {
	var p ConfirmScanPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return uuid.Nil, fmt.Errorf("malformed confirm payload: %w", err)
	}
	id, err := uuid.Parse(p.TargetID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid target_id: %w", err)
	}
	return id, nil
}

func decodeMinigameState(data json.RawMessage) (MinigameStatePayload, error) {
	var p MinigameStatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("malformed minigame payload: %w", err)
	}
	return p, nil
}

func decodePuzzleGuess(data json.RawMessage) (int, error) {
	var p PuzzleGuessPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, fmt.Errorf("malformed guess payload: %w", err)
	}
	if p.Answer == nil {
		return 0, fmt.Errorf("guess requires an answer index")
	}
	return *p.Answer, nil
}

func decodeVerifySecret(data json.RawMessage) (string, error) {
	var p VerifySecretPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("malformed verify payload: %w", err)
	}
	if p.Code == "" {
		return "", fmt.Errorf("verify requires a code")
	}
	return p.Code, nil
}

func decodeAdvance(data json.RawMessage) (string, error) {
	var p AdvancePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("malformed advance payload: %w", err)
	}
	if p.View == "" {
		return "", fmt.Errorf("advance requires a view")
	}
	return p.View, nil
}
