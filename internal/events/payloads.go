package events

import "time"

// Payload shapes shared between the session core and the gateway.

// PlayerJoinedPayload is broadcast to observers on registration.
type PlayerJoinedPayload struct {
	PlayerID    string `json:"player_id"`
	Name        string `json:"name"`
	Prompt      string `json:"prompt"`
	PlayerCount int    `json:"player_count"`
}

// PhaseChangedPayload is broadcast to everyone on a committed phase
// transition.
type PhaseChangedPayload struct {
	Phase     string    `json:"phase"`
	ChangedAt time.Time `json:"changed_at"`
}

// ScanConfirmedPayload notifies a squad of chain progress.
type ScanConfirmedPayload struct {
	SquadID        string `json:"squad_id"`
	ScannerID      string `json:"scanner_id"`
	ConfirmedCount int    `json:"confirmed_count"`
	TotalCount     int    `json:"total_count"`
}

// SquadActivatedPayload notifies a squad that its loop just completed.
type SquadActivatedPayload struct {
	SquadID string `json:"squad_id"`
}

// SquadProgressPayload notifies a squad of its vault progress counter.
type SquadProgressPayload struct {
	SquadID  string `json:"squad_id"`
	Progress int    `json:"progress"`
}

// SquadErrorPayload pulses observers when a squad submits a wrong
// puzzle answer.
type SquadErrorPayload struct {
	SquadID string `json:"squad_id"`
}

// HoldSuccessPayload notifies a squad that the hold-together gate
// fired.
type HoldSuccessPayload struct {
	SquadID string `json:"squad_id"`
	HeldMS  int64  `json:"held_ms"`
}

// AutoResolvedPayload notifies a squad that a timed-out member's chain
// step was resolved automatically.
type AutoResolvedPayload struct {
	SquadID  string `json:"squad_id"`
	MemberID string `json:"member_id"`
}

// SecretVerifiedPayload notifies a squad of its finish result.
type SecretVerifiedPayload struct {
	SquadID  string `json:"squad_id"`
	Position int    `json:"position"`
	Winner   bool   `json:"winner"`
}

// ViewChangedPayload moves a squad (or a single denied requester) to a
// view.
type ViewChangedPayload struct {
	SquadID string `json:"squad_id,omitempty"`
	View    string `json:"view"`
	Denied  bool   `json:"denied,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SessionResetPayload is broadcast to everyone on reset.
type SessionResetPayload struct {
	ResetAt time.Time `json:"reset_at"`
}
