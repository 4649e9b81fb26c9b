// Package events defines the typed notification envelope emitted by the
// session core, the payload shapes for each notification, and the bus
// that fans events out to the transport layer and to external observer
// consumers.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type identifies the kind of session event.
type Type string

const (
	TypePlayerJoined       Type = "PlayerJoined"
	TypePhaseChanged       Type = "PhaseChanged"
	TypeScanConfirmed      Type = "ScanConfirmed"
	TypeSquadActivated     Type = "SquadActivated"
	TypeSquadProgress      Type = "SquadProgress"
	TypeSquadError         Type = "SquadError"
	TypeHoldSuccess        Type = "HoldSuccess"
	TypeAutoResolved       Type = "AutoResolved"
	TypeSecretVerified     Type = "SecretVerified"
	TypeLeaderboardUpdated Type = "LeaderboardUpdated"
	TypeViewChanged        Type = "ViewChanged"
	TypeSessionReset       Type = "SessionReset"
	TypeSnapshot           Type = "Snapshot"
)

// Scope selects which connections receive an event.
type Scope string

const (
	// ScopeAll targets every participant and observer.
	ScopeAll Scope = "all"
	// ScopePlayers targets the listed player connections.
	ScopePlayers Scope = "players"
	// ScopeObservers targets the observer dashboard pool.
	ScopeObservers Scope = "observers"
)

// Audience is routing metadata for one event.
type Audience struct {
	Scope     Scope       `json:"scope"`
	SquadID   uuid.UUID   `json:"squad_id,omitempty"`
	PlayerIDs []uuid.UUID `json:"-"`
}

// ToAll addresses every connection.
func ToAll() Audience {
	return Audience{Scope: ScopeAll}
}

// ToSquad addresses all members of one squad.
func ToSquad(squadID uuid.UUID, members []uuid.UUID) Audience {
	return Audience{Scope: ScopePlayers, SquadID: squadID, PlayerIDs: members}
}

// ToPlayer addresses a single player.
func ToPlayer(playerID uuid.UUID) Audience {
	return Audience{Scope: ScopePlayers, PlayerIDs: []uuid.UUID{playerID}}
}

// ToObservers addresses the observer pool.
func ToObservers() Audience {
	return Audience{Scope: ScopeObservers}
}

// Event is the wire envelope for all session notifications.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Audience  Audience        `json:"audience"`
	Data      json.RawMessage `json:"data"`
}

// New builds an event, marshalling the payload. A payload that fails to
// marshal yields an event with empty data rather than an error; payload
// structs are plain data and cannot realistically fail.
func New(t Type, aud Audience, payload interface{}) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
		data = nil
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Audience:  aud,
		Data:      data,
	}
}
