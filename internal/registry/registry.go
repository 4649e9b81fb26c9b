package registry

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// ScanCodeLength is the length of per-round verification codes.
	ScanCodeLength = 6

	// ScanCodeChars are the characters used for verification codes,
	// excluding ambiguous glyphs.
	ScanCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Player is one registered participant. The drawing payload is an opaque
// blob carried for observer display; the core never interprets it.
type Player struct {
	ID        uuid.UUID
	Name      string
	Drawing   string
	Blurb     string
	Prompt    string
	ScanCode  string
	SquadID   *uuid.UUID
	Connected bool
	LastSeen  time.Time
}

// Registry holds per-participant records for one session. Records are
// soft-deleted on disconnect (connectivity flag flips, record retained)
// and fully removed only on session reset or explicit cleanup.
type Registry struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		players: make(map[uuid.UUID]*Player),
	}
}

// Add creates a player record with a fresh id and a unique scan code.
func (r *Registry) Add(name, drawing, blurb, prompt string, now time.Time) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Player{
		ID:        uuid.New(),
		Name:      name,
		Drawing:   drawing,
		Blurb:     blurb,
		Prompt:    prompt,
		ScanCode:  r.uniqueScanCodeLocked(),
		Connected: true,
		LastSeen:  now,
	}
	r.players[p.ID] = p
	return p
}

// Get returns the player record for id, if it exists.
func (r *Registry) Get(id uuid.UUID) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	return p, ok
}

// All returns every registered player.
func (r *Registry) All() []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}

// Count returns the number of registered players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// AssignSquad records squad membership for a player.
func (r *Registry) AssignSquad(id, squadID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[id]; ok {
		sid := squadID
		p.SquadID = &sid
	}
}

// ClearSquads removes every player's squad membership, ahead of a
// fresh formation.
func (r *Registry) ClearSquads() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		p.SquadID = nil
	}
}

// Heartbeat refreshes the connectivity flag and timestamp. It returns
// false for players that were fully removed; a heartbeat never
// resurrects those.
func (r *Registry) Heartbeat(id uuid.UUID, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.Connected = true
	p.LastSeen = now
	return true
}

// MarkDisconnected flips the connectivity flag without removing the
// record.
func (r *Registry) MarkDisconnected(id uuid.UUID, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[id]; ok {
		p.Connected = false
		p.LastSeen = now
	}
}

// Remove fully deletes a player record.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
}

// Reset drops every record.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = make(map[uuid.UUID]*Player)
}

func (r *Registry) uniqueScanCodeLocked() string {
	for {
		code := generateScanCode()
		taken := false
		for _, p := range r.players {
			if p.ScanCode == code {
				taken = true
				break
			}
		}
		if !taken {
			return code
		}
	}
}

// generateScanCode creates a random verification code.
func generateScanCode() string {
	code := make([]byte, ScanCodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(ScanCodeChars))))
		if err != nil {
			// fallback to math/rand if crypto fails
			code[i] = ScanCodeChars[rand.Intn(len(ScanCodeChars))]
			continue
		}
		code[i] = ScanCodeChars[n.Int64()]
	}
	return string(code)
}
