package session

import (
	"context"
	"sort"
	"time"

	"github.com/mcdev12/heistnight/internal/events"
	"github.com/rs/zerolog/log"
)

// PlayerView is a player's slice of the observer snapshot.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Drawing   string `json:"drawing,omitempty"`
	Blurb     string `json:"blurb,omitempty"`
	Connected bool   `json:"connected"`
	SquadID   string `json:"squad_id,omitempty"`
}

// SquadView is a squad's slice of the observer snapshot.
type SquadView struct {
	ID             string   `json:"id"`
	Members        []string `json:"members"`
	ConfirmedCount int      `json:"confirmed_count"`
	LoopComplete   bool     `json:"loop_complete"`
	Progress       int      `json:"progress"`
	View           string   `json:"view"`
	FinishPos      int      `json:"finish_pos,omitempty"`
}

// SnapshotView is the full session state published to observers. The
// Game-Master dashboard is a pure consumer of these.
type SnapshotView struct {
	Phase       string             `json:"phase"`
	TeamSize    int                `json:"team_size"`
	PlayerCount int                `json:"player_count"`
	Players     []PlayerView       `json:"players"`
	Squads      []SquadView        `json:"squads"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	TakenAt     time.Time          `json:"taken_at"`
}

// Snapshot builds the full observer state view.
func (o *Orchestrator) Snapshot() SnapshotView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() SnapshotView {
	players := o.players.All()
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		pv := PlayerView{
			ID:        p.ID.String(),
			Name:      p.Name,
			Prompt:    p.Prompt,
			Drawing:   p.Drawing,
			Blurb:     p.Blurb,
			Connected: p.Connected,
		}
		if p.SquadID != nil {
			pv.SquadID = p.SquadID.String()
		}
		views = append(views, pv)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}
		return views[i].ID < views[j].ID
	})

	squadViews := make([]SquadView, 0, len(o.squadOrder))
	for _, id := range o.squadOrder {
		ch := o.squads[id]
		members := ch.Members()
		memberIDs := make([]string, len(members))
		for i, m := range members {
			memberIDs[i] = m.String()
		}
		squadViews = append(squadViews, SquadView{
			ID:             ch.ID.String(),
			Members:        memberIDs,
			ConfirmedCount: ch.ConfirmedCount(),
			LoopComplete:   ch.LoopComplete(),
			Progress:       ch.Progress(),
			View:           ch.View(),
			FinishPos:      ch.FinishPos(),
		})
	}

	return SnapshotView{
		Phase:       o.phase.String(),
		TeamSize:    o.teamSize,
		PlayerCount: len(players),
		Players:     views,
		Squads:      squadViews,
		Leaderboard: o.leaderboardLocked(),
		TakenAt:     o.clock.Now(),
	}
}

// PublishSnapshot pushes a fresh full-state snapshot to observers.
func (o *Orchestrator) PublishSnapshot() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.bus.Publish(events.New(events.TypeSnapshot, events.ToObservers(), snap))
}

// RunSnapshots broadcasts the observer snapshot on a fixed interval
// until the context is cancelled.
func (o *Orchestrator) RunSnapshots(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("snapshot broadcaster started")

	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("snapshot broadcaster shutting down")
			return
		case <-ticker.Chan():
			o.PublishSnapshot()
		}
	}
}
