package session

import (
	"sort"

	"github.com/google/uuid"
)

// LeaderboardEntry is one ranked squad.
type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	SquadID   uuid.UUID `json:"squad_id"`
	FinishPos int       `json:"finish_pos,omitempty"`
	Score     int       `json:"score"`
	View      string    `json:"view"`
	Progress  int       `json:"progress"`
	Members   []string  `json:"members"`
}

// Leaderboard ranks all squads: finished squads by finish position
// ascending, then unfinished squads by the coarse view-label score,
// ties broken by formation order.
func (o *Orchestrator) Leaderboard() []LeaderboardEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leaderboardLocked()
}

func (o *Orchestrator) leaderboardLocked() []LeaderboardEntry {
	var finished, pending []LeaderboardEntry

	for _, id := range o.squadOrder {
		ch := o.squads[id]
		entry := LeaderboardEntry{
			SquadID:   ch.ID,
			FinishPos: ch.FinishPos(),
			View:      ch.View(),
			Progress:  ch.Progress(),
			Members:   o.memberNamesLocked(ch.Members()),
		}
		if ch.Finished() {
			entry.Score = 100
			finished = append(finished, entry)
		} else {
			entry.Score = ViewScore(ch.View())
			pending = append(pending, entry)
		}
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].FinishPos < finished[j].FinishPos
	})
	// Stable sort keeps formation order for equal scores.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Score > pending[j].Score
	})

	board := append(finished, pending...)
	for i := range board {
		board[i].Rank = i + 1
	}
	return board
}

func (o *Orchestrator) memberNamesLocked(ids []uuid.UUID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := o.players.Get(id); ok {
			names = append(names, p.Name)
		}
	}
	return names
}
