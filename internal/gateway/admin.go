package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/heistnight/internal/session"
	"github.com/rs/zerolog/log"
)

// Privileged Game-Master operations ride on REST rather than the player
// websocket. Every committed change is followed by a fresh full-state
// snapshot broadcast.

type setPhaseRequest struct {
	Phase string `json:"phase"`
}

type setTeamSizeRequest struct {
	TeamSize int `json:"team_size"`
}

type adminResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// RegisterAdminRoutes registers the privileged REST endpoints and the
// read-only state endpoints.
func (h *Hub) RegisterAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/phase", h.handleSetPhase)
	mux.HandleFunc("/admin/team-size", h.handleSetTeamSize)
	mux.HandleFunc("/admin/reset", h.handleReset)
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/leaderboard", h.handleLeaderboard)
}

func (h *Hub) handleSetPhase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setPhaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{Reason: "malformed request body"})
		return
	}
	res := h.core.SetPhase(session.Phase(req.Phase))
	if !res.OK {
		writeJSON(w, http.StatusUnprocessableEntity, adminResponse{Reason: res.Reason})
		return
	}
	h.core.PublishSnapshot()
	writeJSON(w, http.StatusOK, adminResponse{OK: true})
}

func (h *Hub) handleSetTeamSize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setTeamSizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{Reason: "malformed request body"})
		return
	}
	res := h.core.SetTeamSize(req.TeamSize)
	if !res.OK {
		writeJSON(w, http.StatusUnprocessableEntity, adminResponse{Reason: res.Reason})
		return
	}
	h.core.PublishSnapshot()
	writeJSON(w, http.StatusOK, adminResponse{OK: true})
}

func (h *Hub) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.core.Reset()
	h.core.PublishSnapshot()
	writeJSON(w, http.StatusOK, adminResponse{OK: true})
}

func (h *Hub) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.core.Snapshot())
}

func (h *Hub) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.core.Leaderboard())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
