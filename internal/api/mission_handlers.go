package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

type missionResponse struct {
	Active      bool       `json:"active"`
	Name        string     `json:"name,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

func missionToResponse(mc model.MissionContext) missionResponse {
	resp := missionResponse{Active: mc.Active, Name: mc.Name}
	if !mc.ActivatedAt.IsZero() {
		t := mc.ActivatedAt
		resp.ActivatedAt = &t
	}
	return resp
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	mc, err := s.store.MissionContext(r.Context())
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, missionToResponse(mc))
}

type missionActivateRequest struct {
	Name string `json:"name"`
}

// handleActivateMission persists a mission context under which the margin
// policy treats every object as flying a CRITICAL mission. The context is
// read back per screening or planning call, never held in process state.
func (s *Server) handleActivateMission(w http.ResponseWriter, r *http.Request) {
	var req missionActivateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("mission name is required"))
		return
	}

	mc := model.MissionContext{Active: true, Name: name, ActivatedAt: time.Now().UTC()}
	if err := s.store.SetMissionContext(r.Context(), mc); err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.reqLog(r.Context()).Info(r.Context(), "mission context activated", logging.String("mission", name))
	s.writeJSON(w, r, http.StatusOK, missionToResponse(mc))
}

func (s *Server) handleDeactivateMission(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SetMissionContext(r.Context(), model.MissionContext{}); err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.reqLog(r.Context()).Info(r.Context(), "mission context deactivated")
	s.writeJSON(w, r, http.StatusOK, missionToResponse(model.MissionContext{}))
}
