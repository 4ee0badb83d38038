package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/maneuver"
)

type maneuverPlanRequest struct {
	// ObjectID is the maneuverable object; ThreatID keeps its trajectory.
	ObjectID int `json:"object_id"`
	ThreatID int `json:"threat_id"`
	// TCA is the predicted closest approach in RFC 3339. Required.
	TCA string `json:"tca"`
	// TargetMarginKm overrides the baseline separation; zero means the
	// configured default. Margin policy still applies on top.
	TargetMarginKm float64 `json:"target_margin_km"`
}

type maneuverPlanResponse struct {
	Success            bool         `json:"success"`
	Message            string       `json:"message,omitempty"`
	ObjectID           int          `json:"object_id"`
	ThreatID           int          `json:"threat_id"`
	BurnTime           time.Time    `json:"burn_time"`
	PredictedTCA       time.Time    `json:"predicted_tca"`
	PredictedMissKm    float64      `json:"predicted_miss_km"`
	PredictedRelVelKmS float64      `json:"predicted_rel_velocity_km_s"`
	DeltaVKmS          vec3Response `json:"delta_v_km_s"`
	DeltaVMagMS        float64      `json:"delta_v_magnitude_m_s"`
	TargetMarginKm     float64      `json:"target_margin_km"`
	MarginRule         string       `json:"margin_rule"`
}

func (s *Server) handlePlanManeuver(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("maneuver service not configured"))
		return
	}

	var req maneuverPlanRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var tca time.Time
	if req.TCA != "" {
		parsed, err := time.Parse(time.RFC3339, req.TCA)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("tca: %w", err))
			return
		}
		tca = parsed
	}

	res, err := s.planner.Plan(r.Context(), maneuver.Request{
		ObjectID:       req.ObjectID,
		ThreatID:       req.ThreatID,
		TCA:            tca,
		TargetMarginKm: req.TargetMarginKm,
	})
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, maneuverPlanResponse{
		Success:            res.Success,
		Message:            res.Message,
		ObjectID:           res.ObjectID,
		ThreatID:           res.ThreatID,
		BurnTime:           res.BurnTime,
		PredictedTCA:       res.PredictedTCA,
		PredictedMissKm:    res.PredictedMissKm,
		PredictedRelVelKmS: res.PredictedRelVelKmS,
		DeltaVKmS:          vec3JSON(res.DeltaV),
		DeltaVMagMS:        res.DeltaVMagKmS * 1000,
		TargetMarginKm:     res.TargetMarginKm,
		MarginRule:         res.MarginRule,
	})
}
