package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/screening"
	"github.com/signalsfoundry/conjunction-engine/model"
)

type screeningRunRequest struct {
	// ReferenceTime is the screening epoch in RFC 3339; empty means now.
	ReferenceTime string `json:"reference_time"`
	// WindowHours overrides the analysis window; zero means the default.
	WindowHours float64 `json:"window_hours"`
}

type screeningRunResponse struct {
	BatchID        string    `json:"batch_id"`
	Status         string    `json:"status"`
	ReferenceTime  time.Time `json:"reference_time"`
	WindowSeconds  float64   `json:"window_seconds"`
	ObjectsTotal   int       `json:"objects_total"`
	ObjectsUsable  int       `json:"objects_usable"`
	CandidatePairs int       `json:"candidate_pairs"`
	SavedEvents    int       `json:"saved_events"`
	RefineFailures int       `json:"refine_failures"`
}

func (s *Server) handleScreeningRun(w http.ResponseWriter, r *http.Request) {
	if s.screener == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("screening service not configured"))
		return
	}

	var req screeningRunRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var ref time.Time
	if req.ReferenceTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.ReferenceTime)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("reference_time: %w", err))
			return
		}
		ref = parsed
	}
	if req.WindowHours < 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("window_hours must be positive"))
		return
	}

	res, err := s.screener.Run(r.Context(), screening.Request{
		ReferenceTime: ref,
		WindowSec:     req.WindowHours * 3600,
	})
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, screeningRunResponse{
		BatchID:        res.BatchID,
		Status:         res.Status,
		ReferenceTime:  res.ReferenceTime,
		WindowSeconds:  res.WindowSeconds,
		ObjectsTotal:   res.ObjectsTotal,
		ObjectsUsable:  res.ObjectsUsable,
		CandidatePairs: res.CandidatePairs,
		SavedEvents:    res.SavedEvents,
		RefineFailures: res.RefineFailures,
	})
}

type eventResponse struct {
	BatchID        string          `json:"batch_id"`
	Object1ID      int             `json:"object1_id"`
	Object1Name    string          `json:"object1_name"`
	Object1Country string          `json:"object1_country,omitempty"`
	Object2ID      int             `json:"object2_id"`
	Object2Name    string          `json:"object2_name"`
	Object2Country string          `json:"object2_country,omitempty"`
	TCA            time.Time       `json:"tca"`
	MissKm         float64         `json:"miss_distance_km"`
	RelVelocityKmS float64         `json:"rel_velocity_km_s"`
	RiskScore      float64         `json:"risk_score"`
	EventType      model.EventType `json:"event_type"`
}

type eventListResponse struct {
	Events []eventResponse `json:"events"`
	Count  int             `json:"count"`
}

// handleListEvents serves the current conjunction view: events from the
// latest completed screening batch, highest risk first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if limit < 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("limit must be positive"))
		return
	}

	q := catalog.EventQuery{
		Limit:     limit,
		EventType: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))),
		Country:   strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))),
		Priority:  strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("priority"))),
	}
	records, err := s.store.Events(r.Context(), q)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	events := make([]eventResponse, 0, len(records))
	for _, rec := range records {
		events = append(events, eventResponse{
			BatchID:        rec.BatchID,
			Object1ID:      rec.Object1ID,
			Object1Name:    rec.Object1Name,
			Object1Country: rec.Object1Country,
			Object2ID:      rec.Object2ID,
			Object2Name:    rec.Object2Name,
			Object2Country: rec.Object2Country,
			TCA:            rec.TCA,
			MissKm:         rec.MissKm,
			RelVelocityKmS: rec.RelVelocityKmS,
			RiskScore:      rec.RiskScore,
			EventType:      rec.EventType,
		})
	}
	s.writeJSON(w, r, http.StatusOK, eventListResponse{Events: events, Count: len(events)})
}
