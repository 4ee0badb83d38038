package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// Track sampling defaults and the per-request CPU budget.
const (
	defaultTrackMinutes = 90.0
	defaultTrackStepSec = 60.0
	maxTrackPoints      = 5000
)

type objectResponse struct {
	NoradID   int                `json:"norad_id"`
	Name      string             `json:"name"`
	Line1     string             `json:"line1"`
	Line2     string             `json:"line2"`
	Country   string             `json:"country,omitempty"`
	Priority  model.Priority     `json:"priority"`
	Mission   model.MissionClass `json:"mission_class"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func objectToResponse(o model.SpaceObject) objectResponse {
	return objectResponse{
		NoradID:   o.NoradID,
		Name:      o.Name,
		Line1:     o.Line1,
		Line2:     o.Line2,
		Country:   o.Country,
		Priority:  o.Priority,
		Mission:   o.Mission,
		UpdatedAt: o.UpdatedAt,
	}
}

type objectListResponse struct {
	Objects []objectResponse `json:"objects"`
	Count   int              `json:"count"`
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if limit < 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("limit must be positive"))
		return
	}

	q := catalog.ObjectQuery{
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
		Country:  strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))),
		Priority: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("priority"))),
		Limit:    limit,
	}
	objects, err := s.store.Objects(r.Context(), q)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	out := make([]objectResponse, 0, len(objects))
	for _, o := range objects {
		out = append(out, objectToResponse(o))
	}
	s.writeJSON(w, r, http.StatusOK, objectListResponse{Objects: out, Count: len(out)})
}

func (s *Server) handleObjectCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountObjects(r.Context())
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("object id must be an integer"))
		return
	}
	obj, err := s.store.Object(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, objectToResponse(obj))
}

type trackPoint struct {
	T        time.Time    `json:"t"`
	Position vec3Response `json:"position_km"`
	Velocity vec3Response `json:"velocity_km_s"`
}

type trackResponse struct {
	NoradID     int          `json:"norad_id"`
	Name        string       `json:"name"`
	Start       time.Time    `json:"start"`
	StepSeconds float64      `json:"step_seconds"`
	Points      []trackPoint `json:"points"`
}

// handleObjectTrack samples the object's ephemeris from now over the
// requested horizon. Unlike screening, samples carry the model's native
// velocity output.
func (s *Server) handleObjectTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("object id must be an integer"))
		return
	}
	minutes, err := queryFloat(r, "minutes", defaultTrackMinutes)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	stepSec, err := queryFloat(r, "step_seconds", defaultTrackStepSec)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if minutes <= 0 || stepSec <= 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("minutes and step_seconds must be positive"))
		return
	}
	n := int(minutes*60/stepSec) + 1
	if n > maxTrackPoints {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("track request yields %d samples, limit is %d", n, maxTrackPoints))
		return
	}

	obj, err := s.store.Object(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}
	eph, err := s.ephemeris(obj)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity,
			fmt.Errorf("object %d elements: %w", id, err))
		return
	}

	start := time.Now().UTC().Truncate(time.Second)
	states, err := core.SampleTrack(eph, start, time.Duration(stepSec*float64(time.Second)), n)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity,
			fmt.Errorf("object %d track: %w", id, err))
		return
	}

	points := make([]trackPoint, 0, len(states))
	for _, st := range states {
		points = append(points, trackPoint{
			T:        st.Epoch,
			Position: vec3JSON(st.Position),
			Velocity: vec3JSON(st.Velocity),
		})
	}
	s.writeJSON(w, r, http.StatusOK, trackResponse{
		NoradID:     obj.NoradID,
		Name:        obj.Name,
		Start:       start,
		StepSeconds: stepSec,
		Points:      points,
	})
}

type catalogRefreshRequest struct {
	Groups []string `json:"groups"`
}

type catalogRefreshResponse struct {
	Groups   []string `json:"groups"`
	Fetched  int      `json:"fetched"`
	Skipped  int      `json:"skipped"`
	Upserted int      `json:"upserted"`
}

// handleCatalogRefresh pulls fresh element sets for the requested groups
// (or the configured defaults) and upserts them into the catalog.
func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, errors.New("catalog fetch not configured"))
		return
	}

	var req catalogRefreshRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	groups := req.Groups
	if len(groups) == 0 {
		groups = s.fetchGroups
	}
	if len(groups) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("no catalog groups configured"))
		return
	}

	result, err := s.fetcher.FetchGroups(r.Context(), groups)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	upserted, err := s.store.UpsertObjects(r.Context(), result.Objects)
	if err != nil {
		s.writeError(w, r, statusForError(err), err)
		return
	}

	if count, err := s.store.CountObjects(r.Context()); err == nil && s.metrics != nil {
		s.metrics.SetCatalogObjects(count)
	}
	s.reqLog(r.Context()).Info(r.Context(), "catalog refreshed",
		logging.Any("groups", groups),
		logging.Int("fetched", len(result.Objects)),
		logging.Int("skipped", result.Skipped))

	s.writeJSON(w, r, http.StatusOK, catalogRefreshResponse{
		Groups:   groups,
		Fetched:  len(result.Objects),
		Skipped:  result.Skipped,
		Upserted: upserted,
	})
}
