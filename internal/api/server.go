// Package api exposes the engine over HTTP/JSON: catalog queries, screening
// passes, the current conjunction picture, maneuver planning, and the
// mission-context switch. Handlers validate input, translate service errors
// to status codes, and leave all domain logic to the services they front.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/ingest"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/maneuver"
	"github.com/signalsfoundry/conjunction-engine/internal/screening"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const tracerName = "github.com/signalsfoundry/conjunction-engine/internal/api"

const requestIDHeader = "X-Request-Id"

// Screener runs conjunction screening passes.
type Screener interface {
	Run(ctx context.Context, req screening.Request) (screening.Result, error)
}

// Planner searches for avoidance burns.
type Planner interface {
	Plan(ctx context.Context, req maneuver.Request) (maneuver.Result, error)
}

// Fetcher pulls element sets from the upstream catalog service.
type Fetcher interface {
	FetchGroups(ctx context.Context, groups []string) (ingest.ParseResult, error)
}

// MetricsRecorder receives per-request observations and catalog gauges.
// *observability.APICollector satisfies it.
type MetricsRecorder interface {
	ObserveRequest(method, route string, status int, d time.Duration)
	SetCatalogObjects(count int)
}

// EphemerisFactory builds the propagator behind the track endpoint.
type EphemerisFactory func(obj model.SpaceObject) (core.Ephemeris, error)

// Server is the HTTP face of the engine.
type Server struct {
	store     *catalog.Store
	screener  Screener
	planner   Planner
	fetcher   Fetcher
	log       logging.Logger
	metrics   MetricsRecorder
	ephemeris EphemerisFactory

	fetchGroups []string
	handler     http.Handler
}

// Option customises Server construction.
type Option func(*Server)

// WithScreener attaches the screening service.
func WithScreener(sc Screener) Option {
	return func(s *Server) { s.screener = sc }
}

// WithPlanner attaches the maneuver planning service.
func WithPlanner(p Planner) Option {
	return func(s *Server) { s.planner = p }
}

// WithFetcher attaches the catalog fetch client and the groups refreshed
// when a request names none.
func WithFetcher(f Fetcher, defaultGroups []string) Option {
	return func(s *Server) {
		s.fetcher = f
		s.fetchGroups = defaultGroups
	}
}

// WithMetrics attaches an optional metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEphemerisFactory replaces the propagator construction hook.
func WithEphemerisFactory(f EphemerisFactory) Option {
	return func(s *Server) {
		if f != nil {
			s.ephemeris = f
		}
	}
}

// NewServer wires the HTTP surface over the catalog store and the attached
// services. Endpoints whose service is absent answer 503.
func NewServer(store *catalog.Store, log logging.Logger, opts ...Option) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		store: store,
		log:   log,
		ephemeris: func(obj model.SpaceObject) (core.Ephemeris, error) {
			return core.NewSGP4(obj.Line1, obj.Line2)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.observe(handler)
	handler = s.withRequestID(handler)
	s.handler = handler
	return s
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /screening/run", s.handleScreeningRun)
	mux.HandleFunc("GET /events", s.handleListEvents)

	mux.HandleFunc("POST /maneuvers/plan", s.handlePlanManeuver)

	mux.HandleFunc("GET /mission", s.handleGetMission)
	mux.HandleFunc("POST /mission/activate", s.handleActivateMission)
	mux.HandleFunc("POST /mission/deactivate", s.handleDeactivateMission)

	mux.HandleFunc("GET /objects", s.handleListObjects)
	mux.HandleFunc("GET /objects/count", s.handleObjectCount)
	mux.HandleFunc("GET /objects/{id}", s.handleGetObject)
	mux.HandleFunc("GET /objects/{id}/track", s.handleObjectTrack)
	mux.HandleFunc("POST /catalog/refresh", s.handleCatalogRefresh)
}

type healthResponse struct {
	Status      string `json:"status"`
	ObjectCount int    `json:"object_count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountObjects(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SetCatalogObjects(count)
	}
	s.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", ObjectCount: count})
}

// withRequestID sources a request id from the inbound header when present,
// attaches a request-scoped logger to the context, and echoes the id back.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log)
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// observe wraps dispatch with a server span, request metrics, and an access
// log line. The route label is the matched mux pattern, never the raw path,
// keeping label cardinality bounded.
func (s *Server) observe(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		r = r.WithContext(ctx)

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		elapsed := time.Since(start)
		route := routeLabel(r)
		if r.Pattern != "" {
			span.SetName(r.Pattern)
		}
		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", sr.status),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, sr.status, elapsed)
		}

		log := s.reqLog(ctx)
		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", sr.status),
			logging.Duration("elapsed", elapsed),
			logging.String("remote", r.RemoteAddr),
		}
		if r.URL.Path == "/health" {
			log.Debug(ctx, "request handled", fields...)
		} else {
			log.Info(ctx, "request handled", fields...)
		}
	})
}

// routeLabel is the path part of the matched pattern ("GET /objects/{id}"
// yields "/objects/{id}"); unmatched requests share one label.
func routeLabel(r *http.Request) string {
	p := r.Pattern
	if p == "" {
		return "unmatched"
	}
	if i := strings.IndexByte(p, ' '); i >= 0 {
		p = p[i+1:]
	}
	return p
}
