// Package screening runs the two-phase conjunction screening pipeline:
// a kd-tree proximity prune over a shared-epoch snapshot, then parallel
// narrow-phase refinement of every surviving pair. Each pass appends a
// batch of events to the catalog; the latest completed batch is the
// current conjunction picture.
package screening

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/notify"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const tracerName = "github.com/signalsfoundry/conjunction-engine/internal/screening"

const (
	// DefaultPruneRadiusKm is the broad-phase proximity radius.
	DefaultPruneRadiusKm = 300.0
	// DefaultSaveThresholdKm caps the miss distance of persisted
	// COLLISION events.
	DefaultSaveThresholdKm = 150.0
)

// MetricsRecorder receives screening pass outcomes for export.
// *observability.ScreeningCollector satisfies it.
type MetricsRecorder interface {
	RecordRun(status string, d time.Duration, candidatePairs int)
	AddSavedEvents(eventType string, n int)
	IncRefinementFailures()
	RecordNotification(delivered bool)
}

// EphemerisFactory builds the propagator for one catalog object. The default
// factory initializes the SGP4 model from the object's element lines; tests
// substitute analytic ephemerides.
type EphemerisFactory func(obj model.SpaceObject) (core.Ephemeris, error)

// Service executes screening passes against the catalog.
type Service struct {
	store     *catalog.Store
	log       logging.Logger
	metrics   MetricsRecorder
	notifier  notify.Notifier
	ephemeris EphemerisFactory

	notifyThreshold float64
	pruneRadiusKm   float64
	saveThresholdKm float64
	windowSec       float64
	workers         int
}

// Option customises Service construction.
type Option func(*Service)

// WithPruneRadius sets the broad-phase proximity radius in kilometres.
func WithPruneRadius(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.pruneRadiusKm = km
		}
	}
}

// WithSaveThreshold sets the persistence cutoff for COLLISION miss
// distances, in kilometres.
func WithSaveThreshold(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.saveThresholdKm = km
		}
	}
}

// WithAnalysisWindow sets the default analysis window around the reference
// epoch.
func WithAnalysisWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.windowSec = d.Seconds()
		}
	}
}

// WithWorkers caps the number of concurrent refinement workers. Zero or
// negative means one worker per CPU.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// WithMetrics attaches an optional metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier attaches an alert channel for saved events whose risk score
// reaches scoreThreshold.
func WithNotifier(n notify.Notifier, scoreThreshold float64) Option {
	return func(s *Service) {
		s.notifier = n
		s.notifyThreshold = scoreThreshold
	}
}

// WithEphemerisFactory replaces the propagator construction hook.
func WithEphemerisFactory(f EphemerisFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.ephemeris = f
		}
	}
}

// NewService wires a screening service over the catalog store.
func NewService(store *catalog.Store, log logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{
		store:           store,
		log:             log,
		pruneRadiusKm:   DefaultPruneRadiusKm,
		saveThresholdKm: DefaultSaveThresholdKm,
		windowSec:       core.DefaultAnalysisWindowSec,
		ephemeris: func(obj model.SpaceObject) (core.Ephemeris, error) {
			return core.NewSGP4(obj.Line1, obj.Line2)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Request selects the screening epoch and window. Zero values fall back to
// the service defaults.
type Request struct {
	ReferenceTime time.Time
	WindowSec     float64
}

// Result summarises one screening pass.
type Result struct {
	BatchID        string
	Status         string
	ReferenceTime  time.Time
	WindowSeconds  float64
	ObjectsTotal   int
	ObjectsUsable  int
	CandidatePairs int
	SavedEvents    int
	RefineFailures int
}

// Run executes one screening pass: snapshot the catalog at the reference
// epoch, prune to candidate pairs, refine each pair, persist the batch, and
// push alerts for high-risk events. Individual object or pair failures are
// logged and skipped; only catalog errors or cancellation abort the pass.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	ref := req.ReferenceTime
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = ref.UTC()
	windowSec := req.WindowSec
	if windowSec <= 0 {
		windowSec = s.windowSec
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "screening.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("reference_time", ref.Format(time.RFC3339)),
		attribute.Float64("window_seconds", windowSec),
	)

	objects, err := s.store.AllObjects(ctx)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("load catalog: %w", err)
	}

	candidates, names := s.snapshot(ctx, objects, ref)

	res := Result{
		ReferenceTime: ref,
		WindowSeconds: windowSec,
		ObjectsTotal:  len(objects),
		ObjectsUsable: len(candidates),
	}

	if len(candidates) < 2 {
		batch := model.ScreeningBatch{
			ID:            uuid.NewString(),
			RunAt:         ref,
			WindowSeconds: windowSec,
			Status:        model.BatchInsufficientData,
		}
		if err := s.store.SaveBatch(ctx, batch, nil); err != nil {
			span.RecordError(err)
			return Result{}, fmt.Errorf("save batch: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordRun(model.BatchInsufficientData, time.Since(start), 0)
		}
		s.log.Warn(ctx, "screening pass has insufficient data",
			logging.String("batch_id", batch.ID),
			logging.Int("objects_total", len(objects)),
			logging.Int("objects_usable", len(candidates)))
		res.BatchID = batch.ID
		res.Status = model.BatchInsufficientData
		return res, nil
	}

	positions := make(map[int]core.Vec3, len(candidates))
	for id, c := range candidates {
		positions[id] = c.State.Position
	}
	pairs := core.ClosePairs(positions, s.pruneRadiusKm)
	res.CandidatePairs = len(pairs)
	span.SetAttributes(attribute.Int("candidate_pairs", len(pairs)))

	events, failures := s.refineAll(ctx, candidates, pairs, ref, windowSec)
	res.RefineFailures = failures
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("screening cancelled: %w", err)
	}

	saved := make([]model.ConjunctionEvent, 0, len(events))
	for _, ev := range events {
		if s.shouldSave(ev) {
			saved = append(saved, ev)
		}
	}

	batch := model.ScreeningBatch{
		ID:             uuid.NewString(),
		RunAt:          ref,
		WindowSeconds:  windowSec,
		CandidatePairs: len(pairs),
		SavedEvents:    len(saved),
		Status:         model.BatchCompleted,
	}
	if err := s.store.SaveBatch(ctx, batch, saved); err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("save batch: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRun(model.BatchCompleted, time.Since(start), len(pairs))
		byType := make(map[model.EventType]int)
		for _, ev := range saved {
			byType[ev.EventType]++
		}
		for et, n := range byType {
			s.metrics.AddSavedEvents(string(et), n)
		}
	}

	s.notifyHighRisk(ctx, batch.ID, saved, names)

	s.log.Info(ctx, "screening pass completed",
		logging.String("batch_id", batch.ID),
		logging.Int("objects_usable", len(candidates)),
		logging.Int("candidate_pairs", len(pairs)),
		logging.Int("saved_events", len(saved)),
		logging.Int("refine_failures", failures),
		logging.Duration("elapsed", time.Since(start)))

	res.BatchID = batch.ID
	res.Status = model.BatchCompleted
	res.SavedEvents = len(saved)
	return res, nil
}

// snapshot builds per-object ephemerides and reference states, skipping
// objects whose elements fail to initialize or propagate.
func (s *Service) snapshot(ctx context.Context, objects []model.SpaceObject, ref time.Time) (map[int]core.Candidate, map[int]string) {
	candidates := make(map[int]core.Candidate, len(objects))
	names := make(map[int]string, len(objects))
	for _, obj := range objects {
		eph, err := s.ephemeris(obj)
		if err != nil {
			s.log.Warn(ctx, "skipping object with unusable elements",
				logging.Int("norad_id", obj.NoradID), logging.Err(err))
			continue
		}
		// Velocity is the 1 s forward difference of positions, matching
		// what the refiner's analytic estimate assumes.
		st, err := core.StateWithDerivedVelocity(eph, ref)
		if err != nil {
			s.log.Warn(ctx, "skipping object that fails propagation",
				logging.Int("norad_id", obj.NoradID), logging.Err(err))
			continue
		}
		candidates[obj.NoradID] = core.Candidate{ID: obj.NoradID, Eph: eph, State: st}
		names[obj.NoradID] = obj.Name
	}
	return candidates, names
}

type refineOutcome struct {
	pair  core.CandidatePair
	event model.ConjunctionEvent
	err   error
}

// refineAll fans candidate pairs out over a bounded worker pool. Failed
// refinements are counted and logged, never fatal.
func (s *Service) refineAll(ctx context.Context, candidates map[int]core.Candidate, pairs []core.CandidatePair, ref time.Time, windowSec float64) ([]model.ConjunctionEvent, int) {
	if len(pairs) == 0 {
		return nil, 0
	}

	workers := s.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	jobs := make(chan core.CandidatePair, workers*2)
	results := make(chan refineOutcome, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range jobs {
				ev, err := core.RefineConjunction(candidates[pair.ID1], candidates[pair.ID2], ref, windowSec)
				select {
				case results <- refineOutcome{pair: pair, event: ev, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range pairs {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var events []model.ConjunctionEvent
	var failures int
	for out := range results {
		if out.err != nil {
			failures++
			if s.metrics != nil {
				s.metrics.IncRefinementFailures()
			}
			s.log.Warn(ctx, "pair refinement failed",
				logging.Int("object1", out.pair.ID1),
				logging.Int("object2", out.pair.ID2),
				logging.Err(out.err))
			continue
		}
		events = append(events, out.event)
	}
	return events, failures
}

// shouldSave applies the persistence policy: DOCKING events always,
// COLLISION events only while scored and inside the save threshold.
func (s *Service) shouldSave(ev model.ConjunctionEvent) bool {
	if ev.EventType == model.EventDocking {
		return true
	}
	return ev.RiskScore > 0 && ev.MissKm < s.saveThresholdKm
}

// notifyHighRisk pushes saved events at or above the notification threshold
// through the configured channel. Delivery failures are logged and counted.
func (s *Service) notifyHighRisk(ctx context.Context, batchID string, events []model.ConjunctionEvent, names map[int]string) {
	if s.notifier == nil {
		return
	}
	for _, ev := range events {
		if ev.RiskScore < s.notifyThreshold {
			continue
		}
		alert := notify.Event{
			BatchID:        batchID,
			Object1ID:      ev.Object1ID,
			Object2ID:      ev.Object2ID,
			Object1Name:    names[ev.Object1ID],
			Object2Name:    names[ev.Object2ID],
			TCA:            ev.TCA,
			MissKm:         ev.MissKm,
			RelVelocityKmS: ev.RelVelocityKmS,
			RiskScore:      ev.RiskScore,
			EventType:      ev.EventType,
		}
		if err := s.notifier.Notify(ctx, alert); err != nil {
			if s.metrics != nil {
				s.metrics.RecordNotification(false)
			}
			s.log.Error(ctx, "alert delivery failed",
				logging.Int("object1", ev.Object1ID),
				logging.Int("object2", ev.Object2ID),
				logging.Err(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordNotification(true)
		}
	}
}
