// Package maneuver plans avoidance burns for at-risk catalog pairs. The
// service resolves both objects from the catalog, widens the target
// separation per classification policy, and hands the bounded delta-v
// search to the optimizer. Policy lives here; the optimizer stays
// policy-free.
package maneuver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

const tracerName = "github.com/signalsfoundry/conjunction-engine/internal/maneuver"

const (
	// DefaultTargetMissKm is the baseline separation restored at TCA.
	DefaultTargetMissKm = 2.0
	// DefaultDvBoundKmS caps each burn axis, sized for station-keeping
	// thrusters.
	DefaultDvBoundKmS = 0.002
	// DefaultPenaltyWeight prices miss-distance shortfall in the search
	// objective.
	DefaultPenaltyWeight = 1e5
	// DefaultLeadTime places the burn ahead of the predicted conjunction.
	DefaultLeadTime = time.Hour

	criticalMarginFactor = 1.5
	homeNationFloorKm    = 5.0
)

// Margin policy rules reported in Result.MarginRule.
const (
	MarginRuleBaseline        = "baseline"
	MarginRuleCriticalMission = "critical_mission"
	MarginRuleHomeNationFloor = "home_nation_floor"
)

var (
	// ErrSameObject rejects planning an object against itself.
	ErrSameObject = errors.New("maneuver: object and threat are the same")
	// ErrMissingTCA rejects requests without a time of closest approach.
	ErrMissingTCA = errors.New("maneuver: tca is required")
)

// MetricsRecorder counts planning outcomes for export.
// *observability.ScreeningCollector satisfies it.
type MetricsRecorder interface {
	RecordManeuverPlan(success bool)
}

// EphemerisFactory builds the propagator for one catalog object. The default
// factory initializes the SGP4 model from the object's element lines; tests
// substitute analytic ephemerides.
type EphemerisFactory func(obj model.SpaceObject) (core.Ephemeris, error)

// Service plans avoidance maneuvers against the catalog.
type Service struct {
	store     *catalog.Store
	log       logging.Logger
	metrics   MetricsRecorder
	ephemeris EphemerisFactory

	targetMissKm  float64
	dvBoundKmS    float64
	penaltyWeight float64
	leadTime      time.Duration
	homeCountry   string
}

// Option customises Service construction.
type Option func(*Service)

// WithTargetMiss sets the baseline target separation in kilometres.
func WithTargetMiss(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.targetMissKm = km
		}
	}
}

// WithDvBound sets the per-axis delta-v cap in km/s.
func WithDvBound(kms float64) Option {
	return func(s *Service) {
		if kms > 0 {
			s.dvBoundKmS = kms
		}
	}
}

// WithPenaltyWeight sets the shortfall penalty in the search objective.
func WithPenaltyWeight(w float64) Option {
	return func(s *Service) {
		if w > 0 {
			s.penaltyWeight = w
		}
	}
}

// WithLeadTime sets how far before TCA the burn is scheduled.
func WithLeadTime(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.leadTime = d
		}
	}
}

// WithHomeCountry names the operator nation whose PRIMARY objects get the
// floored margin. Empty disables the rule.
func WithHomeCountry(country string) Option {
	return func(s *Service) { s.homeCountry = country }
}

// WithMetrics attaches an optional metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEphemerisFactory replaces the propagator construction hook.
func WithEphemerisFactory(f EphemerisFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.ephemeris = f
		}
	}
}

// NewService wires a maneuver planning service over the catalog store.
func NewService(store *catalog.Store, log logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{
		store:         store,
		log:           log,
		targetMissKm:  DefaultTargetMissKm,
		dvBoundKmS:    DefaultDvBoundKmS,
		penaltyWeight: DefaultPenaltyWeight,
		leadTime:      DefaultLeadTime,
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

// Request identifies the at-risk pair and the conjunction to defuse.
type Request struct {
	// ObjectID is the maneuverable object; ThreatID flies its catalog
	// trajectory unchanged.
	ObjectID int
	ThreatID int
	// TCA is the predicted time of closest approach. Required.
	TCA time.Time
	// TargetMarginKm overrides the baseline separation before policy is
	// applied. Zero means the service default.
	TargetMarginKm float64
}

// Result carries the optimizer proposal plus the margin policy that
// shaped it.
type Result struct {
	core.ManeuverProposal

	ObjectID       int
	ThreatID       int
	TargetMarginKm float64
	MarginRule     string
}

// Plan resolves the pair from the catalog, applies the margin policy under
// the persisted mission context, and searches for the minimal burn. Search
// failures never surface as errors: they come back as unsuccessful
// proposals with a diagnostic message.
func (s *Service) Plan(ctx context.Context, req Request) (Result, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "maneuver.plan")
	defer span.End()
	span.SetAttributes(
		attribute.Int("object_id", req.ObjectID),
		attribute.Int("threat_id", req.ThreatID),
	)

	if req.ObjectID == req.ThreatID {
		return Result{}, ErrSameObject
	}
	if req.TCA.IsZero() {
		return Result{}, ErrMissingTCA
	}

	obj, err := s.store.Object(ctx, req.ObjectID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("maneuverable object: %w", err)
	}
	threat, err := s.store.Object(ctx, req.ThreatID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("threat object: %w", err)
	}
	mission, err := s.store.MissionContext(ctx)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("mission context: %w", err)
	}

	base := req.TargetMarginKm
	if base <= 0 {
		base = s.targetMissKm
	}
	margin, rule := s.applyMarginPolicy(base, obj, threat, mission)
	span.SetAttributes(
		attribute.Float64("target_margin_km", margin),
		attribute.String("margin_rule", rule),
	)

	objEph, err := s.ephemeris(obj)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("object %d elements: %w", obj.NoradID, err)
	}
	threatEph, err := s.ephemeris(threat)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("object %d elements: %w", threat.NoradID, err)
	}

	tca := req.TCA.UTC()
	burnTime := tca.Add(-s.leadTime)

	proposal := core.PlanAvoidanceManeuver(objEph, threatEph, burnTime, tca, core.ManeuverOptions{
		TargetMissKm:  margin,
		DvBoundKmS:    s.dvBoundKmS,
		PenaltyWeight: s.penaltyWeight,
	})
	span.SetAttributes(attribute.Bool("success", proposal.Success))
	if s.metrics != nil {
		s.metrics.RecordManeuverPlan(proposal.Success)
	}

	s.log.Info(ctx, "maneuver plan computed",
		logging.Int("object_id", req.ObjectID),
		logging.Int("threat_id", req.ThreatID),
		logging.Any("success", proposal.Success),
		logging.Float64("delta_v_km_s", proposal.DeltaVMagKmS),
		logging.Float64("predicted_miss_km", proposal.PredictedMissKm),
		logging.Float64("target_margin_km", margin),
		logging.String("margin_rule", rule),
		logging.Time("burn_time", burnTime))

	return Result{
		ManeuverProposal: proposal,
		ObjectID:         req.ObjectID,
		ThreatID:         req.ThreatID,
		TargetMarginKm:   margin,
		MarginRule:       rule,
	}, nil
}

// applyMarginPolicy widens the requested margin per classification. A
// CRITICAL mission on either object, or an active mission context, widens
// the target by half; a home-nation PRIMARY object under normal status is
// floored at homeNationFloorKm. The critical rule wins when both apply.
func (s *Service) applyMarginPolicy(base float64, obj, threat model.SpaceObject, mission model.MissionContext) (float64, string) {
	critical := mission.Active ||
		obj.Mission == model.MissionCritical ||
		threat.Mission == model.MissionCritical
	switch {
	case critical:
		return base * criticalMarginFactor, MarginRuleCriticalMission
	case obj.Priority == model.PriorityPrimary && obj.IsHomeNation(s.homeCountry):
		return math.Max(base, homeNationFloorKm), MarginRuleHomeNationFloor
	default:
		return base, MarginRuleBaseline
	}
}
