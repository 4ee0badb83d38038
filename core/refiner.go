package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// ErrRefinementFailed reports a numerical failure inside the narrow-phase
// search. Callers treat the pair as yielding no event and continue.
var ErrRefinementFailed = errors.New("refinement failed")

// Screening thresholds in kilometres and km/s. A refined miss distance at
// or below CriticalThresholdKm scores 1.0; beyond MonitorThresholdKm it
// scores 0. Pairs whose analytic miss exceeds twice the monitor threshold
// skip refinement entirely.
const (
	CriticalThresholdKm = 10.0
	MonitorThresholdKm  = 75.0

	DockingMaxDistanceKm = 1.0
	DockingMaxSpeedKmS   = 0.01

	// DefaultAnalysisWindowSec bounds how far from the reference epoch a
	// close approach may lie before the pair is dismissed.
	DefaultAnalysisWindowSec = 7200.0

	// Narrow-phase search runs over tca ± refineWindowSec at
	// refineTolSec resolution.
	refineWindowSec = 600.0
	refineTolSec    = 0.01
	refineMaxEvals  = 500

	// Squared-distance objective value substituted when propagation fails
	// inside the search, steering the minimizer away from the region.
	failedObjectiveDistSq = 1e9
)

// Candidate is one side of a candidate pair entering narrow-phase
// analysis: the object's id, its ephemeris, and its state at the shared
// reference epoch.
type Candidate struct {
	ID    int
	Eph   Ephemeris
	State OrbitalState
}

// RiskScore maps a miss distance to a risk score in [0, 1]: 1 at or below
// the critical threshold, 0 above the monitor threshold, linear between.
func RiskScore(missKm float64) float64 {
	if missKm <= CriticalThresholdKm {
		return 1.0
	}
	if missKm > MonitorThresholdKm {
		return 0.0
	}
	s := (MonitorThresholdKm - missKm) / (MonitorThresholdKm - CriticalThresholdKm)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// RefineConjunction evaluates one candidate pair. An analytic
// constant-relative-velocity estimate decides whether the pair merits the
// expensive search; pairs that are too distant or whose approach lies
// outside windowSec produce a zero-score event carrying the analytic
// numbers. Otherwise the squared separation is minimised around the
// analytic estimate against the real propagator, and the event is scored
// and classified.
//
// A propagation failure while sampling the refined approach returns
// ErrRefinementFailed; one pair's failure never aborts a screening pass.
func RefineConjunction(a, b Candidate, refTime time.Time, windowSec float64) (model.ConjunctionEvent, error) {
	if windowSec <= 0 {
		windowSec = DefaultAnalysisWindowSec
	}

	relPos := a.State.Position.Sub(b.State.Position)
	relVel := a.State.Velocity.Sub(b.State.Velocity)
	tOffset, analyticMiss := AnalyticCloseApproach(relPos, relVel)

	if math.Abs(tOffset) > windowSec || analyticMiss > 2*MonitorThresholdKm {
		return model.ConjunctionEvent{
			Object1ID:      a.ID,
			Object2ID:      b.ID,
			TCA:            refTime.Add(durationSec(tOffset)),
			MissKm:         analyticMiss,
			RelVelocityKmS: relVel.Norm(),
			RiskScore:      0,
			EventType:      model.EventCollision,
		}, nil
	}

	separationSq := func(dt float64) float64 {
		t := refTime.Add(durationSec(dt))
		p1, err := a.Eph.PositionAt(t)
		if err != nil {
			return failedObjectiveDistSq
		}
		p2, err := b.Eph.PositionAt(t)
		if err != nil {
			return failedObjectiveDistSq
		}
		d := p1.Sub(p2)
		return d.Dot(d)
	}

	refinedOffset, distSq := minimizeBounded(separationSq,
		tOffset-refineWindowSec, tOffset+refineWindowSec, refineTolSec, refineMaxEvals)
	tca := refTime.Add(durationSec(refinedOffset))
	missKm := math.Sqrt(math.Max(distSq, 0))

	relSpeed, err := relativeSpeedAt(a.Eph, b.Eph, tca)
	if err != nil {
		return model.ConjunctionEvent{}, fmt.Errorf("%w: pair (%d,%d): %v", ErrRefinementFailed, a.ID, b.ID, err)
	}

	score := RiskScore(missKm)
	eventType := model.EventCollision
	if missKm < DockingMaxDistanceKm && relSpeed < DockingMaxSpeedKmS {
		// Intentional formation flight: the pair is as close as a
		// collision but essentially co-moving.
		eventType = model.EventDocking
		score = 1.0
	}

	return model.ConjunctionEvent{
		Object1ID:      a.ID,
		Object2ID:      b.ID,
		TCA:            tca,
		MissKm:         missKm,
		RelVelocityKmS: relSpeed,
		RiskScore:      score,
		EventType:      eventType,
	}, nil
}

// relativeSpeedAt estimates |d/dt (p1 - p2)| at t by a 0.1 s forward
// finite difference.
func relativeSpeedAt(e1, e2 Ephemeris, t time.Time) (float64, error) {
	const step = 100 * time.Millisecond

	rel := func(at time.Time) (Vec3, error) {
		p1, err := e1.PositionAt(at)
		if err != nil {
			return Vec3{}, err
		}
		p2, err := e2.PositionAt(at)
		if err != nil {
			return Vec3{}, err
		}
		return p1.Sub(p2), nil
	}

	r0, err := rel(t)
	if err != nil {
		return 0, err
	}
	r1, err := rel(t.Add(step))
	if err != nil {
		return 0, err
	}
	return r1.Sub(r0).Norm() / step.Seconds(), nil
}

func durationSec(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
