package core

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Maneuver search defaults. The per-axis delta-v bound reflects small
// station-keeping thrusters; the penalty weight prices a miss-distance
// shortfall high enough that fuel cost only matters once the target
// separation is met.
const (
	DefaultDvBoundKmS    = 0.001
	DefaultPenaltyWeight = 1e6

	maneuverMaxIterations = 1000
	maneuverTolerance     = 1e-9

	// Objective value substituted when the post-burn simulation fails,
	// steering the search away from the region.
	failedObjectiveCost = 1e9
)

// ManeuverProposal is the outcome of one avoidance-burn search. Success is
// judged purely on the predicted miss distance; a failed search still
// yields a proposal with the zero burn as a safe fallback.
type ManeuverProposal struct {
	DeltaV             Vec3 // km/s, impulsive
	DeltaVMagKmS       float64
	BurnTime           time.Time
	PredictedTCA       time.Time
	PredictedMissKm    float64
	PredictedRelVelKmS float64
	Success            bool
	Message            string
}

// ManeuverOptions bounds and weights the avoidance search.
type ManeuverOptions struct {
	// TargetMissKm is the minimum separation to restore at TCA. Required.
	TargetMissKm float64
	// DvBoundKmS caps |Δv| per axis. Defaults to DefaultDvBoundKmS.
	DvBoundKmS float64
	// PenaltyWeight prices the squared miss-distance shortfall.
	// Defaults to DefaultPenaltyWeight.
	PenaltyWeight float64
}

// successToleranceKm is the fixed absolute slack when judging whether the
// predicted miss meets the target.
const successToleranceKm = 0.001

// PlanAvoidanceManeuver searches the bounded delta-v box for the smallest
// impulsive burn at burnTime that restores the target separation from the
// threat object at tca.
//
// Each candidate burn is simulated: the pre-burn velocity comes from a
// 1 s finite difference of the maneuverable object's positions, the burn
// is added impulsively, the post-burn state coasts to TCA on the two-body
// model, and the threat flies its catalog trajectory. The objective is
// |Δv| plus a quadratic penalty on any shortfall below the target miss
// distance.
//
// The function never returns an error: any failure produces a proposal
// with Success=false, the zero burn, and a diagnostic message.
func PlanAvoidanceManeuver(maneuverable, threat Ephemeris, burnTime, tca time.Time, opts ManeuverOptions) ManeuverProposal {
	bound := opts.DvBoundKmS
	if bound <= 0 {
		bound = DefaultDvBoundKmS
	}
	penalty := opts.PenaltyWeight
	if penalty <= 0 {
		penalty = DefaultPenaltyWeight
	}
	fallback := ManeuverProposal{
		BurnTime:     burnTime,
		PredictedTCA: tca,
		Success:      false,
	}
	if opts.TargetMissKm <= 0 {
		fallback.Message = "target miss distance must be positive"
		return fallback
	}
	if !tca.After(burnTime) {
		fallback.Message = "burn time must precede TCA"
		return fallback
	}

	preBurn, err := StateWithDerivedVelocity(maneuverable, burnTime)
	if err != nil {
		fallback.Message = fmt.Sprintf("pre-burn state: %v", err)
		return fallback
	}
	coastSec := tca.Sub(burnTime).Seconds()

	// simulate flies the burned trajectory to TCA and reports separation
	// from the threat plus the 1 s finite-difference relative speed. Pure
	// function of dv; safe for concurrent optimizer instances.
	simulate := func(dv Vec3) (missKm, relVelKmS float64, err error) {
		burned := OrbitalState{
			Position: preBurn.Position,
			Velocity: preBurn.Velocity.Add(dv),
			Epoch:    burnTime,
		}
		atTCA, err := PropagateTwoBody(burned, coastSec)
		if err != nil {
			return 0, 0, err
		}
		threatAt, err := threat.PositionAt(tca)
		if err != nil {
			return 0, 0, err
		}
		afterTCA, err := PropagateTwoBody(burned, coastSec+1)
		if err != nil {
			return 0, 0, err
		}
		threatAfter, err := threat.PositionAt(tca.Add(time.Second))
		if err != nil {
			return 0, 0, err
		}

		rel0 := atTCA.Position.Sub(threatAt)
		rel1 := afterTCA.Position.Sub(threatAfter)
		return rel0.Norm(), rel1.Sub(rel0).Norm(), nil
	}

	clamp := func(x []float64) Vec3 {
		c := func(v float64) float64 {
			if v > bound {
				return bound
			}
			if v < -bound {
				return -bound
			}
			return v
		}
		return Vec3{X: c(x[0]), Y: c(x[1]), Z: c(x[2])}
	}

	objective := func(x []float64) float64 {
		dv := clamp(x)
		missKm, _, err := simulate(dv)
		if err != nil {
			return failedObjectiveCost
		}
		shortfall := math.Max(0, opts.TargetMissKm-missKm)
		cost := dv.Norm() + penalty*shortfall*shortfall
		// The search itself is unconstrained; excursions past the box are
		// priced quadratically and the simulation only ever sees the
		// clamped burn.
		for _, v := range x {
			if over := math.Abs(v) - bound; over > 0 {
				cost += penalty * over * over
			}
		}
		return cost
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, nil)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maneuverMaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   maneuverTolerance,
			Relative:   maneuverTolerance,
			Iterations: 10,
		},
	}

	message := "optimization finished"
	result, err := optimize.Minimize(problem, []float64{0, 0, 0}, settings, &optimize.LBFGS{})
	if err != nil {
		if result == nil || len(result.X) != 3 {
			fallback.Message = fmt.Sprintf("optimizer: %v", err)
			return fallback
		}
		// Keep the best point found; success is judged on its simulated
		// miss distance below.
		message = fmt.Sprintf("optimizer stopped early: %v", err)
	}

	dv := clamp(result.X)
	missKm, relVel, err := simulate(dv)
	if err != nil {
		fallback.Message = fmt.Sprintf("final burn simulation: %v", err)
		return fallback
	}

	return ManeuverProposal{
		DeltaV:             dv,
		DeltaVMagKmS:       dv.Norm(),
		BurnTime:           burnTime,
		PredictedTCA:       tca,
		PredictedMissKm:    missKm,
		PredictedRelVelKmS: relVel,
		Success:            missKm >= opts.TargetMissKm-successToleranceKm,
		Message:            message,
	}
}
