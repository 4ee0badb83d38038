package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrKeplerNoConvergence reports that the universal-variable solver failed
// to converge for the requested time of flight.
var ErrKeplerNoConvergence = errors.New("two-body solver did not converge")

const (
	keplerTolerance = 1e-6
	keplerMaxIter   = 100
)

// PropagateTwoBody advances an inertial state by dtSeconds under pure
// Keplerian motion (no drag, no perturbations) using the universal
// variable formulation. This is the forward model for post-burn
// trajectories, where no element set exists for the perturbed orbit.
func PropagateTwoBody(state OrbitalState, dtSeconds float64) (OrbitalState, error) {
	if dtSeconds == 0 {
		return state, nil
	}

	r0v := state.Position
	v0v := state.Velocity
	r0 := r0v.Norm()
	if r0 == 0 {
		return OrbitalState{}, fmt.Errorf("%w: zero radius state", ErrKeplerNoConvergence)
	}
	v0 := v0v.Norm()
	rdotv := r0v.Dot(v0v)
	sqrtMu := math.Sqrt(MuEarth)

	// Reciprocal semi-major axis; sign selects the conic.
	alpha := 2/r0 - v0*v0/MuEarth

	var chi float64
	switch {
	case alpha > 1e-6:
		chi = sqrtMu * dtSeconds * alpha
	case alpha < -1e-6:
		a := 1 / alpha
		sign := 1.0
		if dtSeconds < 0 {
			sign = -1.0
		}
		num := -2 * MuEarth * alpha * dtSeconds
		den := rdotv + sign*math.Sqrt(-MuEarth*a)*(1-r0*alpha)
		chi = sign * math.Sqrt(-a) * math.Log(num/den)
	default:
		// Near-parabolic. h^2 = |r|^2|v|^2 - (r·v)^2 by the Lagrange identity.
		h2 := r0*r0*v0*v0 - rdotv*rdotv
		p := h2 / MuEarth
		s := 0.5 * math.Atan(1/(3*math.Sqrt(MuEarth/(p*p*p))*dtSeconds))
		w := math.Atan(math.Cbrt(math.Tan(s)))
		chi = math.Sqrt(p) * 2 / math.Tan(2*w)
	}

	var (
		psi, c2, c3, r float64
		converged      bool
	)
	for i := 0; i < keplerMaxIter; i++ {
		psi = chi * chi * alpha
		c2, c3 = stumpff(psi)
		r = chi*chi*c2 + rdotv/sqrtMu*chi*(1-psi*c3) + r0*(1-psi*c2)
		next := chi + (sqrtMu*dtSeconds-chi*chi*chi*c3-rdotv/sqrtMu*chi*chi*c2-r0*chi*(1-psi*c3))/r
		if math.Abs(next-chi) < keplerTolerance {
			chi = next
			converged = true
			break
		}
		chi = next
	}
	if !converged || math.IsNaN(chi) {
		return OrbitalState{}, fmt.Errorf("%w: dt=%.3fs alpha=%.3e", ErrKeplerNoConvergence, dtSeconds, alpha)
	}

	psi = chi * chi * alpha
	c2, c3 = stumpff(psi)
	r = chi*chi*c2 + rdotv/sqrtMu*chi*(1-psi*c3) + r0*(1-psi*c2)

	f := 1 - chi*chi*c2/r0
	g := dtSeconds - chi*chi*chi*c3/sqrtMu
	fdot := sqrtMu / (r * r0) * chi * (psi*c3 - 1)
	gdot := 1 - chi*chi*c2/r

	return OrbitalState{
		Position: r0v.Scale(f).Add(v0v.Scale(g)),
		Velocity: r0v.Scale(fdot).Add(v0v.Scale(gdot)),
		Epoch:    state.Epoch.Add(time.Duration(dtSeconds * float64(time.Second))),
	}, nil
}

// stumpff evaluates the C2 and C3 Stumpff functions, switching to their
// series expansions near zero where the closed forms lose precision.
func stumpff(psi float64) (c2, c3 float64) {
	switch {
	case psi > 1e-6:
		sq := math.Sqrt(psi)
		c2 = (1 - math.Cos(sq)) / psi
		c3 = (sq - math.Sin(sq)) / (sq * sq * sq)
	case psi < -1e-6:
		sq := math.Sqrt(-psi)
		c2 = (1 - math.Cosh(sq)) / psi
		c3 = (math.Sinh(sq) - sq) / (sq * sq * sq)
	default:
		c2 = 0.5
		c3 = 1.0 / 6.0
	}
	return c2, c3
}
