package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

var (
	// ErrInvalidTLE reports element lines that fail format checks or SGP4
	// model initialization.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrOrbitDecayed reports propagation output inconsistent with an
	// object still on orbit.
	ErrOrbitDecayed = errors.New("orbit decayed")
	// ErrPropagationFailed reports a numerical failure inside the orbital
	// model.
	ErrPropagationFailed = errors.New("propagation failed")
)

// OrbitalState is an inertial (TEME) state at a given epoch.
type OrbitalState struct {
	Position Vec3 // km
	Velocity Vec3 // km/s
	Epoch    time.Time
}

// Ephemeris produces inertial states for a single object over time. The
// production implementation wraps the SGP4 model; tests substitute
// analytic stubs.
type Ephemeris interface {
	PositionAt(t time.Time) (Vec3, error)
	StateAt(t time.Time) (OrbitalState, error)
}

// SGP4 is the production Ephemeris backed by the go-satellite SGP4/SDP4
// implementation. Safe for concurrent use; propagation reads the
// initialized model without mutating it.
type SGP4 struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4 initializes a propagator from a pair of TLE lines. Lines are
// validated before being handed to the model, which terminates the process
// on unparseable input.
func NewSGP4(line1, line2 string) (*SGP4, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTLE, err)
	}

	noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return nil, fmt.Errorf("%w: catalog number: %v", ErrInvalidTLE, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init for %d: code=%d %s", ErrInvalidTLE, noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, noradID: noradID}, nil
}

func validateTLELines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("line1 must start with %q", "1 ")
	}
	if !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("line2 must start with %q", "2 ")
	}
	return nil
}

// NoradID returns the catalog number parsed from line 1.
func (s *SGP4) NoradID() int { return s.noradID }

// PositionAt returns the TEME position at t.
func (s *SGP4) PositionAt(t time.Time) (Vec3, error) {
	st, err := s.StateAt(t)
	if err != nil {
		return Vec3{}, err
	}
	return st.Position, nil
}

// StateAt returns the TEME position and velocity at t.
//
// The underlying model only accepts whole-second timestamps; sub-second
// times are evaluated by quadratic interpolation through the three
// bracketing whole-second states, which keeps the error well below a
// metre for orbital motion.
func (s *SGP4) StateAt(t time.Time) (OrbitalState, error) {
	t = t.UTC()
	base := t.Truncate(time.Second)
	frac := t.Sub(base).Seconds()
	if frac == 0 {
		return s.stateAtWhole(t)
	}

	prev, err := s.stateAtWhole(base.Add(-time.Second))
	if err != nil {
		return OrbitalState{}, err
	}
	curr, err := s.stateAtWhole(base)
	if err != nil {
		return OrbitalState{}, err
	}
	next, err := s.stateAtWhole(base.Add(time.Second))
	if err != nil {
		return OrbitalState{}, err
	}

	// Lagrange weights for nodes at -1, 0, +1 seconds around base.
	wPrev := frac * (frac - 1) / 2
	wCurr := 1 - frac*frac
	wNext := frac * (frac + 1) / 2
	blend := func(a, b, c Vec3) Vec3 {
		return a.Scale(wPrev).Add(b.Scale(wCurr)).Add(c.Scale(wNext))
	}
	return OrbitalState{
		Position: blend(prev.Position, curr.Position, next.Position),
		Velocity: blend(prev.Velocity, curr.Velocity, next.Velocity),
		Epoch:    t,
	}, nil
}

// stateAtWhole propagates at whole-second resolution. The model reports
// failures only through its output, so NaN and implausible radii are the
// failure signal.
func (s *SGP4) stateAtWhole(t time.Time) (OrbitalState, error) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, vel := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return OrbitalState{}, fmt.Errorf("%w: object %d at %s: output is NaN/Inf",
			ErrPropagationFailed, s.noradID, t.Format(time.RFC3339))
	}

	p := Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
	if p.Norm() < EarthRadiusKm {
		return OrbitalState{}, fmt.Errorf("%w: object %d at %s: radius %.1f km",
			ErrOrbitDecayed, s.noradID, t.Format(time.RFC3339), p.Norm())
	}

	return OrbitalState{
		Position: p,
		Velocity: Vec3{X: vel.X, Y: vel.Y, Z: vel.Z},
		Epoch:    t,
	}, nil
}

// StateWithDerivedVelocity samples the position at t and t+1s and returns a
// state whose velocity is the forward finite difference of the two samples.
// Screening and maneuver simulation both derive velocity this way rather
// than reading the model's native velocity output.
func StateWithDerivedVelocity(e Ephemeris, t time.Time) (OrbitalState, error) {
	p0, err := e.PositionAt(t)
	if err != nil {
		return OrbitalState{}, err
	}
	p1, err := e.PositionAt(t.Add(time.Second))
	if err != nil {
		return OrbitalState{}, err
	}
	return OrbitalState{
		Position: p0,
		Velocity: p1.Sub(p0),
		Epoch:    t,
	}, nil
}

// SampleTrack evaluates an ephemeris at n instants starting at start,
// spaced by step. Native model velocities are returned alongside positions.
func SampleTrack(e Ephemeris, start time.Time, step time.Duration, n int) ([]OrbitalState, error) {
	if n <= 0 {
		return nil, nil
	}
	if step <= 0 {
		return nil, fmt.Errorf("track step must be positive, got %s", step)
	}
	states := make([]OrbitalState, 0, n)
	for i := 0; i < n; i++ {
		st, err := e.StateAt(start.Add(time.Duration(i) * step))
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
