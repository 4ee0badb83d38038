package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

// circularState returns a circular equatorial orbit state at radius rKm.
func circularState(rKm float64) OrbitalState {
	v := math.Sqrt(MuEarth / rKm)
	return OrbitalState{
		Position: Vec3{X: rKm},
		Velocity: Vec3{Y: v},
		Epoch:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPropagateTwoBody_CircularOrbitClosesAfterOnePeriod(t *testing.T) {
	const r = 7000.0
	initial := circularState(r)
	period := 2 * math.Pi * math.Sqrt(r*r*r/MuEarth)

	final, err := PropagateTwoBody(initial, period)
	if err != nil {
		t.Fatalf("PropagateTwoBody: %v", err)
	}

	if d := final.Position.DistanceTo(initial.Position); d > 0.01 {
		t.Fatalf("orbit did not close: %v km from start after one period", d)
	}
	if d := final.Velocity.Sub(initial.Velocity).Norm(); d > 1e-5 {
		t.Fatalf("velocity did not close: %v km/s off after one period", d)
	}
	if got, want := final.Epoch, initial.Epoch.Add(durationSec(period)); !got.Equal(want) {
		t.Fatalf("epoch = %s, want %s", got, want)
	}
}

func TestPropagateTwoBody_ConservesRadiusAndEnergy(t *testing.T) {
	const r = 7000.0
	initial := circularState(r)
	energy := func(s OrbitalState) float64 {
		v := s.Velocity.Norm()
		return v*v/2 - MuEarth/s.Position.Norm()
	}
	e0 := energy(initial)

	for _, dt := range []float64{60, 600, 1457.25, 2914.5, 5000} {
		s, err := PropagateTwoBody(initial, dt)
		if err != nil {
			t.Fatalf("dt=%v: %v", dt, err)
		}
		if got := s.Position.Norm(); math.Abs(got-r) > 1e-3 {
			t.Errorf("dt=%v: radius %v, want %v", dt, got, r)
		}
		if got := energy(s); math.Abs(got-e0) > 1e-6*math.Abs(e0) {
			t.Errorf("dt=%v: specific energy %v, want %v", dt, got, e0)
		}
	}
}

func TestPropagateTwoBody_BackwardAndZero(t *testing.T) {
	initial := circularState(7000)

	same, err := PropagateTwoBody(initial, 0)
	if err != nil {
		t.Fatalf("dt=0: %v", err)
	}
	if same != initial {
		t.Fatalf("dt=0 changed the state")
	}

	fwd, err := PropagateTwoBody(initial, 300)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	back, err := PropagateTwoBody(fwd, -300)
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if d := back.Position.DistanceTo(initial.Position); d > 0.01 {
		t.Fatalf("forward-backward drifted %v km", d)
	}
}

func TestPropagateTwoBody_HyperbolicEscape(t *testing.T) {
	// 12 km/s at 7000 km is past escape velocity; radius must keep growing.
	state := OrbitalState{
		Position: Vec3{X: 7000},
		Velocity: Vec3{Y: 12},
		Epoch:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	prev := 7000.0
	for _, dt := range []float64{100, 1000, 5000} {
		s, err := PropagateTwoBody(state, dt)
		if err != nil {
			t.Fatalf("dt=%v: %v", dt, err)
		}
		r := s.Position.Norm()
		if r <= prev {
			t.Fatalf("dt=%v: radius %v did not grow past %v", dt, r, prev)
		}
		prev = r
	}
}

func TestPropagateTwoBody_ZeroRadiusFails(t *testing.T) {
	_, err := PropagateTwoBody(OrbitalState{Velocity: Vec3{Y: 7.5}}, 100)
	if !errors.Is(err, ErrKeplerNoConvergence) {
		t.Fatalf("err = %v, want ErrKeplerNoConvergence", err)
	}
}
