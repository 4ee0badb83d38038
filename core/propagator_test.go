package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// ISS sample TLE, epoch 2021-10-02.
const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

var issEpoch = time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

func newISS(t *testing.T) *SGP4 {
	t.Helper()
	s, err := NewSGP4(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4: %v", err)
	}
	return s
}

func TestNewSGP4_ParsesCatalogNumber(t *testing.T) {
	s := newISS(t)
	if s.NoradID() != 25544 {
		t.Fatalf("NoradID = %d, want 25544", s.NoradID())
	}
}

func TestNewSGP4_RejectsMalformedLines(t *testing.T) {
	cases := []struct {
		name         string
		line1, line2 string
	}{
		{"short line1", "1 25544U", issLine2},
		{"short line2", issLine1, "2 25544"},
		{"swapped prefixes", issLine2, issLine1},
		{"wrong prefix", strings.Replace(issLine1, "1 ", "9 ", 1), issLine2},
	}
	for _, tc := range cases {
		if _, err := NewSGP4(tc.line1, tc.line2); !errors.Is(err, ErrInvalidTLE) {
			t.Errorf("%s: err = %v, want ErrInvalidTLE", tc.name, err)
		}
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we just ensure that positions differ at distinct times and look like an
// orbit.
func TestSGP4_PositionChangesOverTime(t *testing.T) {
	s := newISS(t)

	p1, err := s.PositionAt(issEpoch)
	if err != nil {
		t.Fatalf("PositionAt t1: %v", err)
	}
	p2, err := s.PositionAt(issEpoch.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("PositionAt t2: %v", err)
	}

	if p1 == p2 {
		t.Fatalf("expected position to change over 5 minutes, got %+v at both times", p1)
	}
	if r := p1.Norm(); r < EarthRadiusKm+300 || r > EarthRadiusKm+500 {
		t.Fatalf("ISS radius %v km outside plausible band", r)
	}
}

// Sub-second sampling must resolve real motion: over 100 ms the ISS moves
// roughly 0.77 km. A broken fractional path would report either no motion
// or a full-second step.
func TestSGP4_SubSecondResolution(t *testing.T) {
	s := newISS(t)

	p0, err := s.PositionAt(issEpoch)
	if err != nil {
		t.Fatalf("PositionAt: %v", err)
	}
	p1, err := s.PositionAt(issEpoch.Add(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("PositionAt +100ms: %v", err)
	}

	step := p0.DistanceTo(p1)
	if step < 0.5 || step > 1.0 {
		t.Fatalf("100 ms step moved %v km, want roughly 0.77", step)
	}
}

func TestStateWithDerivedVelocity_MatchesNativeClosely(t *testing.T) {
	s := newISS(t)

	derived, err := StateWithDerivedVelocity(s, issEpoch)
	if err != nil {
		t.Fatalf("StateWithDerivedVelocity: %v", err)
	}
	native, err := s.StateAt(issEpoch)
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}

	if diff := derived.Velocity.Sub(native.Velocity).Norm(); diff > 0.02 {
		t.Fatalf("derived velocity differs from native by %v km/s", diff)
	}
	if derived.Position != native.Position {
		t.Fatalf("derived state position %+v != native %+v", derived.Position, native.Position)
	}
}

func TestSampleTrack(t *testing.T) {
	s := newISS(t)

	states, err := SampleTrack(s, issEpoch, time.Minute, 5)
	if err != nil {
		t.Fatalf("SampleTrack: %v", err)
	}
	if len(states) != 5 {
		t.Fatalf("len(states) = %d, want 5", len(states))
	}
	for i := 1; i < len(states); i++ {
		if gap := states[i].Epoch.Sub(states[i-1].Epoch); gap != time.Minute {
			t.Fatalf("epoch gap %s at index %d, want 1m", gap, i)
		}
		if states[i].Position == states[i-1].Position {
			t.Fatalf("track did not move between samples %d and %d", i-1, i)
		}
	}

	if got, err := SampleTrack(s, issEpoch, time.Minute, 0); err != nil || got != nil {
		t.Fatalf("SampleTrack n=0 = %v, %v; want nil, nil", got, err)
	}
	if _, err := SampleTrack(s, issEpoch, -time.Second, 3); err == nil {
		t.Fatalf("SampleTrack with negative step should fail")
	}
}
