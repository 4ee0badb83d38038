package core

import (
	"math"
	"testing"
)

func TestMinimizeBounded_Quadratic(t *testing.T) {
	f := func(x float64) float64 { return (x - 2) * (x - 2) }

	x, fx := minimizeBounded(f, 0, 5, 1e-5, 500)
	if math.Abs(x-2) > 1e-4 {
		t.Fatalf("x = %v, want 2 +/- 1e-4", x)
	}
	if fx > 1e-8 {
		t.Fatalf("fx = %v, want ~0", fx)
	}
}

// Parabolic interpolation can't model the kink; golden-section fallback
// must still land on it.
func TestMinimizeBounded_NonSmooth(t *testing.T) {
	f := func(x float64) float64 { return math.Abs(x - 0.3) }

	x, _ := minimizeBounded(f, 0, 1, 1e-4, 500)
	if math.Abs(x-0.3) > 1e-3 {
		t.Fatalf("x = %v, want 0.3 +/- 1e-3", x)
	}
}

func TestMinimizeBounded_MinimumAtBoundary(t *testing.T) {
	f := func(x float64) float64 { return x }

	x, _ := minimizeBounded(f, 2, 7, 1e-4, 500)
	if x < 2 || x > 2.01 {
		t.Fatalf("x = %v, want just inside the lower bound", x)
	}
}

func TestMinimizeBounded_Periodic(t *testing.T) {
	x, fx := minimizeBounded(math.Cos, 0, 2*math.Pi, 1e-6, 500)
	if math.Abs(x-math.Pi) > 1e-4 {
		t.Fatalf("x = %v, want pi", x)
	}
	if math.Abs(fx+1) > 1e-8 {
		t.Fatalf("fx = %v, want -1", fx)
	}
}

// The evaluation cap is the hard stop against pathological objectives; the
// result must still lie inside the bounds.
func TestMinimizeBounded_EvaluationCap(t *testing.T) {
	calls := 0
	f := func(x float64) float64 {
		calls++
		return math.Sin(1/(x+1e-9)) * x
	}

	x, _ := minimizeBounded(f, 0, 1, 1e-12, 25)
	if calls > 26 {
		t.Fatalf("objective evaluated %d times, cap was 25", calls)
	}
	if x < 0 || x > 1 {
		t.Fatalf("x = %v outside bounds", x)
	}
}
