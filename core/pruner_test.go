package core

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func pairSet(pairs []CandidatePair) map[string]bool {
	set := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		set[fmt.Sprintf("%d-%d", p.ID1, p.ID2)] = true
	}
	return set
}

// bruteForcePairs is the quadratic reference the tree must reproduce.
func bruteForcePairs(positions map[int]Vec3, radiusKm float64) map[string]bool {
	ids := make([]int, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	set := make(map[string]bool)
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			if positions[a].DistanceTo(positions[b]) <= radiusKm {
				set[fmt.Sprintf("%d-%d", a, b)] = true
			}
		}
	}
	return set
}

func TestClosePairs_KnownGeometry(t *testing.T) {
	// Three objects in a line 10 km apart plus one far away.
	positions := map[int]Vec3{
		101: {X: 7000, Y: 0, Z: 0},
		102: {X: 7010, Y: 0, Z: 0},
		103: {X: 7020, Y: 0, Z: 0},
		999: {X: -7000, Y: 0, Z: 0},
	}

	cases := []struct {
		radius float64
		want   []CandidatePair
	}{
		{0, nil},
		{5, nil},
		{10, []CandidatePair{{101, 102}, {102, 103}}},
		{15, []CandidatePair{{101, 102}, {102, 103}}},
		{20, []CandidatePair{{101, 102}, {101, 103}, {102, 103}}},
		{1e6, []CandidatePair{{101, 102}, {101, 103}, {101, 999}, {102, 103}, {102, 999}, {103, 999}}},
	}

	for _, tc := range cases {
		got := ClosePairs(positions, tc.radius)
		if len(got) != len(tc.want) {
			t.Errorf("radius %v: got %v, want %v", tc.radius, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("radius %v: pair %d = %+v, want %+v", tc.radius, i, got[i], tc.want[i])
			}
		}
	}
}

func TestClosePairs_NoSelfOrDuplicatePairs(t *testing.T) {
	// Two objects at the same position must pair once, not twice.
	positions := map[int]Vec3{
		1: {X: 7000},
		2: {X: 7000},
		3: {X: 7000.5},
	}

	got := ClosePairs(positions, 1)
	want := []CandidatePair{{1, 2}, {1, 3}, {2, 3}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("pair %d = %+v, want %+v", i, got[i], want[i])
		}
		if got[i].ID1 >= got[i].ID2 {
			t.Fatalf("pair %+v not ordered", got[i])
		}
	}
}

func TestClosePairs_FewerThanTwo(t *testing.T) {
	if got := ClosePairs(nil, 100); got != nil {
		t.Fatalf("nil positions: got %v", got)
	}
	if got := ClosePairs(map[int]Vec3{7: {X: 7000}}, 100); got != nil {
		t.Fatalf("single position: got %v", got)
	}
}

func TestClosePairs_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	positions := make(map[int]Vec3, 200)
	for id := 1; id <= 200; id++ {
		positions[id] = Vec3{
			X: 6800 + rng.Float64()*400,
			Y: rng.Float64()*800 - 400,
			Z: rng.Float64()*800 - 400,
		}
	}

	for _, radius := range []float64{25, 100, 300} {
		got := pairSet(ClosePairs(positions, radius))
		want := bruteForcePairs(positions, radius)
		if len(got) != len(want) {
			t.Fatalf("radius %v: %d pairs, brute force found %d", radius, len(got), len(want))
		}
		for key := range want {
			if !got[key] {
				t.Fatalf("radius %v: missing pair %s", radius, key)
			}
		}
	}
}
