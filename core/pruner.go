package core

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// objectPoint is one object's position within a shared-epoch snapshot.
type objectPoint struct {
	id  int
	pos Vec3
}

func (p objectPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(objectPoint)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	default:
		return p.pos.Z - q.pos.Z
	}
}

func (p objectPoint) Dims() int { return 3 }

// Distance is the squared Euclidean distance, per the kdtree contract.
func (p objectPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(objectPoint)
	dx := p.pos.X - q.pos.X
	dy := p.pos.Y - q.pos.Y
	dz := p.pos.Z - q.pos.Z
	return dx*dx + dy*dy + dz*dz
}

type objectPoints []objectPoint

func (p objectPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p objectPoints) Len() int                      { return len(p) }
func (p objectPoints) Pivot(d kdtree.Dim) int {
	return objectPlane{objectPoints: p, Dim: d}.Pivot()
}
func (p objectPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// objectPlane sorts objectPoints along a dimension for tree construction.
type objectPlane struct {
	kdtree.Dim
	objectPoints
}

func (p objectPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.objectPoints[i].pos.X < p.objectPoints[j].pos.X
	case 1:
		return p.objectPoints[i].pos.Y < p.objectPoints[j].pos.Y
	default:
		return p.objectPoints[i].pos.Z < p.objectPoints[j].pos.Z
	}
}
func (p objectPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p objectPlane) Slice(start, end int) kdtree.SortSlicer {
	p.objectPoints = p.objectPoints[start:end]
	return p
}
func (p objectPlane) Swap(i, j int) {
	p.objectPoints[i], p.objectPoints[j] = p.objectPoints[j], p.objectPoints[i]
}

// CandidatePair is an unordered pair of object ids within the proximity
// radius. ID1 < ID2 always.
type CandidatePair struct {
	ID1, ID2 int
}

// ClosePairs returns every unordered pair of objects whose snapshot
// positions lie within radiusKm of each other. All positions must share
// one epoch and frame; this is a pure geometric filter and performs no
// propagation. Returns nil when fewer than two positions are supplied.
//
// A balanced k-d tree over the snapshot keeps the selection near
// O(N log N) where the brute-force comparison would be quadratic.
func ClosePairs(positions map[int]Vec3, radiusKm float64) []CandidatePair {
	if len(positions) < 2 {
		return nil
	}

	ids := make([]int, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	// Tree construction partitions the slice, so queries run off the
	// sorted id list instead.
	pts := make(objectPoints, len(ids))
	for i, id := range ids {
		pts[i] = objectPoint{id: id, pos: positions[id]}
	}
	tree := kdtree.New(pts, false)

	r2 := radiusKm * radiusKm
	var pairs []CandidatePair
	for _, id := range ids {
		keep := kdtree.NewDistKeeper(r2)
		tree.NearestSet(keep, objectPoint{id: id, pos: positions[id]})
		for _, c := range keep.Heap {
			n, ok := c.Comparable.(objectPoint)
			if !ok {
				// Keeper retains its initial bound sentinel.
				continue
			}
			// Report each unordered pair once, from its lower id.
			if n.id <= id {
				continue
			}
			pairs = append(pairs, CandidatePair{ID1: id, ID2: n.id})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].ID1 != pairs[j].ID1 {
			return pairs[i].ID1 < pairs[j].ID1
		}
		return pairs[i].ID2 < pairs[j].ID2
	})
	return pairs
}
