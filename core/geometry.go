package core

import "math"

// EarthRadiusKm is the mean Earth radius used for decay plausibility
// checks (kilometres).
const EarthRadiusKm = 6371.0

// MuEarth is the geocentric gravitational parameter in km^3/s^2, used by
// the two-body post-burn model.
const MuEarth = 398600.4418

// Vec3 is an inertial-frame vector in kilometres (or km/s for velocities).
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// AnalyticCloseApproach estimates the time offset and separation of closest
// approach for two objects under a constant relative velocity assumption.
// relPos and relVel are the relative position (km) and velocity (km/s) at
// the reference instant. The separation |relPos + relVel·t| is minimised at
// t* = -(relPos·relVel)/(relVel·relVel).
//
// When the objects are effectively co-moving (|relVel|² below epsilon) the
// quadratic degenerates; the current separation at offset 0 is returned.
func AnalyticCloseApproach(relPos, relVel Vec3) (offsetSec, missKm float64) {
	vv := relVel.Dot(relVel)
	if vv < 1e-12 {
		return 0, relPos.Norm()
	}
	t := -relPos.Dot(relVel) / vv
	at := relPos.Add(relVel.Scale(t))
	return t, at.Norm()
}
