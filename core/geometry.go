package core

import (
	"math"

	"github.com/golang/geo/s1"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/model"
)

// EarthRadiusM is the sphere radius used by the local projection (metres).
const EarthRadiusM = 6371000.0

// sigmaNorm is the smallest vector length treated as a direction.
const sigmaNorm = 0.001

// horizontal drops the down component of a local NED vector.
func horizontal(v r3.Vec) r2.Vec {
	return r2.Vec{X: v.X, Y: v.Y}
}

func vehiclePosition(s model.VehicleState) r3.Vec {
	return r3.Vec{X: s.X, Y: s.Y, Z: s.Z}
}

// lineProjection describes where a point falls relative to the infinite line
// through a and b, measured in the horizontal plane.
type lineProjection struct {
	// Closest is the foot of the perpendicular from the point to the line.
	Closest r2.Vec
	// AlongTrack is the signed distance from a to Closest, positive toward b.
	AlongTrack float64
	// Lateral is the perpendicular distance from the point to the line.
	Lateral float64
	// Length is |b - a|.
	Length float64
}

// projectOntoLine returns the projection of p onto the line a->b. When a and
// b coincide the line is undefined and Closest is a.
func projectOntoLine(p, a, b r2.Vec) lineProjection {
	ab := r2.Sub(b, a)
	length := r2.Norm(ab)
	ap := r2.Sub(p, a)
	if length < sigmaNorm {
		return lineProjection{Closest: a, Lateral: r2.Norm(ap), Length: length}
	}
	u := r2.Scale(1/length, ab)
	along := r2.Dot(ap, u)
	closest := r2.Add(a, r2.Scale(along, u))
	return lineProjection{
		Closest:    closest,
		AlongTrack: along,
		Lateral:    r2.Norm(r2.Sub(p, closest)),
		Length:     length,
	}
}

// headingFromVector returns the heading of v in radians, measured from north
// toward east. It reports false when v is too short or not finite to define
// a direction.
func headingFromVector(v r2.Vec) (float64, bool) {
	n := r2.Norm(v)
	if !isFinite(n) || n < sigmaNorm {
		return 0, false
	}
	return wrapPi(math.Atan2(v.Y, v.X)), true
}

// wrapPi maps an angle into (-pi, pi].
func wrapPi(a float64) float64 {
	return s1.Angle(a).Normalized().Radians()
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isFiniteVec(v r3.Vec) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}
