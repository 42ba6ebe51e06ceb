package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// minCruiseSpeed is the speed at target for a full reversal.
const minCruiseSpeed = 0.0

// CornerAngle returns the interior angle at target between the segments
// target->previous and target->next, in radians within [0, pi]. A straight
// continuation is pi. It reports false when either segment is too short in
// the horizontal plane to define a direction.
func CornerAngle(previous, target, next r3.Vec) (float64, bool) {
	in := r2.Sub(horizontal(target), horizontal(previous))
	out := r2.Sub(horizontal(next), horizontal(target))
	nIn, nOut := r2.Norm(in), r2.Norm(out)
	if nIn < sigmaNorm || nOut < sigmaNorm {
		return 0, false
	}
	cos := clamp(-r2.Dot(in, out)/(nIn*nOut), -1, 1)
	return math.Acos(cos), true
}

// PlanSpeedAtTarget returns the desired speed when passing the target. An
// override that is finite and non-negative wins over the corner speed and is
// clamped to [0, cruise]. The result is always within [0, cruise].
func PlanSpeedAtTarget(wp InternalWaypoints, cruise, corner, override float64) float64 {
	if isFinite(override) && override >= 0 {
		return clamp(override, 0, cruise)
	}
	theta, ok := CornerAngle(wp.Previous, wp.Target, wp.Next)
	if !ok {
		return cruise
	}
	return SpeedFromAngle(theta, cruise, corner)
}

// SpeedFromAngle maps the interior corner angle to a speed. It passes through
// cruise at pi (straight), corner at pi/2 and zero at 0 (reversal), and is
// monotonic in between.
func SpeedFromAngle(theta, cruise, corner float64) float64 {
	if cruise-minCruiseSpeed < sigmaNorm {
		return cruise
	}

	// x is 0 for a straight line, 1 for a right angle and 2 for a reversal.
	x := 1 + math.Cos(theta)

	mid := corner
	if mid-minCruiseSpeed < sigmaNorm {
		mid = minCruiseSpeed + sigmaNorm
	}
	if cruise-mid < sigmaNorm {
		mid = (cruise + minCruiseSpeed) * 0.5
	}

	var speed float64
	if math.Abs((cruise+minCruiseSpeed)*0.5-mid) < sigmaNorm {
		slope := -(cruise - minCruiseSpeed) / 2
		speed = slope*x + cruise
	} else {
		// speed = a*b^x + c through (0, cruise), (1, mid), (2, min).
		a := -((mid - cruise) * (mid - cruise)) / (2*mid - cruise - minCruiseSpeed)
		c := cruise - a
		b := (mid - c) / a
		speed = a*math.Pow(b, x) + c
	}
	return clamp(speed, minCruiseSpeed, cruise)
}
