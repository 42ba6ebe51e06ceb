package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/model"
)

// EvaluatedTriplet is a navigator triplet that passed validation. Points are
// still in their source coordinates; see ReferenceFrame.ProjectTriplet.
type EvaluatedTriplet struct {
	Previous model.PositionSetpoint
	Target   model.PositionSetpoint
	Next     model.PositionSetpoint

	// PreviousValid is false when the previous point should be replaced by
	// the vehicle position.
	PreviousValid bool
	// NextValid is false when Next is a copy of Target.
	NextValid bool

	Type model.WaypointType
	// SpeedOverride is NaN when the target carries no speed override.
	SpeedOverride float64
	// TargetVelocityXY is the feed-forward velocity for velocity and
	// follow-target setpoints, zero otherwise.
	TargetVelocityXY r2.Vec
	// TargetYaw is the heading requested at the target, NaN when none.
	TargetYaw float64
	// LoiterRadius is the target's orbit radius, zero when unspecified.
	LoiterRadius float64
}

// EvaluateTriplet validates a navigator triplet. It fails with
// ErrInvalidTriplet when the target is flagged invalid or has a non-finite
// coordinate. Missing previous and next points are substituted, never fatal.
func EvaluateTriplet(t model.Triplet) (EvaluatedTriplet, error) {
	cur := t.Current
	if !cur.Valid {
		return EvaluatedTriplet{}, fmt.Errorf("%w: target flagged invalid", ErrInvalidTriplet)
	}
	if !cur.IsFinite() {
		return EvaluatedTriplet{}, fmt.Errorf("%w: target has non-finite coordinates", ErrInvalidTriplet)
	}

	out := EvaluatedTriplet{
		Target:        cur,
		Type:          cur.Type,
		SpeedOverride: math.NaN(),
		TargetYaw:     math.NaN(),
	}
	if isFinite(cur.CruiseSpeed) && cur.CruiseSpeed >= 0 {
		out.SpeedOverride = cur.CruiseSpeed
	}
	if isFinite(cur.Yaw) {
		out.TargetYaw = wrapPi(cur.Yaw)
	}
	if isFinite(cur.LoiterRadius) && cur.LoiterRadius > 0 {
		out.LoiterRadius = cur.LoiterRadius
	}
	if carriesVelocity(cur.Type) && cur.VelocityValid && isFinite(cur.VX) && isFinite(cur.VY) {
		out.TargetVelocityXY = r2.Vec{X: cur.VX, Y: cur.VY}
	}

	if t.Previous.Valid && t.Previous.IsFinite() {
		out.Previous = t.Previous
		out.PreviousValid = true
	}

	switch {
	case cur.Type == model.WaypointLoiter:
		out.Next = cur
	case t.Next.Valid && t.Next.IsFinite():
		out.Next = t.Next
		out.NextValid = true
	default:
		out.Next = cur
	}
	return out, nil
}

func carriesVelocity(t model.WaypointType) bool {
	return t == model.WaypointVelocity || t == model.WaypointFollowTarget
}

// NeedsReference reports whether any point in use is geodetic.
func (e EvaluatedTriplet) NeedsReference() bool {
	if e.Target.Frame == model.FrameGlobal || e.Next.Frame == model.FrameGlobal {
		return true
	}
	return e.PreviousValid && e.Previous.Frame == model.FrameGlobal
}

// LocalTriplet is a triplet in the local frame with fallbacks resolved.
type LocalTriplet struct {
	Previous r3.Vec
	Target   r3.Vec
	Next     r3.Vec
}

// ProjectTriplet projects all points of e through f, so the three points of
// one cycle share the same origin. An invalid previous point becomes
// position.
func (f ReferenceFrame) ProjectTriplet(e EvaluatedTriplet, position r3.Vec) LocalTriplet {
	lt := LocalTriplet{
		Previous: position,
		Target:   f.ProjectSetpoint(e.Target),
	}
	if e.PreviousValid {
		lt.Previous = f.ProjectSetpoint(e.Previous)
	}
	if e.NextValid {
		lt.Next = f.ProjectSetpoint(e.Next)
	} else {
		lt.Next = lt.Target
	}
	return lt
}
