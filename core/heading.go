package core

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/model"
)

// HeadingInput is what the heading computer needs for one cycle.
type HeadingInput struct {
	Mode      YawMode
	Position  r3.Vec
	Waypoints InternalWaypoints
	Home      model.HomePosition
	// NewTarget is true on the first cycle after the navigator changed the target.
	NewTarget        bool
	AcceptanceRadius float64
}

// HeadingComputer resolves the yaw setpoint. Its only memory is the last
// heading and the yaw-lock flag.
type HeadingComputer struct {
	heading float64
	locked  bool
}

// Reset sets the heading to yaw and releases the lock.
func (h *HeadingComputer) Reset(yaw float64) {
	h.heading = yaw
	if !isFinite(yaw) {
		h.heading = 0
	}
	h.locked = false
}

// Heading returns the current heading setpoint in radians.
func (h *HeadingComputer) Heading() float64 { return h.heading }

// Locked reports whether the heading is locked because the target is reached.
func (h *HeadingComputer) Locked() bool { return h.locked }

// Update computes the heading for this cycle. Once the vehicle is within the
// acceptance radius of the target the heading freezes until a new target
// arrives. When the governing vector is too short the previous heading is
// kept.
func (h *HeadingComputer) Update(in HeadingInput) float64 {
	if in.NewTarget {
		h.locked = false
	}
	if !h.locked {
		d := r2.Norm(r2.Sub(horizontal(in.Waypoints.Target), horizontal(in.Position)))
		if d <= in.AcceptanceRadius {
			h.locked = true
		}
	}
	if h.locked {
		return h.heading
	}

	v, ok := headingVector(in)
	if !ok {
		return h.heading
	}
	if heading, ok := headingFromVector(v); ok {
		h.heading = heading
	}
	return h.heading
}

// headingVector returns the 2D vector the heading should point along for the
// configured mode.
func headingVector(in HeadingInput) (r2.Vec, bool) {
	pos := horizontal(in.Position)
	wp := in.Waypoints
	switch in.Mode {
	case YawModeTowardWaypoint:
		return r2.Sub(horizontal(wp.Target), pos), true
	case YawModeTowardHome:
		if !in.Home.Valid {
			return r2.Vec{}, false
		}
		return r2.Sub(r2.Vec{X: in.Home.X, Y: in.Home.Y}, pos), true
	case YawModeAwayFromHome:
		if !in.Home.Valid {
			return r2.Vec{}, false
		}
		return r2.Sub(pos, r2.Vec{X: in.Home.X, Y: in.Home.Y}), true
	case YawModeAlongTrack:
		return r2.Sub(horizontal(wp.Target), horizontal(wp.Previous)), true
	case YawModeTowardNext:
		return r2.Sub(horizontal(wp.Next), horizontal(wp.Target)), true
	default:
		return r2.Vec{}, false
	}
}
