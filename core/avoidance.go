package core

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/model"
)

// Avoidance record slots.
const (
	AvoidancePrevious = iota
	AvoidanceTarget
	AvoidanceNext
	NumAvoidancePoints
)

// AvoidancePoint is one waypoint of the plan shared with the avoidance
// module. NaN velocity and yaw speed mean unconstrained.
type AvoidancePoint struct {
	Position r3.Vec
	Velocity r3.Vec
	Yaw      float64
	YawSpeed float64
	Valid    bool
}

// AvoidanceRecord is the current waypoint plan in the form consumed by an
// external obstacle-avoidance module.
type AvoidanceRecord struct {
	Timestamp     time.Time
	Type          model.WaypointType
	SpeedAtTarget float64
	// TargetYaw and LoiterRadius pass the navigator's requests for the target
	// through unchanged; NaN and zero mean none.
	TargetYaw    float64
	LoiterRadius float64
	Points       [NumAvoidancePoints]AvoidancePoint
}

// AvoidanceSink receives the plan every cycle. Implementations must not block.
type AvoidanceSink interface {
	PublishWaypoints(AvoidanceRecord)
}

// ExportAvoidance packages the internal waypoints for the avoidance module.
func ExportAvoidance(sp Setpoints, stamp time.Time) AvoidanceRecord {
	unconstrained := r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
	point := func(p r3.Vec) AvoidancePoint {
		return AvoidancePoint{
			Position: p,
			Velocity: unconstrained,
			Yaw:      sp.Heading,
			YawSpeed: math.NaN(),
			Valid:    true,
		}
	}
	rec := AvoidanceRecord{
		Timestamp:     stamp,
		Type:          sp.Type,
		SpeedAtTarget: sp.SpeedAtTarget,
		TargetYaw:     sp.TargetYaw,
		LoiterRadius:  sp.LoiterRadius,
	}
	rec.Points[AvoidancePrevious] = point(sp.Waypoints.Previous)
	rec.Points[AvoidanceTarget] = point(sp.Waypoints.Target)
	rec.Points[AvoidanceNext] = point(sp.Waypoints.Next)
	return rec
}
