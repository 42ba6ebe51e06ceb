package main

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/model"
)

// vehicleDecel is the braking the point mass assumes when slowing down for
// the target, in m/s^2.
const vehicleDecel = 2.0

// pointMass is a vehicle with no dynamics beyond a speed limit: each step it
// moves straight toward the internal target.
type pointMass struct {
	pos r3.Vec
	yaw float64
}

// step moves toward the target at up to limit m/s, slowing so it could pass
// the target at the planned speed.
func (v *pointMass) step(sp core.Setpoints, limit float64, dt time.Duration) {
	v.yaw = sp.Heading

	delta := r3.Sub(sp.Waypoints.Target, v.pos)
	dist := r3.Norm(delta)
	if dist < 1e-6 {
		return
	}
	speed := math.Min(limit, math.Sqrt(sp.SpeedAtTarget*sp.SpeedAtTarget+2*vehicleDecel*dist))
	travel := speed * dt.Seconds()
	if travel >= dist {
		v.pos = sp.Waypoints.Target
		return
	}
	v.pos = r3.Add(v.pos, r3.Scale(travel/dist, delta))
}

func (v *pointMass) state(now time.Time) model.VehicleState {
	return model.VehicleState{X: v.pos.X, Y: v.pos.Y, Z: v.pos.Z, Yaw: v.yaw, Timestamp: now}
}
