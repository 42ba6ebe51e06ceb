package main

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/model"
)

// missionFeed plays the navigator for the demo: it publishes the triplet for
// the current leg and moves to the next leg once the vehicle reaches the
// target.
type missionFeed struct {
	items      []model.PositionSetpoint
	local      []r3.Vec
	index      int
	acceptance float64
}

func newMissionFeed(m *Mission, frame core.ReferenceFrame, acceptance float64) *missionFeed {
	f := &missionFeed{
		items:      append([]model.PositionSetpoint(nil), m.Waypoints...),
		local:      make([]r3.Vec, len(m.Waypoints)),
		acceptance: acceptance,
	}
	for i, sp := range f.items {
		f.local[i] = frame.ProjectSetpoint(sp)
	}
	// The navigator holds at the end of a mission.
	last := &f.items[len(f.items)-1]
	if last.Type == model.WaypointPosition {
		last.Type = model.WaypointLoiter
	}
	return f
}

// Leg returns the index of the current target.
func (f *missionFeed) Leg() int { return f.index }

// OnLastLeg reports whether the current target is the final waypoint.
func (f *missionFeed) OnLastLeg() bool { return f.index == len(f.items)-1 }

// Reached reports whether pos is within the acceptance radius of the current
// target.
func (f *missionFeed) Reached(pos r3.Vec) bool {
	return r3.Norm(r3.Sub(f.local[f.index], pos)) <= f.acceptance
}

// Advance moves to the next leg when the current target is reached. It
// reports whether the leg changed.
func (f *missionFeed) Advance(pos r3.Vec) bool {
	if f.OnLastLeg() || !f.Reached(pos) {
		return false
	}
	f.index++
	return true
}

// Triplet returns the navigator triplet for the current leg stamped at now.
// The first leg has no previous waypoint and the last has no next.
func (f *missionFeed) Triplet(now time.Time) model.Triplet {
	t := model.Triplet{Current: f.items[f.index], Timestamp: now}
	if f.index > 0 {
		t.Previous = f.items[f.index-1]
	}
	if !f.OnLastLeg() {
		t.Next = f.items[f.index+1]
	}
	return t
}
