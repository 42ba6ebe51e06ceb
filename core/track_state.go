package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// TrackState classifies where the vehicle is relative to the
// previous->target segment.
type TrackState int

const (
	// TrackNone is normal tracking between previous and target.
	TrackNone TrackState = iota
	// TrackOfftrack means the vehicle is too far from the line.
	TrackOfftrack
	// TrackTargetBehind means the vehicle has overshot the target.
	TrackTargetBehind
	// TrackPreviousInfront means the vehicle has not reached the previous waypoint yet.
	TrackPreviousInfront
)

// NumTrackStates is the number of TrackState values.
const NumTrackStates = 4

var trackStateNames = [NumTrackStates]string{
	TrackNone:            "none",
	TrackOfftrack:        "offtrack",
	TrackTargetBehind:    "target_behind",
	TrackPreviousInfront: "previous_infront",
}

func (s TrackState) String() string {
	if s >= 0 && int(s) < NumTrackStates {
		return trackStateNames[s]
	}
	return fmt.Sprintf("TrackState(%d)", int(s))
}

// offtrackHorizon converts cruise speed into a lateral distance: the vehicle
// counts as off track once it is more than this many seconds of cruise away
// from the line.
const offtrackHorizon = 1.0

// TrackClassification is the result of ClassifyTrack.
type TrackClassification struct {
	State TrackState
	// ClosestPoint is the closest point to the vehicle on the line through
	// previous and target, with the line's altitude at that point.
	ClosestPoint r3.Vec
	// AlongTrack is the signed distance from previous to ClosestPoint.
	AlongTrack float64
	// Lateral is the horizontal distance from the vehicle to the line.
	Lateral float64
}

// OfftrackThreshold is the lateral distance above which the vehicle is
// off track.
func OfftrackThreshold(cruiseSpeed, acceptanceRadius float64) float64 {
	return math.Max(cruiseSpeed*offtrackHorizon, acceptanceRadius)
}

// ClassifyTrack classifies position against the line previous->target. It
// keeps no state: the same inputs always give the same result.
func ClassifyTrack(position, previous, target r3.Vec, cruiseSpeed, acceptanceRadius float64) TrackClassification {
	proj := projectOntoLine(horizontal(position), horizontal(previous), horizontal(target))
	c := TrackClassification{
		State:        TrackNone,
		ClosestPoint: closestOnLine(proj, previous, target),
		AlongTrack:   proj.AlongTrack,
		Lateral:      proj.Lateral,
	}
	if proj.Length < sigmaNorm {
		return c
	}

	switch {
	case proj.Lateral > OfftrackThreshold(cruiseSpeed, acceptanceRadius):
		c.State = TrackOfftrack
	case proj.AlongTrack < -acceptanceRadius:
		c.State = TrackPreviousInfront
	case proj.AlongTrack > proj.Length+acceptanceRadius:
		c.State = TrackTargetBehind
	}
	return c
}

// closestOnLine lifts the horizontal closest point back to 3D, taking the
// altitude of the segment at the clamped line parameter.
func closestOnLine(proj lineProjection, previous, target r3.Vec) r3.Vec {
	t := 0.0
	if proj.Length >= sigmaNorm {
		t = clamp(proj.AlongTrack/proj.Length, 0, 1)
	}
	return r3.Vec{
		X: proj.Closest.X,
		Y: proj.Closest.Y,
		Z: previous.Z + t*(target.Z-previous.Z),
	}
}
