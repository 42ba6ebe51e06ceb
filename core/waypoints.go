package core

import "gonum.org/v1/gonum/spatial/r3"

// InternalWaypoints are the waypoints handed to the position controller. They
// may differ from the navigator triplet depending on the track state.
type InternalWaypoints struct {
	Previous r3.Vec
	Target   r3.Vec
	Next     r3.Vec
}

// AdjustWaypoints derives the internal waypoints for the classified state so
// the controller never flies back to a waypoint that is already behind it.
//
//   - none: the triplet as received.
//   - offtrack: previous becomes the closest point on the navigator's line.
//   - previous_infront: previous becomes the vehicle position.
//   - target_behind: the triplet as received; the target is not extended.
func AdjustWaypoints(c TrackClassification, lt LocalTriplet, position r3.Vec) InternalWaypoints {
	wp := InternalWaypoints{
		Previous: lt.Previous,
		Target:   lt.Target,
		Next:     lt.Next,
	}
	switch c.State {
	case TrackOfftrack:
		wp.Previous = c.ClosestPoint
	case TrackPreviousInfront:
		wp.Previous = position
	}
	return wp
}
