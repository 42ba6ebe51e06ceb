package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// WaypointType is the semantic type of a mission setpoint. The numbering
// matches the navigator's position setpoint definition.
type WaypointType int

const (
	WaypointPosition WaypointType = iota
	WaypointVelocity
	WaypointLoiter
	WaypointTakeoff
	WaypointLand
	WaypointIdle
	// WaypointOffboard is kept for numbering compatibility only; the Auto
	// task never produces it.
	WaypointOffboard
	WaypointFollowTarget
)

var waypointTypeNames = [...]string{
	WaypointPosition:     "position",
	WaypointVelocity:     "velocity",
	WaypointLoiter:       "loiter",
	WaypointTakeoff:      "takeoff",
	WaypointLand:         "land",
	WaypointIdle:         "idle",
	WaypointOffboard:     "offboard",
	WaypointFollowTarget: "follow_target",
}

func (w WaypointType) String() string {
	if w >= 0 && int(w) < len(waypointTypeNames) {
		return waypointTypeNames[w]
	}
	return fmt.Sprintf("WaypointType(%d)", int(w))
}

// ParseWaypointType converts a type name into a WaypointType.
func ParseWaypointType(value string) (WaypointType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range waypointTypeNames {
		if name == normalized {
			return WaypointType(i), nil
		}
	}
	return WaypointPosition, fmt.Errorf("unknown waypoint type %q", value)
}

// UnmarshalJSON accepts either the type name or its integer value.
func (w *WaypointType) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		parsed, err := ParseWaypointType(name)
		if err != nil {
			return err
		}
		*w = parsed
		return nil
	}
	var raw int
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("waypoint type must be a string or integer: %w", err)
	}
	if raw < 0 || raw >= len(waypointTypeNames) {
		return fmt.Errorf("waypoint type %d out of range", raw)
	}
	*w = WaypointType(raw)
	return nil
}

// Frame tells whether a setpoint carries geodetic or local coordinates.
type Frame int

const (
	// FrameGlobal setpoints use Lat/Lon (degrees) and Alt (metres AMSL).
	FrameGlobal Frame = iota
	// FrameLocal setpoints use X/Y/Z in the local NED frame (metres).
	FrameLocal
)

// PositionSetpoint is one entry of a mission triplet.
type PositionSetpoint struct {
	Valid bool
	Type  WaypointType
	Frame Frame

	Lat float64
	Lon float64
	Alt float64

	X float64
	Y float64
	Z float64

	// VX/VY are only meaningful for velocity and follow-target setpoints.
	VX            float64
	VY            float64
	VelocityValid bool

	// CruiseSpeed overrides the configured speed at this waypoint. A
	// negative or non-finite value means no override.
	CruiseSpeed float64
	// LoiterRadius is the requested orbit radius in metres; zero means the
	// vehicle default.
	LoiterRadius float64
	// Yaw is the heading requested at this waypoint in radians, NaN for none.
	Yaw float64
}

// IsFinite reports whether the coordinates used by the setpoint's frame are
// all finite.
func (sp PositionSetpoint) IsFinite() bool {
	if sp.Frame == FrameLocal {
		return isFinite(sp.X) && isFinite(sp.Y) && isFinite(sp.Z)
	}
	return isFinite(sp.Lat) && isFinite(sp.Lon) && isFinite(sp.Alt)
}

// Triplet is the previous/target/next set published by the navigator for the
// current leg.
type Triplet struct {
	Previous PositionSetpoint
	Current  PositionSetpoint
	Next     PositionSetpoint

	Timestamp time.Time
}

// GlobalReference is the origin of the vehicle's local frame as reported by
// the position estimator.
type GlobalReference struct {
	Lat float64
	Lon float64
	Alt float64

	// XYGlobal and ZGlobal are false when the estimator has no global
	// horizontal or vertical fix; the local frame is then used as-is.
	XYGlobal bool
	ZGlobal  bool

	Timestamp time.Time
}

// HomePosition is the home location expressed in the local frame.
type HomePosition struct {
	X, Y, Z float64
	Valid   bool
}

// VehicleState is the estimator output consumed each cycle.
type VehicleState struct {
	X, Y, Z float64
	Yaw     float64

	Timestamp time.Time
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
