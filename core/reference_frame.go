package core

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/model"
)

// ReferenceFrame maps geodetic coordinates into the local NED frame using an
// azimuthal equidistant projection around Origin. It is an immutable value:
// a new origin means a new ReferenceFrame.
type ReferenceFrame struct {
	Origin s2.LatLng
	// Altitude is the datum subtracted from waypoint altitudes (metres AMSL).
	Altitude  float64
	Timestamp time.Time

	sinLat, cosLat float64
	valid          bool
}

// NewReferenceFrame builds a frame centred on (latDeg, lonDeg) with the given
// altitude datum.
func NewReferenceFrame(latDeg, lonDeg, altitude float64, stamp time.Time) ReferenceFrame {
	origin := s2.LatLngFromDegrees(latDeg, lonDeg)
	lat := origin.Lat.Radians()
	return ReferenceFrame{
		Origin:    origin,
		Altitude:  altitude,
		Timestamp: stamp,
		sinLat:    math.Sin(lat),
		cosLat:    math.Cos(lat),
		valid:     true,
	}
}

// Valid reports whether the frame has been initialized.
func (f ReferenceFrame) Valid() bool { return f.valid }

// Project converts a geodetic position to local north/east/down metres.
func (f ReferenceFrame) Project(latDeg, lonDeg, alt float64) r3.Vec {
	p := s2.LatLngFromDegrees(latDeg, lonDeg)
	lat := p.Lat.Radians()
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	dLon := (p.Lng - f.Origin.Lng).Radians()
	cosDLon := math.Cos(dLon)

	arg := clamp(f.sinLat*sinLat+f.cosLat*cosLat*cosDLon, -1, 1)
	c := math.Acos(arg)
	k := 1.0
	if math.Abs(c) > 0 {
		k = c / math.Sin(c)
	}

	return r3.Vec{
		X: k * (f.cosLat*sinLat - f.sinLat*cosLat*cosDLon) * EarthRadiusM,
		Y: k * cosLat * math.Sin(dLon) * EarthRadiusM,
		Z: -(alt - f.Altitude),
	}
}

// Reproject converts a local NED position back to geodetic coordinates.
func (f ReferenceFrame) Reproject(v r3.Vec) (latDeg, lonDeg, alt float64) {
	xRad := v.X / EarthRadiusM
	yRad := v.Y / EarthRadiusM
	c := math.Hypot(xRad, yRad)
	alt = f.Altitude - v.Z
	if c == 0 {
		return f.Origin.Lat.Degrees(), f.Origin.Lng.Degrees(), alt
	}
	sinC, cosC := math.Sin(c), math.Cos(c)
	lat := math.Asin(cosC*f.sinLat + xRad*sinC*f.cosLat/c)
	lon := f.Origin.Lng.Radians() + math.Atan2(yRad*sinC, c*f.cosLat*cosC-xRad*f.sinLat*sinC)
	return (s1.Angle(lat) * s1.Radian).Degrees(), (s1.Angle(lon) * s1.Radian).Degrees(), alt
}

// ProjectSetpoint returns the local position of sp. Local setpoints pass
// through unchanged.
func (f ReferenceFrame) ProjectSetpoint(sp model.PositionSetpoint) r3.Vec {
	if sp.Frame == model.FrameLocal {
		return r3.Vec{X: sp.X, Y: sp.Y, Z: sp.Z}
	}
	return f.Project(sp.Lat, sp.Lon, sp.Alt)
}

// Projector owns the current ReferenceFrame and rebuilds it when the
// estimator publishes a new reference.
type Projector struct {
	frame ReferenceFrame
}

// Frame returns the current frame snapshot.
func (p *Projector) Frame() ReferenceFrame { return p.frame }

// Reset forgets the current frame so the next Evaluate rebuilds it.
func (p *Projector) Reset() { p.frame = ReferenceFrame{} }

// Evaluate checks ref and rebuilds the frame when its timestamp differs from
// the one the current frame was built from. The returned bool is true when
// the frame was rebuilt. On error the previous frame is left untouched.
func (p *Projector) Evaluate(ref model.GlobalReference) (bool, error) {
	if p.frame.valid && ref.Timestamp.Equal(p.frame.Timestamp) {
		return false, nil
	}
	if ref.Timestamp.IsZero() {
		return false, fmt.Errorf("%w: reference never published", ErrNoGlobalReference)
	}
	if !isFinite(ref.Lat) || !isFinite(ref.Lon) || !isFinite(ref.Alt) {
		return false, fmt.Errorf("%w: non-finite reference (%v, %v, %v)", ErrNoGlobalReference, ref.Lat, ref.Lon, ref.Alt)
	}

	lat, lon, alt := ref.Lat, ref.Lon, ref.Alt
	if !ref.XYGlobal {
		lat, lon = 0, 0
	}
	if !ref.ZGlobal {
		alt = 0
	}
	if !s2.LatLngFromDegrees(lat, lon).IsValid() {
		return false, fmt.Errorf("%w: origin (%v, %v) out of range", ErrNoGlobalReference, lat, lon)
	}

	p.frame = NewReferenceFrame(lat, lon, alt, ref.Timestamp)
	return true, nil
}
