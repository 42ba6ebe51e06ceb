package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/model"
)

var zurich = model.GlobalReference{
	Lat:       47.3977,
	Lon:       8.5456,
	Alt:       488,
	XYGlobal:  true,
	ZGlobal:   true,
	Timestamp: time.Unix(1_700_000_000, 0),
}

func TestProjectOriginIsZero(t *testing.T) {
	f := NewReferenceFrame(zurich.Lat, zurich.Lon, zurich.Alt, zurich.Timestamp)
	got := f.Project(zurich.Lat, zurich.Lon, zurich.Alt)
	assert.InDelta(t, 0, got.X, 1e-6)
	assert.InDelta(t, 0, got.Y, 1e-6)
	assert.InDelta(t, 0, got.Z, 1e-9)
}

func TestProjectAxes(t *testing.T) {
	f := NewReferenceFrame(zurich.Lat, zurich.Lon, zurich.Alt, zurich.Timestamp)

	north := f.Project(zurich.Lat+0.001, zurich.Lon, zurich.Alt+10)
	assert.Greater(t, north.X, 100.0)
	assert.InDelta(t, 0, north.Y, 1e-6)
	assert.InDelta(t, -10, north.Z, 1e-9, "down is negative altitude")

	east := f.Project(zurich.Lat, zurich.Lon+0.001, zurich.Alt)
	assert.Greater(t, east.Y, 50.0)
	assert.Less(t, math.Abs(east.X), 0.01)

	// One millidegree of latitude is R * 1e-3 * pi/180 metres.
	assert.InDelta(t, EarthRadiusM*1e-3*math.Pi/180, north.X, 1e-3)
}

func TestProjectReprojectRoundTrip(t *testing.T) {
	f := NewReferenceFrame(zurich.Lat, zurich.Lon, zurich.Alt, zurich.Timestamp)
	points := []s2.LatLng{
		s2.LatLngFromDegrees(47.40, 8.55),
		s2.LatLngFromDegrees(47.39, 8.53),
		s2.LatLngFromDegrees(47.45, 8.60),
	}
	for _, p := range points {
		local := f.Project(p.Lat.Degrees(), p.Lng.Degrees(), 520)
		lat, lon, alt := f.Reproject(local)
		back := s2.LatLngFromDegrees(lat, lon)

		// Angular distance on the sphere converted to metres.
		errM := p.Distance(back).Radians() * EarthRadiusM
		assert.Less(t, errM, 0.01, "round trip error for %v", p)
		assert.InDelta(t, 520, alt, 1e-9)
	}
}

func TestProjectSetpointLocalPassesThrough(t *testing.T) {
	f := NewReferenceFrame(zurich.Lat, zurich.Lon, zurich.Alt, zurich.Timestamp)
	sp := model.PositionSetpoint{Frame: model.FrameLocal, X: 1, Y: 2, Z: -3, Lat: 10, Lon: 10}
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: -3}, f.ProjectSetpoint(sp))
}

func TestProjectorEvaluate(t *testing.T) {
	var p Projector
	assert.False(t, p.Frame().Valid())

	reset, err := p.Evaluate(zurich)
	require.NoError(t, err)
	assert.True(t, reset)
	assert.True(t, p.Frame().Valid())

	reset, err = p.Evaluate(zurich)
	require.NoError(t, err)
	assert.False(t, reset, "same timestamp keeps the frame")

	moved := zurich
	moved.Lat += 0.01
	moved.Timestamp = zurich.Timestamp.Add(time.Second)
	reset, err = p.Evaluate(moved)
	require.NoError(t, err)
	assert.True(t, reset)
	assert.InDelta(t, moved.Lat, p.Frame().Origin.Lat.Degrees(), 1e-9)
}

func TestProjectorEvaluateSameStampIgnoresNewValues(t *testing.T) {
	var p Projector
	_, err := p.Evaluate(zurich)
	require.NoError(t, err)

	drifted := zurich
	drifted.Lat += 1
	reset, err := p.Evaluate(drifted)
	require.NoError(t, err)
	assert.False(t, reset)
	assert.InDelta(t, zurich.Lat, p.Frame().Origin.Lat.Degrees(), 1e-9)
}

func TestProjectorEvaluateFallbacks(t *testing.T) {
	var p Projector
	ref := zurich
	ref.XYGlobal = false
	ref.ZGlobal = false

	_, err := p.Evaluate(ref)
	require.NoError(t, err)
	f := p.Frame()
	assert.Equal(t, 0.0, f.Origin.Lat.Degrees())
	assert.Equal(t, 0.0, f.Origin.Lng.Degrees())
	assert.Equal(t, 0.0, f.Altitude)
}

func TestProjectorEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		ref  model.GlobalReference
	}{
		{"never published", model.GlobalReference{Lat: 1, Lon: 1, XYGlobal: true}},
		{"nan latitude", model.GlobalReference{Lat: math.NaN(), XYGlobal: true, Timestamp: zurich.Timestamp}},
		{"infinite altitude", model.GlobalReference{Alt: math.Inf(1), ZGlobal: true, Timestamp: zurich.Timestamp}},
		{"latitude out of range", model.GlobalReference{Lat: 95, XYGlobal: true, Timestamp: zurich.Timestamp}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var p Projector
			_, err := p.Evaluate(tc.ref)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoGlobalReference))
			assert.False(t, p.Frame().Valid())
		})
	}
}

func TestProjectorEvaluateErrorKeepsPreviousFrame(t *testing.T) {
	var p Projector
	_, err := p.Evaluate(zurich)
	require.NoError(t, err)

	bad := zurich
	bad.Lat = math.NaN()
	bad.Timestamp = zurich.Timestamp.Add(time.Second)
	_, err = p.Evaluate(bad)
	require.ErrorIs(t, err, ErrNoGlobalReference)
	assert.True(t, p.Frame().Valid())
	assert.True(t, p.Frame().Timestamp.Equal(zurich.Timestamp))

	p.Reset()
	assert.False(t, p.Frame().Valid())
}
