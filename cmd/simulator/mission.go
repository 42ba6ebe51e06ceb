package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/signalsfoundry/flighttask-auto/model"
)

// Mission is a loaded mission: the local frame origin, home and the ordered
// list of global waypoints.
type Mission struct {
	Name      string
	Origin    model.GlobalReference
	Home      model.HomePosition
	Waypoints []model.PositionSetpoint
}

// internal JSON shapes, unexported so the file format can evolve separately.
type missionJSON struct {
	Name      string         `json:"name"`
	Origin    geoJSON        `json:"origin"`
	Home      *localJSON     `json:"home"`
	Waypoints []waypointJSON `json:"waypoints"`
}

type geoJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

type localJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type waypointJSON struct {
	geoJSON
	Type model.WaypointType `json:"type"`
	// Speed overrides the cruise speed when passing this waypoint.
	Speed *float64 `json:"speed"`
	// Yaw is the requested heading in degrees, clockwise from north.
	Yaw          *float64 `json:"yaw"`
	LoiterRadius float64  `json:"loiter_radius"`
}

// LoadMission decodes and validates a mission from r.
func LoadMission(r io.Reader) (*Mission, error) {
	var payload missionJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode mission: %w", err)
	}
	if len(payload.Waypoints) == 0 {
		return nil, errors.New("mission has no waypoints")
	}
	if err := checkGeo(payload.Origin); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	m := &Mission{
		Name: payload.Name,
		Origin: model.GlobalReference{
			Lat:      payload.Origin.Lat,
			Lon:      payload.Origin.Lon,
			Alt:      payload.Origin.Alt,
			XYGlobal: true,
			ZGlobal:  true,
		},
		Home:      model.HomePosition{Valid: true},
		Waypoints: make([]model.PositionSetpoint, 0, len(payload.Waypoints)),
	}
	if payload.Home != nil {
		m.Home.X, m.Home.Y, m.Home.Z = payload.Home.X, payload.Home.Y, payload.Home.Z
	}

	for i, wp := range payload.Waypoints {
		if err := checkGeo(wp.geoJSON); err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		sp := model.PositionSetpoint{
			Valid:        true,
			Type:         wp.Type,
			Frame:        model.FrameGlobal,
			Lat:          wp.Lat,
			Lon:          wp.Lon,
			Alt:          wp.Alt,
			CruiseSpeed:  -1,
			LoiterRadius: wp.LoiterRadius,
			Yaw:          math.NaN(),
		}
		if wp.LoiterRadius < 0 {
			return nil, fmt.Errorf("waypoint %d: loiter_radius must be >= 0, got %v", i, wp.LoiterRadius)
		}
		if wp.Yaw != nil {
			sp.Yaw = (s1.Angle(*wp.Yaw) * s1.Degree).Normalized().Radians()
		}
		if wp.Speed != nil {
			if *wp.Speed < 0 || math.IsNaN(*wp.Speed) {
				return nil, fmt.Errorf("waypoint %d: speed must be >= 0, got %v", i, *wp.Speed)
			}
			sp.CruiseSpeed = *wp.Speed
		}
		m.Waypoints = append(m.Waypoints, sp)
	}
	return m, nil
}

// LoadMissionFile reads a JSON mission from path.
func LoadMissionFile(path string) (*Mission, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("mission file must have .json extension, got %q", ext)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open mission: %w", err)
	}
	defer f.Close()
	return LoadMission(f)
}

func checkGeo(g geoJSON) error {
	if math.IsNaN(g.Alt) || math.IsInf(g.Alt, 0) {
		return fmt.Errorf("altitude %v is not finite", g.Alt)
	}
	if !s2.LatLngFromDegrees(g.Lat, g.Lon).IsValid() {
		return fmt.Errorf("lat/lon (%v, %v) out of range", g.Lat, g.Lon)
	}
	return nil
}
