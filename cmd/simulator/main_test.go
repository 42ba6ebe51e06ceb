package main

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/internal/flightlog"
	"github.com/signalsfoundry/flighttask-auto/internal/observability"
	"github.com/signalsfoundry/flighttask-auto/model"
	"github.com/signalsfoundry/flighttask-auto/timectrl"
)

const lineMission = `{
  "name": "line",
  "origin": {"lat": 47.0, "lon": 8.0, "alt": 400},
  "home": {"x": 1, "y": 2, "z": 0},
  "waypoints": [
    {"type": "takeoff", "lat": 47.0, "lon": 8.0, "alt": 410},
    {"type": "position", "lat": 47.0005, "lon": 8.0, "alt": 410, "speed": 2, "yaw": 270, "loiter_radius": 15},
    {"type": 0, "lat": 47.001, "lon": 8.0, "alt": 410}
  ]
}`

func TestLoadMission(t *testing.T) {
	m, err := LoadMission(strings.NewReader(lineMission))
	require.NoError(t, err)

	assert.Equal(t, "line", m.Name)
	assert.Equal(t, model.GlobalReference{Lat: 47, Lon: 8, Alt: 400, XYGlobal: true, ZGlobal: true}, m.Origin)
	assert.Equal(t, model.HomePosition{X: 1, Y: 2, Valid: true}, m.Home)
	require.Len(t, m.Waypoints, 3)

	want := model.PositionSetpoint{
		Valid:        true,
		Type:         model.WaypointPosition,
		Frame:        model.FrameGlobal,
		Lat:          47.0005,
		Lon:          8.0,
		Alt:          410,
		CruiseSpeed:  2,
		LoiterRadius: 15,
		Yaw:          -math.Pi / 2,
	}
	if diff := cmp.Diff(want, m.Waypoints[1], cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("waypoint 1 mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, model.WaypointTakeoff, m.Waypoints[0].Type)
	assert.Equal(t, -1.0, m.Waypoints[2].CruiseSpeed, "no speed means no override")
	assert.True(t, math.IsNaN(m.Waypoints[2].Yaw), "no yaw means no heading request")
}

func TestLoadMissionErrors(t *testing.T) {
	tests := map[string]string{
		"no waypoints":      `{"origin": {"lat": 1, "lon": 1}, "waypoints": []}`,
		"bad origin":        `{"origin": {"lat": 91, "lon": 1}, "waypoints": [{"lat": 1, "lon": 1}]}`,
		"bad waypoint":      `{"origin": {"lat": 1, "lon": 1}, "waypoints": [{"lat": 1, "lon": 200}]}`,
		"negative speed":    `{"origin": {"lat": 1, "lon": 1}, "waypoints": [{"lat": 1, "lon": 1, "speed": -3}]}`,
		"negative loiter":   `{"origin": {"lat": 1, "lon": 1}, "waypoints": [{"lat": 1, "lon": 1, "loiter_radius": -3}]}`,
		"unknown type":      `{"origin": {"lat": 1, "lon": 1}, "waypoints": [{"type": "barrel_roll", "lat": 1, "lon": 1}]}`,
		"unknown field":     `{"origin": {"lat": 1, "lon": 1}, "waypoints": [{"lat": 1, "lon": 1}], "wind": 3}`,
		"truncated payload": `{"origin": {"lat": 1`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMission(strings.NewReader(body))
			assert.Error(t, err)
		})
	}
}

func TestShippedMissionLoads(t *testing.T) {
	m, err := LoadMissionFile("../../configs/mission.json")
	require.NoError(t, err)
	assert.NotEmpty(t, m.Waypoints)

	_, err = LoadMissionFile("../../configs/mission.yaml")
	assert.ErrorContains(t, err, ".json extension")

	cfg, err := core.LoadConfig("../../configs/task.json")
	require.NoError(t, err)
	assert.Equal(t, 6.0, cfg.CruiseSpeed)
}

func TestMissionFeed(t *testing.T) {
	m, err := LoadMission(strings.NewReader(lineMission))
	require.NoError(t, err)
	frame := core.NewReferenceFrame(m.Origin.Lat, m.Origin.Lon, m.Origin.Alt, time.Unix(1, 0))
	feed := newMissionFeed(m, frame, 2)

	now := time.Unix(5, 0)
	tr := feed.Triplet(now)
	assert.False(t, tr.Previous.Valid, "first leg has no previous waypoint")
	assert.Equal(t, model.WaypointTakeoff, tr.Current.Type)
	assert.True(t, tr.Next.Valid)
	assert.Equal(t, now, tr.Timestamp)

	assert.False(t, feed.Advance(r3.Vec{}), "10 m below the takeoff point")
	assert.True(t, feed.Advance(r3.Vec{Z: -9}))
	assert.Equal(t, 1, feed.Leg())

	require.True(t, feed.Advance(frame.ProjectSetpoint(m.Waypoints[1])))
	assert.True(t, feed.OnLastLeg())
	tr = feed.Triplet(now)
	assert.Equal(t, model.WaypointLoiter, tr.Current.Type, "final position waypoint becomes a loiter")
	assert.False(t, tr.Next.Valid)
	assert.False(t, feed.Advance(frame.ProjectSetpoint(m.Waypoints[2])), "no leg after the last")

	assert.Equal(t, model.WaypointPosition, m.Waypoints[2].Type, "the mission itself is not modified")
}

func TestPointMassStep(t *testing.T) {
	v := &pointMass{}
	sp := core.Setpoints{
		Waypoints:     core.InternalWaypoints{Target: r3.Vec{X: 100}},
		SpeedAtTarget: 3,
		Heading:       0.2,
	}
	v.step(sp, 5, 100*time.Millisecond)
	if diff := cmp.Diff(r3.Vec{X: 0.5}, v.pos, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("position after one step (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0.2, v.yaw)

	// Close to the target the speed is limited by braking toward 3 m/s.
	v.pos = r3.Vec{X: 99}
	v.step(sp, 5, 100*time.Millisecond)
	assert.InDelta(t, 99+math.Sqrt(9+2*vehicleDecel*1)*0.1, v.pos.X, 1e-12)

	v.pos = r3.Vec{X: 99.9}
	v.step(sp, 5, time.Second)
	assert.Equal(t, r3.Vec{X: 100}, v.pos, "snaps onto the target instead of overshooting")
}

func newTestSimulation(t *testing.T, cutoff time.Duration, flight ...*flightlog.Run) (*simulation, *timectrl.TimeController, *observability.TaskCollector) {
	t.Helper()
	m, err := LoadMissionFile("../../configs/mission.json")
	require.NoError(t, err)
	collector, err := observability.NewTaskCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	tick := 50 * time.Millisecond
	tc := timectrl.NewTimeController(start, tick, timectrl.Accelerated)
	sim := newSimulation(simulationParams{
		Config:         core.DefaultConfig(),
		Mission:        m,
		Metrics:        collector,
		Start:          start,
		Tick:           tick,
		TripletTimeout: 500 * time.Millisecond,
		FeedCutoff:     cutoff,
	})
	if len(flight) > 0 {
		sim.flight = flight[0]
	}
	ctx := context.Background()
	tc.AddListener(func(cycle uint64, now time.Time) { sim.step(ctx, cycle, now) })
	return sim, tc, collector
}

func TestIntegration_FliesShippedMission(t *testing.T) {
	sim, tc, collector := newTestSimulation(t, 0)

	for i := 0; i < 8000 && !sim.complete; i++ {
		tc.Step()
	}
	require.True(t, sim.complete, "mission not complete after %d cycles, leg %d at %v", tc.Cycle(), sim.feed.Leg(), sim.vehicle.pos)

	final := sim.feed.local[len(sim.feed.local)-1]
	assert.LessOrEqual(t, r3.Norm(r3.Sub(final, sim.vehicle.pos)), 2.0)
	assert.True(t, sim.task.Active())
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.StaleDeactivated))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ReferenceResets))
	assert.Greater(t, testutil.ToFloat64(collector.Cycles.WithLabelValues("none")), 100.0)

	rec, ok := sim.store.LatestAvoidance()
	require.True(t, ok)
	assert.Equal(t, model.WaypointLoiter, rec.Type)
}

func TestIntegration_StaleTripletHoldsPosition(t *testing.T) {
	sim, tc, collector := newTestSimulation(t, time.Second)

	for range 40 {
		tc.Step()
	}
	assert.False(t, sim.task.Active())
	assert.True(t, sim.holding)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StaleDeactivated))

	held := sim.vehicle.pos
	for range 20 {
		tc.Step()
	}
	assert.Equal(t, held, sim.vehicle.pos)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StaleDeactivated), "deactivation counted once")
}

func TestIntegration_RecordsFlightLog(t *testing.T) {
	db, err := flightlog.Open(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	run, err := db.StartRun(ctx, "box-survey", time.Now(), core.DefaultConfig())
	require.NoError(t, err)

	_, tc, _ := newTestSimulation(t, 0, run)
	for range 250 {
		tc.Step()
	}
	require.NoError(t, run.Close(ctx))

	n, err := db.CountCycles(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}
