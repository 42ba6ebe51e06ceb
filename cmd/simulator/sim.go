package main

import (
	"context"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/internal/flightlog"
	"github.com/signalsfoundry/flighttask-auto/internal/logging"
	"github.com/signalsfoundry/flighttask-auto/internal/observability"
	"github.com/signalsfoundry/flighttask-auto/kb"
)

// simulation is the host control loop: one step per timectrl cycle.
type simulation struct {
	log     logging.Logger
	cfg     core.Config
	store   *kb.KnowledgeBase
	task    *core.AutoTask
	feed    *missionFeed
	vehicle *pointMass
	metrics *observability.TaskCollector
	flight  *flightlog.Run

	start          time.Time
	tick           time.Duration
	tripletTimeout time.Duration
	// feedCutoff stops the navigator feed after this much simulated time,
	// zero means never.
	feedCutoff time.Duration

	holding     bool
	complete    bool
	flightLogOK bool
	last        core.Setpoints
}

type simulationParams struct {
	Log            logging.Logger
	Config         core.Config
	Mission        *Mission
	Metrics        *observability.TaskCollector
	FlightLog      *flightlog.Run
	Start          time.Time
	Tick           time.Duration
	TripletTimeout time.Duration
	FeedCutoff     time.Duration
}

func newSimulation(p simulationParams) *simulation {
	log := p.Log
	if log == nil {
		log = logging.Noop()
	}
	store := kb.NewKnowledgeBase()

	ref := p.Mission.Origin
	ref.Timestamp = p.Start
	store.PublishReference(ref)
	store.PublishHome(p.Mission.Home)

	frame := core.NewReferenceFrame(ref.Lat, ref.Lon, ref.Alt, ref.Timestamp)
	h := p.Mission.Home
	vehicle := &pointMass{pos: r3.Vec{X: h.X, Y: h.Y, Z: h.Z}}
	store.PublishVehicleState(vehicle.state(p.Start))

	opts := []core.Option{
		core.WithLogger(log),
		core.WithAvoidanceSink(store),
	}
	if p.Metrics != nil {
		opts = append(opts, core.WithRecorder(p.Metrics))
	}

	return &simulation{
		log:            log,
		cfg:            p.Config,
		store:          store,
		task:           core.NewAutoTask(store, opts...),
		feed:           newMissionFeed(p.Mission, frame, p.Config.AcceptanceRadius),
		vehicle:        vehicle,
		metrics:        p.Metrics,
		flight:         p.FlightLog,
		flightLogOK:    true,
		start:          p.Start,
		tick:           p.Tick,
		tripletTimeout: p.TripletTimeout,
		feedCutoff:     p.FeedCutoff,
	}
}

// step runs one control cycle at simulation time now.
func (s *simulation) step(ctx context.Context, cycle uint64, now time.Time) {
	began := time.Now()
	defer func() { s.metrics.ObserveCycleDuration(time.Since(began)) }()

	ctx, span := observability.StartCycleSpan(ctx, cycle)
	defer span.End()
	ctx = logging.ContextWithCycle(ctx, cycle)
	log := logging.WithCycleLogger(ctx, s.log)
	ctx = logging.ContextWithLogger(ctx, log)

	if s.feedCutoff == 0 || now.Sub(s.start) < s.feedCutoff {
		if s.feed.Advance(s.vehicle.pos) {
			log.Info(ctx, "mission leg advanced", logging.Int("leg", s.feed.Leg()))
		}
		s.store.PublishTriplet(s.feed.Triplet(now))
	}
	s.store.PublishVehicleState(s.vehicle.state(now))

	age, ok := s.store.TripletAge(now)
	if !ok || age > s.tripletTimeout {
		if s.task.Active() {
			s.task.Deactivate(ctx)
			s.metrics.IncStaleDeactivations()
		}
		if !s.holding {
			log.Warn(ctx, "triplet stale, holding position", logging.String("age", age.String()))
			s.holding = true
		}
		span.Holding(age)
		return
	}

	if !s.task.Active() {
		if err := s.task.Activate(ctx, s.cfg); err != nil {
			span.Failed(err)
			return
		}
		s.holding = false
	}

	sp, err := s.task.UpdateSetpoints(ctx, s.cfg)
	if err != nil {
		// The task logs and counts failures; the vehicle holds.
		span.Failed(err)
		return
	}
	s.last = sp
	s.vehicle.step(sp, s.task.Constraints(s.cfg).SpeedXY, s.tick)

	if s.flight != nil {
		if err := s.flight.Record(ctx, cycle, now, s.feed.Leg(), s.vehicle.pos, sp); err != nil {
			if s.flightLogOK {
				log.Warn(ctx, "flight log write failed", logging.Err(err))
			}
			s.flightLogOK = false
		} else {
			s.flightLogOK = true
		}
	}

	span.Setpoints(sp, s.feed.Leg())

	if !s.complete && s.feed.OnLastLeg() && s.feed.Reached(s.vehicle.pos) {
		s.complete = true
		log.Info(ctx, "mission complete",
			logging.Float64("x", s.vehicle.pos.X),
			logging.Float64("y", s.vehicle.pos.Y),
			logging.Float64("z", s.vehicle.pos.Z),
		)
	}
}
