package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/flighttask-auto/internal/logging"
	"github.com/signalsfoundry/flighttask-auto/model"
)

// FlightTask is the capability set a host control loop drives.
type FlightTask interface {
	Activate(ctx context.Context, cfg Config) error
	Deactivate(ctx context.Context)
	UpdateSetpoints(ctx context.Context, cfg Config) (Setpoints, error)
	Constraints(cfg Config) Constraints
}

// Inputs is the snapshot of external data read once per cycle.
type Inputs struct {
	Triplet   model.Triplet
	Reference model.GlobalReference
	Home      model.HomePosition
	Vehicle   model.VehicleState
}

// InputSource hands the task its inputs. The task holds the source but does
// not own it; the source outlives the task.
type InputSource interface {
	Inputs() Inputs
}

// Setpoints is the reference produced by one cycle.
type Setpoints struct {
	Waypoints InternalWaypoints
	Type      model.WaypointType
	State     TrackState
	// ClosestPoint is the closest point on the navigator's previous->target line.
	ClosestPoint  r3.Vec
	CruiseSpeed   float64
	SpeedAtTarget float64
	// Heading is the yaw setpoint in radians, north = 0, east = pi/2.
	Heading   float64
	YawLocked bool
	// NewTarget is true on the first cycle with a new navigator target.
	NewTarget        bool
	TargetVelocityXY r2.Vec
	// TargetYaw is the heading the navigator requests at the target, NaN
	// when none. LoiterRadius is zero when unspecified.
	TargetYaw    float64
	LoiterRadius float64
}

// Constraints are the limits the task imposes on the position controller.
type Constraints struct {
	SpeedXY float64
}

// FailureReason labels why a cycle could not produce setpoints.
type FailureReason string

const (
	FailureInvalidTriplet    FailureReason = "invalid_triplet"
	FailureNoGlobalReference FailureReason = "no_global_reference"
	FailureInvalidConfig     FailureReason = "invalid_config"
)

// CycleRecorder receives per-cycle outcomes, typically to export metrics.
// Implementations are called on the control path and must not block.
type CycleRecorder interface {
	ObserveCycle(state TrackState, speedAtTarget float64, yawLocked bool)
	ObserveFailure(reason FailureReason)
	ObserveReferenceReset()
}

type noopRecorder struct{}

func (noopRecorder) ObserveCycle(TrackState, float64, bool) {}
func (noopRecorder) ObserveFailure(FailureReason)           {}
func (noopRecorder) ObserveReferenceReset()                 {}

// Option configures an AutoTask.
type Option func(*AutoTask)

// WithLogger sets the task logger.
func WithLogger(l logging.Logger) Option {
	return func(t *AutoTask) {
		if l != nil {
			t.log = l
		}
	}
}

// WithRecorder sets the cycle recorder.
func WithRecorder(r CycleRecorder) Option {
	return func(t *AutoTask) {
		if r != nil {
			t.rec = r
		}
	}
}

// WithAvoidanceSink publishes the waypoint plan to s every cycle.
func WithAvoidanceSink(s AvoidanceSink) Option {
	return func(t *AutoTask) { t.sink = s }
}

// targetChangeTolerance is the per-axis distance (metres) below which a
// navigator target counts as unchanged.
const targetChangeTolerance = 0.001

// AutoTask maps the navigator triplet to local waypoints, speed and heading.
// It is not safe for concurrent use; a single control loop owns it.
type AutoTask struct {
	src  InputSource
	sink AvoidanceSink
	log  logging.Logger
	rec  CycleRecorder

	projector Projector
	heading   HeadingComputer

	active     bool
	haveTarget bool
	lastTarget r3.Vec
	lastState  TrackState
	// requestedCruise is the target's speed override from the last good
	// cycle, NaN when none.
	requestedCruise float64
	// lastFailure is empty while cycles succeed; failures are logged only
	// when the reason changes.
	lastFailure FailureReason
}

var _ FlightTask = (*AutoTask)(nil)

// NewAutoTask constructs a task reading from src.
func NewAutoTask(src InputSource, opts ...Option) *AutoTask {
	t := &AutoTask{
		src:             src,
		log:             logging.Noop(),
		rec:             noopRecorder{},
		requestedCruise: math.NaN(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Active reports whether the task has been activated successfully.
func (t *AutoTask) Active() bool { return t.active }

// Activate resets the per-activation state and runs one evaluation. The task
// stays inactive if the evaluation fails.
func (t *AutoTask) Activate(ctx context.Context, cfg Config) error {
	in := t.src.Inputs()
	t.heading.Reset(in.Vehicle.Yaw)
	t.haveTarget = false
	t.lastState = TrackNone
	t.requestedCruise = math.NaN()
	t.active = true

	sp, err := t.update(ctx, cfg, in)
	if err != nil {
		t.active = false
		return fmt.Errorf("activate: %w", err)
	}
	t.logger(ctx).Info(ctx, "auto task activated",
		logging.String("type", sp.Type.String()),
		logging.String("state", sp.State.String()),
		logging.Float64("speed_at_target", sp.SpeedAtTarget),
	)
	return nil
}

// Deactivate stops the task. UpdateSetpoints fails until the next Activate.
func (t *AutoTask) Deactivate(ctx context.Context) {
	if !t.active {
		return
	}
	t.active = false
	t.logger(ctx).Info(ctx, "auto task deactivated")
}

// UpdateSetpoints runs one control cycle against the latest inputs.
func (t *AutoTask) UpdateSetpoints(ctx context.Context, cfg Config) (Setpoints, error) {
	if !t.active {
		return Setpoints{}, ErrNotActive
	}
	return t.update(ctx, cfg, t.src.Inputs())
}

// Constraints limits the horizontal speed to the cruise speed in effect,
// which honours the current target's speed request.
func (t *AutoTask) Constraints(cfg Config) Constraints {
	return Constraints{SpeedXY: math.Min(cfg.MaxSpeedXY, cfg.EffectiveCruiseSpeed(t.requestedCruise))}
}

func (t *AutoTask) update(ctx context.Context, cfg Config, in Inputs) (Setpoints, error) {
	if err := cfg.Validate(); err != nil {
		return Setpoints{}, t.fail(ctx, FailureInvalidConfig, err)
	}

	et, err := EvaluateTriplet(in.Triplet)
	if err != nil {
		return Setpoints{}, t.fail(ctx, FailureInvalidTriplet, err)
	}

	if et.NeedsReference() {
		reset, err := t.projector.Evaluate(in.Reference)
		if err != nil {
			return Setpoints{}, t.fail(ctx, FailureNoGlobalReference, err)
		}
		if reset {
			t.rec.ObserveReferenceReset()
			f := t.projector.Frame()
			t.logger(ctx).Info(ctx, "reference frame initialized",
				logging.Float64("lat", f.Origin.Lat.Degrees()),
				logging.Float64("lon", f.Origin.Lng.Degrees()),
				logging.Float64("alt", f.Altitude),
			)
		}
	}
	frame := t.projector.Frame()

	pos := vehiclePosition(in.Vehicle)
	lt := frame.ProjectTriplet(et, pos)

	newTarget := !t.haveTarget || !sameWaypoint(lt.Target, t.lastTarget)
	t.lastTarget, t.haveTarget = lt.Target, true

	cruise := cfg.EffectiveCruiseSpeed(et.SpeedOverride)
	cls := ClassifyTrack(pos, lt.Previous, lt.Target, cruise, cfg.AcceptanceRadius)
	wp := AdjustWaypoints(cls, lt, pos)

	sp := Setpoints{
		Waypoints:        wp,
		Type:             et.Type,
		State:            cls.State,
		ClosestPoint:     cls.ClosestPoint,
		CruiseSpeed:      cruise,
		SpeedAtTarget:    PlanSpeedAtTarget(wp, cruise, cfg.CornerSpeed, et.SpeedOverride),
		NewTarget:        newTarget,
		TargetVelocityXY: et.TargetVelocityXY,
		TargetYaw:        et.TargetYaw,
		LoiterRadius:     et.LoiterRadius,
	}
	sp.Heading = t.heading.Update(HeadingInput{
		Mode:             cfg.YawMode,
		Position:         pos,
		Waypoints:        wp,
		Home:             in.Home,
		NewTarget:        newTarget,
		AcceptanceRadius: cfg.AcceptanceRadius,
	})
	sp.YawLocked = t.heading.Locked()

	if cls.State != t.lastState {
		t.logger(ctx).Debug(ctx, "track state changed",
			logging.String("from", t.lastState.String()),
			logging.String("to", cls.State.String()),
			logging.Float64("lateral", cls.Lateral),
		)
		t.lastState = cls.State
	}

	t.requestedCruise = et.SpeedOverride

	if t.sink != nil {
		t.sink.PublishWaypoints(ExportAvoidance(sp, in.Vehicle.Timestamp))
	}
	if t.lastFailure != "" {
		t.logger(ctx).Info(ctx, "auto task evaluation recovered", logging.String("after", string(t.lastFailure)))
		t.lastFailure = ""
	}
	t.rec.ObserveCycle(sp.State, sp.SpeedAtTarget, sp.YawLocked)
	return sp, nil
}

func (t *AutoTask) fail(ctx context.Context, reason FailureReason, err error) error {
	t.rec.ObserveFailure(reason)
	if reason != t.lastFailure {
		t.logger(ctx).Warn(ctx, "auto task evaluation failed",
			logging.String("reason", string(reason)),
			logging.Err(err),
		)
		t.lastFailure = reason
	}
	return err
}

// logger prefers a logger carried by ctx, typically annotated with the cycle.
func (t *AutoTask) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return t.log
}

func sameWaypoint(a, b r3.Vec) bool {
	return scalar.EqualWithinAbs(a.X, b.X, targetChangeTolerance) &&
		scalar.EqualWithinAbs(a.Y, b.Y, targetChangeTolerance) &&
		scalar.EqualWithinAbs(a.Z, b.Z, targetChangeTolerance)
}

// IsEvaluationFailure reports whether err means the task cannot produce a
// reference this cycle and the caller should fall back to holding position.
func IsEvaluationFailure(err error) bool {
	return errors.Is(err, ErrInvalidTriplet) ||
		errors.Is(err, ErrNoGlobalReference) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrNotActive)
}
