package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/flighttask-auto/core"
)

var failureReasons = []core.FailureReason{
	core.FailureInvalidTriplet,
	core.FailureNoGlobalReference,
	core.FailureInvalidConfig,
}

// TaskCollector bundles Prometheus metrics for the Auto flight task. It
// implements core.CycleRecorder. Labelled children are resolved at
// construction so recording a cycle does not build label slices.
type TaskCollector struct {
	gatherer prometheus.Gatherer

	Cycles           *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	ReferenceResets  prometheus.Counter
	SpeedAtTarget    prometheus.Gauge
	YawLocked        prometheus.Gauge
	CycleDuration    prometheus.Histogram
	StaleDeactivated prometheus.Counter

	cyclesByState    [core.NumTrackStates]prometheus.Counter
	failuresByReason map[core.FailureReason]prometheus.Counter
}

var _ core.CycleRecorder = (*TaskCollector)(nil)

// NewTaskCollector registers flight task metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewTaskCollector(reg prometheus.Registerer) (*TaskCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flighttask_cycles_total",
		Help: "Completed control cycles, labeled by track state.",
	}, []string{"state"}), "flighttask_cycles_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flighttask_evaluation_failures_total",
		Help: "Control cycles that could not produce setpoints, labeled by reason.",
	}, []string{"reason"}), "flighttask_evaluation_failures_total")
	if err != nil {
		return nil, err
	}

	resets, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flighttask_reference_resets_total",
		Help: "Number of times the local reference frame was rebuilt.",
	}), "flighttask_reference_resets_total")
	if err != nil {
		return nil, err
	}

	speed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flighttask_speed_at_target_mps",
		Help: "Planned speed when passing the current target, in m/s.",
	}), "flighttask_speed_at_target_mps")
	if err != nil {
		return nil, err
	}

	locked, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flighttask_yaw_locked",
		Help: "1 while the heading is locked inside the acceptance radius.",
	}), "flighttask_yaw_locked")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flighttask_cycle_duration_seconds",
		Help:    "Wall time spent in one control cycle.",
		Buckets: []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	}), "flighttask_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	stale, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flighttask_stale_deactivations_total",
		Help: "Times the host deactivated the task because the triplet went stale.",
	}), "flighttask_stale_deactivations_total")
	if err != nil {
		return nil, err
	}

	c := &TaskCollector{
		gatherer:         gatherer,
		Cycles:           cycles,
		Failures:         failures,
		ReferenceResets:  resets,
		SpeedAtTarget:    speed,
		YawLocked:        locked,
		CycleDuration:    duration,
		StaleDeactivated: stale,
		failuresByReason: make(map[core.FailureReason]prometheus.Counter, len(failureReasons)),
	}
	for s := core.TrackState(0); s < core.NumTrackStates; s++ {
		c.cyclesByState[s] = cycles.WithLabelValues(s.String())
	}
	for _, r := range failureReasons {
		c.failuresByReason[r] = failures.WithLabelValues(string(r))
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TaskCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TaskCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveCycle records a successful cycle.
func (c *TaskCollector) ObserveCycle(state core.TrackState, speedAtTarget float64, yawLocked bool) {
	if c == nil {
		return
	}
	if state >= 0 && state < core.NumTrackStates {
		c.cyclesByState[state].Inc()
	}
	c.SpeedAtTarget.Set(speedAtTarget)
	if yawLocked {
		c.YawLocked.Set(1)
	} else {
		c.YawLocked.Set(0)
	}
}

// ObserveFailure records a cycle that produced no setpoints.
func (c *TaskCollector) ObserveFailure(reason core.FailureReason) {
	if c == nil {
		return
	}
	if counter, ok := c.failuresByReason[reason]; ok {
		counter.Inc()
		return
	}
	c.Failures.WithLabelValues(string(reason)).Inc()
}

// ObserveReferenceReset records a rebuilt reference frame.
func (c *TaskCollector) ObserveReferenceReset() {
	if c == nil {
		return
	}
	c.ReferenceResets.Inc()
}

// ObserveCycleDuration records how long one cycle took.
func (c *TaskCollector) ObserveCycleDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
}

// IncStaleDeactivations counts a stale-triplet failover by the host.
func (c *TaskCollector) IncStaleDeactivations() {
	if c == nil {
		return
	}
	c.StaleDeactivated.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
