package kb

import (
	"sync"
	"time"

	"github.com/signalsfoundry/flighttask-auto/core"
	"github.com/signalsfoundry/flighttask-auto/model"
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventTripletUpdated EventType = iota
	EventReferenceUpdated
	EventAvoidanceUpdated
)

func (e EventType) String() string {
	switch e {
	case EventTripletUpdated:
		return "triplet_updated"
	case EventReferenceUpdated:
		return "reference_updated"
	case EventAvoidanceUpdated:
		return "avoidance_updated"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when something interesting happens. Only
// the field matching Type is set.
type Event struct {
	Type      EventType
	Triplet   model.Triplet
	Reference model.GlobalReference
	Avoidance core.AvoidanceRecord
}

// KnowledgeBase holds the latest value of every flight task input and the
// latest avoidance record. Writers overwrite; readers get a copy. The lock
// is held only for the copy.
type KnowledgeBase struct {
	mu sync.RWMutex

	in          core.Inputs
	haveTriplet bool

	avoidance     core.AvoidanceRecord
	haveAvoidance bool

	subs    map[int]func(Event)
	nextSub int
}

var (
	_ core.InputSource   = (*KnowledgeBase)(nil)
	_ core.AvoidanceSink = (*KnowledgeBase)(nil)
)

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{subs: make(map[int]func(Event))}
}

// PublishTriplet replaces the navigator triplet and notifies subscribers.
func (kb *KnowledgeBase) PublishTriplet(t model.Triplet) {
	kb.mu.Lock()
	kb.in.Triplet = t
	kb.haveTriplet = true
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventTripletUpdated, Triplet: t})
}

// PublishReference replaces the local frame origin and notifies subscribers.
func (kb *KnowledgeBase) PublishReference(ref model.GlobalReference) {
	kb.mu.Lock()
	kb.in.Reference = ref
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventReferenceUpdated, Reference: ref})
}

// PublishHome replaces the home position.
func (kb *KnowledgeBase) PublishHome(h model.HomePosition) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.in.Home = h
}

// PublishVehicleState replaces the estimator output. It is written every
// cycle and does not notify subscribers.
func (kb *KnowledgeBase) PublishVehicleState(s model.VehicleState) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.in.Vehicle = s
}

// Inputs returns a copy of the latest inputs.
func (kb *KnowledgeBase) Inputs() core.Inputs {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.in
}

// TripletAge returns how old the latest triplet is at now. It reports false
// if no triplet has been published.
func (kb *KnowledgeBase) TripletAge(now time.Time) (time.Duration, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if !kb.haveTriplet {
		return 0, false
	}
	return now.Sub(kb.in.Triplet.Timestamp), true
}

// PublishWaypoints stores the avoidance record and notifies subscribers.
// Subscribers run on the control path and must return quickly.
func (kb *KnowledgeBase) PublishWaypoints(rec core.AvoidanceRecord) {
	kb.mu.Lock()
	kb.avoidance = rec
	kb.haveAvoidance = true
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventAvoidanceUpdated, Avoidance: rec})
}

// LatestAvoidance returns the last avoidance record, or false if none was
// published.
func (kb *KnowledgeBase) LatestAvoidance() (core.AvoidanceRecord, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.avoidance, kb.haveAvoidance
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	if len(kb.subs) == 0 {
		return nil
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the lock to avoid deadlocks.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
