// Package geofence converts a stream of device coordinates into discrete
// proximity transitions against a monitored checkpoint set.
//
// The monitor supports two independent modes. CheckProximity is an on-demand
// query returning the checkpoints currently within threshold of a point.
// ProcessSample is the continuous mode: each sample updates per-checkpoint
// proximity state and emits one ProximityChange per boolean flip, so a
// checkpoint that stays within threshold across noisy GPS readings does not
// re-fire.
package geofence

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/guardline/patrolkit/pkg/patrol/event"
	"github.com/guardline/patrolkit/pkg/patrol/location"
)

// DefaultThresholdFeet is the proximity threshold used when none is configured.
const DefaultThresholdFeet = 50.0

// Sentinel errors for monitoring operations.
var (
	// ErrNoCheckpoints indicates StartMonitoring was called with an empty set.
	ErrNoCheckpoints = errors.New("checkpoint set is empty")

	// ErrNotMonitoring indicates a proximity query against a monitor with no
	// active checkpoint set.
	ErrNotMonitoring = errors.New("no active monitoring")
)

// ProximityChange reports a single checkpoint crossing the proximity boundary.
type ProximityChange struct {
	// CheckpointID identifies the checkpoint that crossed the boundary.
	CheckpointID int

	// Entered is true when the device moved within threshold, false when it
	// moved back out.
	Entered bool

	// DistanceFeet is the distance computed from the sample that caused the
	// transition.
	DistanceFeet float64
}

// proximityState tracks one checkpoint's relation to the device.
// It exists only while monitoring is active.
type proximityState struct {
	checkpoint location.Checkpoint
	within     bool
	distance   float64
}

// Monitor tracks device proximity to a set of checkpoints.
// All methods are safe for concurrent use; samples are processed strictly in
// call order because every mutation holds the monitor lock.
type Monitor struct {
	mu         sync.Mutex
	threshold  float64
	exitFactor float64
	states     map[int]*proximityState // nil when not monitoring
	changes    *event.Feed[ProximityChange]
	logger     *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithThresholdFeet sets the proximity threshold in feet.
// Values <= 0 are ignored. Default: DefaultThresholdFeet.
func WithThresholdFeet(feet float64) MonitorOption {
	return func(m *Monitor) {
		if feet > 0 {
			m.threshold = feet
		}
	}
}

// WithExitFactor sets the exit dead-band multiplier: a checkpoint counts as
// entered at threshold but only exits beyond threshold * factor. A factor of
// 1.0 disables the dead-band. Values < 1 are ignored.
//
// The dead-band exists to keep a single meter of GPS jitter at the boundary
// from producing enter/exit storms. Default: 1.0 (disabled).
func WithExitFactor(factor float64) MonitorOption {
	return func(m *Monitor) {
		if factor >= 1 {
			m.exitFactor = factor
		}
	}
}

// WithLogger sets a structured logger for transition logging.
// A nil logger disables logging. Default: nil.
func WithLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a monitor with no active checkpoint set.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		threshold:  DefaultThresholdFeet,
		exitFactor: 1.0,
		changes:    event.NewFeed[ProximityChange](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnProximityChange registers fn for proximity transitions.
// Listeners run synchronously on the goroutine that processed the sample.
func (m *Monitor) OnProximityChange(fn func(ProximityChange)) event.Subscription {
	return m.changes.Subscribe(fn)
}

// StartMonitoring replaces any existing monitored set with checkpoints and
// resets every proximity state to "outside". It fails with ErrNoCheckpoints
// when the set is empty.
func (m *Monitor) StartMonitoring(checkpoints []location.Checkpoint) error {
	if len(checkpoints) == 0 {
		return ErrNoCheckpoints
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states = make(map[int]*proximityState, len(checkpoints))
	for _, cp := range checkpoints {
		m.states[cp.ID] = &proximityState{checkpoint: cp}
	}

	if m.logger != nil {
		m.logger.Debug("monitoring started",
			slog.Int("checkpoints", len(checkpoints)),
			slog.Float64("threshold_feet", m.threshold),
		)
	}
	return nil
}

// StopMonitoring discards all proximity state. Idempotent.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.states == nil {
		return
	}
	m.states = nil

	if m.logger != nil {
		m.logger.Debug("monitoring stopped")
	}
}

// Monitoring reports whether a checkpoint set is active.
func (m *Monitor) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states != nil
}

// CheckProximity returns the IDs of monitored checkpoints whose haversine
// distance from the given point is within threshold (a distance exactly equal
// to the threshold counts as within). IDs are returned in ascending order.
//
// This is a pure query: it does not update proximity state and never emits
// transitions. It fails with ErrNotMonitoring when no set is active.
func (m *Monitor) CheckProximity(lat, lon float64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.states == nil {
		return nil, ErrNotMonitoring
	}

	point := location.Coordinate{Latitude: lat, Longitude: lon}
	var within []int
	for id, st := range m.states {
		if DistanceFeet(point, st.checkpoint.Coordinate) <= m.threshold {
			within = append(within, id)
		}
	}
	sort.Ints(within)
	return within, nil
}

// ProcessSample updates proximity state for every monitored checkpoint and
// returns the transitions the sample caused, in ascending checkpoint order.
// Each transition is also published to OnProximityChange listeners before
// ProcessSample returns.
//
// Samples arriving after StopMonitoring are dropped silently: a feed
// subscription may still deliver a buffered sample during teardown.
func (m *Monitor) ProcessSample(s location.Sample) []ProximityChange {
	m.mu.Lock()
	if m.states == nil {
		m.mu.Unlock()
		return nil
	}

	var transitions []ProximityChange
	for _, st := range m.states {
		dist := DistanceFeet(s.Coordinate, st.checkpoint.Coordinate)
		st.distance = dist

		switch {
		case !st.within && dist <= m.threshold:
			st.within = true
			transitions = append(transitions, ProximityChange{
				CheckpointID: st.checkpoint.ID,
				Entered:      true,
				DistanceFeet: dist,
			})
		case st.within && dist > m.threshold*m.exitFactor:
			st.within = false
			transitions = append(transitions, ProximityChange{
				CheckpointID: st.checkpoint.ID,
				Entered:      false,
				DistanceFeet: dist,
			})
		}
	}
	m.mu.Unlock()

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].CheckpointID < transitions[j].CheckpointID
	})

	for _, tr := range transitions {
		if m.logger != nil {
			m.logger.Debug("proximity changed",
				slog.Int("checkpoint_id", tr.CheckpointID),
				slog.Bool("entered", tr.Entered),
				slog.Float64("distance_feet", tr.DistanceFeet),
			)
		}
		m.changes.Publish(tr)
	}
	return transitions
}

// Observe feeds location samples from feed into the monitor until the
// returned subscription is unsubscribed. Delivery order follows the feed's
// notification order.
func (m *Monitor) Observe(feed location.Feed) event.Subscription {
	return feed.Subscribe(func(s location.Sample) {
		m.ProcessSample(s)
	})
}
