package patrol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/guardline/patrolkit/pkg/patrol/event"
	"github.com/guardline/patrolkit/pkg/patrol/geofence"
	"github.com/guardline/patrolkit/pkg/patrol/location"
	"github.com/guardline/patrolkit/pkg/patrol/observability"
	"github.com/guardline/patrolkit/pkg/patrol/record"
)

// Lifecycle states.
const (
	StateIdle   = "idle"
	StateActive = "active"
)

// Lifecycle events.
const (
	eventStart = "start"
	eventEnd   = "end"
)

// AuthState reports whether the device can act on behalf of a signed-in
// guard. Patrols cannot start while unauthenticated.
type AuthState interface {
	IsAuthenticated() bool
}

// Syncer pushes a single record to the backend immediately after local
// creation. Best effort: a failed push leaves the record queued for the
// periodic sync pass.
type Syncer interface {
	SyncOne(ctx context.Context, rec record.Record) (bool, error)
}

// Machine drives the patrol lifecycle: Idle, then Active while a guard walks
// a site, then Idle again. One patrol at a time per machine; the machine is
// long-lived and reusable across patrols.
//
// Every record the machine creates is persisted locally first and synced
// opportunistically, so patrols survive dead zones and process restarts.
//
// All mutating calls are serialized by a single mutex; event callbacks run
// synchronously inside that critical section and must not call back into the
// machine.
type Machine struct {
	mu sync.Mutex

	lifecycle *fsm.FSM
	feed      location.Feed
	catalog   location.Catalog
	store     record.Store
	monitor   *geofence.Monitor
	auth      AuthState
	syncer    Syncer
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	now       func() time.Time

	statusFeed    *event.Feed[Status]
	proximityFeed *event.Feed[geofence.ProximityChange]

	status    Status
	site      *location.Site
	verified  map[int]bool
	lastKnown location.Coordinate
	hasFix    bool
	history   []Status
}

// NewMachine creates an idle patrol machine over the given location feed,
// site catalog, and record store.
func NewMachine(feed location.Feed, catalog location.Catalog, store record.Store, opts ...MachineOption) *Machine {
	m := &Machine{
		feed:          feed,
		catalog:       catalog,
		store:         store,
		metrics:       observability.NoopMetrics{},
		now:           time.Now,
		statusFeed:    event.NewFeed[Status](),
		proximityFeed: event.NewFeed[geofence.ProximityChange](),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.monitor == nil {
		m.monitor = geofence.NewMonitor()
	}
	m.lifecycle = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateActive},
			{Name: eventEnd, Src: []string{StateActive}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
	return m
}

// State returns the current lifecycle state, StateIdle or StateActive.
func (m *Machine) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lifecycle.Current()
}

// OnStatusChange registers fn for every status mutation. Callbacks run
// synchronously in registration order.
func (m *Machine) OnStatusChange(fn func(Status)) event.Subscription {
	return m.statusFeed.Subscribe(fn)
}

// OnProximityChange registers fn for checkpoint proximity transitions
// observed through CheckProximity.
func (m *Machine) OnProximityChange(fn func(geofence.ProximityChange)) event.Subscription {
	return m.proximityFeed.Subscribe(fn)
}

// StartPatrol begins a patrol at the given site.
//
// It acquires an initial location fix (location.ErrPermissionDenied and
// location.ErrTimeout propagate), loads the site's checkpoints, arms the
// geofence monitor, and records a clock-in. Returns ErrAlreadyActive when a
// patrol is in progress and ErrNotAuthenticated when an auth provider is
// wired and reports signed out.
func (m *Machine) StartPatrol(ctx context.Context, siteID int) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lifecycle.Current() == StateActive {
		return Status{}, ErrAlreadyActive
	}
	if m.auth != nil && !m.auth.IsAuthenticated() {
		return Status{}, ErrNotAuthenticated
	}

	sample, err := m.feed.Current(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("initial location fix: %w", err)
	}

	site, err := m.catalog.Site(ctx, siteID)
	if err != nil {
		return Status{}, err
	}

	if err := m.monitor.StartMonitoring(site.Checkpoints); err != nil {
		return Status{}, err
	}

	if err := m.lifecycle.Event(ctx, eventStart); err != nil {
		m.monitor.StopMonitoring()
		return Status{}, fmt.Errorf("lifecycle: %w", err)
	}

	m.site = site
	m.verified = make(map[int]bool, len(site.Checkpoints))
	m.lastKnown = sample.Coordinate
	m.hasFix = true
	m.status = Status{
		SiteID:           site.ID,
		SiteName:         site.Name,
		TotalCheckpoints: len(site.Checkpoints),
		Active:           true,
		StartedAt:        m.now().UTC(),
	}
	m.status.recompute()

	m.recordTime(ctx, record.ClockIn, sample.Coordinate)

	observability.LogPatrolStart(m.logger, site.ID, len(site.Checkpoints))
	m.publishStatus()
	return m.status, nil
}

// VerifyCheckpoint marks a checkpoint as visited.
//
// The checkpoint must belong to the active patrol's site and the guard's last
// known location must be within the monitor's proximity threshold. A
// checkpoint already verified this patrol is a no-op success. The
// verification is persisted pending and pushed best-effort.
func (m *Machine) VerifyCheckpoint(ctx context.Context, checkpointID int) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lifecycle.Current() != StateActive {
		return Status{}, ErrNotActive
	}

	var cp *location.Checkpoint
	for i := range m.site.Checkpoints {
		if m.site.Checkpoints[i].ID == checkpointID {
			cp = &m.site.Checkpoints[i]
			break
		}
	}
	if cp == nil {
		return Status{}, ErrUnknownCheckpoint
	}

	if m.verified[checkpointID] {
		return m.status, nil
	}

	within, err := m.monitor.CheckProximity(m.lastKnown.Latitude, m.lastKnown.Longitude)
	if err != nil {
		return Status{}, err
	}
	inRange := false
	for _, id := range within {
		if id == checkpointID {
			inRange = true
			break
		}
	}
	if !m.hasFix || !inRange {
		return Status{}, ErrNotInProximity
	}

	v := record.NewVerification(checkpointID, m.now().UTC(), m.lastKnown)
	if err := m.store.SaveVerification(ctx, v); err != nil {
		return Status{}, err
	}
	m.pushRecord(ctx, v)

	m.verified[checkpointID] = true
	m.status.VerifiedCheckpoints++
	m.status.recompute()
	m.metrics.RecordVerification(ctx)
	observability.LogVerification(m.logger, checkpointID, m.hasFix)
	m.publishStatus()
	return m.status, nil
}

// EndPatrol finishes the active patrol, stopping the geofence monitor and
// recording a clock-out. Partial completion is valid; the final status is
// archived and remains queryable via History.
func (m *Machine) EndPatrol(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lifecycle.Current() != StateActive {
		return Status{}, ErrNotActive
	}

	m.monitor.StopMonitoring()

	m.recordTime(ctx, record.ClockOut, m.lastKnown)

	if err := m.lifecycle.Event(ctx, eventEnd); err != nil {
		return Status{}, fmt.Errorf("lifecycle: %w", err)
	}

	m.status.Active = false
	m.status.EndedAt = m.now().UTC()
	final := m.status
	m.history = append(m.history, final)
	m.site = nil
	m.verified = nil

	observability.LogPatrolEnd(m.logger, final.SiteID, final.VerifiedCheckpoints,
		final.TotalCheckpoints, final.CompletionPercent)
	m.publishStatus()
	return final, nil
}

// CheckProximity feeds a location update through the geofence monitor.
// It returns the IDs of checkpoints currently within the proximity
// threshold, re-raises the monitor's enter/exit transitions on
// OnProximityChange, and remembers the coordinate as the guard's last known
// location for later verification checks. ErrNotActive when idle.
func (m *Machine) CheckProximity(ctx context.Context, lat, lon float64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lifecycle.Current() != StateActive {
		return nil, ErrNotActive
	}

	coord := location.Coordinate{Latitude: lat, Longitude: lon}
	m.lastKnown = coord
	m.hasFix = true

	changes := m.monitor.ProcessSample(location.Sample{Coordinate: coord, Timestamp: m.now()})
	for _, ch := range changes {
		m.metrics.RecordProximityTransition(ctx, ch.Entered)
		m.proximityFeed.Publish(ch)
	}

	return m.monitor.CheckProximity(lat, lon)
}

// PatrolStatus returns a snapshot of the current patrol. After EndPatrol it
// keeps returning the final status until the next StartPatrol; the zero
// Status before the first.
func (m *Machine) PatrolStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// History returns the final statuses of completed patrols, oldest first.
func (m *Machine) History() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, len(m.history))
	copy(out, m.history)
	return out
}

// recordTime persists a clock-in or clock-out and pushes it best-effort.
// Storage faults are logged, not fatal: losing a time record must not block
// the patrol itself.
func (m *Machine) recordTime(ctx context.Context, kind record.TimeKind, c location.Coordinate) {
	rec := record.NewTimeRecord(kind, m.now().UTC(), c)
	if err := m.store.SaveTimeRecord(ctx, rec); err != nil {
		if m.logger != nil {
			m.logger.Error("failed to persist time record",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()))
		}
		return
	}
	m.pushRecord(ctx, rec)
}

// pushRecord attempts an immediate sync when a syncer is wired. Failures are
// silent; the record stays pending for the periodic pass.
func (m *Machine) pushRecord(ctx context.Context, rec record.Record) {
	if m.syncer == nil {
		return
	}
	if _, err := m.syncer.SyncOne(ctx, rec); err != nil && m.logger != nil {
		m.logger.Debug("immediate sync failed, record queued",
			slog.String("record_id", rec.LocalID()),
			slog.String("error", err.Error()))
	}
}

func (m *Machine) publishStatus() {
	m.statusFeed.Publish(m.status)
}
