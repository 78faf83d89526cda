package patrol

import (
	"log/slog"
	"time"

	"github.com/guardline/patrolkit/pkg/patrol/geofence"
	"github.com/guardline/patrolkit/pkg/patrol/observability"
)

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithAuth gates StartPatrol on authentication state.
// Without it the machine assumes the guard is always signed in.
func WithAuth(auth AuthState) MachineOption {
	return func(m *Machine) {
		m.auth = auth
	}
}

// WithSyncer enables immediate best-effort sync of records as they are
// created. Without it records wait for the periodic sync pass.
func WithSyncer(s Syncer) MachineOption {
	return func(m *Machine) {
		m.syncer = s
	}
}

// WithMonitor supplies a configured geofence monitor, for a non-default
// proximity threshold or exit dead-band. Default: geofence.NewMonitor().
func WithMonitor(mon *geofence.Monitor) MachineOption {
	return func(m *Machine) {
		if mon != nil {
			m.monitor = mon
		}
	}
}

// WithLogger sets a structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: NoopMetrics.
func WithMetrics(rec observability.MetricsRecorder) MachineOption {
	return func(m *Machine) {
		if rec != nil {
			m.metrics = rec
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}
