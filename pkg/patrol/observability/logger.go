// Package observability provides structured logging, metrics, and tracing
// for patrolkit.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
)

// EnrichLogger adds patrol context to a logger.
// Returns a new logger with site_id and patrol fields.
func EnrichLogger(logger *slog.Logger, siteID int, active bool) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.Int("site_id", siteID),
		slog.Bool("patrol_active", active),
	)
}

// LogPatrolStart logs the start of a patrol.
func LogPatrolStart(logger *slog.Logger, siteID, checkpoints int) {
	if logger == nil {
		return
	}
	logger.Info("patrol started",
		slog.Int("site_id", siteID),
		slog.Int("checkpoints", checkpoints),
	)
}

// LogPatrolEnd logs the end of a patrol with its completion statistics.
func LogPatrolEnd(logger *slog.Logger, siteID, verified, total int, completion float64) {
	if logger == nil {
		return
	}
	logger.Info("patrol ended",
		slog.Int("site_id", siteID),
		slog.Int("verified", verified),
		slog.Int("total", total),
		slog.Float64("completion_pct", completion),
	)
}

// LogVerification logs a successful checkpoint verification.
func LogVerification(logger *slog.Logger, checkpointID int, distanceKnown bool) {
	if logger == nil {
		return
	}
	logger.Info("checkpoint verified",
		slog.Int("checkpoint_id", checkpointID),
		slog.Bool("proximity_confirmed", distanceKnown),
	)
}

// LogSyncBatchStart logs the start of a sync pass.
func LogSyncBatchStart(logger *slog.Logger, queued int) {
	if logger == nil {
		return
	}
	logger.Debug("sync batch starting",
		slog.Int("queued", queued),
	)
}

// LogSyncBatchComplete logs the outcome of a sync pass.
func LogSyncBatchComplete(logger *slog.Logger, synced, failed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("sync batch completed",
		slog.Int("synced", synced),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogSyncRecord logs a single record reaching the backend.
func LogSyncRecord(logger *slog.Logger, id, kind, remoteID string) {
	if logger == nil {
		return
	}
	logger.Debug("record synced",
		slog.String("record_id", id),
		slog.String("kind", kind),
		slog.String("remote_id", remoteID),
	)
}

// LogSyncError logs a per-record sync failure (non-fatal to the batch).
func LogSyncError(logger *slog.Logger, id, kind string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("record sync failed",
		slog.String("record_id", id),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// LogRecovery logs in-flight records reclassified as pending at startup.
func LogRecovery(logger *slog.Logger, recovered int) {
	if logger == nil || recovered == 0 {
		return
	}
	logger.Info("in-flight records recovered",
		slog.Int("recovered", recovered),
	)
}
