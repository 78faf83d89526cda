package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guardline/patrolkit/pkg/patrol/event"
	"github.com/guardline/patrolkit/pkg/patrol/observability"
	"github.com/guardline/patrolkit/pkg/patrol/record"
)

// Backend submits locally-created records to the remote service.
// Implementations own the wire format; the engine only cares about the
// returned remote identifier and the error taxonomy (NetworkError, AuthError,
// ServerError).
type Backend interface {
	// SubmitTimeRecord delivers a time record and returns the
	// backend-assigned identifier.
	SubmitTimeRecord(ctx context.Context, rec *record.TimeRecord) (string, error)

	// SubmitVerification delivers a checkpoint verification and returns the
	// backend-assigned identifier.
	SubmitVerification(ctx context.Context, v *record.Verification) (string, error)
}

// AuthState exposes the device's authentication state.
// The engine refuses to sync while unauthenticated instead of attempting
// calls that will fail.
type AuthState interface {
	// IsAuthenticated reports whether backend calls can currently succeed.
	IsAuthenticated() bool

	// OnChange registers fn for authentication state changes.
	OnChange(fn func(authenticated bool)) event.Subscription
}

// Engine drives pending records from the store through the backend with
// at-most-one in-flight attempt per record.
//
// Safe for concurrent use: the store's compare-and-set on pending -> syncing
// guarantees that overlapping SyncAll and SyncOne calls never double-send a
// record.
type Engine struct {
	store   record.Store
	backend Backend
	auth    AuthState
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	// recovered guards the once-per-process reclassification of records
	// left syncing by a crash or cancellation.
	recoverMu sync.Mutex
	recovered bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAuthState gates syncing on authentication state.
// Without it the engine assumes it is always authenticated.
func WithAuthState(auth AuthState) EngineOption {
	return func(e *Engine) {
		e.auth = auth
	}
}

// WithLogger sets a structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracing sets the span manager. Default: NoopSpanManager.
func WithTracing(sm observability.SpanManager) EngineOption {
	return func(e *Engine) {
		if sm != nil {
			e.spans = sm
		}
	}
}

// New creates a sync engine over the given store and backend.
func New(store record.Store, backend Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		backend: backend,
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// recoverInFlight reclassifies records left syncing by a previous process as
// pending, once per engine lifetime. A syncing status that outlived the
// process cannot reflect an in-progress attempt.
func (e *Engine) recoverInFlight(ctx context.Context) error {
	e.recoverMu.Lock()
	defer e.recoverMu.Unlock()

	if e.recovered {
		return nil
	}

	n, err := e.store.RecoverInFlight(ctx)
	if err != nil {
		return err
	}
	observability.LogRecovery(e.logger, n)
	e.recovered = true
	return nil
}

// SyncAll drains the unsynced queue in creation order, oldest first, so a
// clock-in always reaches the backend before its clock-out.
//
// Each record is claimed (pending -> syncing), submitted, and marked synced
// or failed; a failed record never aborts the batch, with one exception: an
// AuthError stops the pass, since the device is no longer authenticated and
// every remaining record would fail the same way. The context is checked before
// each record's network attempt, never mid-call. SyncAll returns true only
// when every queued record ended synced; a false return with a nil error
// means some records failed or were skipped. Only storage faults and
// cancellation surface as errors.
func (e *Engine) SyncAll(ctx context.Context) (bool, error) {
	if e.auth != nil && !e.auth.IsAuthenticated() {
		if e.logger != nil {
			e.logger.Debug("sync refused: not authenticated")
		}
		return false, nil
	}

	if err := e.recoverInFlight(ctx); err != nil {
		return false, err
	}

	// Failed records from earlier passes rejoin the queue.
	if _, err := e.store.RequeueFailed(ctx); err != nil {
		return false, err
	}

	recs, err := e.store.ListUnsynced(ctx)
	if err != nil {
		return false, err
	}

	start := time.Now()
	ctx, batchSpan := e.spans.StartBatchSpan(ctx, len(recs))
	observability.LogSyncBatchStart(e.logger, len(recs))

	allSynced := true
	synced, failed := 0, 0
	var batchErr error

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			// Cancelled between records: anything still syncing is
			// reclassified pending on the next engine start.
			allSynced = false
			batchErr = err
			break
		}

		out, err := e.syncRecord(ctx, rec)
		if err != nil {
			allSynced = false
			batchErr = err
			break
		}
		if out.synced {
			synced++
			continue
		}

		allSynced = false
		failed++

		// A credential rejection means the device is no longer
		// authenticated; continuing would repeat the same failure for
		// every remaining record. Leave them pending for a later pass.
		var authErr *AuthError
		if errors.As(out.submitErr, &authErr) {
			if e.logger != nil {
				e.logger.Warn("aborting sync batch: no longer authenticated",
					slog.String("error", out.submitErr.Error()))
			}
			break
		}
	}

	duration := time.Since(start)
	observability.LogSyncBatchComplete(e.logger, synced, failed, float64(duration.Milliseconds()))
	e.metrics.RecordSyncBatch(ctx, allSynced, duration, len(recs))
	e.spans.EndSpanWithError(batchSpan, batchErr)

	return allSynced, batchErr
}

// SyncOne attempts a single record in isolation, independent of the batch
// job. Used for immediate best-effort sync right after local creation.
// Returns true when the record ended synced (or was already claimed by a
// concurrent pass); false when the attempt failed.
func (e *Engine) SyncOne(ctx context.Context, rec record.Record) (bool, error) {
	if e.auth != nil && !e.auth.IsAuthenticated() {
		return false, nil
	}
	out, err := e.syncRecord(ctx, rec)
	return out.synced, err
}

// PendingCount returns a point-in-time count of records still owed to the
// backend: pending plus failed, never syncing or synced.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.store.CountUnsynced(ctx)
}

// recordOutcome is the result of one record's sync attempt.
type recordOutcome struct {
	synced    bool
	submitErr error
}

// syncRecord drives one record through claim -> submit -> mark.
// The returned error is reserved for storage faults, which abort the caller.
func (e *Engine) syncRecord(ctx context.Context, rec record.Record) (recordOutcome, error) {
	id := rec.LocalID()
	kind := string(rec.RecordKind())

	claimed, err := e.store.Transition(ctx, id, record.StatusPending, record.StatusSyncing)
	if err != nil {
		return recordOutcome{}, err
	}
	if !claimed {
		// Another attempt owns this record (or it already synced).
		// Not a failure of this pass.
		if e.logger != nil {
			e.logger.Debug("record already claimed",
				slog.String("record_id", id))
		}
		return recordOutcome{synced: true}, nil
	}

	ctx, span := e.spans.StartRecordSpan(ctx, id, kind)
	start := time.Now()
	remoteID, submitErr := e.submit(ctx, rec)
	e.metrics.RecordSyncAttempt(ctx, kind, time.Since(start), submitErr)
	e.spans.EndSpanWithError(span, submitErr)

	if submitErr != nil {
		observability.LogSyncError(e.logger, id, kind, submitErr)
		if _, err := e.store.Transition(ctx, id, record.StatusSyncing, record.StatusFailed); err != nil {
			return recordOutcome{}, err
		}
		return recordOutcome{submitErr: submitErr}, nil
	}

	if err := e.store.MarkSynced(ctx, id, remoteID); err != nil {
		return recordOutcome{}, err
	}
	observability.LogSyncRecord(e.logger, id, kind, remoteID)
	return recordOutcome{synced: true}, nil
}

// submit dispatches the record to the matching backend call.
func (e *Engine) submit(ctx context.Context, rec record.Record) (string, error) {
	switch r := rec.(type) {
	case *record.TimeRecord:
		return e.backend.SubmitTimeRecord(ctx, r)
	case *record.Verification:
		return e.backend.SubmitVerification(ctx, r)
	default:
		return "", fmt.Errorf("unsupported record kind %q", rec.RecordKind())
	}
}

// IsStorageError reports whether err is a durable-storage fault, which the
// engine treats as fatal to the current operation.
func IsStorageError(err error) bool {
	var se *record.StorageError
	return errors.As(err, &se)
}
