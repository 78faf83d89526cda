// Package record defines the locally-created records owed to the backend and
// the durable store that holds them while they wait to be synchronized.
package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guardline/patrolkit/pkg/patrol/location"
)

// SyncStatus is the delivery state of a locally-created record.
// It only moves forward: pending -> syncing -> synced or failed, with
// failed -> pending as the retry re-queue. A synced record never regresses.
type SyncStatus string

// Sync status values.
const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusFailed  SyncStatus = "failed"
)

// Kind distinguishes record families in the shared sync queue.
type Kind string

// Record kinds.
const (
	KindTime         Kind = "time"
	KindVerification Kind = "verification"
)

// TimeKind distinguishes clock-in from clock-out time records.
type TimeKind string

// Time record kinds.
const (
	ClockIn  TimeKind = "clock_in"
	ClockOut TimeKind = "clock_out"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no record exists with the given ID.
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("record store closed")

	// ErrInvalidTransition indicates a status change that the sync
	// lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid sync status transition")
)

// StorageError wraps a durable-storage failure. Callers treat it as fatal to
// the current operation: the durable state itself is suspect.
type StorageError struct {
	// Op is the store operation that failed.
	Op string
	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Record is the common surface of queue entries. It is implemented by
// *TimeRecord and *Verification.
type Record interface {
	// LocalID is the device-assigned identifier.
	LocalID() string
	// RecordKind reports which family the record belongs to.
	RecordKind() Kind
	// Created is the creation timestamp driving FIFO sync order.
	Created() time.Time
}

// TimeRecord is a clock-in or clock-out with the location it happened at.
type TimeRecord struct {
	ID         string              `json:"id"`
	Kind       TimeKind            `json:"kind"`
	RecordedAt time.Time           `json:"recorded_at"`
	Coordinate location.Coordinate `json:"coordinate"`

	// RemoteID is the backend-assigned identifier, empty until synced.
	RemoteID  string     `json:"remote_id,omitempty"`
	Status    SyncStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewTimeRecord creates a pending time record with a fresh local ID.
func NewTimeRecord(kind TimeKind, at time.Time, c location.Coordinate) *TimeRecord {
	return &TimeRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		RecordedAt: at,
		Coordinate: c,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// LocalID implements Record.
func (r *TimeRecord) LocalID() string { return r.ID }

// RecordKind implements Record.
func (r *TimeRecord) RecordKind() Kind { return KindTime }

// Created implements Record.
func (r *TimeRecord) Created() time.Time { return r.CreatedAt }

// Verification is a checkpoint visit confirmed by the device.
type Verification struct {
	ID           string              `json:"id"`
	CheckpointID int                 `json:"checkpoint_id"`
	RecordedAt   time.Time           `json:"recorded_at"`
	Coordinate   location.Coordinate `json:"coordinate"`

	// RemoteID is the backend-assigned identifier, empty until synced.
	RemoteID  string     `json:"remote_id,omitempty"`
	Status    SyncStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewVerification creates a pending verification with a fresh local ID.
func NewVerification(checkpointID int, at time.Time, c location.Coordinate) *Verification {
	return &Verification{
		ID:           uuid.NewString(),
		CheckpointID: checkpointID,
		RecordedAt:   at,
		Coordinate:   c,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// LocalID implements Record.
func (v *Verification) LocalID() string { return v.ID }

// RecordKind implements Record.
func (v *Verification) RecordKind() Kind { return KindVerification }

// Created implements Record.
func (v *Verification) Created() time.Time { return v.CreatedAt }

// Store persists time records and verifications with their sync lifecycle.
// Implementations must be safe for concurrent use: the patrol side creates
// rows while the sync side transitions their status.
type Store interface {
	// SaveTimeRecord persists a new time record.
	SaveTimeRecord(ctx context.Context, rec *TimeRecord) error

	// SaveVerification persists a new verification.
	SaveVerification(ctx context.Context, v *Verification) error

	// Get retrieves a record by local ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (Record, error)

	// ListUnsynced returns all pending and failed records in creation order,
	// oldest first. Syncing and synced records are excluded.
	ListUnsynced(ctx context.Context) ([]Record, error)

	// Transition atomically moves a record from one status to another.
	// It returns false (with no error) when the record is not currently in
	// the from status: this is the compare-and-set that keeps two
	// concurrent sync attempts from double-sending a record.
	// Transitions outside the sync lifecycle fail with ErrInvalidTransition.
	Transition(ctx context.Context, id string, from, to SyncStatus) (bool, error)

	// MarkSynced moves a syncing record to synced and stores the
	// backend-assigned remote ID.
	MarkSynced(ctx context.Context, id, remoteID string) error

	// RequeueFailed moves every failed record back to pending and reports
	// how many were re-queued.
	RequeueFailed(ctx context.Context) (int, error)

	// RecoverInFlight moves every syncing record back to pending. Called at
	// startup: a syncing status that outlived the process cannot be trusted
	// to reflect an in-progress attempt.
	RecoverInFlight(ctx context.Context) (int, error)

	// CountUnsynced returns the number of pending plus failed records.
	CountUnsynced(ctx context.Context) (int, error)

	// Close releases any resources.
	Close() error
}

// validTransition reports whether the sync lifecycle permits from -> to.
func validTransition(from, to SyncStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusSyncing
	case StatusSyncing:
		return to == StatusSynced || to == StatusFailed || to == StatusPending
	case StatusFailed:
		return to == StatusPending
	default:
		// Synced is terminal.
		return false
	}
}
