// Package patrol provides the patrol lifecycle state machine for guard
// tracking devices.
package patrol

import "errors"

// Sentinel errors for the patrol lifecycle.
var (
	// ErrAlreadyActive indicates StartPatrol was called while a patrol is
	// in progress.
	ErrAlreadyActive = errors.New("patrol already active")

	// ErrNotActive indicates a patrol operation was called while idle.
	ErrNotActive = errors.New("no active patrol")

	// ErrNotAuthenticated indicates the device is not authenticated.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Sentinel errors for checkpoint verification.
var (
	// ErrUnknownCheckpoint indicates the checkpoint does not belong to the
	// active patrol's site.
	ErrUnknownCheckpoint = errors.New("checkpoint not part of active patrol")

	// ErrNotInProximity indicates the guard's last known location is outside
	// the checkpoint's proximity threshold.
	ErrNotInProximity = errors.New("not within checkpoint proximity")
)
