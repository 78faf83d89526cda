// Package settings persists device preferences as typed key-value pairs.
//
// Values are stored as strings and converted at the edges with strconv and
// RFC 3339 timestamps; there is no reflection and no schema. Two backends are
// provided: MemoryStore for tests and SQLiteStore for devices.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Well-known keys.
const (
	// KeyProximityThresholdFeet overrides the geofence proximity threshold.
	KeyProximityThresholdFeet = "geofence.threshold_feet"

	// KeySyncInterval overrides the periodic sync cadence.
	KeySyncInterval = "sync.interval"
)

var (
	// ErrNotFound indicates the key has no stored value.
	ErrNotFound = errors.New("setting not found")

	// ErrClosed indicates the backing store was closed.
	ErrClosed = errors.New("settings store closed")
)

// Store is the raw string backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the raw value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores the raw value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all stored keys in lexical order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Settings layers typed accessors over a Store.
type Settings struct {
	store Store
}

// New wraps a store with typed accessors.
func New(store Store) *Settings {
	return &Settings{store: store}
}

// String returns the string value for key.
func (s *Settings) String(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, key)
}

// SetString stores a string value.
func (s *Settings) SetString(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, key, value)
}

// Int returns the integer value for key.
func (s *Settings) Int(ctx context.Context, key string) (int, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return n, nil
}

// SetInt stores an integer value.
func (s *Settings) SetInt(ctx context.Context, key string, value int) error {
	return s.store.Set(ctx, key, strconv.Itoa(value))
}

// Bool returns the boolean value for key.
func (s *Settings) Bool(ctx context.Context, key string) (bool, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("setting %q: %w", key, err)
	}
	return b, nil
}

// SetBool stores a boolean value.
func (s *Settings) SetBool(ctx context.Context, key string, value bool) error {
	return s.store.Set(ctx, key, strconv.FormatBool(value))
}

// Float returns the float64 value for key.
func (s *Settings) Float(ctx context.Context, key string) (float64, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return f, nil
}

// SetFloat stores a float64 value.
func (s *Settings) SetFloat(ctx context.Context, key string, value float64) error {
	return s.store.Set(ctx, key, strconv.FormatFloat(value, 'g', -1, 64))
}

// Duration returns the duration value for key.
func (s *Settings) Duration(ctx context.Context, key string) (time.Duration, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %q: %w", key, err)
	}
	return d, nil
}

// SetDuration stores a duration value.
func (s *Settings) SetDuration(ctx context.Context, key string, value time.Duration) error {
	return s.store.Set(ctx, key, value.String())
}

// Time returns the timestamp value for key.
func (s *Settings) Time(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("setting %q: %w", key, err)
	}
	return t, nil
}

// SetTime stores a timestamp value as RFC 3339.
func (s *Settings) SetTime(ctx context.Context, key string, value time.Time) error {
	return s.store.Set(ctx, key, value.UTC().Format(time.RFC3339Nano))
}

// FloatOr returns the float64 value for key, or def when the key is absent
// or unparseable.
func (s *Settings) FloatOr(ctx context.Context, key string, def float64) float64 {
	f, err := s.Float(ctx, key)
	if err != nil {
		return def
	}
	return f
}

// DurationOr returns the duration value for key, or def when the key is
// absent or unparseable.
func (s *Settings) DurationOr(ctx context.Context, key string, def time.Duration) time.Duration {
	d, err := s.Duration(ctx, key)
	if err != nil {
		return def
	}
	return d
}

// Delete removes a key.
func (s *Settings) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// Keys returns all stored keys in lexical order.
func (s *Settings) Keys(ctx context.Context) ([]string, error) {
	return s.store.Keys(ctx)
}

// Close closes the backing store.
func (s *Settings) Close() error {
	return s.store.Close()
}
