package record_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardline/patrolkit/pkg/patrol/location"
	"github.com/guardline/patrolkit/pkg/patrol/record"
)

// storeUnderTest runs the conformance suite against every Store implementation.
func storeUnderTest(t *testing.T, name string, open func(t *testing.T) record.Store) {
	t.Helper()

	coord := location.Coordinate{Latitude: 40.0, Longitude: -74.0}

	t.Run(name+"/SaveAndGet", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, tr))

		got, err := store.Get(ctx, tr.ID)
		require.NoError(t, err)
		gotTime, ok := got.(*record.TimeRecord)
		require.True(t, ok)
		assert.Equal(t, record.ClockIn, gotTime.Kind)
		assert.Equal(t, record.StatusPending, gotTime.Status)

		v := record.NewVerification(3, time.Now(), coord)
		require.NoError(t, store.SaveVerification(ctx, v))

		got, err = store.Get(ctx, v.ID)
		require.NoError(t, err)
		gotVerif, ok := got.(*record.Verification)
		require.True(t, ok)
		assert.Equal(t, 3, gotVerif.CheckpointID)
	})

	t.Run(name+"/GetNotFound", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, record.ErrNotFound)
	})

	t.Run(name+"/ListUnsyncedFIFO", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		first := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		second := record.NewVerification(1, time.Now(), coord)
		third := record.NewTimeRecord(record.ClockOut, time.Now(), coord)

		require.NoError(t, store.SaveTimeRecord(ctx, first))
		require.NoError(t, store.SaveVerification(ctx, second))
		require.NoError(t, store.SaveTimeRecord(ctx, third))

		recs, err := store.ListUnsynced(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 3)

		// Creation order, oldest first: clock-in before clock-out.
		assert.Equal(t, first.ID, recs[0].LocalID())
		assert.Equal(t, second.ID, recs[1].LocalID())
		assert.Equal(t, third.ID, recs[2].LocalID())
	})

	t.Run(name+"/TransitionCAS", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, tr))

		claimed, err := store.Transition(ctx, tr.ID, record.StatusPending, record.StatusSyncing)
		require.NoError(t, err)
		assert.True(t, claimed)

		// A second claim loses the race: false, no error.
		claimed, err = store.Transition(ctx, tr.ID, record.StatusPending, record.StatusSyncing)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run(name+"/TransitionInvalid", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, tr))

		// pending -> synced skips the syncing step.
		_, err := store.Transition(ctx, tr.ID, record.StatusPending, record.StatusSynced)
		assert.ErrorIs(t, err, record.ErrInvalidTransition)

		// synced is terminal.
		_, err = store.Transition(ctx, tr.ID, record.StatusSynced, record.StatusPending)
		assert.ErrorIs(t, err, record.ErrInvalidTransition)
	})

	t.Run(name+"/TransitionMissing", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		_, err := store.Transition(context.Background(), "missing", record.StatusPending, record.StatusSyncing)
		assert.ErrorIs(t, err, record.ErrNotFound)
	})

	t.Run(name+"/MarkSynced", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, tr))

		// Must be syncing first.
		assert.ErrorIs(t, store.MarkSynced(ctx, tr.ID, "r-1"), record.ErrInvalidTransition)

		_, err := store.Transition(ctx, tr.ID, record.StatusPending, record.StatusSyncing)
		require.NoError(t, err)
		require.NoError(t, store.MarkSynced(ctx, tr.ID, "r-1"))

		got, err := store.Get(ctx, tr.ID)
		require.NoError(t, err)
		gotTime := got.(*record.TimeRecord)
		assert.Equal(t, record.StatusSynced, gotTime.Status)
		assert.Equal(t, "r-1", gotTime.RemoteID)

		// Synced records leave the unsynced queue for good.
		n, err := store.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run(name+"/RequeueFailed", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, tr))
		mustTransition(t, store, tr.ID, record.StatusPending, record.StatusSyncing)
		mustTransition(t, store, tr.ID, record.StatusSyncing, record.StatusFailed)

		n, err := store.RequeueFailed(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := store.Get(ctx, tr.ID)
		require.NoError(t, err)
		assert.Equal(t, record.StatusPending, got.(*record.TimeRecord).Status)
	})

	t.Run(name+"/RecoverInFlight", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		v := record.NewVerification(1, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, tr))
		require.NoError(t, store.SaveVerification(ctx, v))
		mustTransition(t, store, tr.ID, record.StatusPending, record.StatusSyncing)

		n, err := store.RecoverInFlight(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "only the syncing record is recovered")

		recs, err := store.ListUnsynced(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, 2, "recovered record rejoins the queue")
	})

	t.Run(name+"/CountUnsynced", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		a := record.NewTimeRecord(record.ClockIn, time.Now(), coord)
		b := record.NewVerification(1, time.Now(), coord)
		c := record.NewVerification(2, time.Now(), coord)
		require.NoError(t, store.SaveTimeRecord(ctx, a))
		require.NoError(t, store.SaveVerification(ctx, b))
		require.NoError(t, store.SaveVerification(ctx, c))

		// a: syncing (not counted), b: failed (counted), c: pending (counted).
		mustTransition(t, store, a.ID, record.StatusPending, record.StatusSyncing)
		mustTransition(t, store, b.ID, record.StatusPending, record.StatusSyncing)
		mustTransition(t, store, b.ID, record.StatusSyncing, record.StatusFailed)

		n, err := store.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.Close())

		err := store.SaveTimeRecord(context.Background(), record.NewTimeRecord(record.ClockIn, time.Now(), coord))
		assert.ErrorIs(t, err, record.ErrStoreClosed)
	})
}

func mustTransition(t *testing.T, store record.Store, id string, from, to record.SyncStatus) {
	t.Helper()
	ok, err := store.Transition(context.Background(), id, from, to)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, "memory", func(t *testing.T) record.Store {
		return record.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeUnderTest(t, "sqlite", func(t *testing.T) record.Store {
		store, err := record.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})
}
