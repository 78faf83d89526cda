package syncer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardline/patrolkit/pkg/patrol/event"
	"github.com/guardline/patrolkit/pkg/patrol/location"
	"github.com/guardline/patrolkit/pkg/patrol/record"
	"github.com/guardline/patrolkit/pkg/patrol/syncer"
)

// fakeBackend records submissions in call order and fails on demand.
type fakeBackend struct {
	mu         sync.Mutex
	calls      []string         // local IDs in submission order
	failures   map[string]error // local ID -> error to return
	nextRemote int
	submitted  chan string // non-nil: receives each submitted local ID
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failures: make(map[string]error)}
}

func (b *fakeBackend) failWith(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[id] = err
}

func (b *fakeBackend) submit(id string) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, id)
	err := b.failures[id]
	var remote string
	if err == nil {
		b.nextRemote++
		remote = fmt.Sprintf("srv-%d", b.nextRemote)
	}
	ch := b.submitted
	b.mu.Unlock()

	if ch != nil {
		ch <- id
	}
	if err != nil {
		return "", err
	}
	return remote, nil
}

func (b *fakeBackend) SubmitTimeRecord(_ context.Context, rec *record.TimeRecord) (string, error) {
	return b.submit(rec.ID)
}

func (b *fakeBackend) SubmitVerification(_ context.Context, v *record.Verification) (string, error) {
	return b.submit(v.ID)
}

func (b *fakeBackend) callOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// fakeAuth is a scriptable AuthState.
type fakeAuth struct {
	mu            sync.Mutex
	authenticated bool
	changes       *event.Feed[bool]
}

func newFakeAuth(authenticated bool) *fakeAuth {
	return &fakeAuth{authenticated: authenticated, changes: event.NewFeed[bool]()}
}

func (a *fakeAuth) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

func (a *fakeAuth) OnChange(fn func(bool)) event.Subscription {
	return a.changes.Subscribe(fn)
}

func (a *fakeAuth) set(authenticated bool) {
	a.mu.Lock()
	a.authenticated = authenticated
	a.mu.Unlock()
	a.changes.Publish(authenticated)
}

func coord() location.Coordinate {
	return location.Coordinate{Latitude: 40.0, Longitude: -74.0}
}

func seedRecords(t *testing.T, store record.Store, n int) []record.Record {
	t.Helper()
	ctx := context.Background()
	var out []record.Record
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			kind := record.ClockIn
			if i > 0 {
				kind = record.ClockOut
			}
			tr := record.NewTimeRecord(kind, time.Now(), coord())
			require.NoError(t, store.SaveTimeRecord(ctx, tr))
			out = append(out, tr)
		} else {
			v := record.NewVerification(i, time.Now(), coord())
			require.NoError(t, store.SaveVerification(ctx, v))
			out = append(out, v)
		}
	}
	return out
}

func TestSyncAll_AllSynced(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	recs := seedRecords(t, store, 3)

	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	// Creation order preserved.
	want := []string{recs[0].LocalID(), recs[1].LocalID(), recs[2].LocalID()}
	assert.Equal(t, want, backend.callOrder())

	// Remote IDs stored, statuses synced.
	for _, rec := range recs {
		got, err := store.Get(context.Background(), rec.LocalID())
		require.NoError(t, err)
		switch r := got.(type) {
		case *record.TimeRecord:
			assert.Equal(t, record.StatusSynced, r.Status)
			assert.NotEmpty(t, r.RemoteID)
		case *record.Verification:
			assert.Equal(t, record.StatusSynced, r.Status)
			assert.NotEmpty(t, r.RemoteID)
		}
	}

	n, err := engine.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncAll_PartialFailureContinues(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	recs := seedRecords(t, store, 3)
	backend.failWith(recs[1].LocalID(), &syncer.NetworkError{Op: "submit", Err: context.DeadlineExceeded})

	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err, "a record failure must not surface as an engine fault")
	assert.False(t, ok)

	// Record 3 was still attempted after record 2 failed.
	assert.Len(t, backend.callOrder(), 3)

	// Only the failed record remains owed.
	n, err := engine.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(context.Background(), recs[1].LocalID())
	require.NoError(t, err)
	assert.Equal(t, record.StatusFailed, got.(*record.Verification).Status)
}

func TestSyncAll_RetriesFailedOnNextPass(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	recs := seedRecords(t, store, 2)
	backend.failWith(recs[0].LocalID(), &syncer.ServerError{StatusCode: 503, Message: "unavailable"})

	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// Backend recovers; the failed record is re-queued and synced.
	backend.failWith(recs[0].LocalID(), nil)

	ok, err = engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := engine.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncAll_RecoversInFlightRecords(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()

	recs := seedRecords(t, store, 1)

	// Simulate a crash: the record was left syncing by a previous process.
	claimed, err := store.Transition(context.Background(), recs[0].LocalID(), record.StatusPending, record.StatusSyncing)
	require.NoError(t, err)
	require.True(t, claimed)

	engine := syncer.New(store, backend)
	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "the recovered record must not be skipped")
	assert.Len(t, backend.callOrder(), 1)
}

func TestSyncAll_CancelledBetweenRecords(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	recs := seedRecords(t, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	backend.submitted = make(chan string, 2)
	go func() {
		// Cancel after the first record's network call completes.
		<-backend.submitted
		cancel()
	}()

	ok, err := engine.SyncAll(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)

	// First record made it; the second was never attempted.
	assert.Equal(t, []string{recs[0].LocalID()}, backend.callOrder())
}

func TestSyncAll_RefusesWhenUnauthenticated(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	auth := newFakeAuth(false)
	engine := syncer.New(store, backend, syncer.WithAuthState(auth))

	seedRecords(t, store, 2)

	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, backend.callOrder(), "no backend calls while unauthenticated")

	auth.set(true)
	ok, err = engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncAll_AbortsBatchOnAuthError(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	recs := seedRecords(t, store, 3)
	backend.failWith(recs[0].LocalID(), &syncer.AuthError{StatusCode: 401, Message: "token expired"})

	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	// Only the first record was attempted; the rest stay pending untouched.
	assert.Len(t, backend.callOrder(), 1)

	got, err := store.Get(context.Background(), recs[1].LocalID())
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, got.(*record.Verification).Status)
}

func TestSyncOne(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord())
	require.NoError(t, store.SaveTimeRecord(context.Background(), tr))

	ok, err := engine.SyncOne(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StatusSynced, got.(*record.TimeRecord).Status)
}

func TestSyncOne_SkipsRecordClaimedElsewhere(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord())
	require.NoError(t, store.SaveTimeRecord(context.Background(), tr))

	// A concurrent pass owns this record.
	claimed, err := store.Transition(context.Background(), tr.ID, record.StatusPending, record.StatusSyncing)
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err := engine.SyncOne(context.Background(), tr)
	require.NoError(t, err)
	assert.True(t, ok, "losing the claim race is not a failure")
	assert.Empty(t, backend.callOrder(), "the record must not be double-sent")
}

func TestSyncOne_Failure(t *testing.T) {
	store := record.NewMemoryStore()
	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	tr := record.NewTimeRecord(record.ClockIn, time.Now(), coord())
	require.NoError(t, store.SaveTimeRecord(context.Background(), tr))
	backend.failWith(tr.ID, &syncer.NetworkError{Op: "submit", Err: context.DeadlineExceeded})

	ok, err := engine.SyncOne(context.Background(), tr)
	require.NoError(t, err)
	assert.False(t, ok)

	// Failed, so still owed: the next SyncAll picks it up.
	n, err := engine.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPendingCount_ExcludesSyncingAndSynced(t *testing.T) {
	store := record.NewMemoryStore()
	engine := syncer.New(store, newFakeBackend())
	ctx := context.Background()

	recs := seedRecords(t, store, 4)

	// recs[0]: syncing, recs[1]: synced, recs[2]: failed, recs[3]: pending.
	mustClaim(t, store, recs[0].LocalID())
	mustClaim(t, store, recs[1].LocalID())
	require.NoError(t, store.MarkSynced(ctx, recs[1].LocalID(), "srv-1"))
	mustClaim(t, store, recs[2].LocalID())
	_, err := store.Transition(ctx, recs[2].LocalID(), record.StatusSyncing, record.StatusFailed)
	require.NoError(t, err)

	n, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func mustClaim(t *testing.T, store record.Store, id string) {
	t.Helper()
	ok, err := store.Transition(context.Background(), id, record.StatusPending, record.StatusSyncing)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSyncAll_WithSQLiteStore(t *testing.T) {
	store, err := record.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	backend := newFakeBackend()
	engine := syncer.New(store, backend)

	recs := seedRecords(t, store, 3)
	backend.failWith(recs[1].LocalID(), &syncer.NetworkError{Op: "submit", Err: context.DeadlineExceeded})

	ok, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := engine.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
