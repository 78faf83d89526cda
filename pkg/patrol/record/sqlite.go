package record

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/guardline/patrolkit/pkg/patrol/location"
)

// coordinate rebuilds a location.Coordinate from scanned columns.
func coordinate(lat, lon float64) location.Coordinate {
	return location.Coordinate{Latitude: lat, Longitude: lon}
}

// SQLiteStore persists records to SQLite.
// It is suitable for single-process production use: the device-local durable
// queue that survives restarts between sync passes.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite record store.
// The path should be a file path (e.g., "./patrol.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// WAL mode: the patrol side writes rows while the sync side reads them
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &StorageError{Op: "enable WAL", Err: err}
	}

	// seq preserves creation order across both record kinds so the sync
	// queue stays FIFO without comparing timestamps.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			time_kind TEXT NOT NULL DEFAULT '',
			checkpoint_id INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			remote_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, &StorageError{Op: "create table", Err: err}
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_status
		ON records(status)
	`); err != nil {
		db.Close()
		return nil, &StorageError{Op: "create index", Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

// SaveTimeRecord implements Store.
func (s *SQLiteStore) SaveTimeRecord(ctx context.Context, rec *TimeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, time_kind, recorded_at, latitude, longitude, remote_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, string(KindTime), string(rec.Kind),
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		rec.Coordinate.Latitude, rec.Coordinate.Longitude,
		rec.RemoteID, string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &StorageError{Op: "save time record", Err: err}
	}
	return nil
}

// SaveVerification implements Store.
func (s *SQLiteStore) SaveVerification(ctx context.Context, v *Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, checkpoint_id, recorded_at, latitude, longitude, remote_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID, string(KindVerification), v.CheckpointID,
		v.RecordedAt.UTC().Format(time.RFC3339Nano),
		v.Coordinate.Latitude, v.Coordinate.Longitude,
		v.RemoteID, string(v.Status),
		v.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &StorageError{Op: "save verification", Err: err}
	}
	return nil
}

const recordColumns = `id, kind, time_kind, checkpoint_id, recorded_at, latitude, longitude, remote_id, status, created_at`

// scanRecord builds a TimeRecord or Verification from a row.
func scanRecord(scan func(dest ...any) error) (Record, error) {
	var (
		id, kind, timeKind, remoteID, status string
		checkpointID                         int
		recordedAt, createdAt                string
		lat, lon                             float64
	)
	if err := scan(&id, &kind, &timeKind, &checkpointID, &recordedAt, &lat, &lon, &remoteID, &status, &createdAt); err != nil {
		return nil, err
	}

	recorded, _ := time.Parse(time.RFC3339Nano, recordedAt)
	created, _ := time.Parse(time.RFC3339Nano, createdAt)

	if Kind(kind) == KindTime {
		return &TimeRecord{
			ID:         id,
			Kind:       TimeKind(timeKind),
			RecordedAt: recorded,
			Coordinate: coordinate(lat, lon),
			RemoteID:   remoteID,
			Status:     SyncStatus(status),
			CreatedAt:  created,
		}, nil
	}
	return &Verification{
		ID:           id,
		CheckpointID: checkpointID,
		RecordedAt:   recorded,
		Coordinate:   coordinate(lat, lon),
		RemoteID:     remoteID,
		Status:       SyncStatus(status),
		CreatedAt:    created,
	}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE id = ?
	`, id)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get record", Err: err}
	}
	return rec, nil
}

// ListUnsynced implements Store.
func (s *SQLiteStore) ListUnsynced(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE status IN (?, ?)
		ORDER BY seq
	`, string(StatusPending), string(StatusFailed))
	if err != nil {
		return nil, &StorageError{Op: "list unsynced", Err: err}
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, &StorageError{Op: "scan record", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate records", Err: err}
	}
	return out, nil
}

// Transition implements Store.
func (s *SQLiteStore) Transition(ctx context.Context, id string, from, to SyncStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}
	if !validTransition(from, to) {
		return false, ErrInvalidTransition
	}

	// The WHERE clause on the current status makes this the compare-and-set
	// that prevents two sync attempts from claiming the same record.
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET status = ? WHERE id = ? AND status = ?
	`, string(to), id, string(from))
	if err != nil {
		return false, &StorageError{Op: "transition", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "transition", Err: err}
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish a lost race from a missing record.
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, &StorageError{Op: "transition", Err: err}
	}
	return false, nil
}

// MarkSynced implements Store.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET status = ?, remote_id = ? WHERE id = ? AND status = ?
	`, string(StatusSynced), remoteID, id, string(StatusSyncing))
	if err != nil {
		return &StorageError{Op: "mark synced", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "mark synced", Err: err}
	}
	if affected == 0 {
		var exists int
		err = s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return &StorageError{Op: "mark synced", Err: err}
		}
		return ErrInvalidTransition
	}
	return nil
}

// RequeueFailed implements Store.
func (s *SQLiteStore) RequeueFailed(ctx context.Context) (int, error) {
	return s.sweep(ctx, "requeue failed", StatusFailed, StatusPending)
}

// RecoverInFlight implements Store.
func (s *SQLiteStore) RecoverInFlight(ctx context.Context) (int, error) {
	return s.sweep(ctx, "recover in-flight", StatusSyncing, StatusPending)
}

// sweep moves every record in from to to, returning the number moved.
func (s *SQLiteStore) sweep(ctx context.Context, op string, from, to SyncStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET status = ? WHERE status = ?
	`, string(to), string(from))
	if err != nil {
		return 0, &StorageError{Op: op, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: op, Err: err}
	}
	return int(affected), nil
}

// CountUnsynced implements Store.
func (s *SQLiteStore) CountUnsynced(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE status IN (?, ?)
	`, string(StatusPending), string(StatusFailed)).Scan(&n)
	if err != nil {
		return 0, &StorageError{Op: "count unsynced", Err: err}
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
