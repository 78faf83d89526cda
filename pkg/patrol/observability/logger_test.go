package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger returns a logger writing JSON lines into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// records decodes every JSON log line in buf.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestLogHelpers_NilLoggerIsSafe(t *testing.T) {
	// None of these may panic with a nil logger.
	LogPatrolStart(nil, 1, 2)
	LogPatrolEnd(nil, 1, 1, 2, 50)
	LogVerification(nil, 1, true)
	LogSyncBatchStart(nil, 0)
	LogSyncBatchComplete(nil, 0, 0, 0)
	LogSyncRecord(nil, "id", "time", "r-1")
	LogSyncError(nil, "id", "time", errors.New("x"))
	LogRecovery(nil, 3)
	assert.Nil(t, EnrichLogger(nil, 1, true))
}

func TestLogPatrolLifecycle(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf)

	LogPatrolStart(logger, 7, 4)
	LogVerification(logger, 2, true)
	LogPatrolEnd(logger, 7, 1, 4, 25)

	recs := records(t, &buf)
	require.Len(t, recs, 3)

	assert.Equal(t, "patrol started", recs[0]["msg"])
	assert.EqualValues(t, 7, recs[0]["site_id"])
	assert.EqualValues(t, 4, recs[0]["checkpoints"])

	assert.Equal(t, "checkpoint verified", recs[1]["msg"])
	assert.EqualValues(t, 2, recs[1]["checkpoint_id"])

	assert.Equal(t, "patrol ended", recs[2]["msg"])
	assert.EqualValues(t, 25, recs[2]["completion_pct"])
}

func TestLogSyncBatch(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf)

	LogSyncBatchStart(logger, 3)
	LogSyncRecord(logger, "rec-1", "time", "srv-9")
	LogSyncError(logger, "rec-2", "verification", errors.New("network unreachable"))
	LogSyncBatchComplete(logger, 2, 1, 84.2)

	recs := records(t, &buf)
	require.Len(t, recs, 4)

	assert.Equal(t, "DEBUG", recs[0]["level"])
	assert.Equal(t, "record synced", recs[1]["msg"])
	assert.Equal(t, "srv-9", recs[1]["remote_id"])
	assert.Equal(t, "WARN", recs[2]["level"])
	assert.Contains(t, recs[2]["error"], "network unreachable")
	assert.EqualValues(t, 1, recs[3]["failed"])
}

func TestLogRecovery_SkipsZero(t *testing.T) {
	var buf bytes.Buffer
	logger := captureLogger(&buf)

	LogRecovery(logger, 0)
	assert.Empty(t, records(t, &buf))

	LogRecovery(logger, 2)
	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 2, recs[0]["recovered"])
}

func TestEnrichLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := EnrichLogger(captureLogger(&buf), 12, true)
	logger.InfoContext(context.Background(), "status changed")

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 12, recs[0]["site_id"])
	assert.Equal(t, true, recs[0]["patrol_active"])
}
