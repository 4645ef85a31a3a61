package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNilLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Nil(t, EnrichLogger(nil, "t", "p", 1, "n"))
		LogEvent(nil, "t", "NodeAdded", "add", "Add", false)
		LogPassStart(nil, "t", "p", 1)
		LogPassComplete(nil, "t", "p", time.Millisecond, 1, 0, 0)
		LogPassDeferred(nil, "t", 1)
		LogNodeStart(nil, "n")
		LogNodeComplete(nil, "n", time.Millisecond)
		LogNodeError(nil, "n", errors.New("x"))
		LogUnresolved(nil, "t", []string{"a"})
		LogStructuralRace(nil, "t", "LinkAdded")
	})
}

func TestEnrichLogger(t *testing.T) {
	logger, buf := newJSONLogger()

	EnrichLogger(logger, "tree-a", "pass-1", 7, "Scale").Info("hello")

	recs := records(t, buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "tree-a", recs[0]["tree_id"])
	assert.Equal(t, "pass-1", recs[0]["pass_id"])
	assert.EqualValues(t, 7, recs[0]["node_id"])
	assert.Equal(t, "Scale", recs[0]["node_name"])
}

func TestFormatEvent(t *testing.T) {
	line := FormatEvent("NodeAdded", "add", "Add")

	assert.Equal(t,
		"EVENT: NodeAdded                 IN: add                       INSTANCE: Add                      ",
		line)
}

func TestLogEvent(t *testing.T) {
	logger, buf := newJSONLogger()

	LogEvent(logger, "tree-a", "LinkAdded", "scale", "Scale", true)

	recs := records(t, buf)
	require.Len(t, recs, 1)
	assert.Equal(t, FormatEvent("LinkAdded", "scale", "Scale"), recs[0]["msg"])
	assert.Equal(t, true, recs[0]["duplicate"])
}

func TestPassLogging(t *testing.T) {
	logger, buf := newJSONLogger()

	LogPassStart(logger, "tree-a", "pass-1", 3)
	LogPassComplete(logger, "tree-a", "pass-1", 1500*time.Microsecond, 2, 1, 0)
	LogPassDeferred(logger, "tree-a", 3)
	LogUnresolved(logger, "tree-a", nil)
	LogUnresolved(logger, "tree-a", []string{"A", "B"})

	recs := records(t, buf)
	require.Len(t, recs, 4, "empty unresolved list logs nothing")
	assert.Equal(t, "pass starting", recs[0]["msg"])
	assert.Equal(t, "pass completed", recs[1]["msg"])
	assert.EqualValues(t, 2, recs[1]["nodes_executed"])
	assert.EqualValues(t, 1, recs[1]["nodes_failed"])
	assert.InDelta(t, 1.5, recs[1]["duration_ms"], 1e-9)
	assert.Equal(t, "pass deferred by freeze gate", recs[2]["msg"])
	assert.Equal(t, "WARN", recs[3]["level"])
	assert.Equal(t, []any{"A", "B"}, recs[3]["nodes"])
}

func TestNodeLogging(t *testing.T) {
	logger, buf := newJSONLogger()

	LogNodeStart(logger, "Add")
	LogNodeComplete(logger, "Add", 250*time.Microsecond)
	LogNodeError(logger, "Add", errors.New("boom"))

	recs := records(t, buf)
	require.Len(t, recs, 3)
	assert.Equal(t, "ERROR", recs[2]["level"])
	assert.Equal(t, "boom", recs[2]["error"])
}

func TestTimedOperation(t *testing.T) {
	elapsed := TimedOperation()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, elapsed(), 2*time.Millisecond)
}
