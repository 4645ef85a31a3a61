// Package observability provides logging, metrics and tracing for
// scheduling passes.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"fmt"
	"log/slog"
	"time"
)

// EnrichLogger adds pass and node context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "tree-1", "pass-7", 3, "Scale")
//	enriched.Info("doing work") // includes tree_id, pass_id, node_id, node_name
func EnrichLogger(logger *slog.Logger, treeID, passID string, nodeID uint64, nodeName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("tree_id", treeID),
		slog.String("pass_id", passID),
		slog.Uint64("node_id", nodeID),
		slog.String("node_name", nodeName),
	)
}

// FormatEvent renders the diagnostic line for an edit event.
func FormatEvent(kind, nodeType, nodeName string) string {
	return fmt.Sprintf("EVENT: %-25s IN: %-25s INSTANCE: %-25s", kind, nodeType, nodeName)
}

// LogEvent writes the diagnostic line for an edit event.
// Callers only invoke it in verbose mode.
func LogEvent(logger *slog.Logger, treeID, kind, nodeType, nodeName string, duplicate bool) {
	if logger == nil {
		return
	}
	logger.Info(FormatEvent(kind, nodeType, nodeName),
		slog.String("tree_id", treeID),
		slog.String("event", kind),
		slog.Bool("duplicate", duplicate),
	)
}

// LogPassStart logs the start of a scheduling pass.
func LogPassStart(logger *slog.Logger, treeID, passID string, dirty int) {
	if logger == nil {
		return
	}
	logger.Debug("pass starting",
		slog.String("tree_id", treeID),
		slog.String("pass_id", passID),
		slog.Int("dirty", dirty),
	)
}

// LogPassComplete logs the end of a scheduling pass.
func LogPassComplete(logger *slog.Logger, treeID, passID string, duration time.Duration, executed, failed, skipped int) {
	if logger == nil {
		return
	}
	logger.Info("pass completed",
		slog.String("tree_id", treeID),
		slog.String("pass_id", passID),
		slog.Float64("duration_ms", millis(duration)),
		slog.Int("nodes_executed", executed),
		slog.Int("nodes_failed", failed),
		slog.Int("nodes_skipped", skipped),
	)
}

// LogPassDeferred logs a pass that the freeze gate held back.
func LogPassDeferred(logger *slog.Logger, treeID string, dirty int) {
	if logger == nil {
		return
	}
	logger.Debug("pass deferred by freeze gate",
		slog.String("tree_id", treeID),
		slog.Int("dirty", dirty),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeName string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_name", nodeName),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeName string, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_name", nodeName),
		slog.Float64("duration_ms", millis(duration)),
	)
}

// LogNodeError logs a processor failure. The pass continues.
func LogNodeError(logger *slog.Logger, nodeName string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_name", nodeName),
		slog.String("error", err.Error()),
	)
}

// LogUnresolved logs the nodes skipped because they sit in or below a cycle.
func LogUnresolved(logger *slog.Logger, treeID string, nodeNames []string) {
	if logger == nil || len(nodeNames) == 0 {
		return
	}
	logger.Warn("nodes unresolved by cycle",
		slog.String("tree_id", treeID),
		slog.Any("nodes", nodeNames),
	)
}

// LogStructuralRace logs an edit that arrived while a pass was executing.
func LogStructuralRace(logger *slog.Logger, treeID, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("edit queued during pass",
		slog.String("tree_id", treeID),
		slog.String("event", kind),
	)
}

// TimedOperation starts a clock. The returned function reports the time
// elapsed since the call.
//
// Example:
//
//	elapsed := TimedOperation()
//	// ... run the node ...
//	LogNodeComplete(logger, name, elapsed())
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
