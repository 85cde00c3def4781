// Package observability provides production-grade observability for the
// booking workflow: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds session context to a logger.
// Returns a new logger with session_id, node_id, and stage fields.
func EnrichLogger(logger *slog.Logger, sessionID, nodeID, stage string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("node_id", nodeID),
		slog.String("stage", stage),
	)
}

// LogTurnStart logs the start of a conversation turn.
func LogTurnStart(logger *slog.Logger, sessionID, stage string) {
	if logger == nil {
		return
	}
	logger.Info("turn starting",
		slog.String("session_id", sessionID),
		slog.String("stage", stage),
	)
}

// LogTurnComplete logs successful turn completion.
func LogTurnComplete(logger *slog.Logger, sessionID, stage string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("turn completed",
		slog.String("session_id", sessionID),
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogTurnError logs turn failure.
func LogTurnError(logger *slog.Logger, sessionID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("turn failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogToolCall logs a tool invocation decided by the inference service.
func LogToolCall(logger *slog.Logger, sessionID, tool string) {
	if logger == nil {
		return
	}
	logger.Debug("tool call requested",
		slog.String("session_id", sessionID),
		slog.String("tool", tool),
	)
}

// LogInferenceDegraded logs an inference failure handled by falling back.
func LogInferenceDegraded(logger *slog.Logger, sessionID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("inference call degraded",
		slog.String("session_id", sessionID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogBooking logs a completed booking commit.
func LogBooking(logger *slog.Logger, sessionID string, appointmentID, slotID int64) {
	if logger == nil {
		return
	}
	logger.Info("appointment booked",
		slog.String("session_id", sessionID),
		slog.Int64("appointment_id", appointmentID),
		slog.Int64("slot_id", slotID),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, sessionID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("session_id", sessionID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure.
func LogCheckpointError(logger *slog.Logger, sessionID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("session_id", sessionID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
