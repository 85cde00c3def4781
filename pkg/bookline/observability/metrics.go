package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records workflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordTurn records a conversation turn completion.
	RecordTurn(ctx context.Context, success bool, duration time.Duration)

	// RecordToolCall records a tool-call decision outcome.
	RecordToolCall(ctx context.Context, tool string, invoked bool)

	// RecordBooking records a booking commit attempt.
	RecordBooking(ctx context.Context, success bool)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, sessionID string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	turns          metric.Int64Counter
	turnLatency    metric.Float64Histogram
	toolCalls      metric.Int64Counter
	bookings       metric.Int64Counter
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("bookline")

	nodeExecutions, err := meter.Int64Counter("bookline.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("bookline.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("bookline.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	turns, err := meter.Int64Counter("bookline.turns",
		metric.WithDescription("Number of conversation turns"),
	)
	if err != nil {
		return nil, err
	}

	turnLatency, err := meter.Float64Histogram("bookline.turn.latency_ms",
		metric.WithDescription("Turn latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	toolCalls, err := meter.Int64Counter("bookline.tool.calls",
		metric.WithDescription("Number of tool-call decisions"),
	)
	if err != nil {
		return nil, err
	}

	bookings, err := meter.Int64Counter("bookline.bookings",
		metric.WithDescription("Number of booking commit attempts"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("bookline.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		turns:          turns,
		turnLatency:    turnLatency,
		toolCalls:      toolCalls,
		bookings:       bookings,
		checkpointSize: checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordTurn records a conversation turn.
func (m *otelMetrics) RecordTurn(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.turnLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordToolCall records a tool-call decision.
func (m *otelMetrics) RecordToolCall(ctx context.Context, tool string, invoked bool) {
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("invoked", invoked),
	))
}

// RecordBooking records a booking commit attempt.
func (m *otelMetrics) RecordBooking(ctx context.Context, success bool) {
	m.bookings.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, sessionID string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("session_id", sessionID),
	}
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
