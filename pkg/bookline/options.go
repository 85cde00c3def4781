package bookline

import (
	"log/slog"

	"github.com/bookline/bookline/pkg/bookline/observability"
)

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxIterations int
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	tracing       bool
	nodeCounter   *int
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: 25,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations sets the maximum number of node executions per turn.
// Default: 25. One conversation turn visits at most a handful of nodes,
// so the limit exists to stop routing bugs from looping forever.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithRunLogger sets the logger for per-node execution logging.
func WithRunLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithRunMetrics sets the metrics recorder for node executions.
func WithRunMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRunTracing enables per-node spans through the given span manager.
func WithRunTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracing = true
		}
	}
}
