package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest installs a tracer provider backed by an in-memory span
// recorder and repoints the package-level tracer at it.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("bookline")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartTurnSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("records session and stage attributes", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartTurnSpan(ctx, "sess-1", "gathering_time")
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "bookline.turn", spans[0].Name)

		var sessionID, stage string
		for _, attr := range spans[0].Attributes {
			switch attr.Key {
			case "session.id":
				sessionID = attr.Value.AsString()
			case "session.stage":
				stage = attr.Value.AsString()
			}
		}
		assert.Equal(t, "sess-1", sessionID)
		assert.Equal(t, "gathering_time", stage)
	})

	t.Run("node spans are children of the turn span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		ctx, turnSpan := sm.StartTurnSpan(ctx, "sess-1", "initial_request")

		_, nodeSpan := sm.StartNodeSpan(ctx, "gather")
		nodeSpan.End()
		turnSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var child *tracetest.SpanStub
		for i := range spans {
			if spans[i].Name == "bookline.node.gather" {
				child = &spans[i]
				break
			}
		}
		require.NotNil(t, child)
		assert.True(t, child.Parent.IsValid())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		_, span := sm.StartTurnSpan(context.Background(), "sess-1", "initial_request")
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("records the error and its message", func(t *testing.T) {
		exporter.Reset()

		_, span := sm.StartTurnSpan(context.Background(), "sess-1", "booking")
		sm.EndSpanWithError(span, errors.New("slot already taken"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "slot already taken", spans[0].Status.Description)

		var recorded bool
		for _, event := range spans[0].Events {
			if event.Name == "exception" {
				recorded = true
			}
		}
		assert.True(t, recorded, "expected an exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, errors.New("ignored"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("attaches the event to the span in context", func(t *testing.T) {
		ctx, span := sm.StartTurnSpan(context.Background(), "sess-1", "slots_fetched")

		sm.AddSpanEvent(ctx, "checkpoint_saved",
			attribute.String("session_id", "sess-1"),
			attribute.Int64("size_bytes", 2048),
		)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		var found bool
		for _, event := range spans[0].Events {
			if event.Name == "checkpoint_saved" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("no panic without a current span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(context.Background(), "orphan_event")
		})
	})
}
