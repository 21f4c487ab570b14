package logger

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup_Level(t *testing.T) {
	Setup("debug", "json")
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	Setup("not-a-level", "text")
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestFromContext_RequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	entry := FromContext(ctx)
	assert.Equal(t, "req-42", entry.Data["request_id"])
	assert.NotContains(t, entry.Data, "trace_id")
}

func TestFromContext_TraceIDs(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	entry := FromContext(ctx)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry.Data["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry.Data["span_id"])
}
