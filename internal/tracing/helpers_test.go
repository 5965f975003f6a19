package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"query mentions", "reddit_mentions", DBOperationQuery, "query reddit_mentions"},
		{"copy aggregates", "place_aggregations", DBOperationCopy, "copy place_aggregations"},
		{"delete aggregates", "place_aggregations", DBOperationDelete, "delete place_aggregations"},
		{"refresh views", "", DBOperationRefresh, "refresh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder(t)

			_, endSpan := StartDBSpan(context.Background(), tt.table, tt.operation)
			endSpan(nil)

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", span.Name(), tt.wantName)
			}

			attrs := map[attribute.Key]string{}
			for _, kv := range span.Attributes() {
				attrs[kv.Key] = kv.Value.AsString()
			}
			if attrs["db.system"] != "postgresql" {
				t.Errorf("db.system = %q, want postgresql", attrs["db.system"])
			}
			if attrs["db.operation"] != string(tt.operation) {
				t.Errorf("db.operation = %q, want %q", attrs["db.operation"], tt.operation)
			}
			if got, ok := attrs["db.sql.table"]; (tt.table != "") != ok || got != tt.table {
				t.Errorf("db.sql.table = %q (present %v), want %q", got, ok, tt.table)
			}
			if span.InstrumentationScope().Name != DBTracerName {
				t.Errorf("tracer = %q, want %q", span.InstrumentationScope().Name, DBTracerName)
			}
		})
	}
}

func TestStartSpan_RecordsError(t *testing.T) {
	rec := newRecorder(t)
	testErr := errors.New("replace aggregates: connection reset")

	_, endSpan := StartSpan(context.Background(), "score_recompute")
	endSpan(testErr)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("expected error status, got %s", span.Status().Code)
	}
	if span.Status().Description != testErr.Error() {
		t.Errorf("status description = %q, want %q", span.Status().Description, testErr.Error())
	}
	if span.InstrumentationScope().Name != TracerName {
		t.Errorf("tracer = %q, want %q", span.InstrumentationScope().Name, TracerName)
	}
}

func TestStartSpan_Success(t *testing.T) {
	rec := newRecorder(t)

	_, endSpan := StartSpan(context.Background(), "extract_batch")
	endSpan(nil)

	span := rec.Ended()[0]
	if span.Status().Code == codes.Error {
		t.Error("successful span should not carry error status")
	}
}

func TestAddEventAndAttributes(t *testing.T) {
	rec := newRecorder(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "test-span")
	AddEvent(ctx, "resolver_cache_hit", attribute.String("name_norm", "katz's"))
	SetAttributes(ctx, attribute.Int("mentions", 12))
	span.End()

	ended := rec.Ended()[0]
	if events := ended.Events(); len(events) != 1 || events[0].Name != "resolver_cache_hit" {
		t.Errorf("unexpected events %+v", events)
	}

	found := false
	for _, kv := range ended.Attributes() {
		if kv.Key == "mentions" && kv.Value.AsInt64() == 12 {
			found = true
		}
	}
	if !found {
		t.Error("missing mentions attribute")
	}
}
