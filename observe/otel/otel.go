// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// It converts observe.Event objects into OTel spans so that agent
// executions, individual steps, and trigger checks are visible in any
// OpenTelemetry-compatible backend (Jaeger, Zipkin, Grafana, etc.).
package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/flowbothq/flowbot/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/flowbothq/flowbot"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into an OTel span.
func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	spanName := spanNameFor(event)
	ctx := context.Background()
	startTime := event.Timestamp

	_, span := s.tracer.Start(ctx, spanName, trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("flowbot.event.kind", string(event.Kind)),
	}
	if event.ExecutionID != "" {
		attrs = append(attrs, attribute.String("flowbot.execution.id", event.ExecutionID))
	}
	if event.AgentID != "" {
		attrs = append(attrs, attribute.String("flowbot.agent.id", event.AgentID))
	}
	if event.UserID != "" {
		attrs = append(attrs, attribute.String("flowbot.user.id", event.UserID))
	}
	if event.Name != "" {
		attrs = append(attrs, attribute.String("flowbot.event.name", event.Name))
	}
	if event.StepIndex > 0 {
		attrs = append(attrs, attribute.Int("flowbot.step.index", event.StepIndex))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("flowbot.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("flowbot.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("flowbot.duration_ms", event.DurationMs))
	}

	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("flowbot.attr."+k, fmt.Sprintf("%v", v)))
	}

	span.SetAttributes(attrs...)

	if event.Status == observe.StatusFailed {
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	} else if event.Status == observe.StatusCompleted {
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindExecution:
		return "flowbot.execution"
	case observe.KindStep:
		if event.Name != "" {
			return "flowbot.step." + event.Name
		}
		return "flowbot.step"
	case observe.KindTrigger:
		if event.Name != "" {
			return "flowbot.trigger." + event.Name
		}
		return "flowbot.trigger"
	case observe.KindScheduler:
		return "flowbot.scheduler.tick"
	default:
		if event.Name != "" {
			return "flowbot." + event.Name
		}
		return "flowbot.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
