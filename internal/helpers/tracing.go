package helpers

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	typeKey          = attribute.Key("durabletask.type")
	taskNameKey      = attribute.Key("durabletask.task.name")
	instanceIDKey    = attribute.Key("durabletask.task.instance_id")
	taskIDKey        = attribute.Key("durabletask.task.task_id")
	replayingKey     = attribute.Key("durabletask.replaying")
	fireAtKey        = attribute.Key("durabletask.fire_at")
	runtimeStatusKey = attribute.Key("durabletask.runtime_status")
	historyLengthKey = attribute.Key("durabletask.history_length")
)

var tracer = otel.Tracer("durabletask")

// StartNewReplaySpan starts the span that covers one replay pass of an orchestration. The span
// is backdated to the time the execution started.
func StartNewReplaySpan(
	ctx context.Context, name string, instanceID string, isReplaying bool, startedTime time.Time,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orchestration||"+name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(startedTime),
		trace.WithAttributes(
			typeKey.String("orchestration"),
			taskNameKey.String(name),
			instanceIDKey.String(instanceID),
			replayingKey.Bool(isReplaying),
		),
	)
}

// EndReplaySpan records the outcome of a replay pass and ends the span.
func EndReplaySpan(span trace.Span, status string, historyLength int, err error) {
	span.SetAttributes(
		runtimeStatusKey.String(status),
		historyLengthKey.Int(historyLength),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartAndEndNewTimerSpan emits a span for a durable timer that fired, from its creation to the
// time it was due.
func StartAndEndNewTimerSpan(ctx context.Context, fireAt time.Time, timerID int32, createdTime time.Time, instanceID string) {
	_, span := tracer.Start(ctx, "timer",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(createdTime),
		trace.WithAttributes(
			typeKey.String("timer"),
			fireAtKey.String(fireAt.Format(time.RFC3339)),
			taskIDKey.Int64(int64(timerID)),
			instanceIDKey.String(instanceID),
		),
	)
	span.End(trace.WithTimestamp(fireAt))
}
