package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "rana-image-tool/pipeline"

// Queue names used as the queue attribute of pipeline.queue.depth.
const (
	QueueLoad   = "load"
	QueueCommit = "commit"
)

// PipelineMetrics holds the batch pipeline instruments. A nil
// *PipelineMetrics records nothing.
type PipelineMetrics struct {
	filesCompleted metric.Int64Counter
	stageDuration  metric.Float64Histogram
	queueDepth     metric.Int64UpDownCounter
	bytesLoaded    metric.Int64Counter
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	filesCompleted, err := meter.Int64Counter(
		"pipeline.files.completed",
		metric.WithDescription("Files that reached a terminal state"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Time spent by one file in a pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"pipeline.queue.depth",
		metric.WithDescription("Units waiting in a stage queue"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	bytesLoaded, err := meter.Int64Counter(
		"pipeline.bytes.loaded",
		metric.WithDescription("Bytes read from source files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		filesCompleted: filesCompleted,
		stageDuration:  stageDuration,
		queueDepth:     queueDepth,
		bytesLoaded:    bytesLoaded,
	}, nil
}

// FileCompleted counts a file that finished, successfully or at the named
// failing stage.
func (m *PipelineMetrics) FileCompleted(ctx context.Context, stage string, failed bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.filesCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

// StageDuration records how long one file spent in a stage.
func (m *PipelineMetrics) StageDuration(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// QueueDelta adjusts the depth of the named queue.
func (m *PipelineMetrics) QueueDelta(ctx context.Context, queue string, delta int64) {
	if m == nil {
		return
	}
	m.queueDepth.Add(ctx, delta, metric.WithAttributes(attribute.String("queue", queue)))
}

// BytesLoaded counts bytes read by the Loader.
func (m *PipelineMetrics) BytesLoaded(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.bytesLoaded.Add(ctx, n)
}

// GetTracer returns a tracer for pipeline instrumentation
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// GetMeter returns a meter for pipeline metrics
func GetMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}
