// Package pipeline runs a transform over every matching file of a directory
// tree through four concurrent stages: one Loader, a pool of workers, one
// Committer and one Coordinator, joined by bounded channels.
package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rana-image-tool/internal/bufpool"
	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/observability"
)

// Options sizes the pipeline. Zero values pick the defaults.
type Options struct {
	// Workers is the transform pool size. Default: max(1, GOMAXPROCS-1).
	Workers int
	// LoadQueue is the Loader to worker capacity. Default: Workers+2.
	LoadQueue int
	// CommitQueue is the worker to Committer capacity. Default: 2*LoadQueue.
	CommitQueue int
}

// Resolve fills zero fields with their defaults.
func (o Options) Resolve() Options {
	if o.Workers <= 0 {
		o.Workers = max(1, runtime.GOMAXPROCS(0)-1)
	}
	if o.LoadQueue <= 0 {
		o.LoadQueue = o.Workers + 2
	}
	if o.CommitQueue <= 0 {
		o.CommitQueue = 2 * o.LoadQueue
	}
	return o
}

// Request describes one batch.
type Request struct {
	Root       string
	Extensions []string
	Label      string
	Transform  batch.TransformFunc
}

// Runner executes batches. It is safe to reuse across sequential runs.
type Runner struct {
	pool      *bufpool.Pool
	logger    *observability.Logger
	tracer    trace.Tracer
	metrics   *observability.PipelineMetrics
	sink      batch.ProgressSink
	announcer batch.Announcer
	recorder  batch.RunRecorder
	archiver  batch.Archiver
	opts      Options

	// commit is the Committer's write step; tests swap it for a slow one.
	commit func(ctx context.Context, res *batch.ResultUnit) error
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithProgress sets the live progress sink.
func WithProgress(sink batch.ProgressSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithAnnouncer sets the receiver of pre-run messages.
func WithAnnouncer(a batch.Announcer) Option {
	return func(r *Runner) { r.announcer = a }
}

// WithRecorder persists each finished batch.
func WithRecorder(rec batch.RunRecorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithArchiver archives originals before they are deleted.
func WithArchiver(a batch.Archiver) Option {
	return func(r *Runner) { r.archiver = a }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer sets the tracer for the batch span.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// New creates a Runner.
func New(pool *bufpool.Pool, logger *observability.Logger, opts Options, options ...Option) *Runner {
	r := &Runner{
		pool:      pool,
		logger:    logger,
		tracer:    observability.GetTracer(),
		sink:      batch.NopSink{},
		announcer: batch.NopSink{},
		opts:      opts.Resolve(),
	}
	for _, o := range options {
		o(r)
	}
	if r.logger == nil {
		r.logger = observability.NewNopLogger()
	}
	r.commit = r.commitResult
	return r
}

// Options returns the resolved sizing.
func (r *Runner) Options() Options {
	return r.opts
}

// RunBatch processes every matching file under root and returns the process
// exit code: 0 when all files succeeded or none matched, 1 otherwise or when
// root does not exist.
func (r *Runner) RunBatch(ctx context.Context, root string, exts []string, label string, fn batch.TransformFunc) int {
	summary, err := r.Run(ctx, Request{Root: root, Extensions: exts, Label: label, Transform: fn})
	if err != nil {
		return 1
	}
	return summary.ExitCode()
}

// Run processes a batch and returns its summary. Per-file failures are
// reported in the summary; the error is non-nil only when the batch could
// not start.
func (r *Runner) Run(ctx context.Context, req Request) (*batch.Summary, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.RunBatch", trace.WithAttributes(
		attribute.String("batch.root", req.Root),
		attribute.String("batch.label", req.Label),
	))
	defer span.End()

	r.announcer.Scanning(req.Root)
	files, err := Discover(ctx, req.Root, req.Extensions, r.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, batch.ErrDirectoryNotFound) {
			r.announcer.NotFound(req.Root)
			r.logger.Debug(ctx).Err(err).Msg("Directory not found")
		}
		return nil, err
	}
	r.announcer.Discovered(len(files))

	summary := &batch.Summary{
		RunID:     uuid.NewString(),
		Label:     req.Label,
		Root:      req.Root,
		Total:     len(files),
		StartedAt: time.Now(),
	}
	span.SetAttributes(attribute.Int("batch.files", len(files)))
	if len(files) == 0 {
		return summary, nil
	}

	r.logger.Info(ctx).
		Str("run_id", summary.RunID).
		Str("root", req.Root).
		Str("label", req.Label).
		Int("files", len(files)).
		Int("workers", r.opts.Workers).
		Int("load_queue", r.opts.LoadQueue).
		Int("commit_queue", r.opts.CommitQueue).
		Msg("Starting batch")

	r.execute(ctx, files, req, summary)

	summary.Duration = time.Since(summary.StartedAt)
	sort.Slice(summary.Failures, func(i, j int) bool { return summary.Failures[i].Path < summary.Failures[j].Path })
	r.sink.Finish(summary)

	span.SetAttributes(
		attribute.Int("batch.succeeded", summary.Succeeded),
		attribute.Int("batch.failed", summary.Failed()),
	)
	if summary.Failed() > 0 {
		span.SetStatus(codes.Error, "one or more files failed")
	}
	r.logger.Info(ctx).
		Str("run_id", summary.RunID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed()).
		Dur("duration", summary.Duration).
		Int("peak_in_flight", summary.PeakInFlight).
		Msg("Batch finished")

	if r.recorder != nil {
		// The batch itself may have been canceled; the ledger entry is still wanted.
		if err := r.recorder.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
			r.logger.Error(ctx).Err(err).Str("run_id", summary.RunID).Msg("Failed to record batch run")
		}
	}
	return summary, nil
}

// execute wires the stages and blocks until the Coordinator has consumed
// the last record. Shutdown cascades by channel close: the Loader closes
// loadCh, the last worker out closes resultCh, and the Committer closes
// recordCh.
func (r *Runner) execute(ctx context.Context, files []batch.FileDescriptor, req Request, summary *batch.Summary) {
	loadCh := make(chan *batch.LoadUnit, r.opts.LoadQueue)
	resultCh := make(chan *batch.ResultUnit, r.opts.CommitQueue)
	// Sized to the batch so that emitting a record never blocks.
	recordCh := make(chan batch.CompletionRecord, len(files))

	flight := &inFlight{}

	var loaderWG, workerWG, committerWG sync.WaitGroup

	loaderWG.Add(1)
	go func() {
		defer loaderWG.Done()
		r.load(ctx, files, loadCh, recordCh, flight)
	}()

	workerWG.Add(r.opts.Workers)
	for i := 0; i < r.opts.Workers; i++ {
		go func() {
			defer workerWG.Done()
			r.work(ctx, req.Transform, loadCh, resultCh, recordCh, flight)
		}()
	}
	go func() {
		workerWG.Wait()
		close(resultCh)
	}()

	committerWG.Add(1)
	go func() {
		defer committerWG.Done()
		r.runCommitter(ctx, newTargetSet(files), resultCh, recordCh, flight)
	}()

	r.coordinate(ctx, req.Label, len(files), recordCh, summary)

	loaderWG.Wait()
	workerWG.Wait()
	committerWG.Wait()

	summary.PeakInFlight = int(flight.peak.Load())
}

// inFlight counts files that are loaded but not yet committed or failed.
type inFlight struct {
	cur  atomic.Int64
	peak atomic.Int64
}

func (f *inFlight) add() {
	n := f.cur.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (f *inFlight) done() {
	f.cur.Add(-1)
}

func failed(stage batch.Stage, path string, err error) batch.CompletionRecord {
	return batch.CompletionRecord{Path: path, Err: batch.NewStageError(stage, path, err)}
}
