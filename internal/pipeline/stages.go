package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/observability"
)

// load reads each file into a pooled buffer and hands it to the workers.
// A unit sent on loadCh belongs to the worker that receives it; on a read
// failure the Loader releases the buffer itself and emits the record
// directly, so the file never reaches a worker.
func (r *Runner) load(ctx context.Context, files []batch.FileDescriptor, loadCh chan<- *batch.LoadUnit, recordCh chan<- batch.CompletionRecord, flight *inFlight) {
	defer close(loadCh)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			r.abandon(files[i:], err, recordCh)
			return
		}

		start := time.Now()
		unit, err := r.readFile(ctx, f)
		r.metrics.StageDuration(ctx, batch.StageLoad.String(), time.Since(start))
		if err != nil {
			recordCh <- failed(batch.StageLoad, f.Path, err)
			continue
		}

		flight.add()
		select {
		case loadCh <- unit:
			r.metrics.QueueDelta(ctx, observability.QueueLoad, 1)
		case <-ctx.Done():
			unit.Release()
			flight.done()
			r.abandon(files[i:], ctx.Err(), recordCh)
			return
		}
	}
}

func (r *Runner) abandon(files []batch.FileDescriptor, err error, recordCh chan<- batch.CompletionRecord) {
	for _, f := range files {
		recordCh <- failed(batch.StageLoad, f.Path, err)
	}
}

func (r *Runner) readFile(ctx context.Context, f batch.FileDescriptor) (*batch.LoadUnit, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := r.pool.Get(int(f.Size))
	n, err := buf.ReadFrom(file)
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	r.metrics.BytesLoaded(ctx, n)

	return &batch.LoadUnit{Path: f.Path, Data: buf}, nil
}

// work runs on every pool worker until loadCh is closed. The worker owns
// each received LoadUnit and always releases it after the transform. A
// successful result is handed on to the Committer; otherwise the worker
// emits the failure record itself.
func (r *Runner) work(ctx context.Context, fn batch.TransformFunc, loadCh <-chan *batch.LoadUnit, resultCh chan<- *batch.ResultUnit, recordCh chan<- batch.CompletionRecord, flight *inFlight) {
	for unit := range loadCh {
		r.metrics.QueueDelta(ctx, observability.QueueLoad, -1)

		start := time.Now()
		result, err := r.transform(ctx, fn, unit)
		unit.Release()
		r.metrics.StageDuration(ctx, batch.StageTransform.String(), time.Since(start))

		if err != nil {
			flight.done()
			r.logFailure(ctx, batch.StageTransform, unit.Path, err)
			recordCh <- failed(batch.StageTransform, unit.Path, err)
			continue
		}

		select {
		case resultCh <- result:
			r.metrics.QueueDelta(ctx, observability.QueueCommit, 1)
		case <-ctx.Done():
			result.Release()
			flight.done()
			recordCh <- failed(batch.StageCommit, unit.Path, ctx.Err())
		}
	}
}

// transform invokes fn, converting a panic into an error so that one bad
// file cannot take the pool down.
func (r *Runner) transform(ctx context.Context, fn batch.TransformFunc, unit *batch.LoadUnit) (result *batch.ResultUnit, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			result.Release()
			result, err = nil, fmt.Errorf("transform panicked: %v", p)
		}
	}()

	result, err = fn(ctx, unit)
	if err != nil {
		result.Release()
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("transform returned no result")
	}
	return result, nil
}

// runCommitter is the single consumer of resultCh. It is the last owner of
// every ResultUnit and releases each buffer once the write has finished.
func (r *Runner) runCommitter(ctx context.Context, targets *targetSet, resultCh <-chan *batch.ResultUnit, recordCh chan<- batch.CompletionRecord, flight *inFlight) {
	defer close(recordCh)

	for res := range resultCh {
		r.metrics.QueueDelta(ctx, observability.QueueCommit, -1)

		start := time.Now()
		err := ctx.Err()
		if err == nil {
			err = targets.claim(res.Path, res.TargetPath())
		}
		if err == nil {
			err = r.commit(ctx, res)
		}
		res.Release()
		flight.done()
		r.metrics.StageDuration(ctx, batch.StageCommit.String(), time.Since(start))

		if err != nil {
			r.logFailure(ctx, batch.StageCommit, res.Path, err)
			recordCh <- failed(batch.StageCommit, res.Path, err)
			continue
		}
		recordCh <- batch.CompletionRecord{Path: res.Path}
	}
}

// coordinate drains recordCh on the caller's goroutine. It is the only
// writer of summary while the batch runs.
func (r *Runner) coordinate(ctx context.Context, label string, total int, recordCh <-chan batch.CompletionRecord, summary *batch.Summary) {
	r.sink.Start(label, total)

	for rec := range recordCh {
		if rec.Failed() {
			summary.Failures = append(summary.Failures, rec.Err.Failure())
			if rec.Err.Stage == batch.StageLoad {
				r.logFailure(ctx, batch.StageLoad, rec.Path, rec.Err.Err)
			}
			r.metrics.FileCompleted(ctx, rec.Err.Stage.String(), true)
		} else {
			summary.Succeeded++
			r.metrics.FileCompleted(ctx, batch.StageCommit.String(), false)
		}
		r.sink.Increment(rec)
	}
}

func (r *Runner) logFailure(ctx context.Context, stage batch.Stage, path string, err error) {
	r.logger.Warn(ctx).
		Str("path", path).
		Str("stage", stage.String()).
		Err(err).
		Msg("File failed")
}
