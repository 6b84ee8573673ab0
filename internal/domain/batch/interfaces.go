// Package batch defines the units of work, failure values and collaborator
// contracts shared by the pipeline, the transforms and the reporting sinks.
package batch

import "context"

// TransformFunc turns one loaded file into a result. It must not retain the
// LoadUnit or its buffer after returning, and it must release any result
// buffer it allocated when it returns an error.
type TransformFunc func(ctx context.Context, unit *LoadUnit) (*ResultUnit, error)

// ProgressSink receives live progress from the Coordinator. All methods are
// called from a single goroutine.
type ProgressSink interface {
	// Start is called once before the first record.
	Start(label string, total int)

	// Increment is called exactly once per completed file.
	Increment(rec CompletionRecord)

	// Finish is called once after the last record.
	Finish(summary *Summary)
}

// Announcer receives the batch-level messages printed before processing
// starts.
type Announcer interface {
	Scanning(root string)
	Discovered(total int)
	// NotFound is called instead of Discovered when root is missing.
	NotFound(root string)
}

// RunRecorder persists the outcome of a batch.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary *Summary) error
}

// Archiver keeps a copy of an original file before the Committer deletes it.
type Archiver interface {
	Archive(ctx context.Context, path string) error
}

// MultiSink fans progress out to several sinks in order.
type MultiSink []ProgressSink

func (m MultiSink) Start(label string, total int) {
	for _, s := range m {
		s.Start(label, total)
	}
}

func (m MultiSink) Increment(rec CompletionRecord) {
	for _, s := range m {
		s.Increment(rec)
	}
}

func (m MultiSink) Finish(summary *Summary) {
	for _, s := range m {
		s.Finish(summary)
	}
}

// NopSink discards progress.
type NopSink struct{}

func (NopSink) Start(string, int)          {}
func (NopSink) Increment(CompletionRecord) {}
func (NopSink) Finish(*Summary)            {}
func (NopSink) Scanning(string)            {}
func (NopSink) Discovered(int)             {}
func (NopSink) NotFound(string)            {}
