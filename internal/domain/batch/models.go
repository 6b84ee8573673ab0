package batch

import (
	"path/filepath"
	"strings"
	"time"

	"rana-image-tool/internal/bufpool"
)

// FileDescriptor identifies one matched file. It is produced once by
// directory enumeration and never modified.
type FileDescriptor struct {
	Path string
	Size int64
}

// LoadUnit carries the full contents of one source file from the Loader to
// a worker. Whoever holds the unit owns its buffer: the worker releases it
// after the transform returns (success or failure); the Loader releases it
// itself only when the read fails.
type LoadUnit struct {
	Path string
	Data *bufpool.Buffer
}

// Bytes returns the loaded file contents.
func (u *LoadUnit) Bytes() []byte {
	return u.Data.Bytes()
}

// Ext returns the source file extension, as written on disk.
func (u *LoadUnit) Ext() string {
	return filepath.Ext(u.Path)
}

// Release returns the buffer to its pool.
func (u *LoadUnit) Release() {
	if u != nil {
		u.Data.Release()
	}
}

// ResultUnit carries transformed bytes from a worker to the Committer, which
// becomes the last owner and releases the buffer after writing.
type ResultUnit struct {
	Path           string
	TargetExt      string
	Data           *bufpool.Buffer
	DeleteOriginal bool
}

// TargetPath is the final path: the original path with its extension
// replaced by TargetExt.
func (r *ResultUnit) TargetPath() string {
	return strings.TrimSuffix(r.Path, filepath.Ext(r.Path)) + r.TargetExt
}

// Release returns the buffer to its pool.
func (r *ResultUnit) Release() {
	if r != nil {
		r.Data.Release()
	}
}

// CompletionRecord is the terminal event for one file. Err is nil on success.
type CompletionRecord struct {
	Path string
	Err  *StageError
}

// Failed reports whether the file failed at any stage.
func (c CompletionRecord) Failed() bool {
	return c.Err != nil
}

// Failure is a reportable per-file failure.
type Failure struct {
	Path  string `json:"path"`
	Stage Stage  `json:"stage"`
	Cause string `json:"cause"`
}

// FileName returns the base name of the failed file.
func (f Failure) FileName() string {
	return filepath.Base(f.Path)
}

// Summary is the outcome of one batch run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Label        string        `json:"label"`
	Root         string        `json:"root"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Failures     []Failure     `json:"failures,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	PeakInFlight int           `json:"peak_in_flight"`
}

// Failed returns the number of failed files.
func (s *Summary) Failed() int {
	return len(s.Failures)
}

// ExitCode is 0 when every file succeeded and 1 otherwise.
func (s *Summary) ExitCode() int {
	if len(s.Failures) > 0 {
		return 1
	}
	return 0
}
