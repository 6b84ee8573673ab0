package batch

import (
	"errors"
	"fmt"
)

// ErrDirectoryNotFound is returned before any processing when the batch root
// does not exist or is not a directory.
var ErrDirectoryNotFound = errors.New("directory not found")

// Stage identifies the pipeline stage at which a file failed.
type Stage int

const (
	StageLoad Stage = iota + 1
	StageTransform
	StageCommit
)

func (s Stage) String() string {
	switch s {
	case StageLoad:
		return "load"
	case StageTransform:
		return "transform"
	case StageCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Kind returns the failure kind name for the stage.
func (s Stage) Kind() string {
	switch s {
	case StageLoad:
		return "LoadFailure"
	case StageTransform:
		return "TransformFailure"
	case StageCommit:
		return "CommitFailure"
	default:
		return "UnknownFailure"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	stage, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	switch name {
	case "load":
		return StageLoad, nil
	case "transform":
		return StageTransform, nil
	case "commit":
		return StageCommit, nil
	default:
		return 0, fmt.Errorf("unknown stage %q", name)
	}
}

// StageError tags a per-file failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

// NewStageError wraps err for the given stage and file.
func NewStageError(stage Stage, path string, err error) *StageError {
	return &StageError{Stage: stage, Path: path, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.Kind(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns LoadFailure, TransformFailure or CommitFailure.
func (e *StageError) Kind() string {
	return e.Stage.Kind()
}

// Failure converts the error into a reportable record.
func (e *StageError) Failure() Failure {
	return Failure{Path: e.Path, Stage: e.Stage, Cause: e.Err.Error()}
}
