package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rana-image-tool/internal/bufpool"
)

func TestResultUnit_TargetPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		ext      string
		expected string
	}{
		{name: "same extension", path: "/a/b/photo.png", ext: ".png", expected: "/a/b/photo.png"},
		{name: "jpg to png", path: "/a/b/photo.jpg", ext: ".png", expected: "/a/b/photo.png"},
		{name: "keeps upper case source when ext matches", path: "/a/IMG.JPG", ext: ".JPG", expected: "/a/IMG.JPG"},
		{name: "dotted directory", path: "/a.dir/photo.webp", ext: ".png", expected: "/a.dir/photo.png"},
		{name: "multiple dots", path: "/a/photo.final.jpeg", ext: ".png", expected: "/a/photo.final.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ResultUnit{Path: tt.path, TargetExt: tt.ext}
			assert.Equal(t, tt.expected, r.TargetPath())
		})
	}
}

func TestUnits_ReleaseReturnsBuffer(t *testing.T) {
	pool := bufpool.New(1 << 20)

	load := &LoadUnit{Path: "x.png", Data: pool.Get(8)}
	result := &ResultUnit{Path: "x.png", TargetExt: ".png", Data: pool.Get(8)}
	require.Equal(t, int64(2), pool.InUse())

	load.Release()
	result.Release()
	assert.Equal(t, int64(0), pool.InUse())

	var nilLoad *LoadUnit
	var nilResult *ResultUnit
	assert.NotPanics(t, func() {
		nilLoad.Release()
		nilResult.Release()
	})
}

func TestStageError(t *testing.T) {
	tests := []struct {
		name         string
		stage        Stage
		cause        error
		expectedKind string
		expectedText string
	}{
		{
			name:         "load",
			stage:        StageLoad,
			cause:        errors.New("permission denied"),
			expectedKind: "LoadFailure",
			expectedText: "LoadFailure: permission denied",
		},
		{
			name:         "transform wraps eof",
			stage:        StageTransform,
			cause:        fmt.Errorf("failed to patch density: %w", io.ErrUnexpectedEOF),
			expectedKind: "TransformFailure",
			expectedText: "TransformFailure: failed to patch density: unexpected EOF",
		},
		{
			name:         "commit",
			stage:        StageCommit,
			cause:        context.Canceled,
			expectedKind: "CommitFailure",
			expectedText: "CommitFailure: context canceled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStageError(tt.stage, "/tmp/f.png", tt.cause)
			assert.Equal(t, tt.expectedKind, err.Kind())
			assert.Equal(t, tt.expectedText, err.Error())
			assert.ErrorIs(t, err, tt.cause)

			var target *StageError
			require.ErrorAs(t, fmt.Errorf("outer: %w", err), &target)
			assert.Equal(t, tt.stage, target.Stage)

			f := err.Failure()
			assert.Equal(t, "f.png", f.FileName())
			assert.Equal(t, tt.stage, f.Stage)
		})
	}
}

func TestSummary_ExitCode(t *testing.T) {
	s := &Summary{Total: 2, Succeeded: 2}
	assert.Equal(t, 0, s.ExitCode())

	s.Failures = append(s.Failures, Failure{Path: "a.png", Stage: StageCommit, Cause: "disk full"})
	assert.Equal(t, 1, s.ExitCode())
	assert.Equal(t, 1, s.Failed())
}

type recordingSink struct {
	events []string
}

func (r *recordingSink) Start(label string, total int) {
	r.events = append(r.events, fmt.Sprintf("start %s %d", label, total))
}

func (r *recordingSink) Increment(rec CompletionRecord) {
	r.events = append(r.events, fmt.Sprintf("inc %s %t", rec.Path, rec.Failed()))
}

func (r *recordingSink) Finish(s *Summary) {
	r.events = append(r.events, fmt.Sprintf("finish %d", s.Total))
}

func TestMultiSink_FansOutInOrder(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, NopSink{}, b}

	sink.Start("label", 1)
	sink.Increment(CompletionRecord{Path: "x"})
	sink.Finish(&Summary{Total: 1})

	expected := []string{"start label 1", "inc x false", "finish 1"}
	assert.Equal(t, expected, a.events)
	assert.Equal(t, expected, b.events)
}

func TestStage_TextRoundTrip(t *testing.T) {
	for _, stage := range []Stage{StageLoad, StageTransform, StageCommit} {
		text, err := stage.MarshalText()
		require.NoError(t, err)

		var got Stage
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, stage, got)
	}

	_, err := ParseStage("upload")
	assert.Error(t, err)
}

func TestFailure_JSON(t *testing.T) {
	f := Failure{Path: "/photos/a.png", Stage: StageCommit, Cause: "disk full"}

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/photos/a.png","stage":"commit","cause":"disk full"}`, string(data))

	var back Failure
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, f, back)
}
