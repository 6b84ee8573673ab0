package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/platform/database"
	"rana-image-tool/internal/testutils"
)

type LedgerIntegrationSuite struct {
	suite.Suite
	containers *testutils.TestContainers
	repo       database.RunRepository
	ctx        context.Context
}

func TestLedgerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(LedgerIntegrationSuite))
}

func (s *LedgerIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	containers, err := testutils.SetupPostgres(s.ctx)
	s.Require().NoError(err)
	s.containers = containers
	s.repo = database.NewRunRepository(containers.DB)
}

func (s *LedgerIntegrationSuite) TearDownSuite() {
	if s.containers != nil {
		s.NoError(s.containers.Cleanup(s.ctx))
	}
}

func (s *LedgerIntegrationSuite) SetupTest() {
	s.Require().NoError(s.containers.ResetDatabase(s.ctx))
}

func newSummary(label string, started time.Time, failures ...batch.Failure) *batch.Summary {
	return &batch.Summary{
		RunID:        uuid.NewString(),
		Label:        label,
		Root:         "/photos",
		Total:        5,
		Succeeded:    5 - len(failures),
		Failures:     failures,
		StartedAt:    started,
		Duration:     1500 * time.Millisecond,
		PeakInFlight: 6,
	}
}

func (s *LedgerIntegrationSuite) TestMigrationsAreIdempotent() {
	applied, err := database.RunMigrations(s.ctx, s.containers.DB)
	s.Require().NoError(err)
	s.Empty(applied, "setup already applied every migration")
}

func (s *LedgerIntegrationSuite) TestRecordAndGetRun() {
	t := s.T()
	started := time.Now().UTC().Truncate(time.Millisecond)
	summary := newSummary("[setppi] Linear Mode", started,
		batch.Failure{Path: "/photos/z.png", Stage: batch.StageTransform, Cause: "unexpected EOF"},
		batch.Failure{Path: "/photos/a.jpg", Stage: batch.StageCommit, Cause: "permission denied"},
	)

	require.NoError(t, s.repo.RecordRun(s.ctx, summary))

	rec, err := s.repo.GetRun(s.ctx, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, rec.RunID)
	assert.Equal(t, "[setppi] Linear Mode", rec.Label)
	assert.Equal(t, 5, rec.Total)
	assert.Equal(t, 3, rec.Succeeded)
	assert.Equal(t, 2, rec.Failed)
	assert.Equal(t, 6, rec.PeakInFlight)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration)
	assert.True(t, started.Equal(rec.StartedAt))
	assert.Equal(t, 1, rec.ExitCode())

	failures, err := s.repo.Failures(s.ctx, summary.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "/photos/a.jpg", failures[0].Path)
	assert.Equal(t, batch.StageCommit, failures[0].Stage)
	assert.Equal(t, batch.StageTransform, failures[1].Stage)
	assert.Equal(t, "unexpected EOF", failures[1].Cause)
}

func (s *LedgerIntegrationSuite) TestGetRunNotFound() {
	_, err := s.repo.GetRun(s.ctx, uuid.NewString())
	s.ErrorIs(err, database.ErrRunNotFound)
}

func (s *LedgerIntegrationSuite) TestDuplicateRunIsRejected() {
	summary := newSummary("[webp] From WebP to PNG", time.Now().UTC())
	s.Require().NoError(s.repo.RecordRun(s.ctx, summary))
	s.Error(s.repo.RecordRun(s.ctx, summary))

	n, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *LedgerIntegrationSuite) TestRecentRuns() {
	t := s.T()
	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		summary := newSummary("[convert] From JPG to PNG", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.repo.RecordRun(s.ctx, summary))
		ids = append(ids, summary.RunID)
	}

	n, err := s.repo.Count(s.ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	runs, err := s.repo.RecentRuns(s.ctx, database.PaginationParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[4], runs[0].RunID)
	assert.Equal(t, ids[3], runs[1].RunID)

	runs, err = s.repo.RecentRuns(s.ctx, database.PaginationParams{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[0], runs[0].RunID)
	assert.Equal(t, 0, runs[0].ExitCode())
}
