package services_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rana-image-tool/internal/config"
	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/imaging"
	"rana-image-tool/internal/pipeline"
	"rana-image-tool/internal/platform/cache"
	"rana-image-tool/internal/platform/database"
	"rana-image-tool/internal/services"
	"rana-image-tool/internal/testutils"
)

// BatchIntegrationSuite runs real batches with the ledger, the progress
// publisher and the archive all enabled.
type BatchIntegrationSuite struct {
	suite.Suite
	containers *testutils.TestContainers
	ctx        context.Context
}

func TestBatchIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(BatchIntegrationSuite))
}

func (s *BatchIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	containers, err := testutils.SetupTestContainers(s.ctx)
	s.Require().NoError(err)
	s.containers = containers
}

func (s *BatchIntegrationSuite) TearDownSuite() {
	if s.containers != nil {
		s.NoError(s.containers.Cleanup(s.ctx))
	}
}

func (s *BatchIntegrationSuite) SetupTest() {
	s.Require().NoError(s.containers.ResetDatabase(s.ctx))
	s.Require().NoError(s.containers.FlushRedis(s.ctx))
}

func (s *BatchIntegrationSuite) config() *config.Config {
	return &config.Config{
		Environment: "test",
		DatabaseURL: s.containers.DatabaseURL,
		Pipeline: config.PipelineConfig{
			Workers:      3,
			BufferRetain: 1 << 20,
			DefaultPPI:   144,
			JPEGQuality:  90,
		},
		Display: config.DisplayConfig{ColorMode: "never"},
		Storage: s.containers.StorageConfig(),
		Cache:   s.containers.CacheConfig(),
	}
}

func (s *BatchIntegrationSuite) TestConvertArchivesRecordsAndPublishes() {
	t := s.T()
	dir := t.TempDir()
	good := testutils.WriteFile(t, dir, "good.jpg", testutils.JPEGBytes(t, 32, 32))
	testutils.WriteFile(t, dir, "broken.jpg", []byte("not a jpeg at all"))

	var out bytes.Buffer
	c, err := services.NewContainer(s.ctx, s.config(), services.Options{Out: &out})
	s.Require().NoError(err)
	defer c.Close()
	s.Require().NotNil(c.Archiver())
	s.Require().NotNil(c.Publisher())

	sub := s.containers.RedisClient.Subscribe(s.ctx, testutils.TestChannel)
	defer sub.Close()
	_, err = sub.Receive(s.ctx)
	s.Require().NoError(err)
	messages := sub.Channel()

	summary, err := c.Runner().Run(s.ctx, pipeline.Request{
		Root:       dir,
		Extensions: []string{".jpg"},
		Label:      "[convert] From JPG to PNG",
		Transform:  c.Imaging().ConvertToPNG,
	})
	s.Require().NoError(err)
	s.Equal(1, summary.Succeeded)
	s.Require().Len(summary.Failures, 1)
	s.Equal(batch.StageTransform, summary.Failures[0].Stage)
	s.Contains(out.String(), "Completed with 1 errors")

	// The original was archived before it was removed
	_, err = os.Stat(good)
	s.ErrorIs(err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "good.png"))
	s.NoError(err)
	exists, err := c.Archiver().Exists(s.ctx, c.Archiver().ObjectKey(good))
	s.Require().NoError(err)
	s.True(exists)

	// The failed file is untouched and was never archived
	_, err = os.Stat(filepath.Join(dir, "broken.jpg"))
	s.NoError(err)
	keys, err := s.containers.ListObjects(s.ctx, testutils.TestBucket)
	s.Require().NoError(err)
	s.Len(keys, 1)

	runs, err := c.Runs()
	s.Require().NoError(err)
	rec, err := runs.GetRun(s.ctx, summary.RunID)
	s.Require().NoError(err)
	s.Equal(2, rec.Total)
	s.Equal(1, rec.Failed)
	failures, err := runs.Failures(s.ctx, summary.RunID)
	s.Require().NoError(err)
	s.Require().Len(failures, 1)
	s.Equal(filepath.Join(dir, "broken.jpg"), failures[0].Path)

	var types []string
	timeout := time.After(10 * time.Second)
	for len(types) < 4 {
		select {
		case msg := <-messages:
			var ev cache.ProgressEvent
			s.Require().NoError(json.Unmarshal([]byte(msg.Payload), &ev))
			types = append(types, ev.Type)
		case <-timeout:
			s.FailNow("timed out waiting for progress events", "got %v", types)
		}
	}
	s.Equal([]string{cache.EventStart, cache.EventFile, cache.EventFile, cache.EventFinish}, types)

	var last batch.Summary
	s.Require().NoError(s.containers.RedisClient.Get(s.ctx, cache.SummaryKey(testutils.TestChannel), &last))
	s.Equal(summary.RunID, last.RunID)
}

func (s *BatchIntegrationSuite) TestHistoryListsRuns() {
	c, err := services.NewContainer(s.ctx, s.config(), services.Options{})
	s.Require().NoError(err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		dir := s.T().TempDir()
		testutils.WriteFile(s.T(), dir, "x.png", testutils.PNGBytes(s.T(), 40, 8))
		code := c.Runner().RunBatch(s.ctx, dir, []string{".png"}, "[setppi] Linear Mode",
			c.Imaging().SetDensity(imaging.DensityOptions{Linear: true}))
		s.Equal(0, code)
	}

	runs, err := c.Runs()
	s.Require().NoError(err)
	recent, err := runs.RecentRuns(s.ctx, database.DefaultPagination())
	s.Require().NoError(err)
	s.Len(recent, 3)
	for _, r := range recent {
		s.Equal("[setppi] Linear Mode", r.Label)
		s.Equal(0, r.ExitCode())
	}
}
