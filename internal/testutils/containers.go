package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	minioClient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	redisModule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"rana-image-tool/internal/config"
	"rana-image-tool/internal/platform/cache"
	"rana-image-tool/internal/platform/database"
)

// TestBucket is the archive bucket created in the MinIO container
const TestBucket = "test-originals"

// TestChannel is the progress channel used against the Valkey container
const TestChannel = "ranaimg-test:progress"

// TestContainers manages test containers for integration testing
type TestContainers struct {
	PostgresContainer testcontainers.Container
	MinioContainer    testcontainers.Container
	RedisContainer    testcontainers.Container
	DB                *sql.DB
	MinioClient       *minioClient.Client
	RedisClient       *cache.RedisClient
	DatabaseURL       string
	MinioEndpoint     string
	MinioUsername     string
	MinioPassword     string
	RedisEndpoint     string
}

func newTestContainers() *TestContainers {
	return &TestContainers{
		MinioUsername: "testuser",
		MinioPassword: "testpass123",
	}
}

// SetupTestContainers starts Postgres, MinIO and Valkey and migrates the
// ledger schema.
func SetupTestContainers(ctx context.Context) (*TestContainers, error) {
	containers := newTestContainers()

	if err := containers.setupPostgres(ctx); err != nil {
		containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup postgres container: %w", err)
	}

	if err := containers.setupMinio(ctx); err != nil {
		containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup minio container: %w", err)
	}

	if err := containers.setupRedis(ctx); err != nil {
		containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup redis container: %w", err)
	}

	return containers, nil
}

// SetupPostgres starts only the ledger database.
func SetupPostgres(ctx context.Context) (*TestContainers, error) {
	containers := newTestContainers()
	if err := containers.setupPostgres(ctx); err != nil {
		containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup postgres container: %w", err)
	}
	return containers, nil
}

// SetupMinio starts only the archive object store.
func SetupMinio(ctx context.Context) (*TestContainers, error) {
	containers := newTestContainers()
	if err := containers.setupMinio(ctx); err != nil {
		containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup minio container: %w", err)
	}
	return containers, nil
}

// SetupRedis starts only the Valkey server.
func SetupRedis(ctx context.Context) (*TestContainers, error) {
	containers := newTestContainers()
	if err := containers.setupRedis(ctx); err != nil {
		containers.Cleanup(ctx)
		return nil, fmt.Errorf("failed to setup redis container: %w", err)
	}
	return containers, nil
}

// setupPostgres creates and starts a PostgreSQL test container
func (tc *TestContainers) setupPostgres(ctx context.Context) error {
	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.WithSQLDriver("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}

	tc.PostgresContainer = postgresContainer

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	tc.DatabaseURL = connStr

	// The server may still be restarting after initdb
	var db *sql.DB
	for i := 0; i < 10; i++ {
		db, err = database.NewConnection(ctx, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to postgres after retries: %w", err)
	}

	tc.DB = db

	if _, err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// setupMinio creates and starts a MinIO test container
func (tc *TestContainers) setupMinio(ctx context.Context) error {
	minioContainer, err := minio.Run(ctx,
		"minio/minio:latest",
		minio.WithUsername(tc.MinioUsername),
		minio.WithPassword(tc.MinioPassword),
	)
	if err != nil {
		return fmt.Errorf("failed to start minio container: %w", err)
	}

	tc.MinioContainer = minioContainer

	endpoint, err := minioContainer.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to get minio endpoint: %w", err)
	}

	tc.MinioEndpoint = endpoint

	client, err := minioClient.New(endpoint, &minioClient.Options{
		Creds:  credentials.NewStaticV4(tc.MinioUsername, tc.MinioPassword, ""),
		Secure: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create minio client: %w", err)
	}

	tc.MinioClient = client
	return nil
}

// setupRedis creates and starts a Valkey test container (Redis-compatible)
func (tc *TestContainers) setupRedis(ctx context.Context) error {
	redisContainer, err := redisModule.Run(ctx,
		"valkey/valkey:7-alpine",
		redisModule.WithLogLevel(redisModule.LogLevelVerbose),
	)
	if err != nil {
		return fmt.Errorf("failed to start valkey container: %w", err)
	}

	tc.RedisContainer = redisContainer

	// host:port, which is what go-redis expects in Options.Addr
	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get valkey endpoint: %w", err)
	}

	tc.RedisEndpoint = endpoint

	redisClient, err := cache.NewRedisClient(tc.CacheConfig())
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}

	tc.RedisClient = redisClient

	if err := tc.RedisClient.Health(ctx); err != nil {
		return fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return nil
}

// StorageConfig returns an archive configuration pointing at the MinIO
// container.
func (tc *TestContainers) StorageConfig() config.StorageConfig {
	return config.StorageConfig{
		ArchiveEnabled:  true,
		Endpoint:        tc.MinioEndpoint,
		AccessKeyID:     tc.MinioUsername,
		SecretAccessKey: tc.MinioPassword,
		UseSSL:          false,
		BucketName:      TestBucket,
		Region:          "us-east-1",
		KeyPrefix:       "archive",
	}
}

// CacheConfig returns a publisher configuration pointing at the Valkey
// container.
func (tc *TestContainers) CacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Address:     tc.RedisEndpoint,
		Channel:     TestChannel,
		SummaryTTL:  time.Hour,
		DialTimeout: 5 * time.Second,
		PoolSize:    4,
	}
}

// Cleanup terminates all test containers and closes connections
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	if tc.DB != nil {
		if err := tc.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if tc.PostgresContainer != nil {
		if err := tc.PostgresContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate postgres container: %w", err))
		}
	}

	if tc.MinioContainer != nil {
		if err := tc.MinioContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate minio container: %w", err))
		}
	}

	if tc.RedisClient != nil {
		if err := tc.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close valkey client: %w", err))
		}
	}

	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate valkey container: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	return nil
}

// ResetDatabase clears all ledger rows
func (tc *TestContainers) ResetDatabase(ctx context.Context) error {
	// Children first
	tables := []string{
		"batch_failures",
		"batch_runs",
	}

	tx, err := tc.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}
	return nil
}

// ListObjects returns every key stored in a bucket
func (tc *TestContainers) ListObjects(ctx context.Context, bucketName string) ([]string, error) {
	var keys []string
	for object := range tc.MinioClient.ListObjects(ctx, bucketName, minioClient.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// CleanBucket removes all objects from a test bucket
func (tc *TestContainers) CleanBucket(ctx context.Context, bucketName string) error {
	keys, err := tc.ListObjects(ctx, bucketName)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := tc.MinioClient.RemoveObject(ctx, bucketName, key, minioClient.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
	}
	return nil
}

// FlushRedis clears all data from the Valkey test database
func (tc *TestContainers) FlushRedis(ctx context.Context) error {
	if tc.RedisClient == nil {
		return fmt.Errorf("valkey client not available")
	}

	return tc.RedisClient.FlushCache(ctx)
}
