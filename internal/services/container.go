package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"rana-image-tool/internal/bufpool"
	"rana-image-tool/internal/config"
	"rana-image-tool/internal/display"
	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/imaging"
	"rana-image-tool/internal/observability"
	"rana-image-tool/internal/pipeline"
	"rana-image-tool/internal/platform/cache"
	"rana-image-tool/internal/platform/database"
	"rana-image-tool/internal/platform/storage"
)

const instrumentationName = "rana-image-tool"

// ErrLedgerDisabled is returned by Runs when DATABASE_URL is not set
var ErrLedgerDisabled = errors.New("run history is disabled: DATABASE_URL is not set")

// Options carries the process-level collaborators the container cannot
// build itself.
type Options struct {
	Logger   *observability.Logger
	Provider *observability.Provider
	Out      io.Writer
	Terminal bool
}

// Container holds all the application dependencies
type Container struct {
	config   *config.Config
	logger   *observability.Logger
	provider *observability.Provider
	out      io.Writer

	theme   display.Theme
	console *display.Console
	pool    *bufpool.Pool
	imaging *imaging.Service
	metrics *observability.PipelineMetrics

	// Optional infrastructure, nil when not configured
	db        *sql.DB
	runs      database.RunRepository
	redis     *cache.RedisClient
	publisher *cache.ProgressPublisher
	archiver  *storage.Archiver

	runner *pipeline.Runner
}

// NewContainer creates a new dependency injection container. The ledger and
// the progress publisher are best effort: when they cannot be reached the
// error is logged and the batch runs without them. An unreachable archive is
// an error.
func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{
		config:   cfg,
		logger:   opts.Logger,
		provider: opts.Provider,
		out:      opts.Out,
	}
	if c.logger == nil {
		c.logger = observability.NewNopLogger()
	}
	if c.out == nil {
		c.out = io.Discard
	}

	if err := c.initializeDisplay(opts.Terminal); err != nil {
		return nil, err
	}
	if err := c.initializeServices(); err != nil {
		return nil, err
	}
	c.initializeLedger(ctx)
	c.initializePublisher()
	if err := c.initializeArchive(ctx); err != nil {
		_ = c.Close() //nolint:errcheck // Cleanup in error path
		return nil, err
	}
	c.initializeRunner()

	c.logger.Debug(ctx).
		Bool("ledger", c.runs != nil).
		Bool("publisher", c.publisher != nil).
		Bool("archive", c.archiver != nil).
		Int("workers", c.runner.Options().Workers).
		Msg("Dependency container initialized")
	return c, nil
}

func (c *Container) initializeDisplay(terminal bool) error {
	mode, err := display.ParseColorMode(c.config.Display.ColorMode)
	if err != nil {
		return err
	}
	theme, err := display.NewTheme(mode, c.config.Display.AccentColor, terminal)
	if err != nil {
		return err
	}
	c.theme = theme
	c.console = display.NewConsole(c.out, theme)
	return nil
}

func (c *Container) initializeServices() error {
	c.pool = bufpool.New(int(c.config.Pipeline.BufferRetain))
	c.imaging = imaging.NewService(
		imaging.NewProcessor(c.config.Pipeline.JPEGQuality),
		c.pool,
		c.tracer(instrumentationName+"/imaging"),
	)

	metrics, err := observability.NewPipelineMetrics(c.meter())
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	c.metrics = metrics
	return nil
}

func (c *Container) initializeLedger(ctx context.Context) {
	if c.config.DatabaseURL == "" {
		return
	}

	db, err := database.NewConnection(ctx, c.config.DatabaseURL)
	if err != nil {
		c.logger.Error(ctx).Err(err).Msg("Run history unavailable")
		return
	}

	applied, err := database.RunMigrations(ctx, db)
	if err != nil {
		c.logger.Error(ctx).Err(err).Msg("Run history migrations failed")
		_ = db.Close() //nolint:errcheck // Connection cleanup in error path
		return
	}
	if len(applied) > 0 {
		c.logger.Info(ctx).Strs("versions", applied).Msg("Applied run history migrations")
	}

	c.db = db
	c.runs = database.NewRunRepository(db)
}

func (c *Container) initializePublisher() {
	cfg := c.config.Cache
	if !cfg.Enabled {
		return
	}

	client, err := cache.NewRedisClient(cfg)
	if err != nil {
		c.logger.Error(context.Background()).Err(err).
			Str("address", cfg.Address).
			Msg("Progress publisher unavailable")
		return
	}
	c.redis = client
	c.publisher = cache.NewProgressPublisher(client, cfg.Channel, cfg.SummaryTTL, c.logger)
}

func (c *Container) initializeArchive(ctx context.Context) error {
	if !c.config.Storage.ArchiveEnabled {
		return nil
	}

	archiver, err := storage.NewArchiver(ctx, c.config.Storage, c.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to archive storage: %w", err)
	}
	c.archiver = archiver
	return nil
}

func (c *Container) initializeRunner() {
	sinks := batch.MultiSink{c.console}
	if c.publisher != nil {
		sinks = append(sinks, c.publisher)
	}

	options := []pipeline.Option{
		pipeline.WithProgress(sinks),
		pipeline.WithAnnouncer(c.console),
		pipeline.WithMetrics(c.metrics),
		pipeline.WithTracer(c.tracer(instrumentationName + "/pipeline")),
	}
	if c.runs != nil {
		options = append(options, pipeline.WithRecorder(c.runs))
	}
	if c.archiver != nil {
		options = append(options, pipeline.WithArchiver(c.archiver))
	}

	c.runner = pipeline.New(c.pool, c.logger, pipeline.Options{
		Workers:     c.config.Pipeline.Workers,
		LoadQueue:   c.config.Pipeline.LoadQueue,
		CommitQueue: c.config.Pipeline.CommitQueue,
	}, options...)
}

func (c *Container) tracer(name string) trace.Tracer {
	if c.provider != nil {
		return c.provider.Tracer(name)
	}
	return otel.Tracer(name)
}

func (c *Container) meter() metric.Meter {
	if c.provider != nil {
		return c.provider.Meter(instrumentationName)
	}
	return otel.Meter(instrumentationName)
}

// Getters for accessing services

func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) Logger() *observability.Logger {
	return c.logger
}

func (c *Container) Out() io.Writer {
	return c.out
}

func (c *Container) Theme() display.Theme {
	return c.theme
}

func (c *Container) Runner() *pipeline.Runner {
	return c.runner
}

func (c *Container) Imaging() *imaging.Service {
	return c.imaging
}

func (c *Container) Pool() *bufpool.Pool {
	return c.pool
}

// Runs returns the run ledger, or ErrLedgerDisabled.
func (c *Container) Runs() (database.RunRepository, error) {
	if c.runs == nil {
		if c.config.DatabaseURL == "" {
			return nil, ErrLedgerDisabled
		}
		return nil, errors.New("run history is unavailable: database could not be reached")
	}
	return c.runs, nil
}

func (c *Container) Archiver() *storage.Archiver {
	return c.archiver
}

func (c *Container) Publisher() *cache.ProgressPublisher {
	return c.publisher
}

// Close cleans up resources
func (c *Container) Close() error {
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
		c.db = nil
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
		c.redis = nil
	}
	return errors.Join(errs...)
}
