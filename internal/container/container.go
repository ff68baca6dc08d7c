package container

import (
	"context"
	"fmt"
	"path/filepath"

	"goqem/adapters/circuitfile"
	"goqem/adapters/excel"
	"goqem/adapters/simulator"
	"goqem/adapters/sqlstore"
	"goqem/adapters/storage"
	"goqem/app"
	"goqem/internal/config"
	"goqem/internal/logging"
	"goqem/internal/rng"
	"goqem/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	RNG       *rng.Source
	Simulator *simulator.Simulator
	Circuits  *circuitfile.Loader
	SQL       *sqlstore.Store

	// Repositories (data access layer)
	Datasets    ports.DatasetStore
	Checkpoints *storage.CheckpointStore
	Metrics     *storage.MetricFile
	History     ports.HistoryReporter

	// Services
	Generation *app.GenerationService
	Training   *app.TrainingService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:    cfg,
		RNG:       rng.New(cfg.Runtime.Seed),
		Simulator: simulator.New(),
		Circuits:  circuitfile.NewLoader(""),
	}
	c.initRepositories()
	c.initServices()
	return c, nil
}

// initRepositories places checkpoints, metrics and history under the log directory
func (c *Container) initRepositories() {
	p := c.Config.Paths
	c.Checkpoints = storage.NewCheckpointStore(c.underLogDir(p.CheckpointFile), c.underLogDir(p.SurrogateFile))
	c.Metrics = storage.NewMetricFile(p.LogDir)
	if p.HistoryFile != "" {
		c.History = excel.NewHistoryWorkbook(c.underLogDir(p.HistoryFile))
	}
	if !sqlstore.IsDSN(p.DatasetStore) {
		c.Datasets = storage.NewDatasetStore(p.DatasetStore)
	}
}

// initServices wires the application services
func (c *Container) initServices() {
	c.Generation = app.NewGenerationService(c.Circuits, c.Simulator, c.RNG)
	c.Training = app.NewTrainingService(c.Circuits, c.Checkpoints, c.History, c.Metrics, c.RNG)
}

// InitWithDatabase connects the dataset store when it names a database
func (c *Container) InitWithDatabase(ctx context.Context) error {
	dsn := c.Config.Paths.DatasetStore
	if !sqlstore.IsDSN(dsn) {
		return nil
	}
	store, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to open dataset database: %w", err)
	}
	c.SQL = store
	c.Datasets = store

	driver, _ := sqlstore.DriverFor(dsn)
	logger := logging.Component("container")
	logger.Info().Str("driver", driver).Msg("dataset database connected")
	return nil
}

func (c *Container) underLogDir(name string) string {
	if filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(c.Config.Paths.LogDir, name)
}

// Close releases the database connection, if any
func (c *Container) Close() error {
	if c.SQL != nil {
		return c.SQL.Close()
	}
	return nil
}
