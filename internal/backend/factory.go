package backend

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"nasiya/internal/adapters"
	"nasiya/internal/amqp"
	"nasiya/internal/auth"
	"nasiya/internal/profile/memory"
	"nasiya/internal/profile/remote"
	"nasiya/internal/seed"
	"nasiya/internal/services"
	"nasiya/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(ctx, config)
	case RemoteBackend:
		// the remote API authenticates the forwarded token itself
		return f.createRemoteBackend(config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.RequireAuth {
		res.Backend = auth.Guard(res.Backend)
		f.logger.Info("Local backend requires authentication", "backend", config.Type)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	data, err := seed.Load(filepath.Join(config.DataDirectory, seed.FileName))
	if err != nil {
		sqliteRepo.Close()
		return nil, fmt.Errorf("load seed data: %w", err)
	}
	seeded, err := sqliteRepo.SeedIfEmpty(ctx, data)
	if err != nil {
		sqliteRepo.Close()
		return nil, fmt.Errorf("seed database: %w", err)
	}
	if seeded {
		f.logger.Info("Seeded empty database", "debtors", len(data.Debtors))
	}

	// AMQP is optional; without it payments stay pending for the worker sweep.
	var publisher services.EventPublisher
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	debtorService := services.NewDebtorService(sqliteRepo, publisher)
	adapter := adapters.NewSQLiteAdapter(sqliteRepo, debtorService)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Backend: adapter,
		Cleanup: adapter.Close,
		Ready:   adapter.Ping,
	}, nil
}

func (f *DefaultFactory) createRemoteBackend(config Config) (*BackendResult, error) {
	cli, err := remote.New(config.ProfileAPIURL, config.ProfileAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile API client: %w", err)
	}

	f.logger.Info("Initialized remote backend", "base_url", config.ProfileAPIURL)

	return &BackendResult{
		Backend: cli,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.NewFromFiles(config.DataDirectory)

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{
		Backend: store,
	}, nil
}
