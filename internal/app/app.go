// Package app opens the shared resources of the tablet tools: the metadata
// catalog and the snapshot object storage.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/arkilian/tablets/internal/config"
	"github.com/arkilian/tablets/internal/manifest"
	"github.com/arkilian/tablets/internal/partition"
	"github.com/arkilian/tablets/internal/storage"
)

// App holds the resources built from a configuration.
type App struct {
	cfg *config.Config

	// Shared resources
	storage storage.ObjectStorage
	catalog *manifest.SQLiteCatalog

	mu     sync.Mutex
	closed bool
}

// New resolves and validates the configuration, creates the data
// directories and opens the storage and the catalog.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{cfg: cfg}
	if err := a.initSharedResources(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// initSharedResources initializes storage and the manifest catalog.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	// Initialize storage
	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		}
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("[INFO] app: storage initialized: type=%s", a.cfg.Storage.Type)

	// Initialize manifest catalog
	opts := manifest.DefaultOptions()
	opts.Partitioning = partition.Options{MaxPartitions: a.cfg.Partitioning.MaxPartitions}
	opts.BusyTimeout = a.cfg.Manifest.BusyTimeout
	a.catalog, err = manifest.NewCatalog(a.cfg.Manifest.Path, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize manifest catalog: %w", err)
	}
	log.Printf("[INFO] app: manifest catalog initialized: %s", a.cfg.Manifest.Path)

	return nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Catalog returns the metadata catalog.
func (a *App) Catalog() *manifest.SQLiteCatalog {
	return a.catalog
}

// Storage returns the snapshot object storage.
func (a *App) Storage() storage.ObjectStorage {
	return a.storage
}

// SnapshotPrefix returns the object path prefix of exported snapshots.
func (a *App) SnapshotPrefix() string {
	return a.cfg.Storage.Prefix
}

// Close releases all shared resources. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	if a.catalog != nil {
		return a.catalog.Close()
	}
	return nil
}
