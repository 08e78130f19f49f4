// Package daypack backs up a directory tree to remote object storage in
// fixed-size batches: files are enumerated deterministically, packed into
// checksummed archives, uploaded idempotently, and recorded in a per-day
// manifest so any subset can be restored without downloading the whole
// backup.
package daypack

import (
	"context"
	"fmt"

	"github.com/daypack/daypack/internal/backup"
	"github.com/daypack/daypack/internal/config"
	"github.com/daypack/daypack/internal/manifest"
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/restore"
	"github.com/daypack/daypack/internal/scan"
	"github.com/daypack/daypack/internal/types"
	"github.com/daypack/daypack/internal/upload"
)

// Re-export commonly used types for convenience
type (
	Config         = config.Config
	Runner         = backup.Runner
	RunResult      = backup.RunResult
	RunStatus      = backup.Status
	Restorer       = restore.Restorer
	RestoreOptions = restore.Options
	RestoreResult  = restore.Result
	DayManifest    = manifest.DayManifest
	ManifestEntry  = manifest.Entry
	ManifestStore  = manifest.Store
	FileRecord     = scan.FileRecord
	ObjectStore    = objstore.Store
	UploadPolicy   = upload.Policy
	KeyLayout      = types.KeyLayout
	Logger         = types.Logger
)

// Re-export constants
const (
	BATCH_SIZE     = types.BATCH_SIZE
	MANIFEST_FILE  = types.MANIFEST_FILE
	SCHEMA_VERSION = types.SCHEMA_VERSION

	StatusSuccess = backup.StatusSuccess
	StatusPartial = backup.StatusPartial
	StatusFailed  = backup.StatusFailed
)

// DayKey returns the canonical day key for a time, e.g. 20260830.
var DayKey = backup.DayKey

// OpenStore builds the remote object store selected by cfg.
func OpenStore(cfg *Config) (ObjectStore, error) {
	switch cfg.Store.Type {
	case "fs":
		return objstore.NewFSStore(cfg.Store.Dir)
	case "s3":
		return objstore.NewS3Store(objstore.S3Config{
			Bucket:    cfg.Store.S3.Bucket,
			Region:    cfg.Store.S3.Region,
			Endpoint:  cfg.Store.S3.Endpoint,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			PathStyle: cfg.Store.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}

// NewRunner creates a backup runner from configuration.
func NewRunner(cfg *Config, opts ...Option) (*Runner, error) {
	o := applyOptions(opts)

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	rc := backup.DefaultConfig(cfg.Staging.Dir)
	rc.BatchSize = cfg.Backup.BatchSize
	rc.Concurrency = cfg.Backup.Concurrency
	rc.Format = cfg.Backup.Format
	rc.Keys = types.KeyLayout{Prefix: cfg.Backup.Prefix}
	rc.KeepStagingDays = cfg.Staging.KeepDays
	rc.Retry = upload.Policy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		MaxDelay: cfg.Retry.MaxDelay,
	}
	if o.logger != nil {
		rc.Logger = o.logger
	}

	return backup.NewRunner(store, rc)
}

// NewRestorer creates a restorer from configuration.
func NewRestorer(cfg *Config, opts ...Option) (*Restorer, error) {
	o := applyOptions(opts)

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	return restore.NewRestorer(store, types.KeyLayout{Prefix: cfg.Backup.Prefix}, cfg.Backup.Format, o.logger)
}

// BackupDay is the high-level single entry point: run one day-run of cfg's
// source directory against the configured store.
func BackupDay(ctx context.Context, cfg *Config, dayKey string, opts ...Option) (*RunResult, error) {
	runner, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return runner.RunDay(ctx, cfg.Source, dayKey)
}

// LoadConfig reads configuration from path with environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.Default()
}
