package engine

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/novapool/internal"
	"github.com/tuannm99/novapool/internal/bufferpool"
	"github.com/tuannm99/novapool/internal/storage"
)

// Engine owns a backing store and the buffer pool in front of it.
type Engine struct {
	Config *internal.NovaPoolConfig
	Disk   storage.DiskManager
	Pool   *bufferpool.Pool
}

// Open builds the disk manager and pool described by cfg.
func Open(cfg *internal.NovaPoolConfig, logger *slog.Logger) (*Engine, error) {
	mode, err := cfg.StorageMode()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.PoolOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger

	disk, err := storage.NewDiskManager(mode, cfg.Storage.Workdir, cfg.Storage.Base)
	if err != nil {
		return nil, err
	}

	pool, err := bufferpool.NewPool(disk, opts)
	if err != nil {
		_ = disk.Close()
		return nil, err
	}

	if logger != nil {
		logger.Info("engine: opened",
			"mode", mode.String(),
			"workdir", cfg.Storage.Workdir,
			"capacity", opts.Capacity,
			"policy", string(opts.Policy))
	}
	return &Engine{Config: cfg, Disk: disk, Pool: pool}, nil
}

// Close flushes the pool and then closes the disk manager. If the pool cannot
// be flushed the disk manager is left open so no dirty page is lost.
func (e *Engine) Close() error {
	if err := e.Pool.Close(); err != nil {
		return fmt.Errorf("engine: close pool: %w", err)
	}
	if err := e.Disk.Close(); err != nil {
		return fmt.Errorf("engine: close disk: %w", err)
	}
	return nil
}
