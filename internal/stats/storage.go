// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package stats

import (
	"log/slog"

	"github.com/ffutop/nudam-gateway/internal/config"
)

// Storage defines the interface for persisting the counter table.
type Storage interface {
	// Load loads the table from storage, creating an empty one if no data
	// exists yet.
	Load() (*Table, error)

	// Save writes the whole table through to storage.
	Save(t *Table) error

	// OnWrite is a hook called whenever a counter of unit is modified.
	OnWrite(t *Table, unit byte)

	Close() error
}

// NewStorage returns the storage selected by cfg.
func NewStorage(cfg config.PersistenceConfig) Storage {
	switch cfg.Type {
	case "file":
		slog.Info("Keeping diagnostic counters in a file", "path", cfg.Path)
		return NewFileStorage(cfg.Path)
	case "mmap":
		slog.Info("Keeping diagnostic counters in a memory mapped file", "path", cfg.Path)
		return NewMmapStorage(cfg.Path)
	default:
		slog.Info("Keeping diagnostic counters in memory (non-persistent)")
		return NewMemoryStorage()
	}
}
