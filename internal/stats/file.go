// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package stats

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"unsafe"
)

// FileStorage keeps the counter table in a regular file.
//
// Layout: 256 rows of {valid, invalid, exception}, each a uint64 in host
// byte order. Total Size: 6144 bytes
type FileStorage struct {
	path string
	file *os.File
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the table from the file, creating the file if necessary.
func (fs *FileStorage) Load() (*Table, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	t := NewTable()
	data := unsafe.Slice((*byte)(unsafe.Pointer(&t.counts[0])), totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f
	return t, nil
}

// Save writes every row and syncs the file to disk.
func (fs *FileStorage) Save(t *Table) error {
	if fs.file == nil {
		return nil
	}
	var row [rowSize]byte
	for unit := 0; unit < MaxUnits; unit++ {
		t.encodeRow(byte(unit), &row)
		if _, err := fs.file.WriteAt(row[:], int64(unit*rowSize)); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// OnWrite writes the row of unit. The file is synced by Save.
func (fs *FileStorage) OnWrite(t *Table, unit byte) {
	if fs.file == nil {
		return
	}
	var row [rowSize]byte
	t.encodeRow(unit, &row)
	if _, err := fs.file.WriteAt(row[:], int64(int(unit)*rowSize)); err != nil {
		slog.Error("Failed to write counters", "unit", unit, "err", err)
	}
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
