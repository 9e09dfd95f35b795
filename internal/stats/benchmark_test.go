// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package stats

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/nudam-gateway/internal/bridge"
)

func benchmarkRecorder(b *testing.B, storage Storage) {
	r, err := NewRecorder(storage)
	if err != nil {
		b.Fatalf("Failed to load storage: %v", err)
	}
	defer r.Close()

	a := bridge.Activity{UnitID: 10}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ValidActivity(a)
	}
}

func BenchmarkMemoryStorage_Record(b *testing.B) {
	benchmarkRecorder(b, NewMemoryStorage())
}

func BenchmarkFileStorage_Record(b *testing.B) {
	benchmarkRecorder(b, NewFileStorage(filepath.Join(b.TempDir(), "bench_file.bin")))
}

func BenchmarkMmapStorage_Record(b *testing.B) {
	benchmarkRecorder(b, NewMmapStorage(filepath.Join(b.TempDir(), "bench_mmap.bin")))
}
