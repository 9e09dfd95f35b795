// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package stats

import (
	"encoding/binary"
	"unsafe"
)

const (
	counterSize = 8
	rowSize     = numKinds * counterSize
	totalSize   = MaxUnits * rowSize
)

// mapBytesToTable constructs a Table backed by the provided data slice.
// data must be 8-byte aligned and at least totalSize long. Counters are
// stored in the host's byte order, so a persisted table does not move
// between architectures of different endianness.
func mapBytesToTable(data []byte) *Table {
	return &Table{counts: unsafe.Slice((*uint64)(unsafe.Pointer(&data[0])), totalSize/counterSize)}
}

// encodeRow snapshots the counters of one unit in the persisted layout.
func (t *Table) encodeRow(unit byte, buf *[rowSize]byte) {
	for k := Kind(0); k < numKinds; k++ {
		binary.NativeEndian.PutUint64(buf[int(k)*counterSize:], t.Get(unit, k))
	}
}
