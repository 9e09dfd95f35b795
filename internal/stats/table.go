// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package stats

import "sync/atomic"

const (
	// MaxUnits is the number of Modbus unit IDs counters are kept for.
	MaxUnits = 256
)

// Kind is the outcome of a request as reported by the bridge.
type Kind int

const (
	KindValid Kind = iota
	KindInvalid
	KindException

	numKinds = iota
)

func (k Kind) String() string {
	switch k {
	case KindValid:
		return "valid"
	case KindInvalid:
		return "invalid"
	case KindException:
		return "exception"
	}
	return "unknown"
}

// Table holds one counter per unit ID and outcome.
// It uses a flat layout: counts[unit*numKinds+kind].
type Table struct {
	counts []uint64
}

// NewTable creates a new table initialized to zero.
func NewTable() *Table {
	return &Table{counts: make([]uint64, MaxUnits*numKinds)}
}

func index(unit byte, kind Kind) int {
	return int(unit)*numKinds + int(kind)
}

// Add increments a counter and returns its new value.
func (t *Table) Add(unit byte, kind Kind) uint64 {
	return atomic.AddUint64(&t.counts[index(unit, kind)], 1)
}

// Get returns the current value of a counter.
func (t *Table) Get(unit byte, kind Kind) uint64 {
	return atomic.LoadUint64(&t.counts[index(unit, kind)])
}

// Reset zeroes every counter.
func (t *Table) Reset() {
	for i := range t.counts {
		atomic.StoreUint64(&t.counts[i], 0)
	}
}
