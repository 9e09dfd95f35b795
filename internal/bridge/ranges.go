// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bridge

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrAddressOutOfRange is returned for a register address that maps to no
	// analog channel.
	ErrAddressOutOfRange = errors.New("bridge: register address out of range")
	// ErrNotSupported is returned for register ranges the bridge does not serve.
	ErrNotSupported = errors.New("bridge: register range not supported")
)

// Encoding is the register representation of the analog values of a range.
type Encoding int

const (
	// EncodingScaled stores round(value * Scale) in one 16 bit register.
	EncodingScaled Encoding = iota
	// EncodingFloat32 stores an IEEE 754 single in two registers.
	EncodingFloat32
)

// Range is a block of input registers starting with analog channel 0 at Base.
type Range struct {
	Base     uint16
	Encoding Encoding
	Scale    float64
}

// DefaultRanges is the input register map, ordered by Base:
//
//	 0 ..  7  channel 0-7, value x1
//	10 .. 17  channel 0-7, value x10
//	20 .. 27  channel 0-7, value x100
//	50 ..     channel 0-7, float32 (not supported)
var DefaultRanges = []Range{
	{Base: 0, Encoding: EncodingScaled, Scale: 1},
	{Base: 10, Encoding: EncodingScaled, Scale: 10},
	{Base: 20, Encoding: EncodingScaled, Scale: 100},
	{Base: 50, Encoding: EncodingFloat32},
}

// Mapper resolves input register addresses to analog channels.
type Mapper struct {
	// Ranges ordered by ascending Base. DefaultRanges when empty.
	Ranges []Range

	// InclusiveBoundary picks the range whose Base is at most start+1, as
	// earlier releases did. The register just below a Base then resolves to
	// channel -1 of the next range.
	InclusiveBoundary bool
}

func (m Mapper) ranges() []Range {
	if len(m.Ranges) == 0 {
		return DefaultRanges
	}
	return m.Ranges
}

// ResolveRange returns the range the starting address belongs to. Only the
// starting address is considered; a read running past the end of its range
// is left for the channel check to reject.
func (m Mapper) ResolveRange(start uint16) (Range, error) {
	limit := uint32(start)
	if m.InclusiveBoundary {
		limit++
	}
	ranges := m.ranges()
	for i := len(ranges) - 1; i >= 0; i-- {
		if uint32(ranges[i].Base) <= limit {
			return ranges[i], nil
		}
	}
	return Range{}, fmt.Errorf("%w: %d", ErrAddressOutOfRange, start)
}

// ChannelIndexWithinRange returns the analog channel of start within r.
func ChannelIndexWithinRange(start uint16, r Range) int {
	return int(start) - int(r.Base)
}

// Resolve returns the range and the first analog channel of start.
func (m Mapper) Resolve(start uint16) (Range, int, error) {
	r, err := m.ResolveRange(start)
	if err != nil {
		return r, 0, err
	}
	ch := ChannelIndexWithinRange(start, r)
	if ch < 0 {
		return r, ch, fmt.Errorf("%w: %d resolves to channel %d", ErrAddressOutOfRange, start, ch)
	}
	return r, ch, nil
}

// Encode converts an analog value into its register value. Scaled values
// are rounded half to even; negative results are stored in two's complement
// and results outside the 16 bit range saturate.
func (r Range) Encode(v float64) (uint16, error) {
	if r.Encoding != EncodingScaled {
		return 0, fmt.Errorf("%w: registers from %d", ErrNotSupported, r.Base)
	}

	x := math.RoundToEven(v * r.Scale)
	switch {
	case math.IsNaN(x):
		return 0, nil
	case x < math.MinInt16:
		return uint16(0x8000), nil
	case x < 0:
		return uint16(int16(x)), nil
	case x > math.MaxUint16:
		return math.MaxUint16, nil
	default:
		return uint16(x), nil
	}
}
