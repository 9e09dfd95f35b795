// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	packetEnd         = '\r'
	maxResponseLength = 128

	// Leading codes of responses
	codeAckData    = '>' // # commands
	codeAckCommand = '!' // $ and % commands
	codeNack       = '?'

	hexTable = "0123456789ABCDEF"
)

// Checksum returns the NuDAM checksum of b: the sum of all bytes modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// BuildCommand encodes a command frame:
//
//	Leading code : 1 char
//	Address      : 2 hex chars
//	Payload      : 0 up to n chars
//	Checksum     : 2 hex chars, only when checksum is set
//	End          : '\r'
func BuildCommand(leadingCode byte, address byte, payload string, checksum bool) []byte {
	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(payload) + 2 + 1)

	buf.WriteByte(leadingCode)
	writeHex(&buf, address)
	buf.WriteString(payload)
	if checksum {
		writeHex(&buf, Checksum(buf.Bytes()))
	}
	buf.WriteByte(packetEnd)
	return buf.Bytes()
}

// Response is a decoded response frame.
type Response struct {
	Code byte   // leading code, one of '>', '!' or '?'
	Body []byte // everything after the leading code, without checksum and end marker
}

// Address parses the responder address that $ and % commands echo back.
func (r Response) Address() (byte, error) {
	if len(r.Body) < 2 {
		return 0, fmt.Errorf("%w: %q carries no address", ErrUnrecognizedResponse, r.Body)
	}
	return readHex(r.Body)
}

// Payload returns what follows the echoed address.
func (r Response) Payload() []byte {
	if len(r.Body) < 2 {
		return nil
	}
	return r.Body[2:]
}

// ParseResponse splits a raw frame into its leading code and body. A trailing
// end marker is accepted and dropped. When checksum is set the last two hex
// characters are verified against the rest of the frame.
func ParseResponse(raw []byte, checksum bool) (Response, error) {
	raw = bytes.TrimSuffix(raw, []byte{packetEnd})
	if checksum {
		if len(raw) < 3 {
			return Response{}, fmt.Errorf("%w: %q too short for a checksum", ErrUnrecognizedResponse, raw)
		}
		end := len(raw) - 2
		provided, err := readHex(raw[end:])
		if err != nil {
			return Response{}, err
		}
		if calculated := Checksum(raw[:end]); calculated != provided {
			return Response{}, fmt.Errorf("%w: got %02X, calculated %02X", ErrChecksumMismatch, provided, calculated)
		}
		raw = raw[:end]
	}
	if len(raw) == 0 {
		return Response{}, fmt.Errorf("%w: empty frame", ErrUnrecognizedResponse)
	}
	return Response{Code: raw[0], Body: raw[1:]}, nil
}

// writeHex writes the upper case hexadecimal form of v.
func writeHex(buf *bytes.Buffer, v byte) {
	buf.WriteByte(hexTable[v>>4])
	buf.WriteByte(hexTable[v&0x0F])
}

// readHex decodes the first two hex characters of data.
func readHex(data []byte) (byte, error) {
	var dst [1]byte
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: %q is not a hex byte", ErrUnrecognizedResponse, data)
	}
	if _, err := hex.Decode(dst[:], data[0:2]); err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex byte", ErrUnrecognizedResponse, data[0:2])
	}
	return dst[0], nil
}
