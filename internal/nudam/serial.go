// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ffutop/nudam-gateway/internal/config"
)

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration.
	config config.SerialConfig
	open   Opener

	// mu serialises exchanges on the bus and guards port.
	mu   sync.Mutex
	port Port
}

// Open opens the serial port. Opening an open port is a no-op.
func (sp *serialPort) Open(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if sp.port != nil {
		return nil
	}
	port, err := sp.open(sp.config)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", sp.config.Device, err)
	}
	sp.port = port
	sp.logf("nudam: opened %s at %d bps", sp.config.Device, sp.config.BaudRate)
	return nil
}

// Close closes the serial port if it is open. An exchange in progress is
// allowed to finish first.
func (sp *serialPort) Close() (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.port != nil {
		err = sp.port.Close()
		sp.port = nil
		sp.logf("nudam: closed %s", sp.config.Device)
	}
	return
}

// WriteAndRead sends command and returns the response frame including its
// end marker. The bus is held for the whole exchange; ctx is only consulted
// before anything is written.
func (sp *serialPort) WriteAndRead(ctx context.Context, command []byte) ([]byte, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.port == nil {
		return nil, ErrPortClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Drop anything left over from an earlier, abandoned exchange
	if err := sp.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("nudam: reset input of %s: %w", sp.config.Device, err)
	}

	sp.logf("nudam: send %q", command)
	if _, err := sp.port.Write(command); err != nil {
		return nil, fmt.Errorf("nudam: write to %s: %w", sp.config.Device, err)
	}

	// Get the response
	var length int
	var data [maxResponseLength + 1]byte
	for {
		n, err := sp.port.Read(data[length:])
		if err != nil {
			if isTimeout(err) {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("nudam: read from %s: %w", sp.config.Device, err)
		}
		if n == 0 {
			sp.logf("nudam: timeout, partial response %q", data[:length])
			return nil, ErrTimeout
		}
		length += n
		if i := bytes.IndexByte(data[:length], packetEnd); i >= 0 {
			sp.logf("nudam: recv %q", data[:i+1])
			return data[:i+1], nil
		}
		if length >= len(data) {
			return nil, fmt.Errorf("%w: no end marker within %d bytes", ErrUnrecognizedResponse, maxResponseLength)
		}
	}
}

func (sp *serialPort) logf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "device", sp.config.Device)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
