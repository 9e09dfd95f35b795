// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	gridx "github.com/grid-x/serial"
	bugst "go.bug.st/serial"

	"github.com/ffutop/nudam-gateway/internal/config"
)

const (
	readTimeout     = 500 * time.Millisecond
	inputBufferSize = 4096
)

// Port is an open serial line. A Read that finds no data within the read
// timeout returns 0 bytes and a nil error.
type Port interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards received but unread data.
	ResetInputBuffer() error
}

// Lister enumerates the serial ports of the host.
type Lister func() ([]string, error)

// Opener opens the serial line described by cfg.
type Opener func(cfg config.SerialConfig) (Port, error)

// portExists reports whether device is a known serial port. Character
// devices missing from the list (pseudo terminals, udev symlinks) count too.
func portExists(list Lister, device string) bool {
	if device == "" {
		return false
	}
	if list != nil {
		if ports, err := list(); err == nil && slices.Contains(ports, device) {
			return true
		}
	}
	fi, err := os.Stat(device)
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// openPort opens cfg.Device with the configured driver, 8-N-1.
func openPort(cfg config.SerialConfig) (Port, error) {
	switch cfg.Driver {
	case config.DriverRS485:
		return openRS485(cfg)
	case config.DriverNative, "":
		return openNative(cfg)
	default:
		return nil, fmt.Errorf("nudam: unknown serial driver %q", cfg.Driver)
	}
}

func openNative(cfg config.SerialConfig) (Port, error) {
	p, err := bugst.Open(cfg.Device, &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func openRS485(cfg config.SerialConfig) (Port, error) {
	p, err := gridx.Open(&gridx.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readTimeout,
		RS485: gridx.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	})
	if err != nil {
		return nil, err
	}
	return newPumpedPort(p, readTimeout), nil
}

// pumpedPort moves received bytes into a bounded input buffer so that
// pending input can be discarded without waiting for a read timeout, which
// grid-x/serial has no call for.
type pumpedPort struct {
	rwc     io.ReadWriteCloser
	timeout time.Duration
	input   chan byte

	mu  sync.Mutex
	err error // why the pump stopped
}

func newPumpedPort(rwc io.ReadWriteCloser, timeout time.Duration) *pumpedPort {
	p := &pumpedPort{
		rwc:     rwc,
		timeout: timeout,
		input:   make(chan byte, inputBufferSize),
	}
	go p.pump()
	return p
}

func (p *pumpedPort) pump() {
	defer close(p.input)
	var buf [64]byte
	for {
		n, err := p.rwc.Read(buf[:])
		for _, b := range buf[:n] {
			select {
			case p.input <- b:
			default: // overrun, the byte is lost
			}
		}
		if err != nil {
			if errors.Is(err, gridx.ErrTimeout) {
				continue
			}
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
	}
}

func (p *pumpedPort) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case c, ok := <-p.input:
		if !ok {
			return 0, p.stopped()
		}
		b[0] = c
	case <-timer.C:
		return 0, nil
	}
	n := 1
	for n < len(b) {
		select {
		case c, ok := <-p.input:
			if !ok {
				return n, nil
			}
			b[n] = c
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

func (p *pumpedPort) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *pumpedPort) ResetInputBuffer() error {
	for {
		select {
		case _, ok := <-p.input:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (p *pumpedPort) Close() error {
	return p.rwc.Close()
}

func (p *pumpedPort) stopped() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return io.EOF
	}
	return p.err
}
