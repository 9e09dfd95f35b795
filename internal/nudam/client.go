// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package nudam is a bus master for ADLINK NuDAM-6000 modules speaking the
// NuDAM ASCII protocol over a serial line.
package nudam

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	bugst "go.bug.st/serial"

	"github.com/ffutop/nudam-gateway/internal/config"
)

const (
	// DefaultAddress is the factory address of a NuDAM module.
	DefaultAddress = 1
	// MaxChannelIndex is the highest analog channel of an 8 channel module.
	MaxChannelIndex = 7

	// Length of an engineering units field, e.g. "+100.88".
	engineeringUnitLength = 7
)

type options struct {
	lister Lister
	opener Opener
}

// Option configures a Client.
type Option func(*options)

// WithLister replaces the serial port enumeration used to validate the device.
func WithLister(l Lister) Option {
	return func(o *options) {
		o.lister = l
	}
}

// WithOpener replaces the function that opens the serial line.
func WithOpener(op Opener) Option {
	return func(o *options) {
		o.opener = op
	}
}

// Client is a NuDAM bus master on a single serial line. It is safe for
// concurrent use; exchanges are carried out one at a time.
type Client struct {
	serialPort
	checksum bool
}

// NewClient validates cfg and returns a closed client for it.
func NewClient(cfg config.SerialConfig, opts ...Option) (*Client, error) {
	o := options{
		lister: bugst.GetPortsList,
		opener: openPort,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if !portExists(o.lister, cfg.Device) {
		return nil, fmt.Errorf("%w: %q", ErrPortDoesNotExist, cfg.Device)
	}
	if !BaudRate(cfg.BaudRate).Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBaudRate, cfg.BaudRate)
	}

	return &Client{
		serialPort: serialPort{config: cfg, open: o.opener},
		checksum:   cfg.Checksum,
	}, nil
}

// Device returns the serial device of the bus.
func (c *Client) Device() string {
	return c.config.Device
}

// ValidChannelIndex reports whether ch names an analog channel.
func ValidChannelIndex(ch int) bool {
	return ch >= 0 && ch <= MaxChannelIndex
}

// ReadAllAnalogDataChannels reads every analog channel of the module at
// address (#AAA, NuDAM-6000 User's Guide 6.3.5).
func (c *Client) ReadAllAnalogDataChannels(ctx context.Context, address byte) ([]float64, error) {
	resp, err := c.exchange(ctx, '#', address, "A")
	if err != nil {
		return nil, err
	}
	if err := acknowledged(resp, codeAckData); err != nil {
		return nil, err
	}

	if len(resp.Body)%engineeringUnitLength != 0 {
		return nil, fmt.Errorf("%w: %q is not a list of %d character values", ErrUnrecognizedResponse, resp.Body, engineeringUnitLength)
	}
	values := make([]float64, 0, len(resp.Body)/engineeringUnitLength)
	for i := 0; i < len(resp.Body); i += engineeringUnitLength {
		v, err := parseValue(resp.Body[i : i+engineeringUnitLength])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// ReadAnalogDataFromChannelN reads a single analog channel (#AAN,
// NuDAM-6000 User's Guide 6.3.4). Only the engineering units format is
// understood.
func (c *Client) ReadAnalogDataFromChannelN(ctx context.Context, address byte, channel int) (float64, error) {
	if !ValidChannelIndex(channel) {
		return 0, fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
	}

	resp, err := c.exchange(ctx, '#', address, strconv.Itoa(channel))
	if err != nil {
		return 0, err
	}
	if err := acknowledged(resp, codeAckData); err != nil {
		return 0, err
	}
	return parseValue(resp.Body)
}

// ReadAnalogChannelRange reads count channels starting at first. A single
// channel is read on its own, more than one are taken from a read of all
// channels. values[0] belongs to channel first.
func (c *Client) ReadAnalogChannelRange(ctx context.Context, address byte, first, count int) ([]float64, error) {
	if !ValidChannelIndex(first) || count < 1 || first+count-1 > MaxChannelIndex {
		return nil, fmt.Errorf("%w: %d channel(s) from %d", ErrChannelOutOfRange, count, first)
	}

	if count == 1 {
		v, err := c.ReadAnalogDataFromChannelN(ctx, address, first)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	}

	all, err := c.ReadAllAnalogDataChannels(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(all) < first+count {
		return nil, fmt.Errorf("%w: module reported %d channels, %d needed", ErrUnrecognizedResponse, len(all), first+count)
	}
	values := make([]float64, count)
	copy(values, all[first:first+count])
	return values, nil
}

// ReadModuleName reads the read-only model name of a module ($AAM,
// NuDAM-6000 User's Guide 6.2.3).
func (c *Client) ReadModuleName(ctx context.Context, address byte) (string, error) {
	resp, err := c.exchange(ctx, '$', address, "M")
	if err != nil {
		return "", err
	}

	responder, err := resp.Address()
	if err != nil {
		return "", err
	}
	if responder != address {
		return "", fmt.Errorf("%w: asked %02X, %02X replied", ErrWrongDevice, address, responder)
	}
	if err := acknowledged(resp, codeAckCommand); err != nil {
		return "", err
	}
	return string(resp.Payload()), nil
}

// ReadND601xConfiguration reads the basic configuration of an ND-601x
// module ($AA2, NuDAM-6000 User's Guide 6.2.2).
func (c *Client) ReadND601xConfiguration(ctx context.Context, address byte) (ND601xConfiguration, error) {
	var cfg ND601xConfiguration

	resp, err := c.exchange(ctx, '$', address, "2")
	if err != nil {
		return cfg, err
	}
	if err := acknowledged(resp, codeAckCommand); err != nil {
		return cfg, err
	}
	// AA TT CC FF
	if len(resp.Body) < 8 {
		return cfg, fmt.Errorf("%w: configuration %q too short", ErrUnrecognizedResponse, resp.Body)
	}

	fields := make([]byte, 4)
	for i := range fields {
		if fields[i], err = readHex(resp.Body[2*i:]); err != nil {
			return cfg, err
		}
	}

	cfg.Address = fields[0]
	cfg.InputRange = InputRange(fields[1])
	if !cfg.InputRange.Valid() {
		return cfg, fmt.Errorf("%w: input range %02X", ErrUnrecognizedResponse, fields[1])
	}
	baud, ok := BaudRateFromCode(fields[2])
	if !ok {
		return cfg, fmt.Errorf("%w: baud rate code %02X", ErrUnrecognizedResponse, fields[2])
	}
	cfg.BaudRate = baud
	cfg.DataFormat, cfg.ChecksumEnabled = splitDataFormat(fields[3])
	return cfg, nil
}

// WriteConfiguration sends a new configuration to the module at address
// (%AANNTTCCFF). The module answers from its new address.
func (c *Client) WriteConfiguration(ctx context.Context, address byte, cfg ND601xConfiguration) error {
	baud, ok := cfg.BaudRate.SendCode()
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidBaudRate, cfg.BaudRate)
	}

	var payload bytes.Buffer
	for _, b := range []byte{cfg.Address, byte(cfg.InputRange), baud, cfg.dataFormatByte()} {
		writeHex(&payload, b)
	}

	resp, err := c.exchange(ctx, '%', address, payload.String())
	if err != nil {
		return err
	}
	if err := acknowledged(resp, codeAckCommand); err != nil {
		return err
	}
	responder, err := resp.Address()
	if err != nil {
		return err
	}
	if responder != cfg.Address {
		return fmt.Errorf("%w: expected %02X, %02X replied", ErrWrongDevice, cfg.Address, responder)
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, leadingCode, address byte, payload string) (Response, error) {
	raw, err := c.WriteAndRead(ctx, BuildCommand(leadingCode, address, payload, c.checksum))
	if err != nil {
		return Response{}, err
	}
	return ParseResponse(raw, c.checksum)
}

// acknowledged checks the leading code of resp against ack.
func acknowledged(resp Response, ack byte) error {
	switch resp.Code {
	case ack:
		return nil
	case codeNack:
		return ErrCommandInvalid
	default:
		return fmt.Errorf("%w: leading code %q", ErrUnrecognizedResponse, resp.Code)
	}
}

func parseValue(field []byte) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(field)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUnrecognizedResponse, field)
	}
	return v, nil
}
