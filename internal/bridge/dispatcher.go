// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package bridge maps Modbus register requests onto NuDAM analog channel
// reads.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ffutop/nudam-gateway/internal/nudam"
	"github.com/ffutop/nudam-gateway/internal/slave"
	"github.com/ffutop/nudam-gateway/modbus"
)

// BusClient reads analog channels from NuDAM modules. *nudam.Client
// implements it.
type BusClient interface {
	ReadAnalogChannelRange(ctx context.Context, address byte, first, count int) ([]float64, error)
}

// Dispatcher serves Modbus register requests from a NuDAM bus. The unit ID
// of a request is the address of the module it is forwarded to. Only input
// registers are served.
type Dispatcher struct {
	client   BusClient
	mapper   Mapper
	observer Observer
}

var _ slave.Storage = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. observer may be nil.
func NewDispatcher(client BusClient, mapper Mapper, observer Observer) *Dispatcher {
	if observer == nil {
		observer = Observers(nil)
	}
	return &Dispatcher{
		client:   client,
		mapper:   mapper,
		observer: observer,
	}
}

// InputRegisters reads analog channels into req.Points.
func (d *Dispatcher) InputRegisters(ctx context.Context, req *slave.RegisterRequest) error {
	if req.Op == slave.OpWrite {
		// Input registers are read-only; no function code writes them.
		panic("bridge: write request for input registers")
	}
	a := activity(req.UnitID, req.Op, RegisterInput, req.Address, len(req.Points))

	err := d.readInputRegisters(ctx, req)
	switch {
	case err == nil:
		d.observer.ValidActivity(a)
		return nil
	case errors.Is(err, ErrAddressOutOfRange), errors.Is(err, nudam.ErrChannelOutOfRange):
		d.observer.InvalidActivity(a)
		return modbus.ExceptionCodeIllegalDataAddress
	case errors.Is(err, ErrNotSupported):
		d.observer.Exception(a, err)
		return modbus.ExceptionCodeIllegalFunction
	default:
		d.observer.Exception(a, err)
		return modbus.ExceptionCodeServerDeviceFailure
	}
}

func (d *Dispatcher) readInputRegisters(ctx context.Context, req *slave.RegisterRequest) error {
	r, channel, err := d.mapper.Resolve(req.Address)
	if err != nil {
		return err
	}
	if r.Encoding != EncodingScaled {
		return ErrNotSupported
	}

	values, err := d.client.ReadAnalogChannelRange(ctx, req.UnitID, channel, len(req.Points))
	if err != nil {
		return err
	}
	if len(values) != len(req.Points) {
		return fmt.Errorf("%w: %d values for %d registers", nudam.ErrUnrecognizedResponse, len(values), len(req.Points))
	}
	for i, v := range values {
		if req.Points[i], err = r.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// Coils rejects every coil access.
func (d *Dispatcher) Coils(ctx context.Context, req *slave.BitRequest) error {
	return d.reject(activity(req.UnitID, req.Op, RegisterDiscreteCoil, req.Address, len(req.Points)))
}

// DiscreteInputs rejects every discrete input access.
func (d *Dispatcher) DiscreteInputs(ctx context.Context, req *slave.BitRequest) error {
	return d.reject(activity(req.UnitID, req.Op, RegisterDiscreteInput, req.Address, len(req.Points)))
}

// HoldingRegisters rejects every holding register access.
func (d *Dispatcher) HoldingRegisters(ctx context.Context, req *slave.RegisterRequest) error {
	return d.reject(activity(req.UnitID, req.Op, RegisterHolding, req.Address, len(req.Points)))
}

func (d *Dispatcher) reject(a Activity) error {
	d.observer.InvalidActivity(a)
	return modbus.ExceptionCodeIllegalFunction
}

func activity(unitID byte, op slave.Op, register RegisterKind, address uint16, count int) Activity {
	request := RequestRead
	if op == slave.OpWrite {
		request = RequestWrite
	}
	return Activity{
		UnitID:        unitID,
		Request:       request,
		Register:      register,
		FirstRegister: address,
		Count:         count,
	}
}
