// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package nudam exposes a NuDAM bus as a gateway downstream. Requests are
// answered in process: the PDU is decoded by a Modbus slave whose input
// registers are backed by the analog channels of the modules on the bus.
package nudam

import (
	"context"
	"log/slog"

	"github.com/ffutop/nudam-gateway/internal/bridge"
	"github.com/ffutop/nudam-gateway/internal/config"
	"github.com/ffutop/nudam-gateway/internal/nudam"
	"github.com/ffutop/nudam-gateway/internal/slave"
	"github.com/ffutop/nudam-gateway/modbus"
)

// Client implements the Downstream interface for a NuDAM bus.
type Client struct {
	name  string
	bus   *nudam.Client
	slave *slave.Slave
}

// NewClient creates a downstream for cfg. The serial line is opened by
// Connect.
func NewClient(cfg config.DownstreamConfig, observer bridge.Observer, opts ...nudam.Option) (*Client, error) {
	bus, err := nudam.NewClient(cfg.Serial, opts...)
	if err != nil {
		return nil, err
	}

	mapper := bridge.Mapper{InclusiveBoundary: cfg.LegacyRangeBoundary}
	if cfg.LegacyRangeBoundary {
		slog.Info("Resolving input register ranges with the legacy boundary", "bus", cfg.Name)
	}
	d := bridge.NewDispatcher(bus, mapper, observer)

	return &Client{
		name:  cfg.Name,
		bus:   bus,
		slave: slave.NewSlave(d),
	}, nil
}

// Send answers the PDU from the modules on the bus. slaveID is the NuDAM
// module address.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return c.slave.Process(ctx, slaveID, pdu)
}

// Connect opens the serial line.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.bus.Open(ctx); err != nil {
		return err
	}
	slog.Info("NuDAM bus ready", "bus", c.name, "device", c.bus.Device())
	return nil
}

// Close closes the serial line once the exchange in flight, if any, is done.
func (c *Client) Close() error {
	return c.bus.Close()
}
