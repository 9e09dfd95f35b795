// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/ffutop/nudam-gateway/modbus"
)

// RequestHandler handles one Modbus request/response cycle. Upstreams strip
// their framing and hand over the unit identifier and the PDU; an error
// that is not a modbus.ExceptionCode is answered with a device failure.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Upstream represents a source of requests (A Modbus Master connected to us).
// It acts as a Server.
type Upstream interface {
	// Start starts the server and blocks until ctx is done.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}

// Downstream represents a destination for requests, a NuDAM bus here.
type Downstream interface {
	// Send sends a PDU to a specific SlaveID and returns the response PDU.
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Connect(ctx context.Context) error
	Close() error
}
