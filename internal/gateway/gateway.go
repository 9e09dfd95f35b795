// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ffutop/nudam-gateway/modbus"
	"github.com/ffutop/nudam-gateway/transport"
)

// Gateway represents a single gateway instance.
// It bridges Modbus/TCP upstreams to NuDAM buses, routing on the unit ID.
type Gateway struct {
	Name         string
	Upstreams    []transport.Upstream
	Routes       map[byte]transport.Downstream
	DefaultRoute transport.Downstream
}

// NewGateway creates a new Gateway instance
func NewGateway(name string, upstreams []transport.Upstream, routes map[byte]transport.Downstream, defaultRoute transport.Downstream) *Gateway {
	return &Gateway{
		Name:         name,
		Upstreams:    upstreams,
		Routes:       routes,
		DefaultRoute: defaultRoute,
	}
}

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				if i < 0 || i > 255 {
					return nil, fmt.Errorf("id out of range: %d", i)
				}
				ids = append(ids, byte(i))
			}
		} else {
			// Single
			id, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			if id < 0 || id > 255 {
				return nil, fmt.Errorf("id out of range: %d", id)
			}
			ids = append(ids, byte(id))
		}
	}
	return ids, nil
}

// Start opens every downstream bus, serves the upstreams until ctx is done
// and then shuts down: upstreams first, buses once no request is in flight.
func (g *Gateway) Start(ctx context.Context) error {
	// Connect Downstreams (Unique instances)
	var downstreams []transport.Downstream
	seen := make(map[transport.Downstream]struct{})
	add := func(ds transport.Downstream) {
		if _, ok := seen[ds]; !ok {
			seen[ds] = struct{}{}
			downstreams = append(downstreams, ds)
		}
	}
	for _, ds := range g.Routes {
		add(ds)
	}
	if g.DefaultRoute != nil {
		add(g.DefaultRoute)
	}

	for i, ds := range downstreams {
		if err := ds.Connect(ctx); err != nil {
			for _, opened := range downstreams[:i] {
				opened.Close()
			}
			return fmt.Errorf("gateway %s: %w", g.Name, err)
		}
	}

	// Start Upstreams
	var wg sync.WaitGroup
	for i, us := range g.Upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "gateway", g.Name, "index", idx)
			if err := ups.Start(ctx, g.handleRequest); err != nil {
				slog.Error("Upstream stopped with error", "gateway", g.Name, "index", idx, "err", err)
			}
		}(us, i)
	}

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range g.Upstreams {
		us.Close()
	}
	wg.Wait()
	for _, ds := range downstreams {
		if err := ds.Close(); err != nil {
			slog.Warn("Failed to close downstream", "gateway", g.Name, "err", err)
		}
	}
	slog.Info("Gateway stopped", "gateway", g.Name)
	return nil
}

// handleRequest is the central dispatch function
func (g *Gateway) handleRequest(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	// Route Lookup
	var target transport.Downstream
	if ds, ok := g.Routes[slaveID]; ok {
		target = ds
	} else if g.DefaultRoute != nil {
		target = g.DefaultRoute
	} else {
		slog.Warn("No route found for slave ID", "gateway", g.Name, "slaveID", slaveID)
		return modbus.ProtocolDataUnit{}, modbus.ExceptionCodeGatewayPathUnavailable
	}

	respPdu, err := target.Send(ctx, slaveID, pdu)
	if err != nil {
		slog.Error("Downstream request failed", "gateway", g.Name, "slaveID", slaveID, "func", pdu.FunctionCode, "err", err)
		return modbus.ProtocolDataUnit{}, err
	}

	return respPdu, nil
}
