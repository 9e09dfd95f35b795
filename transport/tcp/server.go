// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/nudam-gateway/modbus"
	"github.com/ffutop/nudam-gateway/transport"
)

const (
	mbapHeaderSize = 7
	modbusProtocol = 0
)

// Server implements a Modbus TCP Server.
type Server struct {
	Address string
	Handler transport.RequestHandler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
	ready    chan struct{}
}

// NewServer creates a new TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
		conns:   make(map[net.Conn]struct{}),
		ready:   make(chan struct{}),
	}
}

// Start starts the TCP server. It returns once ctx is done and every
// connection handler has finished.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	s.Handler = handler
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)
	slog.Info("Modbus TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	defer s.wg.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Check if closed
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Addr returns the listening address once the server is up, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Close closes the listener and every client connection. Requests already
// handed to the handler run to completion.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *Server) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.forget(conn)
	slog.Info("New TCP client connected", "addr", conn.RemoteAddr())

	for {
		// Check context
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := readFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("TCP client disconnected gracefully", "addr", conn.RemoteAddr())
			} else if !errors.Is(err, net.ErrClosed) {
				slog.Error("Failed to read from connection", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		adu, err := Decode(raw)
		if err != nil {
			slog.Error("Failed to decode TCP request", "err", err)
			continue
		}
		if adu.ProtocolID != modbusProtocol {
			slog.Warn("Dropping frame of unknown protocol", "addr", conn.RemoteAddr(), "protocol", adu.ProtocolID)
			continue
		}

		if s.Handler == nil {
			slog.Error("No handler defined for TCP server")
			return
		}

		respPdu, err := s.Handler(ctx, adu.SlaveID, adu.Pdu)
		if err != nil {
			code := modbus.AsExceptionCode(err)
			slog.Debug("Handler failed, answering with exception", "slaveID", adu.SlaveID, "code", uint8(code), "err", err)
			respPdu = modbus.NewExceptionPDU(adu.Pdu.FunctionCode, code)
		}

		// Construct Response ADU
		respAdu := &ApplicationDataUnit{
			TransactionID: adu.TransactionID,
			ProtocolID:    adu.ProtocolID,
			Length:        uint16(1 + 1 + len(respPdu.Data)), // SlaveID + FunctionCode + Data
			SlaveID:       adu.SlaveID,
			Pdu:           respPdu,
		}

		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode TCP response", "err", err)
			continue
		}

		if _, err = conn.Write(respRaw); err != nil {
			slog.Error("Failed to write response to connection", "err", err)
			return
		}
	}
}

// readFrame reads one MBAP framed request.
func readFrame(r io.Reader) ([]byte, error) {
	var header [mbapHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	// Length counts the unit identifier and the PDU
	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || mbapHeaderSize-1+length > tcpMaxSize {
		return nil, fmt.Errorf("modbus: invalid MBAP length %d", length)
	}
	raw := make([]byte, mbapHeaderSize-1+length)
	copy(raw, header[:])
	if _, err := io.ReadFull(r, raw[mbapHeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return raw, nil
}
