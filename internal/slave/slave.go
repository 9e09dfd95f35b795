// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave decodes Modbus requests into register callbacks and encodes
// their results, the way a Modbus server device would.
package slave

import (
	"context"
	"encoding/binary"

	"github.com/ffutop/nudam-gateway/modbus"
)

// Op is the direction of a register access.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

// BitRequest addresses coils or discrete inputs. For reads the callee fills
// Points; for writes Points carries the values to store.
type BitRequest struct {
	UnitID  byte
	Op      Op
	Address uint16
	Points  []bool
}

// RegisterRequest addresses holding or input registers.
type RegisterRequest struct {
	UnitID  byte
	Op      Op
	Address uint16
	Points  []uint16
}

// Storage serves the four Modbus data tables. Errors that are not a
// modbus.ExceptionCode are answered with a server device failure.
type Storage interface {
	Coils(ctx context.Context, req *BitRequest) error
	DiscreteInputs(ctx context.Context, req *BitRequest) error
	HoldingRegisters(ctx context.Context, req *RegisterRequest) error
	InputRegisters(ctx context.Context, req *RegisterRequest) error
}

// Slave implements the Modbus protocol logic on top of a Storage.
type Slave struct {
	storage Storage
}

// NewSlave creates a new Slave.
func NewSlave(storage Storage) *Slave {
	return &Slave{storage: storage}
}

// Process executes the Modbus Function Code against the storage. Protocol
// failures are answered with an exception response, never an error.
func (s *Slave) Process(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.handleReadBits(ctx, unitID, req, s.storage.Coils)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.handleReadBits(ctx, unitID, req, s.storage.DiscreteInputs)
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadRegisters(ctx, unitID, req, s.storage.HoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleReadRegisters(ctx, unitID, req, s.storage.InputRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingleCoil(ctx, unitID, req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(ctx, unitID, req)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultipleCoils(ctx, unitID, req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(ctx, unitID, req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

// addressable reports whether quantity items from address stay within the
// 16 bit address space.
func addressable(address, quantity uint16) bool {
	return uint32(address)+uint32(quantity) <= 0x10000
}

func (s *Slave) handleReadBits(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit,
	read func(context.Context, *BitRequest) error) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadBits {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if !addressable(address, quantity) {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	br := &BitRequest{UnitID: unitID, Op: OpRead, Address: address, Points: make([]bool, quantity)}
	if err := read(ctx, br); err != nil {
		return exception(req.FunctionCode, modbus.AsExceptionCode(err)), nil
	}

	data := packBits(br.Points)
	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (s *Slave) handleReadRegisters(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit,
	read func(context.Context, *RegisterRequest) error) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if !addressable(address, quantity) {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	rr := &RegisterRequest{UnitID: unitID, Op: OpRead, Address: address, Points: make([]uint16, quantity)}
	if err := read(ctx, rr); err != nil {
		return exception(req.FunctionCode, modbus.AsExceptionCode(err)), nil
	}

	respData := make([]byte, 1+modbus.RegistersByteCount(len(rr.Points)))
	respData[0] = byte(modbus.RegistersByteCount(len(rr.Points)))
	for i, v := range rr.Points {
		binary.BigEndian.PutUint16(respData[1+2*i:], v)
	}

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (s *Slave) handleWriteSingleCoil(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if value != 0xFF00 && value != 0x0000 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	br := &BitRequest{UnitID: unitID, Op: OpWrite, Address: address, Points: []bool{value == 0xFF00}}
	if err := s.storage.Coils(ctx, br); err != nil {
		return exception(req.FunctionCode, modbus.AsExceptionCode(err)), nil
	}

	return req, nil // Echo request
}

func (s *Slave) handleWriteSingleRegister(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	rr := &RegisterRequest{UnitID: unitID, Op: OpWrite, Address: address, Points: []uint16{value}}
	if err := s.storage.HoldingRegisters(ctx, rr); err != nil {
		return exception(req.FunctionCode, modbus.AsExceptionCode(err)), nil
	}

	return req, nil // Echo request
}

func (s *Slave) handleWriteMultipleCoils(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > modbus.MaxWriteBits {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if byteCount != (int(quantity)+7)/8 || len(req.Data)-5 != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if !addressable(address, quantity) {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	br := &BitRequest{UnitID: unitID, Op: OpWrite, Address: address, Points: unpackBits(req.Data[5:], int(quantity))}
	if err := s.storage.Coils(ctx, br); err != nil {
		return exception(req.FunctionCode, modbus.AsExceptionCode(err)), nil
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func (s *Slave) handleWriteMultipleRegisters(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 7 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > modbus.MaxWriteRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if byteCount != modbus.RegistersByteCount(int(quantity)) || len(req.Data)-5 != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	if !addressable(address, quantity) {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	points := make([]uint16, quantity)
	for i := range points {
		points[i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
	}
	rr := &RegisterRequest{UnitID: unitID, Op: OpWrite, Address: address, Points: points}
	if err := s.storage.HoldingRegisters(ctx, rr); err != nil {
		return exception(req.FunctionCode, modbus.AsExceptionCode(err)), nil
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}, nil
}

func exception(funcCode byte, code modbus.ExceptionCode) modbus.ProtocolDataUnit {
	return modbus.NewExceptionPDU(funcCode, code)
}

// packBits packs bits LSB first, as coil and discrete input responses do.
func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBits(data []byte, n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return bits
}
