// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/nudam-gateway/modbus"
)

// tableStorage keeps 16 items per data table in memory.
type tableStorage struct {
	coils    [16]bool
	inputs   [16]bool
	holding  [16]uint16
	input    [16]uint16
	lastUnit byte
	err      error
}

func (s *tableStorage) bits(table []bool, req *BitRequest) error {
	s.lastUnit = req.UnitID
	if s.err != nil {
		return s.err
	}
	if int(req.Address)+len(req.Points) > len(table) {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	if req.Op == OpWrite {
		copy(table[req.Address:], req.Points)
	} else {
		copy(req.Points, table[req.Address:])
	}
	return nil
}

func (s *tableStorage) registers(table []uint16, req *RegisterRequest) error {
	s.lastUnit = req.UnitID
	if s.err != nil {
		return s.err
	}
	if int(req.Address)+len(req.Points) > len(table) {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	if req.Op == OpWrite {
		copy(table[req.Address:], req.Points)
	} else {
		copy(req.Points, table[req.Address:])
	}
	return nil
}

func (s *tableStorage) Coils(ctx context.Context, req *BitRequest) error {
	return s.bits(s.coils[:], req)
}

func (s *tableStorage) DiscreteInputs(ctx context.Context, req *BitRequest) error {
	return s.bits(s.inputs[:], req)
}

func (s *tableStorage) HoldingRegisters(ctx context.Context, req *RegisterRequest) error {
	return s.registers(s.holding[:], req)
}

func (s *tableStorage) InputRegisters(ctx context.Context, req *RegisterRequest) error {
	return s.registers(s.input[:], req)
}

func pdu(fc byte, data ...byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{FunctionCode: fc, Data: data}
}

func TestSlave_Process(t *testing.T) {
	st := &tableStorage{}
	st.coils[0], st.coils[2], st.coils[9] = true, true, true
	st.inputs[1] = true
	st.holding[3] = 0x1234
	st.input[0], st.input[1] = 0xABCD, 0x0001

	s := NewSlave(st)
	ctx := context.Background()

	tests := []struct {
		name     string
		req      modbus.ProtocolDataUnit
		expected modbus.ProtocolDataUnit
	}{
		{
			"read coils",
			pdu(modbus.FuncCodeReadCoils, 0x00, 0x00, 0x00, 0x0A),
			pdu(modbus.FuncCodeReadCoils, 0x02, 0x05, 0x02),
		},
		{
			"read discrete inputs",
			pdu(modbus.FuncCodeReadDiscreteInputs, 0x00, 0x00, 0x00, 0x03),
			pdu(modbus.FuncCodeReadDiscreteInputs, 0x01, 0x02),
		},
		{
			"read holding registers",
			pdu(modbus.FuncCodeReadHoldingRegisters, 0x00, 0x03, 0x00, 0x01),
			pdu(modbus.FuncCodeReadHoldingRegisters, 0x02, 0x12, 0x34),
		},
		{
			"read input registers",
			pdu(modbus.FuncCodeReadInputRegisters, 0x00, 0x00, 0x00, 0x02),
			pdu(modbus.FuncCodeReadInputRegisters, 0x04, 0xAB, 0xCD, 0x00, 0x01),
		},
		{
			"write single coil",
			pdu(modbus.FuncCodeWriteSingleCoil, 0x00, 0x05, 0xFF, 0x00),
			pdu(modbus.FuncCodeWriteSingleCoil, 0x00, 0x05, 0xFF, 0x00),
		},
		{
			"write single register",
			pdu(modbus.FuncCodeWriteSingleRegister, 0x00, 0x01, 0xBE, 0xEF),
			pdu(modbus.FuncCodeWriteSingleRegister, 0x00, 0x01, 0xBE, 0xEF),
		},
		{
			"write multiple coils",
			pdu(modbus.FuncCodeWriteMultipleCoils, 0x00, 0x0A, 0x00, 0x03, 0x01, 0x05),
			pdu(modbus.FuncCodeWriteMultipleCoils, 0x00, 0x0A, 0x00, 0x03),
		},
		{
			"write multiple registers",
			pdu(modbus.FuncCodeWriteMultipleRegisters, 0x00, 0x08, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02),
			pdu(modbus.FuncCodeWriteMultipleRegisters, 0x00, 0x08, 0x00, 0x02),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Process(ctx, 7, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, resp)
			assert.Equal(t, byte(7), st.lastUnit)
		})
	}

	assert.True(t, st.coils[5])
	assert.Equal(t, uint16(0xBEEF), st.holding[1])
	assert.Equal(t, []bool{true, false, true}, st.coils[10:13])
	assert.Equal(t, []uint16{0x000A, 0x0102}, st.holding[8:10])
}

func TestSlave_Exceptions(t *testing.T) {
	st := &tableStorage{}
	s := NewSlave(st)
	ctx := context.Background()

	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
		code modbus.ExceptionCode
	}{
		{"unknown function", pdu(0x2B, 0x0E, 0x01, 0x00), modbus.ExceptionCodeIllegalFunction},
		{"short request", pdu(modbus.FuncCodeReadInputRegisters, 0x00, 0x00, 0x00), modbus.ExceptionCodeIllegalDataValue},
		{"zero quantity", pdu(modbus.FuncCodeReadInputRegisters, 0x00, 0x00, 0x00, 0x00), modbus.ExceptionCodeIllegalDataValue},
		{"too many registers", pdu(modbus.FuncCodeReadHoldingRegisters, 0x00, 0x00, 0x00, 0x7E), modbus.ExceptionCodeIllegalDataValue},
		{"too many coils", pdu(modbus.FuncCodeReadCoils, 0x00, 0x00, 0x07, 0xD1), modbus.ExceptionCodeIllegalDataValue},
		{"beyond address space", pdu(modbus.FuncCodeReadInputRegisters, 0xFF, 0xFF, 0x00, 0x02), modbus.ExceptionCodeIllegalDataAddress},
		{"storage rejects address", pdu(modbus.FuncCodeReadInputRegisters, 0x00, 0x0F, 0x00, 0x02), modbus.ExceptionCodeIllegalDataAddress},
		{"bad coil value", pdu(modbus.FuncCodeWriteSingleCoil, 0x00, 0x00, 0x12, 0x34), modbus.ExceptionCodeIllegalDataValue},
		{"coil byte count", pdu(modbus.FuncCodeWriteMultipleCoils, 0x00, 0x00, 0x00, 0x09, 0x01, 0xFF), modbus.ExceptionCodeIllegalDataValue},
		{"register byte count", pdu(modbus.FuncCodeWriteMultipleRegisters, 0x00, 0x00, 0x00, 0x02, 0x02, 0x00, 0x01), modbus.ExceptionCodeIllegalDataValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Process(ctx, 1, tt.req)
			require.NoError(t, err)
			assert.True(t, resp.IsException())
			assert.Equal(t, tt.req.FunctionCode|modbus.FuncCodeError, resp.FunctionCode)
			assert.Equal(t, []byte{byte(tt.code)}, resp.Data)
		})
	}
}

func TestSlave_StorageErrorIsDeviceFailure(t *testing.T) {
	st := &tableStorage{err: errors.New("disk on fire")}
	s := NewSlave(st)

	resp, err := s.Process(context.Background(), 1, pdu(modbus.FuncCodeReadInputRegisters, 0x00, 0x00, 0x00, 0x01))
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(modbus.ExceptionCodeServerDeviceFailure)}, resp.Data)
}

func TestPackBits(t *testing.T) {
	assert.Equal(t, []byte{0x05, 0x02}, packBits([]bool{true, false, true, false, false, false, false, false, false, true}))
	assert.Equal(t, []bool{true, false, true, false, false, false, false, false, false, true},
		unpackBits([]byte{0x05, 0x02}, 10))
}
