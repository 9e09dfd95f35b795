// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol pieces shared by the gateway's transports.
package modbus

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeMaskWriteRegister      = 0x16

	FuncCodeReadWriteMultipleRegisters = 0x17
	FuncCodeReadFIFOQueue              = 0x18
)

// FuncCodeError is the bit set in the function code of an exception response.
const FuncCodeError = 0x80

// Protocol limits for a single request.
const (
	MaxReadBits         = 2000
	MaxReadRegisters    = 125
	MaxWriteBits        = 1968
	MaxWriteRegisters   = 123
	MaxPDUSize          = 253
	MaxUnitID           = 255
	registerWidthInByte = 2
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries an exception response.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&FuncCodeError != 0
}

// NewExceptionPDU builds the exception response for the given request function code.
func NewExceptionPDU(functionCode byte, code ExceptionCode) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: functionCode | FuncCodeError,
		Data:         []byte{byte(code)},
	}
}

// RegistersByteCount returns the byte count of n 16-bit registers.
func RegistersByteCount(n int) int {
	return n * registerWidthInByte
}
