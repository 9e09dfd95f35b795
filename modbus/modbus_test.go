// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
	"testing"
)

func TestExceptionCode_Error(t *testing.T) {
	tests := []struct {
		code     ExceptionCode
		expected string
	}{
		{ExceptionCodeIllegalFunction, "modbus exception: illegal function"},
		{ExceptionCodeGatewayPathUnavailable, "modbus exception: gateway path unavailable"},
		{ExceptionCode(0x42), "modbus exception: unknown exception 42"},
	}
	for _, tt := range tests {
		if got := tt.code.Error(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestAsExceptionCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ExceptionCode
	}{
		{"exception code", ExceptionCodeIllegalDataAddress, ExceptionCodeIllegalDataAddress},
		{"wrapped exception code", fmt.Errorf("unit 3: %w", ExceptionCodeGatewayPathUnavailable), ExceptionCodeGatewayPathUnavailable},
		{"other error", errors.New("serial line down"), ExceptionCodeServerDeviceFailure},
	}
	for _, tt := range tests {
		if got := AsExceptionCode(tt.err); got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, got)
		}
	}
}

func TestNewExceptionPDU(t *testing.T) {
	pdu := NewExceptionPDU(FuncCodeReadInputRegisters, ExceptionCodeIllegalDataAddress)
	if pdu.FunctionCode != 0x84 {
		t.Errorf("Expected function code 0x84, got 0x%02X", pdu.FunctionCode)
	}
	if len(pdu.Data) != 1 || pdu.Data[0] != 0x02 {
		t.Errorf("Expected data [02], got % X", pdu.Data)
	}
	if !pdu.IsException() {
		t.Error("Expected an exception PDU")
	}
	if (ProtocolDataUnit{FunctionCode: FuncCodeReadInputRegisters}).IsException() {
		t.Error("Plain response reported as exception")
	}
	if RegistersByteCount(3) != 6 {
		t.Errorf("Expected 6 bytes for 3 registers, got %d", RegistersByteCount(3))
	}
}
