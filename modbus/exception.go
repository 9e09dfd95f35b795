// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// ExceptionCode describes a Modbus exception response code. It implements
// error so request handlers can return it directly.
type ExceptionCode uint8

// Exception codes
const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeServerDeviceFailure                ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

var exceptionStrings = map[ExceptionCode]string{
	ExceptionCodeIllegalFunction:                    "illegal function",
	ExceptionCodeIllegalDataAddress:                 "illegal data address",
	ExceptionCodeIllegalDataValue:                   "illegal data value",
	ExceptionCodeServerDeviceFailure:                "server device failure",
	ExceptionCodeAcknowledge:                        "acknowledge",
	ExceptionCodeServerDeviceBusy:                   "server device busy",
	ExceptionCodeMemoryParityError:                  "memory parity error",
	ExceptionCodeGatewayPathUnavailable:             "gateway path unavailable",
	ExceptionCodeGatewayTargetDeviceFailedToRespond: "gateway target failed to respond",
}

func (ec ExceptionCode) Error() string {
	s, ok := exceptionStrings[ec]
	if !ok {
		s = fmt.Sprintf("unknown exception %02X", uint8(ec))
	}
	return "modbus exception: " + s
}

// AsExceptionCode extracts the exception code carried by err. Errors that are
// not exception codes are reported as a server device failure.
func AsExceptionCode(err error) ExceptionCode {
	var ec ExceptionCode
	if errors.As(err, &ec) {
		return ec
	}
	return ExceptionCodeServerDeviceFailure
}
