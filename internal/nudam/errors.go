// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

import (
	"errors"
)

// Errors returned by the bus master. Detail is wrapped around them with
// fmt.Errorf, so test with errors.Is.
var (
	ErrPortDoesNotExist     = errors.New("nudam: serial port does not exist")
	ErrInvalidBaudRate      = errors.New("nudam: invalid baud rate")
	ErrPortClosed           = errors.New("nudam: port is closed")
	ErrTimeout              = errors.New("nudam: request timed out")
	ErrChecksumMismatch     = errors.New("nudam: checksum mismatch")
	ErrCommandInvalid       = errors.New("nudam: device claims command is invalid")
	ErrUnrecognizedResponse = errors.New("nudam: unrecognized response")
	ErrWrongDevice          = errors.New("nudam: wrong device replied")
	ErrChannelOutOfRange    = errors.New("nudam: analog channel index out of range")
)

// descriptions is the one-line message printed for each failure kind.
var descriptions = []struct {
	err error
	msg string
}{
	{ErrTimeout, "The request timed out."},
	{ErrChecksumMismatch, "Checksum mismatch in response. Check cabling and configuration."},
	{ErrCommandInvalid, "Target device claims the command is invalid. It may not support this type of command."},
	{ErrInvalidBaudRate, "The specified baud rate is not supported."},
	{ErrPortDoesNotExist, "The specified serial port does not exist."},
	{ErrUnrecognizedResponse, "The device's response is not recognized."},
	{ErrWrongDevice, "The address in the response differs from the address specified in the request."},
	{ErrChannelOutOfRange, "Invalid channel index."},
	{ErrPortClosed, "The serial port is closed."},
}

// Describe returns the user facing line for a bus master failure. Unknown
// errors are rendered with their own message.
func Describe(err error) string {
	for _, d := range descriptions {
		if errors.Is(err, d.err) {
			return d.msg
		}
	}
	return err.Error()
}
