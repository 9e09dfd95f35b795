// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

// BaudRate is a bus speed supported by NuDAM modules, in bps.
type BaudRate int

// Supported baud rates. 600 bps exists on the modules but cannot be selected
// through the configuration command.
const (
	BaudRate1200   BaudRate = 1200
	BaudRate2400   BaudRate = 2400
	BaudRate4800   BaudRate = 4800
	BaudRate9600   BaudRate = 9600
	BaudRate19200  BaudRate = 19200
	BaudRate38400  BaudRate = 38400
	BaudRate57600  BaudRate = 57600
	BaudRate115200 BaudRate = 115200
)

// BaudRates lists every supported baud rate in ascending order.
var BaudRates = []BaudRate{
	BaudRate1200, BaudRate2400, BaudRate4800, BaudRate9600,
	BaudRate19200, BaudRate38400, BaudRate57600, BaudRate115200,
}

// baudRateToCode is used when sending a configuration. 57600 was added to the
// modules after 115200, hence its out of order code.
var baudRateToCode = map[BaudRate]byte{
	BaudRate1200:   0x03,
	BaudRate2400:   0x04,
	BaudRate4800:   0x05,
	BaudRate9600:   0x06,
	BaudRate19200:  0x07,
	BaudRate38400:  0x08,
	BaudRate115200: 0x09,
	BaudRate57600:  0x0A,
}

// codeToBaudRate is used when decoding a configuration read from a module.
var codeToBaudRate = map[byte]BaudRate{
	0x03: BaudRate1200,
	0x04: BaudRate2400,
	0x05: BaudRate4800,
	0x06: BaudRate9600,
	0x07: BaudRate19200,
	0x08: BaudRate38400,
	0x09: BaudRate115200,
	0x0A: BaudRate57600,
}

// Valid reports whether b is one of the supported baud rates.
func (b BaudRate) Valid() bool {
	for _, v := range BaudRates {
		if v == b {
			return true
		}
	}
	return false
}

// SendCode returns the configuration code for b.
func (b BaudRate) SendCode() (byte, bool) {
	code, ok := baudRateToCode[b]
	return code, ok
}

// BaudRateFromCode decodes a configuration code received from a module.
func BaudRateFromCode(code byte) (BaudRate, bool) {
	b, ok := codeToBaudRate[code]
	return b, ok
}
