// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package nudam

import "fmt"

// InputRange is the analog input range code of an ND-601x module
// (NuDAM-6000 User's Guide, Table 6-1).
type InputRange byte

// ND-6018
const (
	RangeND6018_15mV  InputRange = 0x00
	RangeND6018_50mV  InputRange = 0x01
	RangeND6018_100mV InputRange = 0x02
	RangeND6018_500mV InputRange = 0x03
	RangeND6018_1V    InputRange = 0x04
	RangeND6018_2V5   InputRange = 0x05
	RangeND6018_20mA  InputRange = 0x06
	RangeND6018_TypeJ InputRange = 0x0E
	RangeND6018_TypeK InputRange = 0x0F
	RangeND6018_TypeT InputRange = 0x10
	RangeND6018_TypeE InputRange = 0x11
	RangeND6018_TypeR InputRange = 0x12
	RangeND6018_TypeS InputRange = 0x13
	RangeND6018_TypeB InputRange = 0x14
	RangeND6018_TypeN InputRange = 0x15
	RangeND6018_TypeC InputRange = 0x16
)

// ND-6017
const (
	RangeND6017_10V   InputRange = 0x08
	RangeND6017_5V    InputRange = 0x09
	RangeND6017_1V    InputRange = 0x0A
	RangeND6017_500mV InputRange = 0x0B
	RangeND6017_150mV InputRange = 0x0C
	RangeND6017_20mA  InputRange = 0x0D
)

// ND-6013
const (
	RangeND6013_Pt100A   InputRange = 0x21
	RangeND6013_Pt100B   InputRange = 0x22
	RangeND6013_Pt100C   InputRange = 0x23
	RangeND6013_Pt100D   InputRange = 0x24
	RangeND6013_Pt100E   InputRange = 0x25
	RangeND6013_Pt100F   InputRange = 0x26
	RangeND6013_Pt100G   InputRange = 0x27
	RangeND6013_Ni100    InputRange = 0x28
	RangeND6013_Ni120    InputRange = 0x29
	RangeND6013_0to60Ohm InputRange = 0x2A
)

var inputRangeNames = map[InputRange]string{
	RangeND6018_15mV:  "±15 mV",
	RangeND6018_50mV:  "±50 mV",
	RangeND6018_100mV: "±100 mV",
	RangeND6018_500mV: "±500 mV",
	RangeND6018_1V:    "±1 V",
	RangeND6018_2V5:   "±2.5 V",
	RangeND6018_20mA:  "±20 mA",
	RangeND6018_TypeJ: "Thermocouple Type J",
	RangeND6018_TypeK: "Thermocouple Type K",
	RangeND6018_TypeT: "Thermocouple Type T",
	RangeND6018_TypeE: "Thermocouple Type E",
	RangeND6018_TypeR: "Thermocouple Type R",
	RangeND6018_TypeS: "Thermocouple Type S",
	RangeND6018_TypeB: "Thermocouple Type B",
	RangeND6018_TypeN: "Thermocouple Type N",
	RangeND6018_TypeC: "Thermocouple Type C",

	RangeND6017_10V:   "±10 V",
	RangeND6017_5V:    "±5 V",
	RangeND6017_1V:    "±1 V",
	RangeND6017_500mV: "±500 mV",
	RangeND6017_150mV: "±150 mV",
	RangeND6017_20mA:  "±20 mA",

	RangeND6013_Pt100A:   "Pt100 A",
	RangeND6013_Pt100B:   "Pt100 B",
	RangeND6013_Pt100C:   "Pt100 C",
	RangeND6013_Pt100D:   "Pt100 D",
	RangeND6013_Pt100E:   "Pt100 E",
	RangeND6013_Pt100F:   "Pt100 F",
	RangeND6013_Pt100G:   "Pt100 G",
	RangeND6013_Ni100:    "Ni 100",
	RangeND6013_Ni120:    "Ni 120",
	RangeND6013_0to60Ohm: "0 to 60 Ω",
}

// Valid reports whether r is a documented range code.
func (r InputRange) Valid() bool {
	_, ok := inputRangeNames[r]
	return ok
}

func (r InputRange) String() string {
	if name, ok := inputRangeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown range %02X", byte(r))
}

// DataFormat is the analog input data format, bits 0-1 of the data format byte.
type DataFormat byte

const (
	FormatEngineeringUnits   DataFormat = 0x00
	FormatPercentOfFullScale DataFormat = 0x01
	FormatTwosComplementHex  DataFormat = 0x02
	FormatOhms               DataFormat = 0x03
)

const (
	dataFormatMask  = 0b00000011
	checksumFlagBit = 0b01000000
)

func (f DataFormat) String() string {
	switch f {
	case FormatEngineeringUnits:
		return "engineering units"
	case FormatPercentOfFullScale:
		return "% of full scale"
	case FormatTwosComplementHex:
		return "two's complement hexadecimal"
	case FormatOhms:
		return "ohms"
	default:
		return fmt.Sprintf("unknown format %02X", byte(f))
	}
}

// ND601xConfiguration is the basic configuration of an ND-601x module
// (NuDAM-6000 User's Guide, section 6.2.2).
type ND601xConfiguration struct {
	Address         byte
	InputRange      InputRange
	BaudRate        BaudRate
	DataFormat      DataFormat
	ChecksumEnabled bool
}

// dataFormatByte merges the format code and the checksum flag.
func (c ND601xConfiguration) dataFormatByte() byte {
	b := byte(c.DataFormat) & dataFormatMask
	if c.ChecksumEnabled {
		b |= checksumFlagBit
	}
	return b
}

// splitDataFormat is the inverse of dataFormatByte. Bits other than the
// format and the checksum flag are ignored.
func splitDataFormat(b byte) (DataFormat, bool) {
	return DataFormat(b & dataFormatMask), b&checksumFlagBit != 0
}
