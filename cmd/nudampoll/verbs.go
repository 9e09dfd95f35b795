// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ffutop/nudam-gateway/internal/nudam"
)

func modelFlags(fs *pflag.FlagSet) func(ctx context.Context, s *session) error {
	return func(ctx context.Context, s *session) error {
		if err := s.open(ctx); err != nil {
			return err
		}
		name, err := s.client.ReadModuleName(ctx, s.address)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.stdout, name)
		return nil
	}
}

func readAnalogFlags(fs *pflag.FlagSet) func(ctx context.Context, s *session) error {
	channel := fs.IntP("channel", "c", -1, "Provide the analog channel index, or -1 to read all channels.")
	interval := fs.IntP("interval", "i", 0, "Provide the poll interval in milliseconds, or 0 to only read once.")

	return func(ctx context.Context, s *session) error {
		if *channel != -1 && !nudam.ValidChannelIndex(*channel) {
			fmt.Fprintln(s.stderr, "Invalid channel index.")
			return errUsage
		}
		if err := s.open(ctx); err != nil {
			return err
		}

		poll := func() error {
			if *channel == -1 {
				values, err := s.client.ReadAllAnalogDataChannels(ctx, s.address)
				if err != nil {
					return err
				}
				fields := make([]string, len(values))
				for i, v := range values {
					fields[i] = formatValue(v)
				}
				fmt.Fprintln(s.stdout, strings.Join(fields, ","))
				return nil
			}
			v, err := s.client.ReadAnalogDataFromChannelN(ctx, s.address, *channel)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.stdout, formatValue(v))
			return nil
		}

		if *interval <= 0 {
			return poll()
		}

		fmt.Fprintln(s.stderr, "Press Ctrl+C to stop...")
		ticker := time.NewTicker(time.Duration(*interval) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := poll(); err != nil {
					return err
				}
			}
		}
	}
}

func readConfFlags(fs *pflag.FlagSet) func(ctx context.Context, s *session) error {
	return func(ctx context.Context, s *session) error {
		if err := s.open(ctx); err != nil {
			return err
		}

		fmt.Fprintln(s.stdout, "Reading device type... ")
		name, err := s.client.ReadModuleName(ctx, s.address)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.stdout, name)

		if !strings.HasPrefix(name, "601") {
			fmt.Fprintf(s.stderr, "Device is of model ND-%s but only ND-601x devices are currently supported for this function.\n", name)
			return nil
		}

		c, err := s.client.ReadND601xConfiguration(ctx, s.address)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.stdout, "Address: %d\n", c.Address)
		fmt.Fprintf(s.stdout, "Analog Input Range: %s\n", c.InputRange)
		fmt.Fprintf(s.stdout, "Baud Rate: %dbps\n", c.BaudRate)
		fmt.Fprintf(s.stdout, "Data Format: %s\n", c.DataFormat)
		fmt.Fprintf(s.stdout, "Checksum enabled: %t\n", c.ChecksumEnabled)
		return nil
	}
}

func setConf601xFlags(fs *pflag.FlagSet) func(ctx context.Context, s *session) error {
	inputRange := fs.String("ainrange", "", "Provide the analog input range code from Table 6-1 in the NuDAM-6000 user manual, or refer to the decal on the device itself.")
	newBaud := fs.Int("newbaud", 0, "Provide the new baud rate in bps (e.g. 115200). DEFAULT pin must have been connected to GND while powering the device on to allow this to be changed.")
	newAddress := fs.Uint8("newaddr", 0, "Provide the new address.")
	setChecksum := fs.Bool("setchecksum", false, "Set to enable checksum on the target device. DEFAULT pin must have been connected to GND while powering the device on to allow this to be changed.")

	return func(ctx context.Context, s *session) error {
		if *inputRange == "" {
			fmt.Fprintln(s.stderr, "Required option 'ainrange' is missing.")
			return errUsage
		}
		code, err := strconv.ParseUint(*inputRange, 16, 8)
		if err != nil {
			fmt.Fprintln(s.stderr, "Invalid analog input range code. Use hexadecimal format, two characters, e.g. \"0F\".")
			return errUsage
		}

		cfg := nudam.ND601xConfiguration{
			Address:         s.address,
			InputRange:      nudam.InputRange(code),
			BaudRate:        nudam.BaudRate(s.baud),
			DataFormat:      nudam.FormatEngineeringUnits,
			ChecksumEnabled: s.checksum,
		}
		if !cfg.InputRange.Valid() {
			fmt.Fprintln(s.stderr, "Unknown analog input range code.")
			return errUsage
		}
		if fs.Changed("newaddr") {
			cfg.Address = *newAddress
		}
		if fs.Changed("newbaud") {
			cfg.BaudRate = nudam.BaudRate(*newBaud)
		}
		if fs.Changed("setchecksum") {
			cfg.ChecksumEnabled = *setChecksum
		}

		if err := s.open(ctx); err != nil {
			return err
		}
		return s.client.WriteConfiguration(ctx, s.address, cfg)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
