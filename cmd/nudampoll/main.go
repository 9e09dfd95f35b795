// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command nudampoll talks to a single NuDAM module: it reads the model
// name, analog data and the basic configuration, and writes the
// configuration of ND-601x modules.
//
//	nudampoll <verb> -p PORT [-b BAUD] [-s] [-a ADDR] [verb flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/nudam-gateway/internal/config"
	"github.com/ffutop/nudam-gateway/internal/nudam"
)

// errUsage is returned after a usage problem has been reported.
var errUsage = errors.New("usage")

// clientOptions are handed to every client the verbs create.
var clientOptions []nudam.Option

type verb struct {
	name string
	help string
	// flags registers the verb's own flags and returns its body.
	flags func(fs *pflag.FlagSet) func(ctx context.Context, s *session) error
}

var verbs = []verb{
	{"model", "Read NuDAM module's model name", modelFlags},
	{"ranalog", "Read analog data", readAnalogFlags},
	{"readconf", "Read NuDAM module's basic configuration", readConfFlags},
	{"setconf601x", "Set ND-601x module's basic configuration", setConf601xFlags},
}

// session is the state shared by all verbs.
type session struct {
	port     string
	baud     int
	checksum bool
	address  uint8

	stdout io.Writer
	stderr io.Writer
	client *nudam.Client
}

// open connects to the bus described by the common flags.
func (s *session) open(ctx context.Context) error {
	c, err := nudam.NewClient(config.SerialConfig{
		Device:   s.port,
		BaudRate: s.baud,
		Checksum: s.checksum,
		Driver:   config.DriverNative,
	}, clientOptions...)
	if err != nil {
		return err
	}
	if err := c.Open(ctx); err != nil {
		return err
	}
	s.client = c
	return nil
}

func (s *session) close() {
	if s.client != nil {
		s.client.Close()
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nudampoll <verb> -p PORT [-b BAUD] [-s] [-a ADDR] [options]")
	fmt.Fprintln(w)
	for _, v := range verbs {
		fmt.Fprintf(w, "  %-12s %s\n", v.name, v.help)
	}
}

// run executes one command line and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var v *verb
	for i := range verbs {
		if verbs[i].name == args[0] {
			v = &verbs[i]
		}
	}
	if v == nil {
		if args[0] != "help" && args[0] != "--help" && args[0] != "-h" {
			fmt.Fprintf(stderr, "Unknown verb %q\n", args[0])
		}
		usage(stderr)
		return 2
	}

	s := &session{stdout: stdout, stderr: stderr}
	fs := pflag.NewFlagSet(v.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVarP(&s.baud, "baud", "b", int(nudam.BaudRate9600), "Provide baud rate. Must be one of the supported values.")
	fs.BoolVarP(&s.checksum, "checksum", "s", false, "Set if checksum is enabled on the target.")
	fs.Uint8VarP(&s.address, "address", "a", nudam.DefaultAddress, "Provide the module's address.")
	fs.StringVarP(&s.port, "port", "p", "", "Provide serial port name.")
	body := v.flags(fs)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if s.port == "" {
		fmt.Fprintln(stderr, "Required option 'p, port' is missing.")
		return 2
	}

	defer s.close()
	if err := body(ctx, s); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "Error: %s\n", nudam.Describe(err))
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
