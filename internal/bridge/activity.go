// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bridge

import (
	"fmt"
	"log/slog"
)

// RequestKind tells reads from writes.
type RequestKind int

const (
	RequestRead RequestKind = iota
	RequestWrite
)

func (k RequestKind) String() string {
	switch k {
	case RequestRead:
		return "Read"
	case RequestWrite:
		return "Write"
	default:
		return fmt.Sprintf("RequestKind(%d)", int(k))
	}
}

// RegisterKind is the Modbus data table a request addressed.
type RegisterKind int

const (
	RegisterInput RegisterKind = iota
	RegisterDiscreteCoil
	RegisterDiscreteInput
	RegisterHolding
)

func (k RegisterKind) String() string {
	switch k {
	case RegisterInput:
		return "Input"
	case RegisterDiscreteCoil:
		return "DiscreteCoil"
	case RegisterDiscreteInput:
		return "DiscreteInput"
	case RegisterHolding:
		return "Holding"
	default:
		return fmt.Sprintf("RegisterKind(%d)", int(k))
	}
}

// Activity describes one register request handled by the bridge.
type Activity struct {
	UnitID        byte
	Request       RequestKind
	Register      RegisterKind
	FirstRegister uint16 // protocol address, starting from 0
	Count         int
}

// Format renders the activity as "Read: Unit=1, Input Register, 1 to 3 inclusive".
// Register numbers start from 1 unless zeroBased is set.
func (a Activity) Format(zeroBased bool) string {
	first := int(a.FirstRegister)
	if !zeroBased {
		first++
	}
	s := fmt.Sprintf("%s: Unit=%d, %s Register, %d", a.Request, a.UnitID, a.Register, first)
	if a.Count > 1 {
		s += fmt.Sprintf(" to %d inclusive", first+a.Count-1)
	}
	return s
}

func (a Activity) String() string {
	return a.Format(false)
}

// Observer is notified about every request the bridge handles. It cannot
// change the outcome.
type Observer interface {
	// ValidActivity is called after a request was served.
	ValidActivity(a Activity)
	// InvalidActivity is called for requests addressing registers the
	// bridge does not provide.
	InvalidActivity(a Activity)
	// Exception is called when serving a request failed.
	Exception(a Activity, err error)
}

// Observers fans notifications out to each of its members in order.
type Observers []Observer

func (o Observers) ValidActivity(a Activity) {
	for _, ob := range o {
		ob.ValidActivity(a)
	}
}

func (o Observers) InvalidActivity(a Activity) {
	for _, ob := range o {
		ob.InvalidActivity(a)
	}
}

func (o Observers) Exception(a Activity, err error) {
	for _, ob := range o {
		ob.Exception(a, err)
	}
}

// LogObserver writes activity to a slog logger: valid requests at debug,
// invalid ones at warn and failures at error level.
type LogObserver struct {
	Logger    *slog.Logger // slog.Default() when nil
	ZeroBased bool
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LogObserver) ValidActivity(a Activity) {
	l.logger().Debug(a.Format(l.ZeroBased))
}

func (l LogObserver) InvalidActivity(a Activity) {
	l.logger().Warn("One or more registers invalid in request", "request", a.Format(l.ZeroBased))
}

func (l LogObserver) Exception(a Activity, err error) {
	l.logger().Error("Exception while carrying out request", "request", a.Format(l.ZeroBased), "err", err)
}
