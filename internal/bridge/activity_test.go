// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package bridge

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivity_Format(t *testing.T) {
	a := Activity{UnitID: 1, Request: RequestRead, Register: RegisterInput, FirstRegister: 0, Count: 3}
	assert.Equal(t, "Read: Unit=1, Input Register, 1 to 3 inclusive", a.Format(false))
	assert.Equal(t, "Read: Unit=1, Input Register, 0 to 2 inclusive", a.Format(true))
	assert.Equal(t, a.Format(false), a.String())

	a = Activity{UnitID: 12, Request: RequestWrite, Register: RegisterHolding, FirstRegister: 99, Count: 1}
	assert.Equal(t, "Write: Unit=12, Holding Register, 100", a.String())

	a.Register = RegisterDiscreteCoil
	assert.Equal(t, "Write: Unit=12, DiscreteCoil Register, 99", a.Format(true))
}

type recorder struct {
	valid      []Activity
	invalid    []Activity
	exceptions []error
}

func (r *recorder) ValidActivity(a Activity)   { r.valid = append(r.valid, a) }
func (r *recorder) InvalidActivity(a Activity) { r.invalid = append(r.invalid, a) }
func (r *recorder) Exception(a Activity, err error) {
	r.exceptions = append(r.exceptions, err)
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Observers{a, b}

	act := Activity{UnitID: 3}
	obs.ValidActivity(act)
	obs.InvalidActivity(act)
	obs.Exception(act, errors.New("boom"))

	for _, r := range []*recorder{a, b} {
		assert.Len(t, r.valid, 1)
		assert.Len(t, r.invalid, 1)
		assert.Len(t, r.exceptions, 1)
	}

	// An empty set is a valid observer
	Observers(nil).ValidActivity(act)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := LogObserver{Logger: logger, ZeroBased: true}

	act := Activity{UnitID: 1, Request: RequestRead, Register: RegisterInput, FirstRegister: 10, Count: 2}
	obs.ValidActivity(act)
	obs.InvalidActivity(act)
	obs.Exception(act, errors.New("nudam: request timed out"))

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "Read: Unit=1, Input Register, 10 to 11 inclusive")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "nudam: request timed out")
}
