// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package stats keeps per-unit diagnostic counters of the requests the
// gateway carried out, optionally persisted across restarts.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ffutop/nudam-gateway/internal/bridge"
)

// Counters of a single unit ID.
type Counters struct {
	Valid     uint64
	Invalid   uint64
	Exception uint64
}

// UnitSummary is the state of one unit ID that has seen requests.
type UnitSummary struct {
	UnitID byte
	Counters
	LastFailure string
}

// Recorder counts the activity reported by the bridge.
type Recorder struct {
	table    atomic.Pointer[Table]
	storage  Storage
	failures *xsync.MapOf[byte, string]
}

var _ bridge.Observer = (*Recorder)(nil)

// NewRecorder loads the table kept by storage.
func NewRecorder(storage Storage) (*Recorder, error) {
	t, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	r := &Recorder{
		storage:  storage,
		failures: xsync.NewMapOf[byte, string](),
	}
	r.table.Store(t)
	return r, nil
}

func (r *Recorder) record(unit byte, kind Kind) {
	t := r.table.Load()
	t.Add(unit, kind)
	r.storage.OnWrite(t, unit)
}

func (r *Recorder) ValidActivity(a bridge.Activity) {
	r.record(a.UnitID, KindValid)
}

func (r *Recorder) InvalidActivity(a bridge.Activity) {
	r.record(a.UnitID, KindInvalid)
	r.failures.Store(a.UnitID, "invalid request: "+a.String())
}

func (r *Recorder) Exception(a bridge.Activity, err error) {
	r.record(a.UnitID, KindException)
	r.failures.Store(a.UnitID, err.Error())
}

// Counters returns the counters of unit.
func (r *Recorder) Counters(unit byte) Counters {
	t := r.table.Load()
	return Counters{
		Valid:     t.Get(unit, KindValid),
		Invalid:   t.Get(unit, KindInvalid),
		Exception: t.Get(unit, KindException),
	}
}

// Summary lists every unit ID with a non-zero counter in ascending order.
func (r *Recorder) Summary() []UnitSummary {
	var units []UnitSummary
	for unit := 0; unit < MaxUnits; unit++ {
		c := r.Counters(byte(unit))
		if c == (Counters{}) {
			continue
		}
		last, _ := r.failures.Load(byte(unit))
		units = append(units, UnitSummary{UnitID: byte(unit), Counters: c, LastFailure: last})
	}
	return units
}

// Log writes the summary to logger, one line per unit.
func (r *Recorder) Log(logger *slog.Logger) {
	units := r.Summary()
	if len(units) == 0 {
		logger.Info("No requests served yet")
		return
	}
	for _, u := range units {
		args := []any{"unit", u.UnitID, "valid", u.Valid, "invalid", u.Invalid, "exception", u.Exception}
		if u.LastFailure != "" {
			args = append(args, "last_failure", u.LastFailure)
		}
		logger.Info("Request counters", args...)
	}
}

// Save writes the counters through to storage.
func (r *Recorder) Save() error {
	return r.storage.Save(r.table.Load())
}

// Close saves and releases the storage. The counters stay readable; no
// activity may be reported afterwards.
func (r *Recorder) Close() error {
	t := r.table.Load()
	snapshot := NewTable()
	for i := range snapshot.counts {
		snapshot.counts[i] = atomic.LoadUint64(&t.counts[i])
	}
	err := r.storage.Save(t)
	r.table.Store(snapshot)
	if cerr := r.storage.Close(); err == nil {
		err = cerr
	}
	return err
}
