// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wizard

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/relabs-tech/guncon_calibration/internal/calibration"
)

// EventKind classifies what a wizard Event reports.
type EventKind string

const (
	EventState      EventKind = "state"
	EventShot       EventKind = "shot"
	EventResult     EventKind = "result"
	EventDegenerate EventKind = "degenerate"
	EventSinkError  EventKind = "sink_error"
	EventDeviceLost EventKind = "device_lost"
	EventQuit       EventKind = "quit"
)

// Event is one operator-visible occurrence in a calibration session.
type Event struct {
	Kind    EventKind
	Slot    int
	Device  string
	State   State
	Target  int
	PassID  string
	Shot    *calibration.Shot
	Result  *calibration.Result
	Message string
	Err     error
	Time    time.Time
}

// Reporter observes wizard events. Implementations must not block for long;
// they run inside the frame loop.
type Reporter interface {
	Report(Event)
}

// Reporters fans an event out to every reporter in order.
type Reporters []Reporter

func (rs Reporters) Report(ev Event) {
	for _, r := range rs {
		r.Report(ev)
	}
}

// LogReporter prints events through a standard logger.
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) Report(ev Event) {
	if ev.Err != nil {
		r.Logger.Printf("wizard: slot %d (%s): %s: %v", ev.Slot, ev.Device, ev.Message, ev.Err)
		return
	}
	r.Logger.Printf("wizard: slot %d (%s): %s", ev.Slot, ev.Device, ev.Message)
}

// Params is everything a sink needs to apply one calibration pass.
type Params struct {
	Slot       int
	DevicePath string
	DeviceName string
	PassID     string
	Width      int
	Height     int
	Targets    [4]calibration.Target
	Shots      [4]calibration.Shot
	Result     calibration.Result
}

// Sink applies a finished calibration.
type Sink interface {
	Apply(ctx context.Context, p Params) error
}

// Sinks applies to every sink and joins their errors.
type Sinks []Sink

func (ss Sinks) Apply(ctx context.Context, p Params) error {
	var errs []error
	for _, s := range ss {
		if err := s.Apply(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
