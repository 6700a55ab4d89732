// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package device reads a light gun through the Linux evdev interface.
//
// The adapter exposes only what calibration needs: the latest absolute raw
// position and the ordered button transitions since the previous drain.
package device

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// DefaultName is the kernel device name reported by the GunCon 3 driver.
const DefaultName = "Namco GunCon 3"

// MaxDevices is the number of guns a calibration run will pick up.
const MaxDevices = 2

// ErrDeviceLost is returned once the device node stops delivering events,
// typically because the gun was unplugged.
var ErrDeviceLost = errors.New("device lost")

// Linux input event types and codes used by the gun (input-event-codes.h).
const (
	evKey = 0x01
	evAbs = 0x03

	absX = 0x00
	absY = 0x01

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
)

// RawPosition is the absolute gun position in device units.
type RawPosition struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// AxisRange is the range an absolute axis reports.
type AxisRange struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

// Button identifies the gun buttons calibration reacts to.
type Button int

const (
	ButtonTrigger Button = iota
	ButtonSecondaryA
	ButtonSecondaryB
)

func (b Button) String() string {
	switch b {
	case ButtonTrigger:
		return "trigger"
	case ButtonSecondaryA:
		return "secondary-a"
	case ButtonSecondaryB:
		return "secondary-b"
	default:
		return "button(" + strconv.Itoa(int(b)) + ")"
	}
}

// ButtonEvent is a single press or release.
type ButtonEvent struct {
	Button  Button
	Pressed bool
}

func (e ButtonEvent) String() string {
	if e.Pressed {
		return e.Button.String() + " down"
	}
	return e.Button.String() + " up"
}

type inputEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

func mapButton(code uint16) (Button, bool) {
	switch code {
	case btnLeft:
		return ButtonTrigger, true
	case btnMiddle:
		return ButtonSecondaryA, true
	case btnRight:
		return ButtonSecondaryB, true
	}
	return 0, false
}

// tracker folds decoded events into the current position and the button
// transitions the caller cares about.
type tracker struct {
	pos RawPosition
}

func (t *tracker) feed(events []inputEvent) []ButtonEvent {
	var out []ButtonEvent
	for _, ev := range events {
		if btn, ok := t.apply(ev); ok {
			out = append(out, btn)
		}
	}
	return out
}

// apply folds one event and reports the button transition it carries, if any.
func (t *tracker) apply(ev inputEvent) (ButtonEvent, bool) {
	switch ev.Type {
	case evAbs:
		switch ev.Code {
		case absX:
			t.pos.X = ev.Value
		case absY:
			t.pos.Y = ev.Value
		}
	case evKey:
		btn, ok := mapButton(ev.Code)
		if !ok {
			return ButtonEvent{}, false
		}
		// value 2 is autorepeat
		switch ev.Value {
		case 0:
			return ButtonEvent{Button: btn, Pressed: false}, true
		case 1:
			return ButtonEvent{Button: btn, Pressed: true}, true
		}
	}
	return ButtonEvent{}, false
}

// eventQueue sits between the reader goroutine and the frame loop. The
// reader pushes events as they arrive; the frame loop drains without
// blocking.
type eventQueue struct {
	mu      sync.Mutex
	tracker tracker
	pending []ButtonEvent
	lost    error
}

func newEventQueue(start RawPosition) *eventQueue {
	return &eventQueue{tracker: tracker{pos: start}}
}

func (q *eventQueue) push(ev inputEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if btn, ok := q.tracker.apply(ev); ok {
		q.pending = append(q.pending, btn)
	}
}

// fail records why the reader stopped. Only the first failure is kept.
func (q *eventQueue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lost == nil {
		q.lost = err
	}
}

func (q *eventQueue) position() RawPosition {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tracker.pos
}

// drain hands out the queued transitions. A reader failure is returned only
// after everything queued before it has been handed out.
func (q *eventQueue) drain() ([]ButtonEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		out := q.pending
		q.pending = nil
		return out, nil
	}
	return nil, q.lost
}

func lostError(path string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", path, ErrDeviceLost)
	}
	return fmt.Errorf("%s: %w: %v", path, ErrDeviceLost, err)
}
