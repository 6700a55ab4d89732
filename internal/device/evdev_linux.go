// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package device

import (
	"context"
	"fmt"
	"os"

	"github.com/kenshaw/evdev"
)

// Evdev is an opened gun event node.
type Evdev struct {
	path string
	name string
	dev  *evdev.Evdev

	rangeX AxisRange
	rangeY AxisRange

	queue  *eventQueue
	cancel context.CancelFunc

	grabbed bool
	closed  bool
}

// openNode opens path read-only. Grabbing works on a read-only descriptor,
// so calibration does not need write access to the node.
func openNode(path string) (*evdev.Evdev, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return evdev.Open(f), nil
}

// Open opens the event node at path, reads its name and absolute axis
// ranges, and starts reading events in the background.
func Open(path string) (*Evdev, error) {
	dev, err := openNode(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	axes := dev.AbsoluteTypes()
	x, okX := axes[evdev.AbsoluteX]
	y, okY := axes[evdev.AbsoluteY]
	if !okX || !okY {
		dev.Close()
		return nil, fmt.Errorf("%s reports no absolute X/Y axes", path)
	}
	rx := AxisRange{Min: x.Min, Max: x.Max}
	ry := AxisRange{Min: y.Min, Max: y.Max}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Evdev{
		path:   path,
		name:   dev.Name(),
		dev:    dev,
		rangeX: rx,
		rangeY: ry,
		queue:  newEventQueue(RawPosition{X: rx.Min, Y: ry.Min}),
		cancel: cancel,
	}
	go d.pump(dev.Poll(ctx))
	return d, nil
}

// pump feeds the queue until the poll channel closes, which happens on a
// read error such as the gun being unplugged.
func (d *Evdev) pump(events <-chan *evdev.EventEnvelope) {
	for env := range events {
		d.queue.push(inputEvent{
			Type:  uint16(env.Event.Type),
			Code:  env.Event.Code,
			Value: env.Event.Value,
		})
	}
	d.queue.fail(lostError(d.path, nil))
}

func (d *Evdev) Path() string { return d.path }
func (d *Evdev) Name() string { return d.name }

// Ranges returns the ABS_X and ABS_Y ranges reported at open time.
func (d *Evdev) Ranges() (AxisRange, AxisRange) { return d.rangeX, d.rangeY }

// Position returns the last absolute position seen. Before any axis event
// it is the minimum of both axis ranges.
func (d *Evdev) Position() RawPosition { return d.queue.position() }

// Drain returns the button transitions received since the previous call,
// in arrival order. It never blocks.
func (d *Evdev) Drain() ([]ButtonEvent, error) {
	if d.closed {
		return nil, lostError(d.path, nil)
	}
	return d.queue.drain()
}

// Grab takes exclusive access so the desktop does not react to the gun
// while calibrating.
func (d *Evdev) Grab() error {
	if d.grabbed {
		return nil
	}
	if err := d.dev.Lock(); err != nil {
		return fmt.Errorf("grab %s: %w", d.path, err)
	}
	d.grabbed = true
	return nil
}

// Release undoes Grab. Calling it without a grab, or twice, does nothing.
func (d *Evdev) Release() error {
	if !d.grabbed {
		return nil
	}
	d.grabbed = false
	if err := d.dev.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", d.path, err)
	}
	return nil
}

func (d *Evdev) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.cancel()
	return d.dev.Close()
}
