// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !linux

package device

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupported is returned on platforms without evdev.
var ErrUnsupported = fmt.Errorf("evdev is not available on %s", runtime.GOOS)

// Evdev is only implemented on Linux.
type Evdev struct{}

func Open(path string) (*Evdev, error) { return nil, ErrUnsupported }

func Discover(name string, limit int) ([]string, error) { return nil, ErrUnsupported }

func (d *Evdev) Path() string { return "" }

func (d *Evdev) Name() string { return "" }

func (d *Evdev) Ranges() (AxisRange, AxisRange) { return AxisRange{}, AxisRange{} }

func (d *Evdev) Position() RawPosition { return RawPosition{} }

func (d *Evdev) Drain() ([]ButtonEvent, error) {
	return nil, errors.Join(ErrDeviceLost, ErrUnsupported)
}

func (d *Evdev) Grab() error { return ErrUnsupported }

func (d *Evdev) Release() error { return nil }

func (d *Evdev) Close() error { return nil }
