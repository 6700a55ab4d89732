// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !linux

package display

import (
	"errors"
	"image"
)

var errNoFramebuffer = errors.New("framebuffer output requires linux")

// Framebuffer is only implemented on Linux.
type Framebuffer struct{}

func OpenFramebuffer(path string) (*Framebuffer, error) { return nil, errNoFramebuffer }

func (f *Framebuffer) Size() (int, int) { return 0, 0 }

func (f *Framebuffer) Present(img *image.RGBA) error { return errNoFramebuffer }

func (f *Framebuffer) Close() error { return nil }
