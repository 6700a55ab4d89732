// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package display

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	fbioGetVScreenInfo = 0x4600
	fbioGetFScreenInfo = 0x4602
)

type fbVarScreenInfo struct {
	XRes, YRes               uint32
	XResVirtual, YResVirtual uint32
	XOffset, YOffset         uint32
	BitsPerPixel             uint32
	Grayscale                uint32
	Red, Green, Blue, Transp Bitfield
	NonStd, Activate         uint32
	Height, Width            uint32
	AccelFlags               uint32
	PixClock                 uint32
	LeftMargin, RightMargin  uint32
	UpperMargin, LowerMargin uint32
	HSyncLen, VSyncLen       uint32
	Sync, VMode, Rotate      uint32
	Colorspace               uint32
	Reserved                 [4]uint32
}

type fbFixScreenInfo struct {
	ID                            [16]byte
	SmemStart                     uintptr
	SmemLen                       uint32
	Type, TypeAux, Visual         uint32
	XPanStep, YPanStep, YWrapStep uint16
	LineLength                    uint32
	MmioStart                     uintptr
	MmioLen                       uint32
	Accel                         uint32
	Capabilities                  uint16
	Reserved                      [2]uint16
}

// Framebuffer presents frames on a Linux fbdev node.
type Framebuffer struct {
	fd     int
	mem    []byte
	layout Layout
}

// OpenFramebuffer opens and maps the framebuffer device at path.
func OpenFramebuffer(path string) (*Framebuffer, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var vinfo fbVarScreenInfo
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), fbioGetVScreenInfo, uintptr(unsafe.Pointer(&vinfo))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("read variable screen info of %s: %w", path, errno)
	}
	var finfo fbFixScreenInfo
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), fbioGetFScreenInfo, uintptr(unsafe.Pointer(&finfo))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("read fixed screen info of %s: %w", path, errno)
	}

	layout := Layout{
		Width:        int(vinfo.XRes),
		Height:       int(vinfo.YRes),
		Stride:       int(finfo.LineLength),
		BitsPerPixel: int(vinfo.BitsPerPixel),
		Red:          vinfo.Red,
		Green:        vinfo.Green,
		Blue:         vinfo.Blue,
		Transp:       vinfo.Transp,
	}
	if err := layout.validate(); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	mem, err := unix.Mmap(fd, 0, int(finfo.SmemLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &Framebuffer{fd: fd, mem: mem, layout: layout}, nil
}

// Size returns the visible resolution.
func (f *Framebuffer) Size() (int, int) { return f.layout.Width, f.layout.Height }

// Present copies img to the screen, clipped to the visible area.
func (f *Framebuffer) Present(img *image.RGBA) error {
	f.layout.Blit(f.mem, img)
	return nil
}

func (f *Framebuffer) Close() error {
	err := unix.Munmap(f.mem)
	if cerr := unix.Close(f.fd); err == nil {
		err = cerr
	}
	return err
}
