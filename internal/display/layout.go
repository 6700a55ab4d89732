// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"encoding/binary"
	"fmt"
	"image"
)

// Bitfield describes where one colour channel sits inside a pixel.
type Bitfield struct {
	Offset   uint32
	Length   uint32
	MsbRight uint32
}

// Layout is the pixel memory layout of a framebuffer.
type Layout struct {
	Width, Height int
	Stride        int
	BitsPerPixel  int

	Red, Green, Blue, Transp Bitfield
}

// RGB565 is the common 16 bpp layout.
func RGB565(width, height int) Layout {
	return Layout{
		Width:        width,
		Height:       height,
		Stride:       width * 2,
		BitsPerPixel: 16,
		Red:          Bitfield{Offset: 11, Length: 5},
		Green:        Bitfield{Offset: 5, Length: 6},
		Blue:         Bitfield{Offset: 0, Length: 5},
	}
}

// XRGB8888 is the common 32 bpp layout.
func XRGB8888(width, height int) Layout {
	return Layout{
		Width:        width,
		Height:       height,
		Stride:       width * 4,
		BitsPerPixel: 32,
		Red:          Bitfield{Offset: 16, Length: 8},
		Green:        Bitfield{Offset: 8, Length: 8},
		Blue:         Bitfield{Offset: 0, Length: 8},
	}
}

func (l Layout) validate() error {
	if l.BitsPerPixel != 16 && l.BitsPerPixel != 32 {
		return fmt.Errorf("unsupported framebuffer depth %d bpp", l.BitsPerPixel)
	}
	if l.Width <= 0 || l.Height <= 0 || l.Stride < l.Width*l.BitsPerPixel/8 {
		return fmt.Errorf("invalid framebuffer geometry %dx%d stride %d", l.Width, l.Height, l.Stride)
	}
	return nil
}

func channel(v uint8, f Bitfield) uint32 {
	if f.Length == 0 {
		return 0
	}
	c := uint32(v)
	if f.Length < 8 {
		c >>= 8 - f.Length
	}
	return c << f.Offset
}

// Pack encodes an RGB triple into a pixel value for this layout.
func (l Layout) Pack(r, g, b uint8) uint32 {
	px := channel(r, l.Red) | channel(g, l.Green) | channel(b, l.Blue)
	if l.Transp.Length > 0 {
		px |= (1<<l.Transp.Length - 1) << l.Transp.Offset
	}
	return px
}

// Blit writes img into mem, clipped to the smaller of the image and the
// visible area.
func (l Layout) Blit(mem []byte, img *image.RGBA) {
	area := img.Bounds().Intersect(image.Rect(0, 0, l.Width, l.Height))
	bytesPP := l.BitsPerPixel / 8
	for y := area.Min.Y; y < area.Max.Y; y++ {
		row := y * l.Stride
		if row+area.Max.X*bytesPP > len(mem) {
			return
		}
		for x := area.Min.X; x < area.Max.X; x++ {
			i := img.PixOffset(x, y)
			px := l.Pack(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
			off := row + x*bytesPP
			switch bytesPP {
			case 2:
				binary.LittleEndian.PutUint16(mem[off:], uint16(px))
			case 4:
				binary.LittleEndian.PutUint32(mem[off:], px)
			}
		}
	}
}
