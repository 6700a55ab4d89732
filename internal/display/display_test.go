// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"encoding/binary"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func painted(c *Canvas, r image.Rectangle) int {
	n := 0
	img := c.Image()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.RGBAAt(x, y) != Background {
				n++
			}
		}
	}
	return n
}

func TestCanvasClear(t *testing.T) {
	c := NewCanvas(64, 48)
	c.Clear()
	w, h := c.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)
	assert.Zero(t, painted(c, c.Image().Bounds()))
}

func TestCanvasTarget(t *testing.T) {
	c := NewCanvas(200, 200)
	c.Clear()
	c.Target(100, 100)

	img := c.Image()
	assert.NotEqual(t, Background, img.RGBAAt(100, 100), "cross centre")
	assert.NotEqual(t, Background, img.RGBAAt(140, 100), "ring right")
	assert.NotEqual(t, Background, img.RGBAAt(100, 59), "ring top")
	assert.Equal(t, Background, img.RGBAAt(120, 120), "inside ring")
	assert.Equal(t, Background, img.RGBAAt(150, 150), "outside ring")
}

func TestCanvasTargetClipped(t *testing.T) {
	c := NewCanvas(50, 50)
	c.Clear()
	assert.NotPanics(t, func() {
		c.Target(0, 0)
		c.Target(-500, 900)
		c.Cursor(49, 49, CursorTint)
	})
	assert.NotZero(t, painted(c, c.Image().Bounds()))
}

func TestCanvasCursor(t *testing.T) {
	c := NewCanvas(100, 100)
	c.Clear()
	c.Cursor(50, 50, CursorTint)

	img := c.Image()
	assert.Equal(t, Background, img.RGBAAt(50, 50), "centre stays open")
	assert.NotEqual(t, Background, img.RGBAAt(42, 42))
	assert.NotEqual(t, Background, img.RGBAAt(58, 58))
	assert.Equal(t, Background, img.RGBAAt(50, 30))
}

func TestCanvasText(t *testing.T) {
	c := NewCanvas(200, 40)
	c.Clear()
	c.Text(10, 10, "RAW", InfoText)

	assert.NotZero(t, painted(c, image.Rect(10, 10, 10+TextWidth("RAW"), 10+LineHeight)))
	assert.Zero(t, painted(c, image.Rect(0, 0, 10, 40)))
	assert.Equal(t, 21, TextWidth("RAW"))
}

func TestCanvasTextRight(t *testing.T) {
	c := NewCanvas(200, 40)
	c.Clear()
	c.TextRight(180, 10, "X: 12", InfoText)

	assert.Zero(t, painted(c, image.Rect(180, 0, 200, 40)))
	assert.NotZero(t, painted(c, image.Rect(180-TextWidth("X: 12"), 10, 180, 10+LineHeight)))
}

func TestLayoutPack(t *testing.T) {
	t.Run("rgb565", func(t *testing.T) {
		l := RGB565(1, 1)
		assert.Equal(t, uint32(0xF800), l.Pack(255, 0, 0))
		assert.Equal(t, uint32(0x07E0), l.Pack(0, 255, 0))
		assert.Equal(t, uint32(0x001F), l.Pack(0, 0, 255))
	})

	t.Run("xrgb8888", func(t *testing.T) {
		l := XRGB8888(1, 1)
		assert.Equal(t, uint32(0x00505050), l.Pack(80, 80, 80))
	})

	t.Run("alpha channel set opaque", func(t *testing.T) {
		l := XRGB8888(1, 1)
		l.Transp = Bitfield{Offset: 24, Length: 8}
		assert.Equal(t, uint32(0xFF0000FF), l.Pack(0, 0, 255))
	})
}

func TestLayoutBlitClips(t *testing.T) {
	l := XRGB8888(4, 2)
	mem := make([]byte, l.Stride*l.Height)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	l.Blit(mem, img)

	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, uint32(0x00FFFFFF), binary.LittleEndian.Uint32(mem[y*l.Stride+x*4:]))
		}
	}
}

func TestLayoutValidate(t *testing.T) {
	require.NoError(t, RGB565(320, 240).validate())

	bad := XRGB8888(320, 240)
	bad.BitsPerPixel = 24
	assert.Error(t, bad.validate())

	short := RGB565(320, 240)
	short.Stride = 100
	assert.Error(t, short.validate())
}

func TestRenderPanel(t *testing.T) {
	img := RenderPanel(image.Rect(0, 0, 128, 64), []string{"slot 0", "target 2/4", "", "", "dropped"})

	lit := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 128; x++ {
			if img.BitAt(x, y) == image1bit.On {
				lit++
			}
		}
	}
	assert.NotZero(t, lit)

	// Nothing below the fourth row.
	for y := PanelLines*LineHeight + 3; y < 64; y++ {
		for x := 0; x < 128; x++ {
			assert.Equal(t, image1bit.Off, img.BitAt(x, y))
		}
	}
}
