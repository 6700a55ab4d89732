// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Palette used by the calibration screen.
var (
	Background = color.RGBA{R: 80, G: 80, B: 80, A: 255}
	InfoText   = color.RGBA{R: 128, G: 128, B: 255, A: 255}
	Prompt     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	CursorTint = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	TargetTint = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Warning    = color.RGBA{R: 255, G: 96, B: 96, A: 255}
)

const (
	targetRadius    = 40
	targetThickness = 2
	targetCross     = 10

	cursorInner = 4
	cursorOuter = 12
)

// Face is the bitmap font used for all on-screen text.
var Face = basicfont.Face7x13

// LineHeight is the vertical distance between two text lines.
const LineHeight = 13

// Canvas draws the calibration screen into an RGBA image.
type Canvas struct {
	img *image.RGBA
}

func NewCanvas(width, height int) *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (c *Canvas) Image() *image.RGBA { return c.img }

func (c *Canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
}

// Target draws the aiming mark: a ring with a small cross at its centre.
func (c *Canvas) Target(x, y int) {
	c.ring(x, y, targetRadius, targetThickness, TargetTint)
	c.line(x-targetCross, y, x+targetCross, y, targetThickness, TargetTint)
	c.line(x, y-targetCross, x, y+targetCross, targetThickness, TargetTint)
}

// Cursor draws four diagonal ticks around (x, y).
func (c *Canvas) Cursor(x, y int, col color.Color) {
	for _, d := range [4][2]int{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
		c.line(x+d[0]*cursorInner, y+d[1]*cursorInner, x+d[0]*cursorOuter, y+d[1]*cursorOuter, 2, col)
	}
}

// Text draws s with its top-left corner at (x, y).
func (c *Canvas) Text(x, y int, s string, col color.Color) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  &image.Uniform{C: col},
		Face: Face,
		Dot:  fixed.P(x, y+Face.Ascent),
	}
	d.DrawString(s)
}

// TextRight draws s so that it ends at x.
func (c *Canvas) TextRight(x, y int, s string, col color.Color) {
	c.Text(x-TextWidth(s), y, s, col)
}

// TextCenter draws s horizontally centred on x.
func (c *Canvas) TextCenter(x, y int, s string, col color.Color) {
	c.Text(x-TextWidth(s)/2, y, s, col)
}

// TextWidth returns the rendered width of s in pixels.
func TextWidth(s string) int {
	return font.MeasureString(Face, s).Ceil()
}

func (c *Canvas) ring(cx, cy, radius, thickness int, col color.Color) {
	outer := float64(radius) + float64(thickness)/2
	inner := float64(radius) - float64(thickness)/2
	pad := int(math.Ceil(outer)) + 1

	r := image.Rect(cx-pad, cy-pad, cx+pad, cy+pad)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	ox, oy := float32(pad), float32(pad)

	const segments = 96
	// Outer clockwise, inner counter-clockwise: the hole stays empty.
	circle(z, ox, oy, float32(outer), segments, false)
	circle(z, ox, oy, float32(inner), segments, true)

	c.fill(z, r, col)
}

func circle(z *vector.Rasterizer, cx, cy, radius float32, segments int, reverse bool) {
	for i := 0; i <= segments; i++ {
		k := i
		if reverse {
			k = segments - i
		}
		a := 2 * math.Pi * float64(k) / float64(segments)
		px := cx + radius*float32(math.Cos(a))
		py := cy + radius*float32(math.Sin(a))
		if i == 0 {
			z.MoveTo(px, py)
		} else {
			z.LineTo(px, py)
		}
	}
	z.ClosePath()
}

func (c *Canvas) line(x0, y0, x1, y1, thickness int, col color.Color) {
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	half := float64(thickness) / 2
	nx := -dy / length * half
	ny := dx / length * half

	pad := thickness + 1
	r := image.Rect(min(x0, x1)-pad, min(y0, y1)-pad, max(x0, x1)+pad, max(y0, y1)+pad)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	ox := float64(x0 - r.Min.X)
	oy := float64(y0 - r.Min.Y)

	z.MoveTo(float32(ox+nx), float32(oy+ny))
	z.LineTo(float32(ox+dx+nx), float32(oy+dy+ny))
	z.LineTo(float32(ox+dx-nx), float32(oy+dy-ny))
	z.LineTo(float32(ox-nx), float32(oy-ny))
	z.ClosePath()

	c.fill(z, r, col)
}

// fill composites the rasterized coverage at r onto the image, clipping to
// the image bounds.
func (c *Canvas) fill(z *vector.Rasterizer, r image.Rectangle, col color.Color) {
	mask := image.NewAlpha(image.Rect(0, 0, r.Dx(), r.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	draw.DrawMask(c.img, r, &image.Uniform{C: col}, image.Point{}, mask, image.Point{}, draw.Over)
}
