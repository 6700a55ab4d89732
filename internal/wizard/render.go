// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wizard

import (
	"fmt"
	"time"

	"github.com/relabs-tech/guncon_calibration/internal/calibration"
	"github.com/relabs-tech/guncon_calibration/internal/device"
	"github.com/relabs-tech/guncon_calibration/internal/display"
)

const (
	margin       = 20
	startPrompt  = "Pull the TRIGGER to start calibration"
	secondaryTip = "Press A or B to skip this gun"
)

// NaiveCursor maps a raw position to screen pixels assuming the gun spans
// the full signed 16-bit range. It is only a preview before calibration.
func NaiveCursor(pos device.RawPosition, width, height int) (int, int) {
	cx := int((float64(pos.X) + calibration.RawCenter) / (2 * calibration.RawCenter) * float64(width))
	cy := int((float64(pos.Y) + calibration.RawCenter) / (2 * calibration.RawCenter) * float64(height))
	return cx, cy
}

type fpsCounter struct {
	start  time.Time
	frames int
	rate   float64
}

func (f *fpsCounter) tick(now time.Time) {
	if f.start.IsZero() {
		f.start = now
		return
	}
	f.frames++
	if elapsed := now.Sub(f.start); elapsed >= time.Second {
		f.rate = float64(f.frames) / elapsed.Seconds()
		f.start = now
		f.frames = 0
	}
}

func (w *Wizard) render() {
	c := w.canvas
	width, height := w.opts.Width, w.opts.Height
	pos := w.src.Position()
	cx, cy := NaiveCursor(pos, width, height)

	w.fps.tick(w.now())

	c.Clear()
	c.Text(margin, margin, fmt.Sprintf("FPS: %.1f", w.fps.rate), display.InfoText)
	c.TextRight(width-margin, margin, fmt.Sprintf("Gun %d: %s", w.opts.Slot+1, w.opts.DevicePath), display.InfoText)
	c.Text(margin, height-40, fmt.Sprintf("Raw: (%d, %d)", pos.X, pos.Y), display.InfoText)
	c.TextRight(width-margin, height-40, fmt.Sprintf("Cursor: (%d, %d)", cx, cy), display.InfoText)

	switch w.state {
	case AwaitingStart:
		c.TextCenter(width/2, height-60, startPrompt, display.Prompt)
		c.TextCenter(width/2, height-60+display.LineHeight+2, secondaryTip, display.InfoText)
		if cx >= 0 && cx < width && cy >= 0 && cy < height {
			c.Cursor(cx, cy, display.CursorTint)
		}
	case PresentingTarget:
		tg := w.targets[w.index]
		c.Target(tg.X, tg.Y)
		c.TextCenter(width/2, height-60, fmt.Sprintf("Shoot the target (%d/4)", w.index+1), display.Prompt)
	case Done:
		c.TextCenter(width/2, height-60, "Computing calibration...", display.Prompt)
	}

	if w.messageLeft > 0 {
		c.TextCenter(width/2, height/2, w.message, display.Warning)
		w.messageLeft--
	}
}
