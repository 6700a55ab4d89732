// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"image"
	"log"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// PanelLines is the number of text rows that fit the 128x64 panel.
const PanelLines = 4

// StatusPanel mirrors the wizard state on a small SSD1306 OLED so the
// operator can follow progress without looking at the main screen.
type StatusPanel struct {
	mu     sync.Mutex
	bus    i2c.BusCloser
	dev    *ssd1306.Dev
	logger *log.Logger
}

// OpenStatusPanel initialises periph, opens the I2C bus (empty name picks
// the first bus) and the display at its default address.
func OpenStatusPanel(busName string, logger *log.Logger) (*StatusPanel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize status panel: %w", err)
	}
	logger.Printf("display: status panel initialized on bus %q", busName)

	return &StatusPanel{bus: bus, dev: dev, logger: logger}, nil
}

// Show replaces the panel contents. Extra lines are dropped.
func (p *StatusPanel) Show(lines ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	img := RenderPanel(p.dev.Bounds(), lines)
	return p.dev.Draw(p.dev.Bounds(), img, image.Point{})
}

func (p *StatusPanel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.dev.Halt(); err != nil {
		p.logger.Printf("display: error halting status panel: %v", err)
	}
	return p.bus.Close()
}

// RenderPanel draws up to PanelLines rows of text into a 1-bit image.
func RenderPanel(bounds image.Rectangle, lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(bounds)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: Face,
	}

	for i, line := range lines {
		if i >= PanelLines {
			break
		}
		drawer.Dot = fixed.P(0, (i+1)*LineHeight)
		drawer.DrawString(line)
	}
	return img
}
