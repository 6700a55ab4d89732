// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"

	"github.com/relabs-tech/guncon_calibration/internal/display"
	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

// panelColumns is how many 7px glyphs fit the 128px panel.
const panelColumns = 18

type panelShower interface {
	Show(lines ...string) error
}

// panelReporter mirrors wizard events on the status panel.
type panelReporter struct {
	panel  panelShower
	logger *log.Logger
}

func (p panelReporter) Report(ev wizard.Event) {
	if err := p.panel.Show(panelLines(ev)...); err != nil {
		p.logger.Printf("display: error updating status panel: %v", err)
	}
}

func panelLines(ev wizard.Event) []string {
	lines := make([]string, 0, display.PanelLines)
	lines = append(lines, fmt.Sprintf("Gun %d", ev.Slot+1))

	switch ev.State {
	case wizard.PresentingTarget:
		lines = append(lines, fmt.Sprintf("Target %d/4", ev.Target+1))
	case wizard.Done:
		lines = append(lines, "Solving")
	default:
		lines = append(lines, "Pull trigger")
	}

	msg := ev.Message
	if ev.Kind == wizard.EventDegenerate || ev.Kind == wizard.EventSinkError || ev.Kind == wizard.EventDeviceLost {
		msg = "! " + msg
	}
	for len(msg) > 0 && len(lines) < display.PanelLines {
		n := min(len(msg), panelColumns)
		lines = append(lines, msg[:n])
		msg = msg[n:]
	}
	return lines
}
