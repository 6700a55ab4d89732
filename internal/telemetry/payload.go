// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"time"

	"github.com/relabs-tech/guncon_calibration/internal/calibration"
	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

// StatePayload is the JSON form of a wizard event.
type StatePayload struct {
	Kind    string            `json:"kind"`
	Slot    int               `json:"slot"`
	Device  string            `json:"device"`
	State   string            `json:"state"`
	Target  int               `json:"target"`
	PassID  string            `json:"pass_id,omitempty"`
	Shot    *calibration.Shot `json:"shot,omitempty"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Time    string            `json:"time"`
}

// ResultPayload is the JSON form of an applied calibration pass.
type ResultPayload struct {
	PassID     string                `json:"pass_id"`
	Slot       int                   `json:"slot"`
	DevicePath string                `json:"device_path"`
	DeviceName string                `json:"device_name"`
	Width      int                   `json:"width"`
	Height     int                   `json:"height"`
	Targets    [4]calibration.Target `json:"targets"`
	Shots      [4]calibration.Shot   `json:"shots"`
	Result     calibration.Result    `json:"result"`
	Time       string                `json:"time"`
}

func NewStatePayload(ev wizard.Event) StatePayload {
	p := StatePayload{
		Kind:    string(ev.Kind),
		Slot:    ev.Slot,
		Device:  ev.Device,
		State:   ev.State.String(),
		Target:  ev.Target,
		PassID:  ev.PassID,
		Shot:    ev.Shot,
		Message: ev.Message,
		Time:    ev.Time.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

func NewResultPayload(params wizard.Params, at time.Time) ResultPayload {
	return ResultPayload{
		PassID:     params.PassID,
		Slot:       params.Slot,
		DevicePath: params.DevicePath,
		DeviceName: params.DeviceName,
		Width:      params.Width,
		Height:     params.Height,
		Targets:    params.Targets,
		Shots:      params.Shots,
		Result:     params.Result,
		Time:       at.UTC().Format(time.RFC3339),
	}
}
