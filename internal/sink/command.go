// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sink applies a finished calibration to the system by running the
// evdev-joystick, xinput and jscal tools.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/relabs-tech/guncon_calibration/internal/calibration"
	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

// ErrSinkApplyFailed wraps every command failure of one Apply call.
var ErrSinkApplyFailed = errors.New("applying calibration failed")

// Fixed jscal entries for the gun's four auxiliary axes.
var jscalAuxAxes = []string{
	"1", "0", "129", "129", "4161663", "4260750",
	"1", "0", "126", "126", "4260750", "4161663",
	"1", "0", "127", "127", "4227201", "4194176",
	"1", "0", "126", "126", "4260750", "4161663",
}

// Binaries names the external tools. Empty fields fall back to the tool's
// plain name resolved through PATH.
type Binaries struct {
	EvdevJoystick string
	Xinput        string
	Jscal         string
}

func (b Binaries) withDefaults() Binaries {
	if b.EvdevJoystick == "" {
		b.EvdevJoystick = "evdev-joystick"
	}
	if b.Xinput == "" {
		b.Xinput = "xinput"
	}
	if b.Jscal == "" {
		b.Jscal = "jscal"
	}
	return b
}

// Command is one external invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if strings.ContainsAny(a, " '\"") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Runner executes a command.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec and reports stderr on failure.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// JoystickPath is the legacy joystick node for a slot.
func JoystickPath(slot int) string {
	return "/dev/input/js" + strconv.Itoa(slot)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func breakpointArgs(bp calibration.Breakpoint) []string {
	return []string{
		"1", "10",
		strconv.Itoa(bp.Center),
		strconv.Itoa(bp.Breakpoint),
		strconv.Itoa(bp.ScaleLow),
		strconv.Itoa(bp.ScaleHigh),
	}
}

// BuildCommands returns, in order, the two evdev axis range updates, the
// pointer transformation matrix and the joystick calibration for p.
func BuildCommands(p wizard.Params, bins Binaries) []Command {
	bins = bins.withDefaults()
	r := p.Result

	// The driver applies Y inverted, so max goes to --minimum.
	evdevX := Command{Name: bins.EvdevJoystick, Args: []string{
		"--e", p.DevicePath, "-a", "0",
		"--minimum", strconv.Itoa(r.RangeX.Min),
		"--maximum", strconv.Itoa(r.RangeX.Max),
	}}
	evdevY := Command{Name: bins.EvdevJoystick, Args: []string{
		"--e", p.DevicePath, "-a", "1",
		"--minimum", strconv.Itoa(r.RangeY.Max),
		"--maximum", strconv.Itoa(r.RangeY.Min),
	}}

	tr := r.Transform
	xinput := Command{Name: bins.Xinput, Args: []string{
		"set-prop", p.DeviceName, "Coordinate Transformation Matrix",
		ftoa(tr.XScale), "0", ftoa(tr.XOffset),
		"0", ftoa(tr.YScale), ftoa(tr.YOffset),
		"0", "0", "1",
	}}

	cal := []string{"6"}
	cal = append(cal, breakpointArgs(r.BreakpointX)...)
	cal = append(cal, breakpointArgs(r.BreakpointY)...)
	cal = append(cal, jscalAuxAxes...)
	jscal := Command{Name: bins.Jscal, Args: []string{"-s", strings.Join(cal, ","), JoystickPath(p.Slot)}}

	return []Command{evdevX, evdevY, xinput, jscal}
}

// CommandSink runs the calibration commands for every finished pass.
type CommandSink struct {
	bins   Binaries
	runner Runner
	logger *log.Logger
}

// NewCommandSink returns a sink that runs commands through runner. A nil
// runner uses ExecRunner.
func NewCommandSink(bins Binaries, runner Runner, logger *log.Logger) *CommandSink {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CommandSink{bins: bins, runner: runner, logger: logger}
}

// Apply runs every command even when an earlier one fails and returns the
// failures joined under ErrSinkApplyFailed.
func (s *CommandSink) Apply(ctx context.Context, p wizard.Params) error {
	var errs []error
	for _, c := range BuildCommands(p, s.bins) {
		s.logger.Printf("sink: slot %d: %s", p.Slot, c)
		if err := s.runner.Run(ctx, c); err != nil {
			s.logger.Printf("sink: slot %d: %s failed: %v", p.Slot, c.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSinkApplyFailed, errors.Join(errs...))
}
