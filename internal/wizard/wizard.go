// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package wizard drives one gun through the four-target calibration
// sequence, one frame at a time.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/guncon_calibration/internal/calibration"
	"github.com/relabs-tech/guncon_calibration/internal/device"
	"github.com/relabs-tech/guncon_calibration/internal/display"
)

// State is the wizard's position in a calibration pass.
type State int

const (
	AwaitingStart State = iota
	PresentingTarget
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting_start"
	case PresentingTarget:
		return "presenting_target"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultFrameRate is the frame loop rate in Hz.
const DefaultFrameRate = 30

// messageSeconds is how long a transient message stays on screen.
const messageSeconds = 3

// Source is the gun as seen by the wizard.
type Source interface {
	Position() device.RawPosition
	Drain() ([]device.ButtonEvent, error)
}

// Surface shows rendered frames.
type Surface interface {
	Present(*image.RGBA) error
}

// Options configures a wizard session.
type Options struct {
	Slot       int
	DevicePath string
	DeviceName string
	Width      int
	Height     int
	FrameRate  int
}

// Transition describes what one Step did.
type Transition struct {
	From   State
	To     State
	Target int
	Quit   bool
}

func (t Transition) Changed() bool { return t.From != t.To }

// Wizard runs the calibration state machine for a single gun.
type Wizard struct {
	opts     Options
	src      Source
	surface  Surface
	sink     Sink
	reporter Reporter

	state   State
	index   int
	targets [4]calibration.Target
	shots   [4]calibration.Shot

	canvas      *display.Canvas
	message     string
	messageLeft int
	fps         fpsCounter

	now func() time.Time
}

func New(opts Options, src Source, surface Surface, sink Sink, reporter Reporter) *Wizard {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if reporter == nil {
		reporter = Reporters{}
	}
	return &Wizard{
		opts:     opts,
		src:      src,
		surface:  surface,
		sink:     sink,
		reporter: reporter,
		targets:  calibration.Targets(opts.Width, opts.Height),
		canvas:   display.NewCanvas(opts.Width, opts.Height),
		now:      time.Now,
	}
}

// State returns the current state and target index.
func (w *Wizard) State() (State, int) { return w.state, w.index }

// Shots returns the shots recorded so far in the current pass.
func (w *Wizard) Shots() [4]calibration.Shot { return w.shots }

// Targets returns the target positions for this screen.
func (w *Wizard) Targets() [4]calibration.Target { return w.targets }

// Image returns the last rendered frame.
func (w *Wizard) Image() *image.RGBA { return w.canvas.Image() }

// Run drives frames until the context ends, the operator quits or the
// device is lost. Operator quit and cancellation return nil.
func (w *Wizard) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(w.opts.FrameRate))
	defer ticker.Stop()

	w.report(Event{Kind: EventState, Message: "waiting for trigger"})

	for {
		if ctx.Err() != nil {
			w.report(Event{Kind: EventQuit, Message: "session cancelled"})
			return nil
		}

		quit, err := w.Frame(ctx)
		if err != nil {
			return err
		}
		if quit {
			w.report(Event{Kind: EventQuit, Message: "operator quit"})
			return nil
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Frame runs one iteration of the loop: finish a completed pass, drain
// input, step the state machine, render and present.
func (w *Wizard) Frame(ctx context.Context) (bool, error) {
	finished := w.state == Done
	if finished {
		w.finish(ctx)
	}

	events, err := w.src.Drain()
	if err != nil {
		w.report(Event{Kind: EventDeviceLost, Message: "device lost", Err: err})
		if errors.Is(err, device.ErrDeviceLost) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", device.ErrDeviceLost, err)
	}

	// The frame that publishes a pass only consumes its input, so a trigger
	// already queued cannot start the next pass.
	if !finished {
		if tr := w.Step(events); tr.Quit {
			return true, nil
		}
	}

	w.render()
	if err := w.surface.Present(w.canvas.Image()); err != nil {
		return false, fmt.Errorf("present frame: %w", err)
	}
	return false, nil
}

// Step applies one frame of button events. A secondary button press ends
// the session and drops any partial pass. Otherwise only the first trigger
// press in the batch acts.
func (w *Wizard) Step(events []device.ButtonEvent) Transition {
	tr := Transition{From: w.state, To: w.state, Target: w.index}

	trigger := false
	for _, ev := range events {
		if !ev.Pressed {
			continue
		}
		switch ev.Button {
		case device.ButtonSecondaryA, device.ButtonSecondaryB:
			tr.Quit = true
			return tr
		case device.ButtonTrigger:
			trigger = true
		}
	}
	if !trigger {
		return tr
	}

	switch w.state {
	case AwaitingStart:
		w.state = PresentingTarget
		w.index = 0
		w.report(Event{Kind: EventState, Message: "presenting target 1/4"})

	case PresentingTarget:
		pos := w.src.Position()
		shot := calibration.Shot{X: pos.X, Y: pos.Y}
		w.shots[w.index] = shot
		tg := w.targets[w.index]
		w.report(Event{
			Kind:    EventShot,
			Shot:    &shot,
			Message: fmt.Sprintf("target %d/4 at (%d, %d) hit at raw (%d, %d)", w.index+1, tg.X, tg.Y, pos.X, pos.Y),
		})

		if w.index == len(w.targets)-1 {
			w.state = Done
			w.report(Event{Kind: EventState, Message: "all targets captured"})
		} else {
			w.index++
			w.report(Event{Kind: EventState, Message: fmt.Sprintf("presenting target %d/4", w.index+1)})
		}

	case Done:
		// finish runs at the start of the next frame
	}

	tr.To = w.state
	tr.Target = w.index
	return tr
}

func (w *Wizard) finish(ctx context.Context) {
	defer w.reset()

	passID := uuid.NewString()
	res, err := calibration.Solve(w.targets, w.shots, w.opts.Width, w.opts.Height)
	if err != nil {
		w.report(Event{Kind: EventDegenerate, PassID: passID, Message: "calibration discarded", Err: err})
		w.flash("Shots too close together, calibration discarded")
		return
	}

	summary := fmt.Sprintf("x: screen = %.6f*raw %+.3f (raw %.0f..%.0f), y: screen = %.6f*raw %+.3f (raw %.0f..%.0f)",
		res.X.Scale, res.X.Offset, res.X.RawMin, res.X.RawMax,
		res.Y.Scale, res.Y.Offset, res.Y.RawMin, res.Y.RawMax)
	w.report(Event{Kind: EventResult, PassID: passID, Result: &res, Message: summary})

	params := Params{
		Slot:       w.opts.Slot,
		DevicePath: w.opts.DevicePath,
		DeviceName: w.opts.DeviceName,
		PassID:     passID,
		Width:      w.opts.Width,
		Height:     w.opts.Height,
		Targets:    w.targets,
		Shots:      w.shots,
		Result:     res,
	}
	if w.sink == nil {
		w.flash("Calibration computed")
		return
	}
	if err := w.sink.Apply(ctx, params); err != nil {
		w.report(Event{Kind: EventSinkError, PassID: passID, Message: "applying calibration failed", Err: err})
		w.flash("Applying calibration failed, see log")
		return
	}
	w.flash("Calibration applied")
}

func (w *Wizard) reset() {
	w.state = AwaitingStart
	w.index = 0
	w.shots = [4]calibration.Shot{}
	w.report(Event{Kind: EventState, Message: "waiting for trigger"})
}

func (w *Wizard) flash(msg string) {
	w.message = msg
	w.messageLeft = messageSeconds * w.opts.FrameRate
}

func (w *Wizard) report(ev Event) {
	ev.Slot = w.opts.Slot
	ev.Device = w.opts.DevicePath
	ev.State = w.state
	ev.Target = w.index
	ev.Time = w.now()
	w.reporter.Report(ev)
}
