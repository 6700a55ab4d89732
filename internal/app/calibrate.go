// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/relabs-tech/guncon_calibration/internal/config"
	"github.com/relabs-tech/guncon_calibration/internal/device"
	"github.com/relabs-tech/guncon_calibration/internal/display"
	"github.com/relabs-tech/guncon_calibration/internal/sink"
	"github.com/relabs-tech/guncon_calibration/internal/telemetry"
	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

// ErrNoDeviceFound is returned when no gun with the configured name is
// attached.
var ErrNoDeviceFound = errors.New("no matching device found")

// gun is an opened device as a calibration session uses it.
type gun interface {
	wizard.Source
	Name() string
	Grab() error
	Release() error
	Close() error
}

// RunCalibration discovers up to two guns and calibrates them one after the
// other on the framebuffer. SIGINT ends the current gun's session; ctx
// cancellation ends the whole run.
func RunCalibration(ctx context.Context, cfg *config.Config, debug bool, logger *log.Logger) error {
	paths, err := device.Discover(cfg.DeviceName, device.MaxDevices)
	if err != nil {
		return fmt.Errorf("discover devices: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: %q", ErrNoDeviceFound, cfg.DeviceName)
	}
	logger.Printf("calibrate: found %d device(s): %s", len(paths), strings.Join(paths, ", "))

	fb, err := display.OpenFramebuffer(cfg.FramebufferDevice)
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}
	defer fb.Close()
	if w, h := fb.Size(); w != cfg.Width || h != cfg.Height {
		logger.Printf("calibrate: framebuffer is %dx%d, drawing at %dx%d", w, h, cfg.Width, cfg.Height)
	}

	reporters := wizard.Reporters{wizard.LogReporter{Logger: logger}}
	sinks := wizard.Sinks{sink.NewCommandSink(sink.Binaries{
		EvdevJoystick: cfg.EvdevJoystickBin,
		Xinput:        cfg.XinputBin,
		Jscal:         cfg.JscalBin,
	}, nil, logger)}

	if cfg.MQTTBroker != "" {
		pub, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientIDCalibrate, cfg.TopicState, cfg.TopicResult, logger)
		if err != nil {
			logger.Printf("calibrate: telemetry disabled: %v", err)
		} else {
			defer pub.Close()
			reporters = append(reporters, pub)
			sinks = append(sinks, pub)
		}
	}

	if cfg.StatusPanel {
		panel, err := display.OpenStatusPanel(cfg.StatusPanelBus, logger)
		if err != nil {
			logger.Printf("calibrate: status panel disabled: %v", err)
		} else {
			defer panel.Close()
			reporters = append(reporters, panelReporter{panel: panel, logger: logger})
		}
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	r := &sessionRunner{
		cfg:        cfg,
		open:       openEvdev,
		surface:    fb,
		sink:       sinks,
		reporter:   reporters,
		logger:     logger,
		debug:      debug,
		interrupts: interrupts,
	}
	r.runAll(ctx, paths)
	return nil
}

func openEvdev(path string) (gun, error) {
	d, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// sessionRunner calibrates each discovered gun in slot order.
type sessionRunner struct {
	cfg        *config.Config
	open       func(path string) (gun, error)
	surface    wizard.Surface
	sink       wizard.Sink
	reporter   wizard.Reporter
	logger     *log.Logger
	debug      bool
	interrupts <-chan os.Signal
}

// runAll runs one session per path. A failing session is logged and the
// next gun still gets its turn.
func (r *sessionRunner) runAll(ctx context.Context, paths []string) {
	for slot, path := range paths {
		if ctx.Err() != nil {
			r.logger.Printf("calibrate: stopping before slot %d: %v", slot, ctx.Err())
			return
		}
		r.logger.Printf("calibrate: slot %d: starting session on %s", slot, path)
		if err := r.runOne(ctx, slot, path); err != nil {
			if errors.Is(err, device.ErrDeviceLost) {
				r.logger.Printf("calibrate: slot %d: device lost, skipping: %v", slot, err)
				continue
			}
			r.logger.Printf("calibrate: slot %d: session failed: %v", slot, err)
			continue
		}
		r.logger.Printf("calibrate: slot %d: session ended", slot)
	}
}

func (r *sessionRunner) runOne(ctx context.Context, slot int, path string) error {
	g, err := r.open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer g.Close()

	if err := g.Grab(); err != nil {
		return err
	}
	defer func() {
		if err := g.Release(); err != nil {
			r.logger.Printf("calibrate: slot %d: %v", slot, err)
		}
	}()

	if n := drainInterrupts(r.interrupts); n > 0 {
		r.logger.Printf("calibrate: slot %d: dropped %d interrupt(s) received between sessions", slot, n)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.interrupts:
			r.logger.Printf("calibrate: slot %d: interrupted, ending session", slot)
			cancel()
		case <-sessCtx.Done():
		}
	}()

	var src wizard.Source = g
	if r.debug {
		src = &tracingSource{Source: g, slot: slot, logger: r.logger}
	}

	w := wizard.New(wizard.Options{
		Slot:       slot,
		DevicePath: path,
		DeviceName: g.Name(),
		Width:      r.cfg.Width,
		Height:     r.cfg.Height,
		FrameRate:  r.cfg.FrameRate,
	}, src, r.surface, r.sink, r.reporter)

	return w.Run(sessCtx)
}

// drainInterrupts discards interrupts that arrived while no session was
// listening, so they cannot end the next gun's session before it starts.
func drainInterrupts(ch <-chan os.Signal) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

// tracingSource logs every non-empty batch of button events.
type tracingSource struct {
	wizard.Source
	slot   int
	logger *log.Logger
}

func (t *tracingSource) Drain() ([]device.ButtonEvent, error) {
	events, err := t.Source.Drain()
	if len(events) > 0 {
		t.logger.Printf("calibrate: slot %d: raw %+v events %v", t.slot, t.Position(), events)
	}
	return events, err
}
