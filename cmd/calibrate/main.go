// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibrate/main.go
//
// Four-point calibration for GunCon 3 light guns.
// For every attached gun (at most two, in discovery order):
//  1. Pull the trigger to start.
//  2. Shoot the four targets, clockwise from the top left.
//  3. The solved ranges are applied with evdev-joystick, xinput and jscal.
//
// Either secondary button ends the current gun's session. Ctrl+C does the
// same from the keyboard; SIGTERM ends the whole run.
//
// Run:
//
//	sudo ./calibrate -r 1920x1080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/guncon_calibration/internal/app"
	"github.com/relabs-tech/guncon_calibration/internal/config"
)

const (
	exitNoDevice      = 1
	exitInvalidConfig = 2
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to configuration file")
	var overrides config.Overrides
	flag.StringVar(&overrides.Resolution, "resolution", "", "screen resolution as WIDTHxHEIGHT")
	flag.StringVar(&overrides.Resolution, "r", "", "shorthand for -resolution")
	flag.StringVar(&overrides.CenterTarget, "center-target", "", "center target as (x, y) (reserved)")
	flag.StringVar(&overrides.TopLeftTarget, "topleft-target", "", "top-left target as (x, y) (reserved)")
	flag.StringVar(&overrides.Capture, "capture", "", "capture file (reserved)")
	debug := flag.Bool("debug", false, "log every batch of button events")
	flag.Parse()

	log.Println("starting guncon calibration")

	// Load configuration, then layer the flags on top
	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(exitInvalidConfig)
	}
	cfg := config.Get()
	if err := cfg.Apply(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitInvalidConfig)
	}
	log.Printf("resolution %dx%d at %d fps, looking for %q", cfg.Width, cfg.Height, cfg.FrameRate, cfg.DeviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	err := app.RunCalibration(ctx, cfg, *debug, log.Default())
	switch {
	case err == nil:
	case errors.Is(err, app.ErrNoDeviceFound):
		fmt.Fprintln(os.Stderr, "Failed to find any attached GunCon3 devices")
		stop()
		os.Exit(exitNoDevice)
	default:
		stop()
		log.Fatalf("fatal: %v", err)
	}

	log.Println("calibration finished")
}
