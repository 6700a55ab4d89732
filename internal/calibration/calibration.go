// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration turns four (target, shot) pairs into the per-axis
// affine mapping between raw gun coordinates and screen pixels, and
// re-encodes that mapping for the consumers that apply it.
//
// Targets are always ordered top-left, top-right, bottom-right, bottom-left.
// Every value produced here is derived from the shots alone; the package
// keeps no state and performs no I/O.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// TargetInsetPercent is how far each target sits inside the screen edge,
	// as a percentage of the matching screen dimension.
	TargetInsetPercent = 30

	// RawCenter is the device midpoint used by the normalized encoding and
	// by the uncalibrated cursor preview.
	RawCenter = 32767.0

	rawSpan = 65535.0

	// Shot-fit constants of the normalized Y encoding: the top and bottom
	// targets sit at 30% and 70% of the span and the result is shifted into
	// the consumer's [-1, 1] centred space.
	shotFitLow  = 0.3
	shotFitHigh = 0.7
	shotFitBias = 1.7

	breakpointGain  = 32767.0
	breakpointQuant = 16384.0
)

// ErrDegenerateCalibration reports shots that cannot define a mapping, for
// example the same raw value captured for two different targets.
var ErrDegenerateCalibration = errors.New("degenerate calibration")

// Target is a point on screen, in pixels.
type Target struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Shot is the raw gun position captured for a target.
type Shot struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Axis is the solved line screen = Scale*raw + Offset together with the raw
// values that land on the two screen edges.
type Axis struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	RawMin float64 `json:"raw_min"`
	RawMax float64 `json:"raw_max"`
}

// AxisRange is the driver axis range encoding, in device units.
type AxisRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// LinearFit is a scale/offset pair in normalized space.
type LinearFit struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Transform is the normalized scale/offset encoding consumed as a pointer
// coordinate transformation matrix.
//
// RangeFitY is the Y fit derived from RawMin/RawMax. It is reported but
// YScale/YOffset come from the shot fit, which is what consumers expect.
type Transform struct {
	XScale    float64   `json:"x_scale"`
	XOffset   float64   `json:"x_offset"`
	YScale    float64   `json:"y_scale"`
	YOffset   float64   `json:"y_offset"`
	RangeFitY LinearFit `json:"range_fit_y"`
}

// Breakpoint is the legacy piecewise-linear joystick calibration of one axis.
type Breakpoint struct {
	Center     int `json:"center"`
	Breakpoint int `json:"breakpoint"`
	ScaleLow   int `json:"scale_low"`
	ScaleHigh  int `json:"scale_high"`
}

// Result bundles the solved axes and all encodings of one calibration pass.
type Result struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`

	RangeX AxisRange `json:"range_x"`
	RangeY AxisRange `json:"range_y"`

	Transform Transform `json:"transform"`

	BreakpointX Breakpoint `json:"breakpoint_x"`
	BreakpointY Breakpoint `json:"breakpoint_y"`
}

// Targets returns the four calibration targets for a width x height screen.
func Targets(width, height int) [4]Target {
	dx := width * TargetInsetPercent / 100
	dy := height * TargetInsetPercent / 100
	return [4]Target{
		{X: dx, Y: dy},
		{X: width - dx, Y: dy},
		{X: width - dx, Y: height - dy},
		{X: dx, Y: height - dy},
	}
}

// Solve computes the calibration for one pass.
//
// X uses the two top targets against the smallest and largest raw X of all
// shots. Y uses the top and bottom rows against the mean raw Y of each row.
func Solve(targets [4]Target, shots [4]Shot, width, height int) (Result, error) {
	xs := make([]float64, len(shots))
	ys := make([]float64, len(shots))
	for i, s := range shots {
		xs[i] = float64(s.X)
		ys[i] = float64(s.Y)
	}

	x, err := solveAxis(
		float64(targets[0].X), float64(targets[1].X),
		floats.Min(xs), floats.Max(xs),
		float64(width),
	)
	if err != nil {
		return Result{}, fmt.Errorf("x axis: %w", err)
	}

	y, err := solveAxis(
		float64(targets[0].Y), float64(targets[2].Y),
		(ys[0]+ys[1])/2, (ys[2]+ys[3])/2,
		float64(height),
	)
	if err != nil {
		return Result{}, fmt.Errorf("y axis: %w", err)
	}

	res := Result{X: x, Y: y}

	if res.RangeX, err = axisRange(x); err != nil {
		return Result{}, fmt.Errorf("x range: %w", err)
	}
	if res.RangeY, err = axisRange(y); err != nil {
		return Result{}, fmt.Errorf("y range: %w", err)
	}
	if res.Transform, err = transform(x, y, floats.Min(ys), floats.Max(ys)); err != nil {
		return Result{}, fmt.Errorf("transform: %w", err)
	}
	if res.BreakpointX, err = breakpoint(x); err != nil {
		return Result{}, fmt.Errorf("x breakpoint: %w", err)
	}
	if res.BreakpointY, err = breakpoint(y); err != nil {
		return Result{}, fmt.Errorf("y breakpoint: %w", err)
	}
	return res, nil
}

// solveAxis fits screen = a*raw + b through (v1, s1) and (v2, s2) and
// returns the raw values mapping to screen 0 and screen extent.
func solveAxis(s1, s2, v1, v2, extent float64) (Axis, error) {
	if v1 == v2 {
		return Axis{}, fmt.Errorf("%w: identical raw values %.0f for distinct targets", ErrDegenerateCalibration, v1)
	}
	a := (s1 - s2) / (v1 - v2)
	b := (s2*v1 - s1*v2) / (v1 - v2)
	if a == 0 {
		return Axis{}, fmt.Errorf("%w: targets share screen coordinate %.0f", ErrDegenerateCalibration, s1)
	}
	ax := Axis{
		Scale:  a,
		Offset: b,
		RawMin: -b / a,
		RawMax: (extent - b) / a,
	}
	if err := finite(ax.Scale, ax.Offset, ax.RawMin, ax.RawMax); err != nil {
		return Axis{}, err
	}
	return ax, nil
}

func axisRange(ax Axis) (AxisRange, error) {
	lo, err := truncate(ax.RawMin)
	if err != nil {
		return AxisRange{}, err
	}
	hi, err := truncate(ax.RawMax)
	if err != nil {
		return AxisRange{}, err
	}
	return AxisRange{Min: lo, Max: hi}, nil
}

func transform(x, y Axis, shotMinY, shotMaxY float64) (Transform, error) {
	minX := x.RawMin + RawCenter
	maxX := x.RawMax + RawCenter
	xScale := rawSpan / (maxX - minX)
	xOffset := -(minX * xScale / rawSpan)

	minY := y.RawMin + RawCenter
	maxY := y.RawMax + RawCenter
	rangeScale := rawSpan / (maxY - minY)
	rangeOffset := -(rangeScale * (minY + maxY) / 2 / rawSpan)

	if shotMaxY == shotMinY {
		return Transform{}, fmt.Errorf("%w: no vertical spread in shots", ErrDegenerateCalibration)
	}
	yScale := (shotFitHigh - shotFitLow) / ((shotMaxY - shotMinY) / rawSpan)
	yOffset := shotMinY/rawSpan*yScale - shotFitBias

	t := Transform{
		XScale:    xScale,
		XOffset:   xOffset,
		YScale:    yScale,
		YOffset:   yOffset,
		RangeFitY: LinearFit{Scale: rangeScale, Offset: rangeOffset},
	}
	if err := finite(t.XScale, t.XOffset, t.YScale, t.YOffset, rangeScale, rangeOffset); err != nil {
		return Transform{}, err
	}
	return t, nil
}

func breakpoint(ax Axis) (Breakpoint, error) {
	center := (ax.RawMin + ax.RawMax) / 2
	low := breakpointGain / (center - ax.RawMin) * breakpointQuant
	high := breakpointGain / (ax.RawMax - center) * breakpointQuant

	var (
		bp  Breakpoint
		err error
	)
	if bp.Center, err = truncate(center); err != nil {
		return Breakpoint{}, err
	}
	bp.Breakpoint = bp.Center
	if bp.ScaleLow, err = truncate(low); err != nil {
		return Breakpoint{}, err
	}
	if bp.ScaleHigh, err = truncate(high); err != nil {
		return Breakpoint{}, err
	}
	return bp, nil
}

// truncate converts toward zero, refusing values an int32 consumer cannot hold.
func truncate(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: value %g out of range", ErrDegenerateCalibration, v)
	}
	return int(v), nil
}

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coefficient", ErrDegenerateCalibration)
		}
	}
	return nil
}
