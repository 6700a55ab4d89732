// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wizard

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/guncon_calibration/internal/calibration"
	"github.com/relabs-tech/guncon_calibration/internal/device"
)

type frame struct {
	pos    device.RawPosition
	events []device.ButtonEvent
	err    error
}

type fakeSource struct {
	frames []frame
	pos    device.RawPosition
	drains int
}

func (s *fakeSource) Position() device.RawPosition { return s.pos }

func (s *fakeSource) Drain() ([]device.ButtonEvent, error) {
	s.drains++
	if len(s.frames) == 0 {
		return nil, nil
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	if f.err != nil {
		return nil, f.err
	}
	s.pos = f.pos
	return f.events, nil
}

type fakeSurface struct{ presented int }

func (s *fakeSurface) Present(*image.RGBA) error {
	s.presented++
	return nil
}

type fakeSink struct {
	calls []Params
	err   error
}

func (s *fakeSink) Apply(_ context.Context, p Params) error {
	s.calls = append(s.calls, p)
	return s.err
}

type recorder struct{ events []Event }

func (r *recorder) Report(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) kinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

var (
	trigger = []device.ButtonEvent{{Button: device.ButtonTrigger, Pressed: true}}
	release = []device.ButtonEvent{{Button: device.ButtonTrigger, Pressed: false}}
)

// raw = 1000 + 32*screen for the 320x240 targets.
func rawFor(tg calibration.Target) device.RawPosition {
	return device.RawPosition{X: int32(1000 + 32*tg.X), Y: int32(1000 + 32*tg.Y)}
}

type harness struct {
	w       *Wizard
	src     *fakeSource
	surface *fakeSurface
	sink    *fakeSink
	rec     *recorder
}

func newHarness(frames ...frame) *harness {
	h := &harness{
		src:     &fakeSource{frames: frames},
		surface: &fakeSurface{},
		sink:    &fakeSink{},
		rec:     &recorder{},
	}
	h.w = New(Options{Slot: 1, DevicePath: "/dev/input/event7", DeviceName: device.DefaultName, Width: 320, Height: 240},
		h.src, h.surface, h.sink, h.rec)
	return h
}

func (h *harness) frames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		quit, err := h.w.Frame(context.Background())
		require.NoError(t, err)
		require.False(t, quit)
	}
}

func fullPass(targets [4]calibration.Target) []frame {
	frames := []frame{{events: trigger}}
	for _, tg := range targets {
		frames = append(frames, frame{pos: rawFor(tg), events: trigger})
	}
	return frames
}

func TestWizardFullPass(t *testing.T) {
	targets := calibration.Targets(320, 240)
	h := newHarness(fullPass(targets)...)

	h.frames(t, 5)
	st, _ := h.w.State()
	assert.Equal(t, Done, st)
	assert.Empty(t, h.sink.calls, "solve waits for the next frame")

	h.frames(t, 1)
	st, idx := h.w.State()
	assert.Equal(t, AwaitingStart, st)
	assert.Zero(t, idx)

	require.Len(t, h.sink.calls, 1)
	p := h.sink.calls[0]
	assert.Equal(t, 1, p.Slot)
	assert.Equal(t, "/dev/input/event7", p.DevicePath)
	assert.Equal(t, device.DefaultName, p.DeviceName)
	assert.NotEmpty(t, p.PassID)

	// Shots are stored in target order.
	for i, tg := range targets {
		raw := rawFor(tg)
		assert.Equal(t, calibration.Shot{X: raw.X, Y: raw.Y}, p.Shots[i])
	}

	want, err := calibration.Solve(targets, p.Shots, 320, 240)
	require.NoError(t, err)
	assert.Equal(t, want, p.Result)
	assert.InDelta(t, 1000, p.Result.X.RawMin, 1e-6)
	assert.InDelta(t, 1000, p.Result.Y.RawMin, 1e-6)

	results := h.rec.kinds(EventResult)
	require.Len(t, results, 1)
	assert.Equal(t, p.PassID, results[0].PassID)
	assert.Len(t, h.rec.kinds(EventShot), 4)
	assert.Equal(t, 6, h.surface.presented)
}

func TestWizardFinishFrameIgnoresTrigger(t *testing.T) {
	targets := calibration.Targets(320, 240)
	frames := append(fullPass(targets),
		frame{events: trigger},
		frame{events: []device.ButtonEvent{{Button: device.ButtonSecondaryA, Pressed: true}}},
	)
	h := newHarness(frames...)

	h.frames(t, 6)
	st, idx := h.w.State()
	assert.Equal(t, AwaitingStart, st, "trigger queued behind the last shot does not start a pass")
	assert.Zero(t, idx)
	require.Len(t, h.sink.calls, 1)
	assert.Equal(t, 6, h.surface.presented)

	// The next frame steps normally again.
	quit, err := h.w.Frame(context.Background())
	require.NoError(t, err)
	assert.True(t, quit)
	assert.Len(t, h.sink.calls, 1)
}

func TestWizardSingleAdvancePerFrame(t *testing.T) {
	h := newHarness(frame{events: []device.ButtonEvent{
		{Button: device.ButtonTrigger, Pressed: true},
		{Button: device.ButtonTrigger, Pressed: false},
		{Button: device.ButtonTrigger, Pressed: true},
		{Button: device.ButtonTrigger, Pressed: true},
	}})

	h.frames(t, 1)
	st, idx := h.w.State()
	assert.Equal(t, PresentingTarget, st)
	assert.Zero(t, idx)
	assert.Empty(t, h.rec.kinds(EventShot))
}

func TestWizardIgnoresReleases(t *testing.T) {
	h := newHarness(frame{events: release}, frame{events: release})
	h.frames(t, 2)
	st, _ := h.w.State()
	assert.Equal(t, AwaitingStart, st)
}

func TestWizardStep(t *testing.T) {
	h := newHarness()

	tr := h.w.Step(trigger)
	assert.Equal(t, Transition{From: AwaitingStart, To: PresentingTarget, Target: 0}, tr)
	assert.True(t, tr.Changed())

	h.src.pos = device.RawPosition{X: 10, Y: 20}
	tr = h.w.Step(trigger)
	assert.Equal(t, Transition{From: PresentingTarget, To: PresentingTarget, Target: 1}, tr)
	assert.False(t, tr.Changed())
	assert.Equal(t, calibration.Shot{X: 10, Y: 20}, h.w.Shots()[0])

	tr = h.w.Step(nil)
	assert.Equal(t, 1, tr.Target)
}

func TestWizardAbort(t *testing.T) {
	for _, btn := range []device.Button{device.ButtonSecondaryA, device.ButtonSecondaryB} {
		t.Run(btn.String(), func(t *testing.T) {
			targets := calibration.Targets(320, 240)
			h := newHarness(
				frame{events: trigger},
				frame{pos: rawFor(targets[0]), events: trigger},
				frame{pos: rawFor(targets[1]), events: []device.ButtonEvent{
					{Button: device.ButtonTrigger, Pressed: true},
					{Button: btn, Pressed: true},
				}},
			)
			h.frames(t, 2)

			quit, err := h.w.Frame(context.Background())
			require.NoError(t, err)
			assert.True(t, quit)

			_, idx := h.w.State()
			assert.Equal(t, 1, idx, "trigger in the quit batch is not recorded")
			assert.Empty(t, h.sink.calls)
		})
	}
}

func TestWizardDegenerateRestart(t *testing.T) {
	same := device.RawPosition{X: 5000, Y: 5000}
	h := newHarness(
		frame{events: trigger},
		frame{pos: same, events: trigger},
		frame{pos: same, events: trigger},
		frame{pos: same, events: trigger},
		frame{pos: same, events: trigger},
	)
	h.frames(t, 6)

	st, idx := h.w.State()
	assert.Equal(t, AwaitingStart, st)
	assert.Zero(t, idx)
	assert.Equal(t, [4]calibration.Shot{}, h.w.Shots())
	assert.Empty(t, h.sink.calls)

	deg := h.rec.kinds(EventDegenerate)
	require.Len(t, deg, 1)
	assert.ErrorIs(t, deg[0].Err, calibration.ErrDegenerateCalibration)
	assert.Empty(t, h.rec.kinds(EventResult))
}

func TestWizardSinkFailure(t *testing.T) {
	h := newHarness(fullPass(calibration.Targets(320, 240))...)
	h.sink.err = errors.New("xinput: exit status 1")

	h.frames(t, 6)
	st, _ := h.w.State()
	assert.Equal(t, AwaitingStart, st)
	require.Len(t, h.sink.calls, 1)

	fails := h.rec.kinds(EventSinkError)
	require.Len(t, fails, 1)
	assert.EqualError(t, fails[0].Err, "xinput: exit status 1")
	assert.Len(t, h.rec.kinds(EventResult), 1)
}

func TestWizardDeviceLost(t *testing.T) {
	t.Run("sentinel", func(t *testing.T) {
		h := newHarness(frame{events: trigger}, frame{err: device.ErrDeviceLost})
		h.frames(t, 1)

		_, err := h.w.Frame(context.Background())
		assert.ErrorIs(t, err, device.ErrDeviceLost)
		assert.Len(t, h.rec.kinds(EventDeviceLost), 1)
	})

	t.Run("other read error", func(t *testing.T) {
		h := newHarness(frame{err: errors.New("bad file descriptor")})
		_, err := h.w.Frame(context.Background())
		assert.ErrorIs(t, err, device.ErrDeviceLost)
	})
}

func TestWizardRun(t *testing.T) {
	t.Run("returns nil on quit", func(t *testing.T) {
		h := newHarness(
			frame{events: trigger},
			frame{events: []device.ButtonEvent{{Button: device.ButtonSecondaryA, Pressed: true}}},
		)
		h.w.opts.FrameRate = 1000

		require.NoError(t, h.w.Run(context.Background()))
		assert.Len(t, h.rec.kinds(EventQuit), 1)
		assert.Equal(t, 2, h.src.drains)
	})

	t.Run("returns nil on cancel", func(t *testing.T) {
		h := newHarness()
		h.w.opts.FrameRate = 1000

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		require.NoError(t, h.w.Run(ctx))
		assert.NotZero(t, h.surface.presented)
	})

	t.Run("propagates device loss", func(t *testing.T) {
		h := newHarness(frame{err: device.ErrDeviceLost})
		err := h.w.Run(context.Background())
		assert.ErrorIs(t, err, device.ErrDeviceLost)
	})
}

func TestEventsCarrySessionIdentity(t *testing.T) {
	h := newHarness(frame{events: trigger})
	h.frames(t, 1)

	require.NotEmpty(t, h.rec.events)
	for _, ev := range h.rec.events {
		assert.Equal(t, 1, ev.Slot)
		assert.Equal(t, "/dev/input/event7", ev.Device)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestNaiveCursor(t *testing.T) {
	tests := []struct {
		pos   device.RawPosition
		wantX int
		wantY int
	}{
		{device.RawPosition{X: 0, Y: 0}, 160, 120},
		{device.RawPosition{X: -32767, Y: -32767}, 0, 0},
		{device.RawPosition{X: 32767, Y: 32767}, 320, 240},
	}
	for _, tt := range tests {
		x, y := NaiveCursor(tt.pos, 320, 240)
		assert.Equal(t, tt.wantX, x)
		assert.Equal(t, tt.wantY, y)
	}
}

func TestFPSCounter(t *testing.T) {
	var f fpsCounter
	start := time.Unix(1000, 0)
	for i := 0; i <= 30; i++ {
		f.tick(start.Add(time.Duration(i) * time.Second / 30))
	}
	assert.InDelta(t, 30, f.rate, 0.01)
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := LogReporter{Logger: log.New(&buf, "", 0)}

	r.Report(Event{Slot: 0, Device: "/dev/input/event3", Message: "presenting target 1/4"})
	r.Report(Event{Slot: 1, Device: "/dev/input/event7", Message: "calibration discarded", Err: calibration.ErrDegenerateCalibration})

	assert.Equal(t,
		"wizard: slot 0 (/dev/input/event3): presenting target 1/4\n"+
			"wizard: slot 1 (/dev/input/event7): calibration discarded: degenerate calibration\n",
		buf.String())
}

func TestSinksJoinErrors(t *testing.T) {
	ok := &fakeSink{}
	bad := &fakeSink{err: errors.New("boom")}
	err := Sinks{ok, bad, ok}.Apply(context.Background(), Params{})
	assert.EqualError(t, err, "boom")
	assert.Len(t, ok.calls, 2)
	assert.Len(t, bad.calls, 1)
}
