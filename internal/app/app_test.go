// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/guncon_calibration/internal/config"
	"github.com/relabs-tech/guncon_calibration/internal/device"
	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

type step struct {
	pos    device.RawPosition
	events []device.ButtonEvent
	err    error
}

type fakeGun struct {
	mu       sync.Mutex
	steps    []step
	pos      device.RawPosition
	grabs    int
	releases int
	closes   int
	grabErr  error
}

func (g *fakeGun) Name() string { return device.DefaultName }

func (g *fakeGun) Position() device.RawPosition {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos
}

func (g *fakeGun) Drain() ([]device.ButtonEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.steps) == 0 {
		return nil, nil
	}
	s := g.steps[0]
	g.steps = g.steps[1:]
	if s.err != nil {
		return nil, s.err
	}
	g.pos = s.pos
	return s.events, nil
}

func (g *fakeGun) Grab() error {
	g.grabs++
	return g.grabErr
}

func (g *fakeGun) Release() error {
	g.releases++
	return nil
}

func (g *fakeGun) Close() error {
	g.closes++
	return nil
}

type nopSurface struct{}

func (nopSurface) Present(*image.RGBA) error { return nil }

type countingSink struct {
	mu    sync.Mutex
	calls []wizard.Params
}

func (s *countingSink) Apply(_ context.Context, p wizard.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []wizard.Event
}

func (r *eventLog) Report(ev wizard.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventLog) slots(kind wizard.EventKind) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev.Slot)
		}
	}
	return out
}

func (r *eventLog) messages(kind wizard.EventKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev.Message)
		}
	}
	return out
}

var (
	pull   = []device.ButtonEvent{{Button: device.ButtonTrigger, Pressed: true}}
	abortA = []device.ButtonEvent{{Button: device.ButtonSecondaryA, Pressed: true}}
)

type fixture struct {
	runner *sessionRunner
	guns   map[string]*fakeGun
	sink   *countingSink
	events *eventLog
	logs   *bytes.Buffer
}

func newFixture(guns map[string]*fakeGun, interrupts <-chan os.Signal) *fixture {
	cfg := config.Default()
	cfg.Width, cfg.Height = 320, 240
	cfg.FrameRate = 240

	f := &fixture{guns: guns, sink: &countingSink{}, events: &eventLog{}, logs: &bytes.Buffer{}}
	f.runner = &sessionRunner{
		cfg: cfg,
		open: func(path string) (gun, error) {
			g, ok := guns[path]
			if !ok {
				return nil, errors.New("no such device")
			}
			return g, nil
		},
		surface:    nopSurface{},
		sink:       f.sink,
		reporter:   f.events,
		logger:     log.New(f.logs, "", 0),
		interrupts: interrupts,
	}
	return f
}

func TestSessionAbortDuringPassReleasesOnce(t *testing.T) {
	g := &fakeGun{steps: []step{
		{events: pull},
		{pos: device.RawPosition{X: 12000, Y: 9000}, events: pull},
		{pos: device.RawPosition{X: 24000, Y: 9000}, events: pull},
		{events: abortA},
	}}
	f := newFixture(map[string]*fakeGun{"/dev/input/event3": g}, nil)

	f.runner.runAll(context.Background(), []string{"/dev/input/event3"})

	assert.Equal(t, 1, g.grabs)
	assert.Equal(t, 1, g.releases)
	assert.Equal(t, 1, g.closes)
	assert.Empty(t, f.sink.calls)
	assert.Equal(t, []int{0}, f.events.slots(wizard.EventQuit))
	assert.Len(t, f.events.slots(wizard.EventShot), 2)
}

func TestSessionDeviceLostMovesToNextGun(t *testing.T) {
	lost := &fakeGun{steps: []step{{events: pull}, {err: device.ErrDeviceLost}}}
	second := &fakeGun{steps: []step{{events: abortA}}}
	f := newFixture(map[string]*fakeGun{
		"/dev/input/event3": lost,
		"/dev/input/event5": second,
	}, nil)

	f.runner.runAll(context.Background(), []string{"/dev/input/event3", "/dev/input/event5"})

	assert.Equal(t, 1, lost.releases)
	assert.Equal(t, 1, lost.closes)
	assert.Equal(t, 1, second.grabs)
	assert.Equal(t, 1, second.releases)
	assert.Equal(t, []int{0}, f.events.slots(wizard.EventDeviceLost))
	assert.Equal(t, []int{1}, f.events.slots(wizard.EventQuit))
	assert.Contains(t, f.logs.String(), "slot 0: device lost")
}

func TestSessionOpenFailureMovesToNextGun(t *testing.T) {
	second := &fakeGun{steps: []step{{events: abortA}}}
	f := newFixture(map[string]*fakeGun{"/dev/input/event5": second}, nil)

	f.runner.runAll(context.Background(), []string{"/dev/input/event3", "/dev/input/event5"})

	assert.Contains(t, f.logs.String(), "slot 0: session failed: open: no such device")
	assert.Equal(t, 1, second.releases)
	assert.Equal(t, []int{1}, f.events.slots(wizard.EventQuit))
}

func TestSessionGrabFailureDoesNotRelease(t *testing.T) {
	g := &fakeGun{grabErr: errors.New("device busy")}
	f := newFixture(map[string]*fakeGun{"/dev/input/event3": g}, nil)

	f.runner.runAll(context.Background(), []string{"/dev/input/event3"})

	assert.Equal(t, 0, g.releases)
	assert.Equal(t, 1, g.closes)
	assert.Contains(t, f.logs.String(), "device busy")
}

func TestSessionInterruptEndsCurrentGun(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	g := &fakeGun{}
	f := newFixture(map[string]*fakeGun{"/dev/input/event3": g}, interrupts)

	done := make(chan struct{})
	go func() {
		f.runner.runAll(context.Background(), []string{"/dev/input/event3"})
		close(done)
	}()

	// An interrupt sent before the session listens is dropped, so keep
	// sending until the session ends.
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	timeout := time.After(2 * time.Second)
	for running := true; running; {
		select {
		case <-done:
			running = false
		case <-tick.C:
			select {
			case interrupts <- syscall.SIGINT:
			default:
			}
		case <-timeout:
			t.Fatal("session did not end after interrupt")
		}
	}
	assert.Equal(t, 1, g.releases)
	assert.Equal(t, []string{"session cancelled"}, f.events.messages(wizard.EventQuit))
}

func TestSessionIgnoresInterruptFromBeforeItStarted(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	interrupts <- syscall.SIGINT
	g := &fakeGun{steps: []step{{events: pull}, {}, {events: abortA}}}
	f := newFixture(map[string]*fakeGun{"/dev/input/event3": g}, interrupts)

	f.runner.runAll(context.Background(), []string{"/dev/input/event3"})

	assert.Equal(t, []string{"operator quit"}, f.events.messages(wizard.EventQuit))
	assert.Contains(t, f.logs.String(), "slot 0: dropped 1 interrupt(s) received between sessions")
	assert.Empty(t, interrupts)
}

func TestDrainInterrupts(t *testing.T) {
	ch := make(chan os.Signal, 3)
	assert.Zero(t, drainInterrupts(ch))
	assert.Zero(t, drainInterrupts(nil))

	ch <- syscall.SIGINT
	ch <- syscall.SIGINT
	assert.Equal(t, 2, drainInterrupts(ch))
	assert.Empty(t, ch)
}

func TestRunAllStopsWhenCancelled(t *testing.T) {
	g := &fakeGun{}
	f := newFixture(map[string]*fakeGun{"/dev/input/event3": g}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.runner.runAll(ctx, []string{"/dev/input/event3"})

	assert.Equal(t, 0, g.grabs)
	assert.Contains(t, f.logs.String(), "stopping before slot 0")
}

func TestTracingSourceLogsBatches(t *testing.T) {
	var buf bytes.Buffer
	g := &fakeGun{steps: []step{{}, {pos: device.RawPosition{X: 7, Y: 9}, events: pull}}}
	src := &tracingSource{Source: g, slot: 1, logger: log.New(&buf, "", 0)}

	_, err := src.Drain()
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	events, err := src.Drain()
	require.NoError(t, err)
	assert.Equal(t, pull, events)
	assert.Contains(t, buf.String(), "calibrate: slot 1: raw")
	assert.Contains(t, buf.String(), "trigger down")
}

type fakePanel struct{ lines [][]string }

func (p *fakePanel) Show(lines ...string) error {
	p.lines = append(p.lines, lines)
	return nil
}

func TestPanelReporter(t *testing.T) {
	panel := &fakePanel{}
	r := panelReporter{panel: panel, logger: log.New(&bytes.Buffer{}, "", 0)}

	r.Report(wizard.Event{Kind: wizard.EventShot, Slot: 1, State: wizard.PresentingTarget, Target: 2, Message: "target 2/4 hit"})
	r.Report(wizard.Event{Kind: wizard.EventDegenerate, Slot: 0, State: wizard.AwaitingStart,
		Message: "calibration failed: shots do not span the screen"})

	require.Len(t, panel.lines, 2)
	assert.Equal(t, []string{"Gun 2", "Target 3/4", "target 2/4 hit"}, panel.lines[0])

	degenerate := panel.lines[1]
	require.Len(t, degenerate, 4)
	assert.Equal(t, "Pull trigger", degenerate[1])
	assert.Equal(t, "! calibration fail", degenerate[2])
	assert.Len(t, degenerate[3], panelColumns)
}
