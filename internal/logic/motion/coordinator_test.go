package motion

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
	"github.com/cjeanneret/rigd/internal/logic/joystick"
	"github.com/cjeanneret/rigd/internal/logic/preset"
	"github.com/cjeanneret/rigd/internal/logic/trajectory"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	motors  *fakeMotors
	mapper  *coupling.Mapper
	presets *preset.Store
	coord   *Coordinator
}

func newHarness(limits axis.Table) *harness {
	h := &harness{
		motors:  &fakeMotors{},
		mapper:  coupling.NewMapper(limits[axis.Slide], coupling.Map{}, coupling.Map{}),
		presets: preset.NewStore(8),
	}
	ctrl := NewController(h.motors, limits)
	h.coord = NewCoordinator(ctrl, h.mapper, h.presets, JogSpeeds{Pan: 3000, Tilt: 3000, Slide: 6000})
	return h
}

func TestCoordinator_PresetRecallReachesGoal(t *testing.T) {
	h := newHarness(rigLimits())
	_ = h.presets.Set(0, axis.Vector{100, 200, 300, 400})

	m, err := h.coord.StartPreset(t0, 0, 2*time.Second)
	if err != nil {
		t.Fatalf("StartPreset: %v", err)
	}
	if m.Duration != 2*time.Second {
		t.Errorf("duration = %v, want 2s", m.Duration)
	}
	if h.coord.Mode() != ModeSynchronized {
		t.Fatalf("mode = %v, want synchronized", h.coord.Mode())
	}

	h.coord.Tick(t0, joystick.Output{})
	if got := h.motors.targets(); got != (axis.Vector{}) {
		t.Errorf("targets at τ=0 = %v, want the start position", got)
	}

	prev := axis.Vector{}
	for ms := 100; ms <= 2000; ms += 100 {
		h.coord.Tick(t0.Add(time.Duration(ms)*time.Millisecond), joystick.Output{})
		cur := h.motors.targets()
		for _, a := range axis.All {
			if cur[a] < prev[a] {
				t.Fatalf("%v target went backwards at %dms: %d < %d", a, ms, cur[a], prev[a])
			}
		}
		prev = cur
	}
	if got := h.motors.targets(); got != (axis.Vector{100, 200, 300, 400}) {
		t.Errorf("targets at τ=1 = %v, want exact goal", got)
	}
	if h.coord.Mode() != ModeJog {
		t.Errorf("move should be complete, mode = %v", h.coord.Mode())
	}
}

func TestCoordinator_MidpointIsHalfway(t *testing.T) {
	h := newHarness(rigLimits())
	if _, err := h.coord.Start(t0, "test", axis.Vector{1000, -1000, 2000, 4000}, 4*time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.coord.Tick(t0.Add(2*time.Second), joystick.Output{})
	if got := h.motors.targets(); got != (axis.Vector{500, -500, 1000, 2000}) {
		t.Errorf("midpoint targets = %v", got)
	}
}

func TestCoordinator_DurationStretchedByLimits(t *testing.T) {
	limits := rigLimits()
	limits[axis.Pan].MaxSpeed = 1000
	h := newHarness(limits)

	m, err := h.coord.Start(t0, "test", axis.Vector{100, 0, 0, 0}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !trajectory.Feasible(limits, m.StartPos, m.GoalBase, m.Duration.Seconds()) {
		t.Errorf("planned duration %v is not feasible", m.Duration)
	}
	if m.Duration <= 100*time.Millisecond {
		t.Errorf("duration should have grown, got %v", m.Duration)
	}
}

func TestCoordinator_InfeasibleRejected(t *testing.T) {
	limits := rigLimits()
	limits[axis.Zoom].MaxAccel = 0
	h := newHarness(limits)
	_ = h.presets.Set(2, axis.Vector{1, 1, 1, 1})

	_, err := h.coord.StartPreset(t0, 2, time.Second)
	if !errors.Is(err, trajectory.ErrInfeasible) {
		t.Fatalf("err = %v, want ErrInfeasible", err)
	}
	if h.coord.Mode() != ModeJog {
		t.Error("rejected move must not activate")
	}
}

func TestCoordinator_PresetIndexRejected(t *testing.T) {
	h := newHarness(rigLimits())
	_, err := h.coord.StartPreset(t0, 8, time.Second)
	if !errors.Is(err, preset.ErrIndexOutOfRange) {
		t.Fatalf("err = %v, want ErrIndexOutOfRange", err)
	}
	if _, ok := h.coord.Active(); ok {
		t.Error("no move should be active")
	}
}

func TestCoordinator_DefaultDuration(t *testing.T) {
	h := newHarness(rigLimits())
	m, err := h.coord.StartSlideGoto(t0, 0.5, 0)
	if err != nil {
		t.Fatalf("StartSlideGoto: %v", err)
	}
	if m.Requested != DefaultMoveDuration {
		t.Errorf("requested = %v, want %v", m.Requested, DefaultMoveDuration)
	}
}

func TestCoordinator_GoalsClampedToLimits(t *testing.T) {
	h := newHarness(rigLimits())
	m, err := h.coord.Start(t0, "test", axis.Vector{99999, -99999, 0, 0}, 60*time.Second)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.GoalBase != (axis.Vector{10000, -10000, 0, 0}) {
		t.Errorf("goal base = %v", m.GoalBase)
	}
}

func TestCoordinator_SlideGotoHoldsOtherAxes(t *testing.T) {
	h := newHarness(rigLimits())
	h.motors.place(axis.Vector{10, 20, 30, 0})

	m, err := h.coord.StartSlideGoto(t0, 1, 10*time.Second)
	if err != nil {
		t.Fatalf("StartSlideGoto: %v", err)
	}
	if m.GoalBase != (axis.Vector{10, 20, 30, 20000}) {
		t.Errorf("goal base = %v", m.GoalBase)
	}
	h.coord.Tick(t0.Add(5*time.Second), joystick.Output{})
	got := h.motors.targets()
	if got[axis.Pan] != 10 || got[axis.Tilt] != 20 || got[axis.Zoom] != 30 {
		t.Errorf("held axes moved: %v", got)
	}
	if got[axis.Slide] != 10000 {
		t.Errorf("slide at midpoint = %d, want 10000", got[axis.Slide])
	}
}

func TestCoordinator_ReplacementDiscardsInFlightMove(t *testing.T) {
	h := newHarness(rigLimits())
	h.motors.teleport = true
	_ = h.presets.Set(0, axis.Vector{4000, 4000, 4000, 4000})

	if _, err := h.coord.StartPreset(t0, 0, 2*time.Second); err != nil {
		t.Fatalf("StartPreset: %v", err)
	}
	mid := t0.Add(time.Second)
	h.coord.Tick(mid, joystick.Output{})
	here := h.motors.targets()

	m, err := h.coord.StartSlideGoto(mid, 0, 2*time.Second)
	if err != nil {
		t.Fatalf("StartSlideGoto: %v", err)
	}
	if m.StartPos != here {
		t.Errorf("new start = %v, want current position %v", m.StartPos, here)
	}
	want := here
	want[axis.Slide] = -20000
	if m.GoalBase != want {
		t.Errorf("new goal = %v, want %v", m.GoalBase, want)
	}

	// Zero progress on the new move: nothing blends toward the old goal.
	h.coord.Tick(mid, joystick.Output{})
	if got := h.motors.targets(); got != here {
		t.Errorf("targets right after replacement = %v, want %v", got, here)
	}

	h.coord.Tick(mid.Add(m.Duration), joystick.Output{})
	if got := h.motors.targets(); got != want {
		t.Errorf("final targets = %v, want %v", got, want)
	}
}

func TestCoordinator_CompletionKeepsNewerMove(t *testing.T) {
	h := newHarness(rigLimits())
	if _, err := h.coord.Start(t0, "first", axis.Vector{10, 0, 0, 0}, time.Second); err != nil {
		t.Fatal(err)
	}
	first := h.coord.move.Load()
	if _, err := h.coord.Start(t0, "second", axis.Vector{20, 0, 0, 0}, time.Second); err != nil {
		t.Fatal(err)
	}
	// A tick finishing the stale move must not clear the new one.
	h.coord.follow(t0.Add(2*time.Second), first, joystick.Output{})
	if m, ok := h.coord.Active(); !ok || m.Kind != "second" {
		t.Errorf("active = %+v, %v; want the second move", m, ok)
	}
}

func TestCoordinator_CouplingFollowsSlideReference(t *testing.T) {
	h := newHarness(rigLimits())
	h.mapper.SetPan(800, -800)
	h.mapper.SetTilt(0, 400)
	h.motors.place(axis.Vector{0, 0, 0, -20000})

	// Slide from min to max; pan/tilt goal base stay at 0.
	if _, err := h.coord.Start(t0, "test", axis.Vector{0, 0, 0, 20000}, 20*time.Second); err != nil {
		t.Fatal(err)
	}

	h.coord.Tick(t0.Add(10*time.Second), joystick.Output{})
	got := h.motors.targets()
	// s = 0.5: slide reference at 0, compensation pan 0 / tilt 200,
	// interpolated halfway from 0.
	if got[axis.Slide] != 0 {
		t.Errorf("slide = %d, want 0", got[axis.Slide])
	}
	if got[axis.Pan] != 0 || got[axis.Tilt] != 100 {
		t.Errorf("pan/tilt = %d/%d, want 0/100", got[axis.Pan], got[axis.Tilt])
	}

	h.coord.Tick(t0.Add(20*time.Second), joystick.Output{})
	got = h.motors.targets()
	if got[axis.Pan] != -800 || got[axis.Tilt] != 400 {
		t.Errorf("final pan/tilt = %d/%d, want -800/400", got[axis.Pan], got[axis.Tilt])
	}
}

func TestCoordinator_OffsetsStayLiveDuringMove(t *testing.T) {
	h := newHarness(rigLimits())
	if _, err := h.coord.Start(t0, "test", axis.Vector{1000, 1000, 0, 0}, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	end := t0.Add(2 * time.Second)
	h.coord.Tick(end, joystick.Output{PanOffset: 50, TiltOffset: -25})
	got := h.motors.targets()
	if got[axis.Pan] != 1050 || got[axis.Tilt] != 975 {
		t.Errorf("pan/tilt = %d/%d, want 1050/975", got[axis.Pan], got[axis.Tilt])
	}
}

func TestCoordinator_TargetsClampedDuringMove(t *testing.T) {
	h := newHarness(rigLimits())
	h.mapper.SetPan(5000, 5000)
	if _, err := h.coord.Start(t0, "test", axis.Vector{9000, 0, 0, 0}, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	h.coord.Tick(t0.Add(10*time.Second), joystick.Output{PanOffset: 800})
	if got := h.motors.targets()[axis.Pan]; got != 10000 {
		t.Errorf("pan = %d, want clamp at 10000", got)
	}
}

func TestCoordinator_JogIntegratesVelocity(t *testing.T) {
	h := newHarness(rigLimits())
	h.coord.Tick(t0, joystick.Output{})

	out := joystick.Output{Pan: 1, Tilt: -0.5, SlideJog: 0.25}
	for i := 1; i <= 10; i++ {
		h.coord.Tick(t0.Add(time.Duration(i)*10*time.Millisecond), out)
	}
	got := h.motors.targets()
	// 100 ms at 3000, -1500 and 1500 steps/s.
	if got[axis.Pan] != 300 || got[axis.Tilt] != -150 || got[axis.Slide] != 150 {
		t.Errorf("jog targets = %v, want pan 300 tilt -150 slide 150", got)
	}
	if len(h.motors.issued(axis.Zoom)) != 0 {
		t.Error("zoom must not move while jogging")
	}
}

func TestCoordinator_SlowJogCarriesFractions(t *testing.T) {
	h := newHarness(rigLimits())
	h.coord.Tick(t0, joystick.Output{})
	// 0.05 · 3000 steps/s · 1 ms = 0.15 step per tick.
	out := joystick.Output{Pan: 0.05}
	for i := 1; i <= 100; i++ {
		h.coord.Tick(t0.Add(time.Duration(i)*time.Millisecond), out)
	}
	if got := h.motors.targets()[axis.Pan]; got < 14 || got > 16 {
		t.Errorf("pan after 100 ms = %d, want ~15", got)
	}
}

func TestCoordinator_JogClampsAtLimit(t *testing.T) {
	h := newHarness(rigLimits())
	h.motors.place(axis.Vector{9990, 0, 0, 0})
	h.coord.Tick(t0, joystick.Output{})
	h.coord.Tick(t0.Add(time.Second), joystick.Output{Pan: 1})
	if got := h.motors.targets()[axis.Pan]; got != 10000 {
		t.Errorf("pan = %d, want 10000", got)
	}
}

func TestCoordinator_JogIgnoredDuringMove(t *testing.T) {
	h := newHarness(rigLimits())
	if _, err := h.coord.Start(t0, "test", axis.Vector{0, 0, 0, 1000}, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	h.coord.Tick(t0, joystick.Output{})
	h.coord.Tick(t0.Add(time.Millisecond), joystick.Output{Pan: 1, SlideJog: -1})
	got := h.motors.targets()
	if got[axis.Pan] != 0 {
		t.Errorf("pan jogged during a synchronized move: %d", got[axis.Pan])
	}
	if got[axis.Slide] < 0 {
		t.Errorf("slide followed the jog during a synchronized move: %d", got[axis.Slide])
	}
}

func TestCoordinator_JogNeedsElapsedTime(t *testing.T) {
	h := newHarness(rigLimits())
	h.coord.Tick(t0, joystick.Output{Pan: 1})
	h.coord.Tick(t0, joystick.Output{Pan: 1})
	if n := len(h.motors.issued(axis.Pan)); n != 0 {
		t.Errorf("jog issued %d targets without elapsed time", n)
	}
}

func TestModeString(t *testing.T) {
	if ModeJog.String() != "jog" || ModeSynchronized.String() != "synchronized" {
		t.Errorf("unexpected mode strings: %s %s", ModeJog, ModeSynchronized)
	}
}
