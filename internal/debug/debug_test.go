package debug

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func withBuffer(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() {
		Init(LevelOff)
		SetOutput(os.Stdout)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := withBuffer(t, LevelInfo)

	Info("visible %d", 1)
	Live("hidden")
	Verbose("hidden")
	Trace("hidden")

	got := buf.String()
	if !strings.Contains(got, "[INFO] visible 1") {
		t.Errorf("expected info line, got %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("lower-priority lines leaked at level %d: %q", LevelInfo, got)
	}
}

func TestOffPrintsNothing(t *testing.T) {
	buf := withBuffer(t, LevelOff)

	Info("x")
	Warn("x")
	Error(nil)

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
	if IsEnabled(LevelInfo) {
		t.Error("IsEnabled(LevelInfo) should be false when off")
	}
}

func TestPositionsFormat(t *testing.T) {
	buf := withBuffer(t, LevelLive)

	Positions(0.5, [4]int64{1, -2, 3, 4})

	if !strings.Contains(buf.String(), "jog=0.50 | P:1 T:-2 Z:3 S:4") {
		t.Errorf("unexpected position line: %q", buf.String())
	}
}

func TestSetOutputAfterInit(t *testing.T) {
	buf := withBuffer(t, LevelTrace)
	var other bytes.Buffer
	SetOutput(&other)
	t.Cleanup(func() { SetOutput(buf) })

	GPIO("WritePin", 18, true)

	if !strings.Contains(other.String(), "[GPIO] WritePin pin=18 value=true") {
		t.Errorf("output not redirected: %q", other.String())
	}
}
