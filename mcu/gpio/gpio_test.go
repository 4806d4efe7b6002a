package gpio

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// newTestMcu builds an Mcu directly against gpiotest pins, bypassing
// Open (and so host.Init's platform driver probing, which has nothing
// to find in a test environment).
func newTestMcu(t *testing.T, n int) (*Mcu, []*gpiotest.Pin) {
	t.Helper()
	pins := make([]*gpiotest.Pin, n)
	axes := make([]Axis, n)
	for i := range pins {
		pins[i] = &gpiotest.Pin{N: "step"}
		axes[i] = Axis{Name: "axis", Step: pins[i], Dir: &gpiotest.Pin{N: "dir"}}
	}
	return &Mcu{axes: axes, start: time.Now(), pulseWidth: time.Microsecond}, pins
}

func TestStepPulsesHighThenLow(t *testing.T) {
	m, pins := newTestMcu(t, 1)
	m.Step(0, false)
	if got := pins[0].Read(); got != gpio.Low {
		t.Errorf("step pin left at %v, want Low after a pulse", got)
	}
}

func TestEstimatedPrintTimeTracksWallClock(t *testing.T) {
	m, _ := newTestMcu(t, 1)
	m.start = time.Now().Add(-500 * time.Millisecond)
	got := m.EstimatedPrintTime(0)
	if got < 0.4 || got > 2 {
		t.Errorf("EstimatedPrintTime = %v, want roughly 0.5", got)
	}
}

func TestFlushMovesRecordsDeadline(t *testing.T) {
	m, _ := newTestMcu(t, 1)
	m.start = time.Now()
	m.FlushMoves(0)
	if m.flushedUpto != 0 {
		t.Errorf("flushedUpto = %v, want 0", m.flushedUpto)
	}
}

func TestIsFileOutputAndCheckActive(t *testing.T) {
	m, _ := newTestMcu(t, 1)
	if m.IsFileOutput() {
		t.Error("expected IsFileOutput false")
	}
	m.CheckActive(0, 0)
}
