// package gpio drives step/dir pins directly through periph.io,
// turning an Mcu's flush deadlines into real wall-clock pulses instead
// of a framed wire protocol. Pin setup follows the button-input driver
// for the Waveshare HAT: periph.io/x/host/v3 for platform init,
// periph.io/x/conn/v3/gpio for the pin handles themselves.
package gpio

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Axis names one bit-banged stepper axis.
type Axis struct {
	Name string
	Step gpio.PinOut
	Dir  gpio.PinOut
}

// Mcu bit-bangs step pulses on host GPIO pins, pacing itself to real
// wall-clock time: unlike a framed serial controller, there is no
// downstream clock to query, so EstimatedPrintTime simply reports how
// much wall-clock time has elapsed since Open.
type Mcu struct {
	axes       []Axis
	start      time.Time
	pulseWidth time.Duration

	flushedUpto float64
}

// Open initializes the host GPIO subsystem and returns an Mcu driving
// axes directly.
func Open(axes []Axis) (*Mcu, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mcu/gpio: %w", err)
	}
	for _, a := range axes {
		if err := a.Step.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("mcu/gpio: step pin for %s: %w", a.Name, err)
		}
		if err := a.Dir.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("mcu/gpio: dir pin for %s: %w", a.Name, err)
		}
	}
	return &Mcu{
		axes:       axes,
		start:      time.Now(),
		pulseWidth: 2 * physic.MicroSecond.Duration(),
	}, nil
}

// Step pulses axis's step pin once, toggling dir first if it changed.
func (m *Mcu) Step(axis int, dir bool) {
	a := m.axes[axis]
	level := gpio.Low
	if dir {
		level = gpio.High
	}
	a.Dir.Out(level)
	a.Step.Out(gpio.High)
	time.Sleep(m.pulseWidth)
	a.Step.Out(gpio.Low)
}

// EstimatedPrintTime reports wall-clock seconds elapsed since Open: a
// directly-driven GPIO Mcu has no independent clock to fall behind.
func (m *Mcu) EstimatedPrintTime(now float64) float64 {
	return time.Since(m.start).Seconds()
}

// FlushMoves blocks until wall-clock has caught up to upto, since
// pulses for a direct-drive Mcu are emitted synchronously as they are
// scheduled rather than buffered downstream.
func (m *Mcu) FlushMoves(upto float64) {
	m.flushedUpto = upto
	if d := time.Until(m.start.Add(time.Duration(upto * float64(time.Second)))); d > 0 {
		time.Sleep(d)
	}
}

// IsFileOutput always reports false.
func (m *Mcu) IsFileOutput() bool { return false }

// CheckActive is a no-op: a direct-drive Mcu has no separate liveness
// channel to poll.
func (m *Mcu) CheckActive(printTime, now float64) {}
