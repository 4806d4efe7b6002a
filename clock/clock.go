// package clock advances the toolhead's print-time: the scheduled time
// (in hardware seconds) up to which moves have been handed to step
// generators, the trapezoidal queue, the extruder, and the downstream
// Mcus. Everything here is driven by the toolhead's state machine; the
// clock itself just performs the batched advance and the idle rebase.
package clock

import (
	"math"

	"toolhead.dev/extruder"
	"toolhead.dev/mcu"
	"toolhead.dev/trapq"
)

// BatchTime is the tick PrintClock advances print_time by on each pass
// through UpdateMoveTime's loop.
const BatchTime = 0.500

// MinKinTime is the minimum lead time calc_print_time rebases to ahead
// of the MCU's estimated print time.
const MinKinTime = 0.100

// StepGenerator is invoked with a scan time up to which it should
// generate step pulses.
type StepGenerator func(scanTime float64)

// Clock owns print_time and the batched advance that fans it out to
// step generators, TrapQ, the extruder and the Mcus.
type Clock struct {
	Bridge   *trapq.Bridge
	Extruder extruder.Extruder
	Mcus     []mcu.Mcu

	StepGenerators []StepGenerator

	// PrintTime is the monotonically non-decreasing scheduled time, in
	// hardware seconds, that the most recently submitted move ends at.
	PrintTime float64
	// LastKinFlushTime is the time up to which step generators have
	// been driven; owned and advanced by the toolhead's flush
	// transitions, only read here.
	LastKinFlushTime float64
	// KinFlushDelay is the step-generator scan window, floored at
	// SDS_CHECK_TIME by the toolhead.
	KinFlushDelay float64
	// MoveFlushTime bounds how far ahead of the scan window the Mcus
	// are told to flush.
	MoveFlushTime float64
}

// New returns a Clock driving bridge and ext.
func New(bridge *trapq.Bridge, ext extruder.Extruder) *Clock {
	return &Clock{Bridge: bridge, Extruder: ext}
}

// UpdateMoveTime advances print_time toward target in BatchTime ticks,
// servicing step generators, finalizing TrapQ segments, updating the
// extruder, and flushing all Mcus after each tick.
func (c *Clock) UpdateMoveTime(target float64) {
	for {
		c.PrintTime = math.Min(c.PrintTime+BatchTime, target)
		sgFlushTime := math.Max(c.LastKinFlushTime, c.PrintTime-c.KinFlushDelay)
		for _, sg := range c.StepGenerators {
			sg(sgFlushTime)
		}
		freeTime := math.Max(c.LastKinFlushTime, sgFlushTime-c.KinFlushDelay)
		c.Bridge.FinalizeMoves(freeTime)
		c.Extruder.UpdateMoveTime(freeTime)
		mcuFlushTime := math.Max(c.LastKinFlushTime, sgFlushTime-c.MoveFlushTime)
		for _, m := range c.Mcus {
			m.FlushMoves(mcuFlushTime)
		}
		if c.PrintTime >= target {
			break
		}
	}
}

// SyncEvent is emitted by CalcPrintTime whenever it rebases print_time
// forward from idle, mirroring the toolhead:sync_print_time event.
type SyncEvent struct {
	Now, EstimatedPrintTime, PrintTime float64
}

// CalcPrintTime rebases print_time forward if the toolhead has been
// idle long enough that the MCU's estimated print time has caught up,
// reporting the rebase as a SyncEvent (zero value if none occurred).
func (c *Clock) CalcPrintTime(now float64, m mcu.Mcu, bufferTimeStart float64) (SyncEvent, bool) {
	estPrintTime := m.EstimatedPrintTime(now)
	kinTime := math.Max(estPrintTime+MinKinTime, c.LastKinFlushTime)
	kinTime += c.KinFlushDelay
	minPrintTime := math.Max(estPrintTime+bufferTimeStart, kinTime)
	if minPrintTime <= c.PrintTime {
		return SyncEvent{}, false
	}
	c.PrintTime = minPrintTime
	return SyncEvent{Now: now, EstimatedPrintTime: estPrintTime, PrintTime: c.PrintTime}, true
}
