// package toolhead is the orchestrator: it owns the state machine
// (Main/Priming/Flushed/Drip), the toolhead's velocity/acceleration
// limits, the move queue, and the public API every Gcode command and
// homing routine goes through. Everything else in this module is a
// leaf this package wires together.
package toolhead

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"toolhead.dev/clock"
	"toolhead.dev/extruder"
	"toolhead.dev/kinematics"
	"toolhead.dev/mcu"
	"toolhead.dev/move"
	"toolhead.dev/moveq"
	"toolhead.dev/reactor"
	"toolhead.dev/trapq"
	"toolhead.dev/zpos"
)

const (
	// SDSCheckTime floors kin_flush_delay: the step-compress filter
	// window downstream of step generation.
	SDSCheckTime = 0.001
	// DripSegmentTime bounds how far drip_move advances print_time
	// before re-checking the drip completion.
	DripSegmentTime = 0.050
	// DripTime pads the flush-delay drip_move uses to decide whether to
	// pause before sending more steps.
	DripTime = 0.100
)

// State is one of the toolhead's queuing states.
type State int

const (
	// Main is the steady "actively printing" state; the zero value, the
	// same way the source represents it with an empty string.
	Main State = iota
	Priming
	Flushed
	Drip
)

func (s State) String() string {
	switch s {
	case Main:
		return "Main"
	case Priming:
		return "Priming"
	case Flushed:
		return "Flushed"
	case Drip:
		return "Drip"
	default:
		return "unknown"
	}
}

// ErrDripEnd is not a reported error: it is the internal control-flow
// signal a pending drip completion uses to unwind out of the move
// queue's flush once it fires mid-drip. It is caught only inside
// DripMove, the same way the source's DripModeEndSignal exception is
// caught only inside drip_move. panic/recover is used deliberately
// here rather than a returned error, the way the standard library's
// own encoding/json and regexp/syntax packages use it to unwind a deep
// call chain for a signal that isn't an ordinary error.
var ErrDripEnd = errors.New("toolhead: drip end")

// Config is the toolhead's configurable velocity/acceleration and
// backpressure limits.
type Config struct {
	MaxVelocity             float64
	MaxAccel                float64
	RequestedAccelToDecel   float64
	SquareCornerVelocity    float64
	SquareCornerMaxVelocity float64

	BufferTimeLow   float64
	BufferTimeHigh  float64
	BufferTimeStart float64
	MoveFlushTime   float64
}

// ToolHead coordinates move submission, lookahead planning, the
// print-time clock, and backpressure against the configured Mcus.
type ToolHead struct {
	mu sync.Mutex

	Kinematics kinematics.Kinematics
	Extruder   extruder.Extruder
	Mcus       []mcu.Mcu
	Reactor    *reactor.Reactor
	Clock      *clock.Clock
	Queue      *moveq.Queue
	ZPos       *zpos.State

	// OnSyncPrintTime, OnSetPosition, OnManualMove mirror the
	// toolhead:sync_print_time / toolhead:set_position /
	// toolhead:manual_move events; any may be nil.
	OnSyncPrintTime func(clock.SyncEvent)
	OnSetPosition   func()
	OnManualMove    func()
	// OnShutdown is invoked if the flush timer callback fails
	// unexpectedly, mirroring invoke_shutdown("Exception in
	// flush_handler").
	OnShutdown func(reason string)
	// OnZPosError is invoked if persisting the last-known Z position
	// fails; any may be nil.
	OnZPosError func(err error)

	MaxVelocity             float64
	MaxAccel                float64
	RequestedAccelToDecel   float64
	MaxAccelToDecel         float64
	SquareCornerVelocity    float64
	SquareCornerMaxVelocity float64
	JunctionDeviation       float64

	BufferTimeLow, BufferTimeHigh, BufferTimeStart float64

	CommandedPos    move.Vec
	LastKinMoveTime float64
	KinFlushDelay   float64
	kinFlushTimes   []float64

	SpecialQueuingState State
	NeedCheckStall       float64
	IdleFlushPrintTime   float64
	PrintStall           int
	CanPause             bool

	FlushTimer     *reactor.Timer
	DripCompletion *reactor.Completion

	G29Flag              bool
	QmodeFlag            bool
	QmodeMaxAccel        float64
	QmodeMaxAccelToDecel float64
}

// New wires together a ToolHead from its collaborators and initial
// limits.
func New(cfg Config, kin kinematics.Kinematics, ext extruder.Extruder, mcus []mcu.Mcu, bridge *trapq.Bridge, react *reactor.Reactor, zp *zpos.State) *ToolHead {
	t := &ToolHead{
		Kinematics:              kin,
		Extruder:                ext,
		Mcus:                    mcus,
		Reactor:                 react,
		ZPos:                    zp,
		MaxVelocity:             cfg.MaxVelocity,
		MaxAccel:                cfg.MaxAccel,
		RequestedAccelToDecel:   cfg.RequestedAccelToDecel,
		SquareCornerVelocity:    cfg.SquareCornerVelocity,
		SquareCornerMaxVelocity: cfg.SquareCornerMaxVelocity,
		BufferTimeLow:           cfg.BufferTimeLow,
		BufferTimeHigh:          cfg.BufferTimeHigh,
		BufferTimeStart:         cfg.BufferTimeStart,
		SpecialQueuingState:     Flushed,
		NeedCheckStall:          -1,
		KinFlushDelay:           SDSCheckTime,
		CanPause:                true,
	}
	t.Clock = clock.New(bridge, ext)
	t.Clock.KinFlushDelay = SDSCheckTime
	t.Clock.MoveFlushTime = cfg.MoveFlushTime
	t.Queue = moveq.New(t.junction, t.processMoves)
	t.Queue.SetFlushTime(cfg.BufferTimeHigh)
	for _, m := range mcus {
		if m.IsFileOutput() {
			t.CanPause = false
		}
	}
	t.FlushTimer = react.RegisterTimer(t.flushHandler)
	t.recalcJunctionDeviation()
	return t
}

func (t *ToolHead) recalcJunctionDeviation() {
	t.MaxAccelToDecel = math.Min(t.RequestedAccelToDecel, t.MaxAccel)
	t.JunctionDeviation = move.JunctionDeviation(t.SquareCornerVelocity, t.MaxAccel)
}

// junction is the moveq.Queue.Junction callback.
func (t *ToolHead) junction(prev, this *move.Move) {
	this.CalcJunction(prev, t.JunctionDeviation, t.SquareCornerVelocity, func() float64 {
		return t.Extruder.CalcJunction(prev, this)
	})
}

// processMoves is the moveq.Queue.Process callback: it resyncs
// print_time on entry to Main, submits the batch to TrapQ, advances
// the clock, and fires lookahead callbacks in the same order their
// moves' segments landed in TrapQ.
func (t *ToolHead) processMoves(moves []*move.Move, callbacks [][]func(endTime float64)) {
	if t.SpecialQueuingState != Main {
		if t.SpecialQueuingState != Drip {
			t.SpecialQueuingState = Main
			t.NeedCheckStall = -1
			t.Reactor.UpdateTimer(t.FlushTimer, reactor.NOW)
		}
		t.calcPrintTime()
	}
	startTime := t.Clock.PrintTime
	nextMoveTime, _ := t.Clock.Bridge.AppendBatch(moves, startTime, func(i int, endTime float64) {
		for _, cb := range callbacks[i] {
			cb(endTime)
		}
	})
	if t.SpecialQueuingState == Drip {
		t.updateDripMoveTime(nextMoveTime)
	}
	t.Clock.UpdateMoveTime(nextMoveTime)
	t.LastKinMoveTime = nextMoveTime
}

func (t *ToolHead) calcPrintTime() {
	now := t.Reactor.Monotonic()
	if evt, synced := t.Clock.CalcPrintTime(float64(now), t.Mcus[0], t.BufferTimeStart); synced {
		if t.OnSyncPrintTime != nil {
			t.OnSyncPrintTime(evt)
		}
	}
}

// flushStepGeneration fully flushes the move queue, transitions to
// Flushed, and drives step generation/TrapQ/extruder/Mcus up to the
// resulting deadline.
func (t *ToolHead) flushStepGeneration() {
	t.Queue.Flush(false)
	t.SpecialQueuingState = Flushed
	t.NeedCheckStall = -1
	t.Reactor.UpdateTimer(t.FlushTimer, reactor.NEVER)
	t.Queue.SetFlushTime(t.BufferTimeHigh)
	t.IdleFlushPrintTime = 0
	flushTime := math.Max(t.LastKinMoveTime+t.KinFlushDelay, t.Clock.PrintTime-t.KinFlushDelay)
	t.Clock.LastKinFlushTime = math.Max(t.Clock.LastKinFlushTime, flushTime)
	t.Clock.UpdateMoveTime(math.Max(t.Clock.PrintTime, t.Clock.LastKinFlushTime))
}

func (t *ToolHead) flushLookahead() {
	if t.SpecialQueuingState != Main {
		t.flushStepGeneration()
		return
	}
	t.Queue.Flush(false)
}

func (t *ToolHead) getLastMoveTime() float64 {
	t.flushLookahead()
	if t.SpecialQueuingState != Main {
		t.calcPrintTime()
	}
	return t.Clock.PrintTime
}

func (t *ToolHead) checkStall() {
	eventtime := t.Reactor.Monotonic()
	if t.SpecialQueuingState != Main {
		if t.IdleFlushPrintTime != 0 {
			est := t.Mcus[0].EstimatedPrintTime(float64(eventtime))
			if est < t.IdleFlushPrintTime {
				t.PrintStall++
			}
			t.IdleFlushPrintTime = 0
		}
		t.SpecialQueuingState = Priming
		t.NeedCheckStall = -1
		t.Reactor.UpdateTimer(t.FlushTimer, eventtime+0.100)
	}
	var est float64
	for {
		est = t.Mcus[0].EstimatedPrintTime(float64(eventtime))
		bufferTime := t.Clock.PrintTime - est
		stallTime := bufferTime - t.BufferTimeHigh
		if stallTime <= 0 {
			break
		}
		if !t.CanPause {
			t.NeedCheckStall = math.Inf(1)
			return
		}
		wait := stallTime
		if wait > 1 {
			wait = 1
		}
		eventtime = t.Reactor.Pause(eventtime + reactor.Time(wait))
	}
	if t.SpecialQueuingState == Main {
		t.NeedCheckStall = est + t.BufferTimeHigh + 0.100
	}
}

// flushHandler is the flush timer's callback.
func (t *ToolHead) flushHandler(now reactor.Time) (next reactor.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			if t.OnShutdown != nil {
				t.OnShutdown(fmt.Sprintf("exception in flush_handler: %v", r))
			}
			next = reactor.NEVER
		}
	}()
	printTime := t.Clock.PrintTime
	bufferTime := printTime - t.Mcus[0].EstimatedPrintTime(float64(now))
	if bufferTime > t.BufferTimeLow {
		return now + reactor.Time(bufferTime-t.BufferTimeLow)
	}
	t.flushStepGeneration()
	if printTime != t.Clock.PrintTime {
		t.IdleFlushPrintTime = t.Clock.PrintTime
	}
	return reactor.NEVER
}

func (t *ToolHead) recordZPos(z float64) {
	if t.ZPos == nil {
		return
	}
	if rzp, ok := t.Kinematics.(kinematics.RecordZPos); ok {
		if !rzp.StatusForRecordZPos() {
			return
		}
	} else {
		now := t.Reactor.Monotonic()
		st := t.Kinematics.GetStatus(float64(now))
		if !strings.ContainsRune(st.HomedAxes, 'z') {
			return
		}
	}
	if _, err := t.ZPos.Record(z); err != nil && t.OnZPosError != nil {
		t.OnZPosError(err)
	}
}

func (t *ToolHead) move(newpos move.Vec, speed float64) error {
	lim := move.Limits{
		MaxVelocity:          t.MaxVelocity,
		MaxAccel:             t.MaxAccel,
		MaxAccelToDecel:      t.MaxAccelToDecel,
		SquareCornerVelocity: t.SquareCornerVelocity,
		JunctionDeviation:    t.JunctionDeviation,
	}
	mv, ok := move.New(t.CommandedPos, newpos, speed, lim)
	if !ok {
		return nil
	}
	if mv.IsKinematicMove {
		if err := t.Kinematics.CheckMove(mv); err != nil {
			return err
		}
	}
	if mv.AxesD[3] != 0 {
		if err := t.Extruder.CheckMove(mv); err != nil {
			return err
		}
	}
	t.CommandedPos = newpos
	t.Queue.Append(mv)
	if t.Clock.PrintTime > t.NeedCheckStall {
		t.checkStall()
	}
	return nil
}

// Move validates and submits a move to newpos at speed mm/s.
func (t *ToolHead) Move(newpos move.Vec, speed float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordZPos(newpos[2])
	return t.move(newpos, speed)
}

// ManualMove moves to the current position with any non-nil entries
// in coord overridden, then fires OnManualMove.
func (t *ToolHead) ManualMove(coord [4]*float64, speed float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.CommandedPos
	for i := 0; i < 4; i++ {
		if coord[i] != nil {
			cur[i] = *coord[i]
		}
	}
	t.recordZPos(cur[2])
	if err := t.move(cur, speed); err != nil {
		return err
	}
	if t.OnManualMove != nil {
		t.OnManualMove()
	}
	return nil
}

// Dwell advances the clock by delay seconds without moving, then
// re-checks for stall.
func (t *ToolHead) Dwell(delay float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	next := t.getLastMoveTime() + delay
	t.Clock.UpdateMoveTime(next)
	t.checkStall()
}

// WaitMoves blocks, in 100ms slices, until the queue is flushed and
// the Mcu has caught up to print_time (or pausing is disabled).
func (t *ToolHead) WaitMoves() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLookahead()
	eventtime := t.Reactor.Monotonic()
	for t.SpecialQueuingState == Main || t.Clock.PrintTime >= t.Mcus[0].EstimatedPrintTime(float64(eventtime)) {
		if !t.CanPause {
			break
		}
		// Release the lock while paused so the flush timer can move the
		// toolhead out of Main.
		t.mu.Unlock()
		eventtime = t.Reactor.Pause(eventtime + 0.100)
		t.mu.Lock()
	}
}

// SetPosition flushes, reseeds TrapQ's origin, and records newpos as
// the commanded position, marking homingAxes as homed.
func (t *ToolHead) SetPosition(newpos move.Vec, homingAxes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushStepGeneration()
	t.Clock.Bridge.SetPosition(t.Clock.PrintTime, newpos[0], newpos[1], newpos[2])
	t.CommandedPos = newpos
	t.Kinematics.SetPosition(newpos, homingAxes)
	if t.OnSetPosition != nil {
		t.OnSetPosition()
	}
}

// GetPosition returns the last commanded position.
func (t *ToolHead) GetPosition() move.Vec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CommandedPos
}

// SetExtruder switches the active extruder and rebases the E axis of
// commanded_pos to extrudePos.
func (t *ToolHead) SetExtruder(ext extruder.Extruder, extrudePos float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Extruder = ext
	t.Clock.Extruder = ext
	t.CommandedPos[3] = extrudePos
}

// GetExtruder returns the active extruder.
func (t *ToolHead) GetExtruder() extruder.Extruder {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Extruder
}

// RegisterLookaheadCallback attaches cb to the current tail move, or
// invokes it immediately with the current last-move-time if the queue
// is empty.
func (t *ToolHead) RegisterLookaheadCallback(cb func(endTime float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Queue.Len() == 0 {
		cb(t.getLastMoveTime())
		return
	}
	t.Queue.AddCallback(cb)
}

// NoteStepGenerationScanTime replaces oldTime with newTime (either may
// be zero to mean "none") in the step-generator scan-window multiset,
// flushes, and recomputes kin_flush_delay.
func (t *ToolHead) NoteStepGenerationScanTime(newTime, oldTime float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushStepGeneration()
	if oldTime != 0 {
		for i, v := range t.kinFlushTimes {
			if v == oldTime {
				t.kinFlushTimes = append(t.kinFlushTimes[:i], t.kinFlushTimes[i+1:]...)
				break
			}
		}
	}
	if newTime != 0 {
		t.kinFlushTimes = append(t.kinFlushTimes, newTime)
	}
	delay := SDSCheckTime
	for _, v := range t.kinFlushTimes {
		if v > delay {
			delay = v
		}
	}
	t.KinFlushDelay = delay
	t.Clock.KinFlushDelay = delay
}

// AddStepGenerator registers sg to be driven on every clock advance.
func (t *ToolHead) AddStepGenerator(sg clock.StepGenerator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Clock.StepGenerators = append(t.Clock.StepGenerators, sg)
}

func (t *ToolHead) updateDripMoveTime(target float64) {
	flushDelay := DripTime + t.Clock.MoveFlushTime + t.KinFlushDelay
	for t.Clock.PrintTime < target {
		if t.DripCompletion.Test() {
			panic(ErrDripEnd)
		}
		curtime := t.Reactor.Monotonic()
		est := t.Mcus[0].EstimatedPrintTime(float64(curtime))
		wait := t.Clock.PrintTime - est - flushDelay
		if wait > 0 && t.CanPause {
			t.DripCompletion.Wait(t.Reactor, curtime+reactor.Time(wait))
			continue
		}
		npt := math.Min(t.Clock.PrintTime+DripSegmentTime, target)
		t.Clock.UpdateMoveTime(npt)
	}
}

// DripMove moves to newpos at speed in Drip mode: print_time only
// advances in DripSegmentTime slices, and the move is abandoned,
// mid-flight, the moment completion fires. Used for homing probes.
func (t *ToolHead) DripMove(newpos move.Vec, speed float64, completion *reactor.Completion) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dwellForDrip(t.KinFlushDelay)
	t.Queue.Flush(false)
	t.SpecialQueuingState = Drip
	t.NeedCheckStall = math.Inf(1)
	t.Reactor.UpdateTimer(t.FlushTimer, reactor.NEVER)
	t.Queue.SetFlushTime(t.BufferTimeHigh)
	t.IdleFlushPrintTime = 0
	t.DripCompletion = completion

	if moveErr := t.move(newpos, speed); moveErr != nil {
		t.flushStepGeneration()
		return moveErr
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if r != error(ErrDripEnd) {
					panic(r)
				}
				t.Queue.Reset()
				t.Clock.Bridge.FinalizeMoves(math.Inf(1))
			}
		}()
		t.Queue.Flush(false)
	}()
	t.flushStepGeneration()
	return nil
}

// dwellForDrip is dwell's body, inlined because DripMove already holds
// t.mu. The stall check still runs here, before DripMove disables
// future checks by setting NeedCheckStall to +Inf and entering Drip.
func (t *ToolHead) dwellForDrip(delay float64) {
	next := t.getLastMoveTime() + delay
	t.Clock.UpdateMoveTime(next)
	t.checkStall()
}

// Stats reports whether the toolhead is actively printing and a
// one-line status summary, as surfaced to the printer's stats poller.
func (t *ToolHead) Stats(eventtime float64) (isActive bool, summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.Mcus {
		m.CheckActive(t.Clock.PrintTime, eventtime)
	}
	bufferTime := t.Clock.PrintTime - t.Mcus[0].EstimatedPrintTime(eventtime)
	isActive = bufferTime > -60 || t.SpecialQueuingState == Main
	if t.SpecialQueuingState == Drip {
		bufferTime = 0
	}
	if bufferTime < 0 {
		bufferTime = 0
	}
	return isActive, fmt.Sprintf("print_time=%.3f buffer_time=%.3f print_stall=%d", t.Clock.PrintTime, bufferTime, t.PrintStall)
}

// CheckBusy reports print_time, the Mcu's estimated print time, and
// whether the lookahead queue is empty.
func (t *ToolHead) CheckBusy(eventtime float64) (printTime, estimatedPrintTime float64, lookaheadEmpty bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	est := t.Mcus[0].EstimatedPrintTime(eventtime)
	return t.Clock.PrintTime, est, t.Queue.Len() == 0
}

// Status is the toolhead's status object, as surfaced to Gcode status
// queries.
type Status struct {
	Kinematics kinematics.Status

	PrintTime          float64
	Stalls             int
	EstimatedPrintTime float64
	ExtruderName       string
	Position           move.Vec

	MaxVelocity          float64
	MaxAccel             float64
	MaxAccelToDecel      float64
	SquareCornerVelocity float64
	G29Flag              bool
}

// GetStatus returns the toolhead's current status.
func (t *ToolHead) GetStatus(eventtime float64) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Kinematics:           t.Kinematics.GetStatus(eventtime),
		PrintTime:            t.Clock.PrintTime,
		Stalls:               t.PrintStall,
		EstimatedPrintTime:   t.Mcus[0].EstimatedPrintTime(eventtime),
		ExtruderName:         t.Extruder.Name(),
		Position:             t.CommandedPos,
		MaxVelocity:          t.MaxVelocity,
		MaxAccel:             t.MaxAccel,
		MaxAccelToDecel:      t.MaxAccelToDecel,
		SquareCornerVelocity: t.SquareCornerVelocity,
		G29Flag:              t.G29Flag,
	}
}
