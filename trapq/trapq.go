// package trapq is a thin façade over the external iterative-solver
// trapezoidal queue: it turns planned Moves into trapezoid segments and
// submits them in batches, advancing a running start time as it goes.
//
// The queue itself (storage, and the later conversion of trapezoids to
// stepper positions) is a pre-existing library; this package specifies
// only the contract the toolhead needs from it.
package trapq

import "toolhead.dev/move"

// Segment is one XYZ trapezoid, in the shape the external trapq
// library expects: a constant unit direction AxesR traversed starting
// at StartPos, beginning at StartTime.
type Segment struct {
	StartTime              float64
	AccelT, CruiseT, DecelT float64
	StartPos               move.Vec
	AxesR                   move.Vec
	StartV, CruiseV, Accel  float64
}

// Queue is the external trapezoidal segment store. A process-local
// reference implementation lives in toolhead.dev/trapq/store; tests may
// substitute a fake.
type Queue interface {
	Append(seg Segment)
	SetPosition(time float64, x, y, z float64)
	FinalizeMoves(upto float64)
}

// ExtruderMover is the slice of the Extruder collaborator contract the
// bridge needs: submitting extrusion for a move, and reading back the
// position it last committed.
type ExtruderMover interface {
	Move(time float64, m *move.Move)
	LastPosition() float64
}

// Bridge couples a kinematic Queue with an ExtruderMover so a single
// AppendBatch call can submit both halves of a move.
type Bridge struct {
	Queue    Queue
	Extruder ExtruderMover
}

// AppendBatch submits moves in order starting at startTime, appending a
// kinematic segment for each kinematic move and an extruder segment for
// each move with non-zero E displacement. It returns the time at which
// the batch ends and the extruder's resulting last position.
//
// If onComplete is non-nil, it is invoked with each move's index and
// end time immediately after that move's segments are appended and
// strictly before the next move's segments are, so a caller firing
// per-move lookahead callbacks from onComplete gets them in the same
// order the segments themselves land in the queue.
func (b *Bridge) AppendBatch(moves []*move.Move, startTime float64, onComplete func(i int, endTime float64)) (nextMoveTime, extruderLastPosition float64) {
	t := startTime
	for i, m := range moves {
		if m.IsKinematicMove {
			b.Queue.Append(Segment{
				StartTime: t,
				AccelT:    m.AccelT,
				CruiseT:   m.CruiseT,
				DecelT:    m.DecelT,
				StartPos:  m.StartPos,
				AxesR:     m.AxesR,
				StartV:    m.StartV,
				CruiseV:   m.CruiseV,
				Accel:     m.Accel,
			})
		}
		if m.AxesD[3] != 0 && b.Extruder != nil {
			b.Extruder.Move(t, m)
		}
		t += m.AccelT + m.CruiseT + m.DecelT
		if onComplete != nil {
			onComplete(i, t)
		}
	}
	if b.Extruder != nil {
		extruderLastPosition = b.Extruder.LastPosition()
	}
	return t, extruderLastPosition
}

// FinalizeMoves releases queue segments strictly before upto.
func (b *Bridge) FinalizeMoves(upto float64) {
	b.Queue.FinalizeMoves(upto)
}

// SetPosition reseeds the queue's origin at time, used after homing.
func (b *Bridge) SetPosition(time float64, x, y, z float64) {
	b.Queue.SetPosition(time, x, y, z)
}
