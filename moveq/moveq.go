// package moveq implements the lookahead ring of pending moves: a
// bounded-latency queue that defers trapezoid planning until a move's
// successors are known, then flushes a safe prefix to the toolhead.
package moveq

import "toolhead.dev/move"

// LookaheadFlushTime is the default junction-flush countdown, reset on
// every flush.
const LookaheadFlushTime = 0.250

// entry pairs a queued move with the lookahead callbacks registered
// against it; callbacks fire, in order, once the move's end time is
// known.
type entry struct {
	mv        *move.Move
	callbacks []func(endTime float64)
}

// Queue is a lookahead move queue. It holds borrowed
// references to the junction and flush callbacks rather than a pointer
// back to a concrete toolhead, so it never outlives its owner.
type Queue struct {
	// Junction computes the corner constraint between prev and this,
	// mutating this.MaxStartV2/MaxSmoothedV2. Called once per append,
	// for every move after the first.
	Junction func(prev, this *move.Move)
	// Process hands a flushed prefix of fully-planned moves to the
	// toolhead; each move is paired with the lookahead callbacks
	// registered against it.
	Process func(moves []*move.Move, callbacks [][]func(endTime float64))

	entries       []entry
	junctionFlush float64
}

// New creates an empty queue. junction and process must be non-nil.
func New(junction func(prev, this *move.Move), process func([]*move.Move, [][]func(float64))) *Queue {
	return &Queue{
		Junction:      junction,
		Process:       process,
		junctionFlush: LookaheadFlushTime,
	}
}

// Reset empties the queue and drops any attached callbacks without
// firing them.
func (q *Queue) Reset() {
	q.entries = nil
	q.junctionFlush = LookaheadFlushTime
}

// SetFlushTime resets the junction-flush countdown, e.g. to
// buffer_time_high when entering a steady state.
func (q *Queue) SetFlushTime(t float64) {
	q.junctionFlush = t
}

// GetLast returns the tail move, or nil if the queue is empty.
func (q *Queue) GetLast() *move.Move {
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[len(q.entries)-1].mv
}

// Len reports the number of un-flushed moves.
func (q *Queue) Len() int {
	return len(q.entries)
}

// AddCallback attaches cb to the tail move; it fires once the move is
// flushed and its end time is known. The caller must ensure the queue
// is non-empty (register_lookahead_callback invokes cb immediately
// itself when the queue is empty).
func (q *Queue) AddCallback(cb func(endTime float64)) {
	i := len(q.entries) - 1
	q.entries[i].callbacks = append(q.entries[i].callbacks, cb)
}

// Append places m at the tail, computes its junction against the
// previous tail (if any), and lazily flushes once enough moves have
// accumulated to reach the target flush time.
func (q *Queue) Append(m *move.Move) {
	if len(q.entries) > 0 {
		q.Junction(q.entries[len(q.entries)-1].mv, m)
	}
	q.entries = append(q.entries, entry{mv: m})
	if len(q.entries) == 1 {
		return
	}
	q.junctionFlush -= m.MinMoveT
	if q.junctionFlush <= 0 {
		q.Flush(true)
	}
}

// Flush runs the backward/forward smoothing pass over every queued
// move, then hands a flushed prefix to Process and removes it from the
// queue. With lazy, only the longest prefix of genuinely settled moves
// is flushed — see the scan below. Without lazy, every queued move is
// flushed, including the tail.
func (q *Queue) Flush(lazy bool) {
	q.junctionFlush = LookaheadFlushTime
	n := len(q.entries)
	if n == 0 {
		return
	}

	// Backward pass: track how much speed is reachable from the tail,
	// assuming the queue ends in a full stop, tightening each move's
	// MaxSmoothedV2 to what's actually reachable. reachableIn[i] and
	// origSmoothedV2[i] record, for each move, the reachable speed seen
	// on entry and the pre-clamp MaxSmoothedV2 — both needed to tell a
	// genuinely settled move from one only bound by the tail's stop
	// assumption, in the flush-prefix scan below.
	reachableIn := make([]float64, n)
	origSmoothedV2 := make([]float64, n)
	reachable := 0.0
	for i := n - 1; i >= 0; i-- {
		mv := q.entries[i].mv
		reachableIn[i] = reachable
		origSmoothedV2[i] = mv.MaxSmoothedV2
		if mv.MaxSmoothedV2 > reachable {
			mv.MaxSmoothedV2 = reachable
		}
		reachable += mv.DeltaV2
		if reachable > mv.MaxCruiseV2 {
			reachable = mv.MaxCruiseV2
		}
	}

	// Forward pass: solve the trapezoid for every queued move, chaining
	// each move's start to its predecessor's end so kinematic
	// continuity holds exactly.
	startV2 := q.entries[0].mv.MaxStartV2
	for i := 0; i < n; i++ {
		mv := q.entries[i].mv
		var nextMaxStartV2, nextDeltaV2 float64
		if i+1 < n {
			nextMaxStartV2 = q.entries[i+1].mv.MaxStartV2
			nextDeltaV2 = q.entries[i+1].mv.DeltaV2
		}
		cruiseV2 := mv.MaxCruiseV2
		if v := startV2 + mv.DeltaV2; v < cruiseV2 {
			cruiseV2 = v
		}
		if v := nextMaxStartV2 + nextDeltaV2; i+1 < n && v < cruiseV2 {
			cruiseV2 = v
		}
		endV2 := cruiseV2
		if nextMaxStartV2 < endV2 {
			endV2 = nextMaxStartV2
		}
		mv.SetJunction(startV2, cruiseV2, endV2)
		startV2 = endV2
	}

	flushCount := n
	if lazy {
		// Scan the queue, excluding the current tail: its end_v2 == 0
		// only because no successor has arrived yet, never because it's
		// actually settled, so it can never be a valid k on its own.
		// Remember the last index k whose move is genuinely settled:
		// either it truly comes to a full stop, or its MaxSmoothedV2
		// was already tighter than what the backward pass' tail-ward
		// reachable speed would allow — meaning it was bound by its own
		// upstream junction computation, not by the (unproven)
		// assumption that the queue ends here, so a later Append can't
		// raise it further. Moves after k could still have their
		// trapezoid changed by a future append, so they stay queued.
		k := -1
		for i := 0; i < n-1; i++ {
			mv := q.entries[i].mv
			settled := mv.EndV == 0 || origSmoothedV2[i] <= reachableIn[i]
			if settled {
				k = i
			}
		}
		flushCount = k + 1
	}
	if flushCount <= 0 {
		return
	}

	moves := make([]*move.Move, flushCount)
	cbs := make([][]func(float64), flushCount)
	for i := 0; i < flushCount; i++ {
		moves[i] = q.entries[i].mv
		cbs[i] = q.entries[i].callbacks
	}
	q.Process(moves, cbs)
	q.entries = q.entries[:copy(q.entries, q.entries[flushCount:])]
}
