package trapq

import (
	"testing"

	"toolhead.dev/move"
)

type fakeQueue struct {
	appended   []Segment
	positioned bool
	finalizedUpto float64
}

func (f *fakeQueue) Append(seg Segment)                    { f.appended = append(f.appended, seg) }
func (f *fakeQueue) SetPosition(time float64, x, y, z float64) { f.positioned = true }
func (f *fakeQueue) FinalizeMoves(upto float64)             { f.finalizedUpto = upto }

type fakeExtruder struct {
	moved    []float64
	lastPos  float64
}

func (f *fakeExtruder) Move(time float64, m *move.Move) {
	f.moved = append(f.moved, time)
	f.lastPos = m.EndPos[3]
}
func (f *fakeExtruder) LastPosition() float64 { return f.lastPos }

func buildMove(t *testing.T, start, end move.Vec) *move.Move {
	t.Helper()
	m, ok := move.New(start, end, 50, move.Limits{MaxVelocity: 50, MaxAccel: 1000, MaxAccelToDecel: 500})
	if !ok {
		t.Fatal("expected non-null move")
	}
	m.SetJunction(0, m.MaxCruiseV2, 0)
	return m
}

func TestAppendBatchSubmitsKinematicAndExtruderSegments(t *testing.T) {
	q := &fakeQueue{}
	ext := &fakeExtruder{}
	b := &Bridge{Queue: q, Extruder: ext}

	m1 := buildMove(t, move.Vec{}, move.Vec{10, 0, 0, 2})
	m2 := buildMove(t, move.Vec{10, 0, 0, 2}, move.Vec{20, 0, 0, 2})

	next, lastPos := b.AppendBatch([]*move.Move{m1, m2}, 0, nil)

	if len(q.appended) != 2 {
		t.Fatalf("appended %d kinematic segments, want 2", len(q.appended))
	}
	if len(ext.moved) != 1 {
		t.Fatalf("extruder saw %d moves, want 1 (m2 has no E displacement)", len(ext.moved))
	}
	wantEnd := m1.AccelT + m1.CruiseT + m1.DecelT + m2.AccelT + m2.CruiseT + m2.DecelT
	if !nearlyEqual(next, wantEnd, 1e-9) {
		t.Errorf("next move time = %v, want %v", next, wantEnd)
	}
	if lastPos != m2.EndPos[3] {
		t.Errorf("last extruder position = %v, want %v", lastPos, m2.EndPos[3])
	}
}

func TestAppendBatchOnCompleteFiresBeforeNextMoveIsAppended(t *testing.T) {
	q := &fakeQueue{}
	ext := &fakeExtruder{}
	b := &Bridge{Queue: q, Extruder: ext}

	m1 := buildMove(t, move.Vec{}, move.Vec{10, 0, 0, 0})
	m2 := buildMove(t, move.Vec{10, 0, 0, 0}, move.Vec{20, 0, 0, 0})

	var seenAtCallback []int
	b.AppendBatch([]*move.Move{m1, m2}, 0, func(i int, endTime float64) {
		seenAtCallback = append(seenAtCallback, len(q.appended))
	})

	if len(seenAtCallback) != 2 {
		t.Fatalf("got %d onComplete calls, want 2", len(seenAtCallback))
	}
	if seenAtCallback[0] != 1 {
		t.Errorf("at move 0's callback, appended count = %d, want 1 (move 0's segment only)", seenAtCallback[0])
	}
	if seenAtCallback[1] != 2 {
		t.Errorf("at move 1's callback, appended count = %d, want 2", seenAtCallback[1])
	}
}

func TestAppendBatchSkipsExtrudeOnlyMoveFromKinematicQueue(t *testing.T) {
	q := &fakeQueue{}
	ext := &fakeExtruder{}
	b := &Bridge{Queue: q, Extruder: ext}

	m, ok := move.New(move.Vec{}, move.Vec{0, 0, 0, 5}, 10, move.Limits{MaxVelocity: 10, MaxAccel: 1000, MaxAccelToDecel: 500})
	if !ok {
		t.Fatal("expected non-null extrude move")
	}
	m.SetJunction(0, m.MaxCruiseV2, 0)

	b.AppendBatch([]*move.Move{m}, 0, nil)
	if len(q.appended) != 0 {
		t.Errorf("expected no kinematic segment for an extrude-only move, got %d", len(q.appended))
	}
	if len(ext.moved) != 1 {
		t.Errorf("expected the extruder to still see the move, got %d", len(ext.moved))
	}
}

func TestFinalizeMovesAndSetPositionDelegate(t *testing.T) {
	q := &fakeQueue{}
	b := &Bridge{Queue: q}
	b.FinalizeMoves(5)
	if q.finalizedUpto != 5 {
		t.Errorf("finalizedUpto = %v, want 5", q.finalizedUpto)
	}
	b.SetPosition(1, 2, 3, 4)
	if !q.positioned {
		t.Error("expected SetPosition to delegate to the queue")
	}
}

func nearlyEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
