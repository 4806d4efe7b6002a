// package store is a process-local reference implementation of
// trapq.Queue: it keeps trapezoid segments in arrival order and frees
// them once the toolhead has no further use for their start time.
package store

import "toolhead.dev/trapq"

// Store holds trapq.Segment values until FinalizeMoves releases them.
// It does not itself render steps; that is left to a kinematics-aware
// consumer walking Segments.
type Store struct {
	origin   trapq.Segment
	Segments []trapq.Segment
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) Append(seg trapq.Segment) {
	s.Segments = append(s.Segments, seg)
}

// SetPosition records time and position as the queue's origin (e.g.
// after homing). Append does not consult the origin: every segment
// carries its own StartTime and StartPos.
func (s *Store) SetPosition(time float64, x, y, z float64) {
	s.origin = trapq.Segment{StartTime: time, StartPos: [4]float64{x, y, z, 0}}
}

// FinalizeMoves drops every segment that ends strictly before upto.
func (s *Store) FinalizeMoves(upto float64) {
	kept := s.Segments[:0]
	for _, seg := range s.Segments {
		end := seg.StartTime + seg.AccelT + seg.CruiseT + seg.DecelT
		if end < upto {
			continue
		}
		kept = append(kept, seg)
	}
	s.Segments = kept
}

// Len reports how many segments are currently retained.
func (s *Store) Len() int {
	return len(s.Segments)
}
