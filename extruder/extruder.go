// package extruder defines the Extruder collaborator: junction
// coupling with kinematic moves, extrusion validation, and the
// position bookkeeping the trapq bridge needs to submit extruder
// segments.
package extruder

import (
	"fmt"

	"toolhead.dev/move"
)

// Extruder is consulted by the toolhead for the junction between every
// pair of queued moves (CalcJunction) and for every move with a non-zero
// E displacement (CheckMove, Move).
type Extruder interface {
	CalcJunction(prev, this *move.Move) float64
	CheckMove(m *move.Move) error
	Move(time float64, m *move.Move)
	UpdateMoveTime(upto float64)
	Name() string
	LastPosition() float64
}

// ExtrudeBelowMinTempError is raised when extrusion is attempted below
// the configured minimum temperature.
type ExtrudeBelowMinTempError struct {
	Temp, MinTemp float64
}

func (e ExtrudeBelowMinTempError) Error() string {
	return fmt.Sprintf("extrude below minimum temp (%.1f < %.1f); see min_extrude_temp", e.Temp, e.MinTemp)
}

func (ExtrudeBelowMinTempError) Code() string { return "key111" }

// ExtrudeOnlyTooLongError is raised when an extrude-only move (no XYZ
// displacement) requests more distance than configured.
type ExtrudeOnlyTooLongError struct {
	Distance, Max float64
}

func (e ExtrudeOnlyTooLongError) Error() string {
	return fmt.Sprintf("extrude only move too long (%.3fmm vs %.3fmm)", e.Distance, e.Max)
}

// ExtrudeExceedsMaxCrossSectionError is raised when a move's
// extrusion-per-distance exceeds the configured cross section.
type ExtrudeExceedsMaxCrossSectionError struct {
	CrossSection, Max float64
}

func (e ExtrudeExceedsMaxCrossSectionError) Error() string {
	return fmt.Sprintf("move exceeds maximum extrusion (%.3fmm^2 vs %.3fmm^2); see max_extrude_cross_section", e.CrossSection, e.Max)
}

func (ExtrudeExceedsMaxCrossSectionError) Code() string { return "key112" }
