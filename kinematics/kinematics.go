// package kinematics defines the Kinematics collaborator: per-move
// geometry validation and homed-axis bookkeeping. The toolhead
// consults it for every kinematic move but owns no geometry itself.
package kinematics

import (
	"fmt"

	"toolhead.dev/move"
)

// Status is the subset of kinematics state surfaced in the toolhead's
// status object.
type Status struct {
	HomedAxes string
}

// Kinematics validates moves against machine geometry and tracks which
// axes have been homed.
type Kinematics interface {
	CheckMove(m *move.Move) error
	SetPosition(pos move.Vec, homingAxes string)
	GetStatus(now float64) Status
}

// RecordZPos is implemented by kinematics that want record_z_pos to
// persist Z (the persisted-last-Z hook); kinematics that don't
// care about Z persistence simply don't implement it.
type RecordZPos interface {
	StatusForRecordZPos() bool
}

// MustHomeFirstError is raised when a kinematic move is attempted on an
// axis that has not been homed.
type MustHomeFirstError struct {
	Axis byte
}

func (e MustHomeFirstError) Error() string {
	return fmt.Sprintf("must home axis %c first", e.Axis)
}

// OutOfRangeError is raised when a move's endpoint falls outside the
// configured axis limits. Code selects key585/586/587
// by the first violated axis among X, Y, Z.
type OutOfRangeError struct {
	Axis      int // 0=X, 1=Y, 2=Z
	Requested float64
	Min, Max  float64
}

func (e OutOfRangeError) Error() string {
	axis := "xyz"[e.Axis]
	return fmt.Sprintf("move out of range: %c=%.3f not in [%.3f, %.3f]", axis, e.Requested, e.Min, e.Max)
}

// Code returns the structured error code for this axis: key585 for X,
// key586 for Y, key587 for Z.
func (e OutOfRangeError) Code() string {
	return [3]string{"key585", "key586", "key587"}[e.Axis]
}
