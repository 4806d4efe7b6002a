// package cartesian implements a reference Cartesian Kinematics: three
// independent, orthogonal X/Y/Z axes, each with its own travel limits.
package cartesian

import (
	"strings"

	"toolhead.dev/kinematics"
	"toolhead.dev/move"
)

// Limits holds the [min, max] travel bounds for X, Y and Z, in mm.
type Limits [3][2]float64

// Kinematics is a reference Cartesian implementation of
// kinematics.Kinematics.
type Kinematics struct {
	limits Limits
	homed  [3]bool
}

// New returns Kinematics bounded by limits, with no axes yet homed.
func New(limits Limits) *Kinematics {
	return &Kinematics{limits: limits}
}

// CheckMove validates m's endpoint against the configured limits,
// requiring every axis the move touches to have been homed first.
func (k *Kinematics) CheckMove(m *move.Move) error {
	if !m.IsKinematicMove {
		return nil
	}
	for axis := 0; axis < 3; axis++ {
		if m.AxesD[axis] == 0 {
			continue
		}
		if !k.homed[axis] {
			return kinematics.MustHomeFirstError{Axis: "xyz"[axis]}
		}
	}
	for axis := 0; axis < 3; axis++ {
		v := m.EndPos[axis]
		if v < k.limits[axis][0] || v > k.limits[axis][1] {
			return kinematics.OutOfRangeError{
				Axis:      axis,
				Requested: v,
				Min:       k.limits[axis][0],
				Max:       k.limits[axis][1],
			}
		}
	}
	return nil
}

// SetPosition marks the axes named in homingAxes (any combination of
// "x", "y", "z") homed. The Cartesian kinematics keeps no position of
// its own, so pos is not stored.
func (k *Kinematics) SetPosition(pos move.Vec, homingAxes string) {
	for i, c := range []byte("xyz") {
		if strings.IndexByte(homingAxes, c) >= 0 {
			k.homed[i] = true
		}
	}
}

// GetStatus reports which axes are currently homed, as a string such
// as "xyz" or "xy".
func (k *Kinematics) GetStatus(now float64) kinematics.Status {
	var homed []byte
	for i, c := range []byte("xyz") {
		if k.homed[i] {
			homed = append(homed, c)
		}
	}
	return kinematics.Status{HomedAxes: string(homed)}
}

// StatusForRecordZPos reports whether Z is homed, used by the
// toolhead's Z-position persistence (ToolHead.recordZPos).
func (k *Kinematics) StatusForRecordZPos() bool {
	return k.homed[2]
}
