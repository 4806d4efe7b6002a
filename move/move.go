// package move implements the Move value object: a single straight-line
// toolhead request, its junction-deviation corner speed, and the
// trapezoidal velocity profile solved for it once neighboring moves are
// known.
//
// Common suffixes, inherited from the firmware this coordinator talks
// to: _d is a distance in mm, _v a velocity in mm/s, _v2 a velocity
// squared (mm^2/s^2), _t a time in seconds, _r a unit-length ratio.
package move

import "math"

// Epsilon below which a requested displacement is considered a null move.
const Epsilon = 1e-9

// Vec is a position or displacement in the four tracked axes: X, Y, Z, E.
type Vec [4]float64

func (v Vec) Sub(o Vec) Vec {
	return Vec{v[0] - o[0], v[1] - o[1], v[2] - o[2], v[3] - o[3]}
}

// Limits bounds the velocity and acceleration a Move may be planned with.
type Limits struct {
	MaxVelocity         float64
	MaxAccel            float64
	MaxAccelToDecel     float64
	SquareCornerVelocity float64
	JunctionDeviation   float64
}

// Move describes one straight-line request from StartPos to EndPos.
// It is immutable once junction computation (CalcJunction, SetJunction)
// has run.
type Move struct {
	StartPos, EndPos Vec
	AxesD, AxesR     Vec
	MoveD            float64
	IsKinematicMove  bool

	RequestedV  float64
	MaxCruiseV2 float64
	Accel       float64
	DeltaV2     float64
	SmoothDeltaV2 float64

	MaxStartV2    float64
	MaxSmoothedV2 float64

	StartV, CruiseV, EndV       float64
	AccelT, CruiseT, DecelT     float64
	MinMoveT                    float64
}

// New builds a Move from start to end at the requested feedrate, under
// lim. It returns ok=false for a null move (distance below Epsilon),
// which callers must silently drop per the toolhead's move() contract.
func New(start, end Vec, requestedV float64, lim Limits) (m *Move, ok bool) {
	axesD := end.Sub(start)
	moveD := math.Sqrt(axesD[0]*axesD[0] + axesD[1]*axesD[1] + axesD[2]*axesD[2])
	isKinematic := true
	if moveD < Epsilon {
		// Extrude-only move.
		axesD[0], axesD[1], axesD[2] = 0, 0, 0
		moveD = math.Abs(axesD[3])
		isKinematic = false
	}
	if moveD < Epsilon {
		return nil, false
	}
	invMoveD := 1 / moveD
	axesR := Vec{axesD[0] * invMoveD, axesD[1] * invMoveD, axesD[2] * invMoveD, axesD[3] * invMoveD}

	v := requestedV
	if v > lim.MaxVelocity {
		v = lim.MaxVelocity
	}
	accel := lim.MaxAccel

	m = &Move{
		StartPos:        start,
		EndPos:          end,
		AxesD:           axesD,
		AxesR:           axesR,
		MoveD:           moveD,
		IsKinematicMove: isKinematic,
		RequestedV:      requestedV,
		MaxCruiseV2:     v * v,
		Accel:           accel,
		DeltaV2:         2 * accel * moveD,
		SmoothDeltaV2:   2 * lim.MaxAccelToDecel * moveD,
	}
	// Conservative pre-planning estimate, used by the move queue's
	// flush countdown; SetJunction overwrites it with the exact value
	// once the move is actually planned.
	m.MinMoveT = moveD / v
	return m, true
}

// ExtruderJunction returns the velocity-squared cap the extruder places
// on the corner between prev and this move; a nil func (or one
// returning +Inf) disables extruder coupling during lookahead.
type ExtruderJunction func(prev, this *Move) float64

// CalcJunction computes the maximum junction speed between prev and m
// using the junction-deviation model, then sets MaxStartV2 and
// MaxSmoothedV2. prev must be the move immediately preceding m in the
// queue. squareCornerV is the configured ceiling for right-angle
// corners; extruderV2, if non-nil, supplies the extruder-coupled cap
// (a nil func disables the coupling).
func (m *Move) CalcJunction(prev *Move, jd, squareCornerV float64, extruderV2 func() float64) {
	cosTheta := -(prev.AxesR[0]*m.AxesR[0] + prev.AxesR[1]*m.AxesR[1] + prev.AxesR[2]*m.AxesR[2])
	if cosTheta < -0.999999 {
		cosTheta = -0.999999
	}
	if cosTheta > 0.999999 {
		cosTheta = 0.999999
	}
	sinHalf := math.Sqrt(math.Max(0, 0.5*(1-cosTheta)))
	var vJct2 float64
	if sinHalf > 0.999999 {
		vJct2 = math.Inf(1)
	} else {
		vJct2 = jd * m.Accel * sinHalf / (1 - sinHalf)
	}
	v2 := vJct2
	if cosTheta >= 0 {
		// Right-angle or sharper corner: square_corner_velocity is a
		// hard ceiling on top of the deviation model.
		v2 = math.Min(v2, squareCornerV*squareCornerV)
	}
	if extruderV2 != nil {
		if ev2 := extruderV2(); ev2 < v2 {
			v2 = ev2
		}
	}
	if m.MaxCruiseV2 < v2 {
		v2 = m.MaxCruiseV2
	}
	if prev.MaxCruiseV2 < v2 {
		v2 = prev.MaxCruiseV2
	}
	if cap := prev.MaxStartV2 + prev.DeltaV2; cap < v2 {
		v2 = cap
	}
	m.MaxStartV2 = v2
	m.MaxSmoothedV2 = math.Min(v2, prev.MaxSmoothedV2+prev.SmoothDeltaV2)
}

// SetJunction solves the trapezoidal profile for start_v2, cruise_v2 and
// end_v2 (all velocities squared), collapsing the cruise phase when the
// triangle would otherwise require negative cruise distance.
func (m *Move) SetJunction(startV2, cruiseV2, endV2 float64) {
	halfInvAccel := .5 / m.Accel
	accelD := (cruiseV2 - startV2) * halfInvAccel
	decelD := (cruiseV2 - endV2) * halfInvAccel
	cruiseD := m.MoveD - accelD - decelD
	if cruiseD < 0 {
		accelD = (accelD - decelD + m.MoveD) * .5
		accelD = math.Max(0, math.Min(m.MoveD, accelD))
		decelD = m.MoveD - accelD
		cruiseD = 0
		cruiseV2 = math.Min(cruiseV2, math.Min(accelD*2*m.Accel+startV2, decelD*2*m.Accel+endV2))
	}
	cruiseV := math.Sqrt(cruiseV2)
	m.StartV = math.Sqrt(startV2)
	m.EndV = math.Sqrt(endV2)
	m.CruiseV = cruiseV
	m.AccelT = accelD / ((m.StartV + cruiseV) * .5)
	m.CruiseT = 0
	if cruiseD > 0 {
		m.CruiseT = cruiseD / cruiseV
	}
	m.DecelT = decelD / ((m.EndV + cruiseV) * .5)
	m.MinMoveT = m.MoveD / cruiseV
}

// JunctionDeviation derives the junction-deviation constant from the
// configured square corner velocity and max acceleration.
func JunctionDeviation(squareCornerVelocity, maxAccel float64) float64 {
	scv2 := squareCornerVelocity * squareCornerVelocity
	return scv2 * (math.Sqrt2 - 1) / maxAccel
}
