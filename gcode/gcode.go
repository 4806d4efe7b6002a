// package gcode dispatches the handful of toolhead-owned commands:
// dwell, wait-for-moves, acceleration and velocity-limit adjustment,
// and the G29 reporting flag. Structured command errors carry a
// firmware-style key the way kinematics and extruder errors do.
package gcode

import "fmt"

// Args is a parsed command line: uppercase letter parameters to their
// raw string values, as a Gcode dispatcher would hand to a command
// handler.
type Args map[string]string

// Float looks up key, returning ok=false if it is absent or not a
// valid float.
func (a Args) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return 0, false
	}
	return f, true
}

// Int looks up key, returning ok=false if it is absent or not a valid
// integer.
func (a Args) Int(key string) (int, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return 0, false
	}
	return i, true
}

// Error is a structured command error: a human message plus the
// firmware-facing code clients match on.
type Error struct {
	Msg  string
	code string
}

func (e Error) Error() string { return e.Msg }
func (e Error) Code() string  { return e.code }

// InvalidCommand builds the key73 error for a malformed command,
// echoing the raw command line the way the firmware's JSON-shaped
// error message does.
func InvalidCommand(raw string) Error {
	return Error{
		Msg:  fmt.Sprintf(`{"code":"key73", "msg": "Invalid M204 command %q", "values": [%q]}`, raw, raw),
		code: "key73",
	}
}

// Dwell returns the delay in seconds requested by a G4 command's P
// parameter (milliseconds), defaulting to zero.
func Dwell(args Args) float64 {
	ms, _ := args.Float("P")
	if ms < 0 {
		ms = 0
	}
	return ms / 1000
}

// Accel resolves an M204 command's requested acceleration: S if
// given (coerced up to 100 when S≤100), else min(P, T). raw is the
// original command line, used only to build InvalidCommand's message.
func Accel(args Args, raw string) (float64, error) {
	if s, ok := args.Int("S"); ok {
		if s <= 100 {
			return 100, nil
		}
		return float64(s), nil
	}
	if s, ok := args.Float("S"); ok {
		if s <= 100 {
			return 100, nil
		}
		return s, nil
	}
	p, pok := args.Float("P")
	t, tok := args.Float("T")
	if !pok || !tok {
		return 0, InvalidCommand(raw)
	}
	if p < t {
		return p, nil
	}
	return t, nil
}

// VelocityLimits is the parsed, already-clamped result of a
// SET_VELOCITY_LIMIT command: each field is nil when the corresponding
// parameter was absent from the command line.
type VelocityLimits struct {
	Velocity             *float64
	Accel                *float64
	SquareCornerVelocity *float64
	AccelToDecel         *float64
}

// QmodeCap bounds ACCEL and ACCEL_TO_DECEL when the printer's Qmode
// profile is active.
type QmodeCap struct {
	Enabled         bool
	MaxAccel        float64
	MaxAccelToDecel float64
}

// ParseVelocityLimit parses a SET_VELOCITY_LIMIT command's arguments,
// applying the Qmode accel/accel-to-decel cap and the
// square-corner-max-velocity ceiling.
func ParseVelocityLimit(args Args, qmode QmodeCap, squareCornerMaxV float64) VelocityLimits {
	var out VelocityLimits
	if v, ok := args.Float("VELOCITY"); ok {
		out.Velocity = &v
	}
	if a, ok := args.Float("ACCEL"); ok {
		if qmode.Enabled && a > qmode.MaxAccel {
			a = qmode.MaxAccel
		}
		out.Accel = &a
	}
	if scv, ok := args.Float("SQUARE_CORNER_VELOCITY"); ok {
		if scv > squareCornerMaxV {
			scv = squareCornerMaxV
		}
		out.SquareCornerVelocity = &scv
	}
	if a2d, ok := args.Float("ACCEL_TO_DECEL"); ok {
		if qmode.Enabled && a2d > qmode.MaxAccelToDecel {
			a2d = qmode.MaxAccelToDecel
		}
		out.AccelToDecel = &a2d
	}
	return out
}

// IsEmpty reports whether none of a SET_VELOCITY_LIMIT command's
// parameters were given, the case where the current limits should be
// reported back to the caller instead of changed.
func (v VelocityLimits) IsEmpty() bool {
	return v.Velocity == nil && v.Accel == nil && v.SquareCornerVelocity == nil && v.AccelToDecel == nil
}

// ReportLimits composes the status message a bare SET_VELOCITY_LIMIT
// prints.
func ReportLimits(maxVelocity, maxAccel, maxAccelToDecel, squareCornerVelocity float64) string {
	return fmt.Sprintf(
		"max_velocity: %.6f\nmax_accel: %.6f\nmax_accel_to_decel: %.6f\nsquare_corner_velocity: %.6f",
		maxVelocity, maxAccel, maxAccelToDecel, squareCornerVelocity,
	)
}

// G29Flag parses a SET_G29_FLAG command's VALUE parameter.
func G29Flag(args Args) bool {
	v, _ := args.Int("VALUE")
	return v == 1
}
