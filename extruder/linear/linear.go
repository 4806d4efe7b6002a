// package linear implements a reference Extruder: a single filament
// path with no pressure-advance model, suitable for the toolhead's
// junction coupling and extrude-limit checks.
package linear

import (
	"math"

	"toolhead.dev/extruder"
	"toolhead.dev/move"
)

// Config bounds what the extruder will accept.
type Config struct {
	MaxExtrudeCrossSection float64 `mapstructure:"max_extrude_cross_section"`
	MaxExtrudeOnlyDistance float64 `mapstructure:"max_extrude_only_distance"`
	MinExtrudeTemp         float64 `mapstructure:"min_extrude_temp"`
	InstantaneousCornerV   float64 `mapstructure:"instantaneous_corner_velocity"`
	// DisableJunction makes CalcJunction always return +Inf, disabling
	// extruder coupling during lookahead entirely.
	DisableJunction bool `mapstructure:"disable_junction"`
}

// Extruder is a reference implementation of extruder.Extruder.
type Extruder struct {
	name string
	cfg  Config
	// Temperature reports the current hotend temperature; nil means
	// always hot (suitable for tests and cold-pulls-not-modeled rigs).
	Temperature func() float64

	lastPosition float64
}

// New returns an Extruder named name, configured by cfg.
func New(name string, cfg Config) *Extruder {
	return &Extruder{name: name, cfg: cfg}
}

func (e *Extruder) Name() string { return e.name }

func (e *Extruder) LastPosition() float64 { return e.lastPosition }

// CalcJunction returns the extruder-coupled velocity-squared cap for
// the corner between prev and this, derived from how much the
// extruder ratio changes across the corner.
func (e *Extruder) CalcJunction(prev, this *move.Move) float64 {
	if e.cfg.DisableJunction {
		return math.Inf(1)
	}
	diffR := this.AxesR[3] - prev.AxesR[3]
	if diffR == 0 {
		return this.MaxCruiseV2
	}
	v := e.cfg.InstantaneousCornerV / math.Abs(diffR)
	return v * v
}

// CheckMove validates a move's extrusion against the configured
// temperature, cross-section and extrude-only distance limits.
func (e *Extruder) CheckMove(m *move.Move) error {
	if m.AxesD[3] == 0 {
		return nil
	}
	if e.Temperature != nil {
		if t := e.Temperature(); t < e.cfg.MinExtrudeTemp {
			return extruder.ExtrudeBelowMinTempError{Temp: t, MinTemp: e.cfg.MinExtrudeTemp}
		}
	}
	if !m.IsKinematicMove && e.cfg.MaxExtrudeOnlyDistance > 0 && m.MoveD > e.cfg.MaxExtrudeOnlyDistance {
		return extruder.ExtrudeOnlyTooLongError{Distance: m.MoveD, Max: e.cfg.MaxExtrudeOnlyDistance}
	}
	if m.IsKinematicMove && e.cfg.MaxExtrudeCrossSection > 0 {
		crossSection := math.Abs(m.AxesD[3]) / m.MoveD
		if crossSection > e.cfg.MaxExtrudeCrossSection {
			return extruder.ExtrudeExceedsMaxCrossSectionError{CrossSection: crossSection, Max: e.cfg.MaxExtrudeCrossSection}
		}
	}
	return nil
}

// Move records the extruder's resulting position for m; step
// generation itself is delegated to the trapq/mcu layer.
func (e *Extruder) Move(time float64, m *move.Move) {
	e.lastPosition = m.EndPos[3]
}

// UpdateMoveTime is a no-op placeholder for a stepper-compress flush
// deadline a fuller extruder implementation would act on.
func (e *Extruder) UpdateMoveTime(upto float64) {}
