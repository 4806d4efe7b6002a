// package config loads the printer's kinematic limits and extruder
// settings from a YAML config file via viper, the way the reinforcement
// learning config loader reads its training YAML: a fresh viper.New per
// file rather than the global singleton, Unmarshal straight into a Go
// struct.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"toolhead.dev/extruder/linear"
	"toolhead.dev/kinematics/cartesian"
	"toolhead.dev/move"
)

// Printer is the on-disk shape of a printer's motion configuration.
type Printer struct {
	MaxVelocity             float64 `mapstructure:"max_velocity"`
	MaxAccel                float64 `mapstructure:"max_accel"`
	MaxAccelToDecel         float64 `mapstructure:"max_accel_to_decel"`
	SquareCornerVelocity    float64 `mapstructure:"square_corner_velocity"`
	SquareCornerMaxVelocity float64 `mapstructure:"square_corner_max_velocity"`
	BufferTimeLow           float64 `mapstructure:"buffer_time_low"`
	BufferTimeHigh          float64 `mapstructure:"buffer_time_high"`
	BufferTimeStart         float64 `mapstructure:"buffer_time_start"`
	MoveFlushTime           float64 `mapstructure:"move_flush_time"`

	Limits struct {
		X [2]float64 `mapstructure:"x"`
		Y [2]float64 `mapstructure:"y"`
		Z [2]float64 `mapstructure:"z"`
	} `mapstructure:"limits"`

	Extruder linear.Config `mapstructure:"extruder"`
}

// Load reads and validates a printer config from path.
func Load(path string) (*Printer, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	vp.AddConfigPath(filepath.Dir(path))
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Printer{}
	if err := vp.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the documented defaults for any option the
// config file left unset (zero).
func (p *Printer) applyDefaults() {
	if p.MaxAccelToDecel <= 0 {
		p.MaxAccelToDecel = p.MaxAccel * 0.5
	}
	if p.SquareCornerVelocity <= 0 {
		p.SquareCornerVelocity = 5
	}
	if p.SquareCornerMaxVelocity <= 0 {
		p.SquareCornerMaxVelocity = 200
	}
	if p.BufferTimeLow <= 0 {
		p.BufferTimeLow = 1.0
	}
	if p.BufferTimeHigh <= 0 {
		p.BufferTimeHigh = 2.0
	}
	if p.BufferTimeStart <= 0 {
		p.BufferTimeStart = 0.25
	}
	if p.MoveFlushTime <= 0 {
		p.MoveFlushTime = 0.05
	}
}

// Validate checks that the loaded limits are usable, returning the
// first problem found.
func (p *Printer) Validate() error {
	switch {
	case p.MaxVelocity <= 0:
		return fmt.Errorf("config: max_velocity must be positive")
	case p.MaxAccel <= 0:
		return fmt.Errorf("config: max_accel must be positive")
	case p.SquareCornerVelocity < 0:
		return fmt.Errorf("config: square_corner_velocity must not be negative")
	case p.SquareCornerMaxVelocity < 0:
		return fmt.Errorf("config: square_corner_max_velocity must not be negative")
	case p.BufferTimeLow <= 0:
		return fmt.Errorf("config: buffer_time_low must be positive")
	case p.BufferTimeHigh <= p.BufferTimeLow:
		return fmt.Errorf("config: buffer_time_high must exceed buffer_time_low")
	case p.BufferTimeStart <= 0:
		return fmt.Errorf("config: buffer_time_start must be positive")
	case p.MoveFlushTime <= 0:
		return fmt.Errorf("config: move_flush_time must be positive")
	}
	return nil
}

// MoveLimits derives move.Limits from the loaded config.
func (p *Printer) MoveLimits() move.Limits {
	return move.Limits{
		MaxVelocity:          p.MaxVelocity,
		MaxAccel:             p.MaxAccel,
		MaxAccelToDecel:      p.MaxAccelToDecel,
		SquareCornerVelocity: p.SquareCornerVelocity,
		JunctionDeviation:    move.JunctionDeviation(p.SquareCornerVelocity, p.MaxAccel),
	}
}

// KinematicsLimits derives cartesian.Limits from the loaded config.
func (p *Printer) KinematicsLimits() cartesian.Limits {
	return cartesian.Limits{p.Limits.X, p.Limits.Y, p.Limits.Z}
}
