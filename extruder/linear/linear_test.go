package linear

import (
	"math"
	"testing"

	"toolhead.dev/extruder"
	"toolhead.dev/move"
)

func straightMove(ed float64) *move.Move {
	m, _ := move.New(move.Vec{}, move.Vec{10, 0, 0, ed}, 50, move.Limits{MaxVelocity: 50, MaxAccel: 1000, MaxAccelToDecel: 500})
	return m
}

func TestCheckMoveRejectsBelowMinTemp(t *testing.T) {
	e := New("extruder", Config{MinExtrudeTemp: 180})
	e.Temperature = func() float64 { return 150 }
	err := e.CheckMove(straightMove(1))
	if _, ok := err.(extruder.ExtrudeBelowMinTempError); !ok {
		t.Fatalf("got %#v, want ExtrudeBelowMinTempError", err)
	}
}

func TestCheckMoveAllowsAboveMinTemp(t *testing.T) {
	e := New("extruder", Config{MinExtrudeTemp: 180})
	e.Temperature = func() float64 { return 200 }
	if err := e.CheckMove(straightMove(1)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckMoveRejectsExtrudeOnlyTooLong(t *testing.T) {
	e := New("extruder", Config{MaxExtrudeOnlyDistance: 5})
	m, _ := move.New(move.Vec{}, move.Vec{0, 0, 0, 10}, 10, move.Limits{MaxVelocity: 50, MaxAccel: 1000})
	err := e.CheckMove(m)
	if _, ok := err.(extruder.ExtrudeOnlyTooLongError); !ok {
		t.Fatalf("got %#v, want ExtrudeOnlyTooLongError", err)
	}
}

func TestCheckMoveRejectsExcessiveCrossSection(t *testing.T) {
	e := New("extruder", Config{MaxExtrudeCrossSection: 1})
	err := e.CheckMove(straightMove(50))
	cerr, ok := err.(extruder.ExtrudeExceedsMaxCrossSectionError)
	if !ok {
		t.Fatalf("got %#v, want ExtrudeExceedsMaxCrossSectionError", err)
	}
	if cerr.Code() != "key112" {
		t.Errorf("code = %v, want key112", cerr.Code())
	}
}

func TestCheckMoveSkipsNonExtrudingMove(t *testing.T) {
	e := New("extruder", Config{MinExtrudeTemp: 1000})
	e.Temperature = func() float64 { return 0 }
	if err := e.CheckMove(straightMove(0)); err != nil {
		t.Errorf("unexpected error for a non-extruding move: %v", err)
	}
}

func TestCalcJunctionDisabled(t *testing.T) {
	e := New("extruder", Config{DisableJunction: true})
	a := straightMove(1)
	b := straightMove(1)
	if got := e.CalcJunction(a, b); !math.IsInf(got, 1) {
		t.Errorf("CalcJunction with DisableJunction = %v, want +Inf", got)
	}
}

func TestCalcJunctionSameRatioUnconstrained(t *testing.T) {
	e := New("extruder", Config{InstantaneousCornerV: 1})
	a := straightMove(1)
	b := straightMove(1)
	if got := e.CalcJunction(a, b); got != b.MaxCruiseV2 {
		t.Errorf("CalcJunction with equal ratios = %v, want %v", got, b.MaxCruiseV2)
	}
}

func TestMoveRecordsLastPosition(t *testing.T) {
	e := New("extruder", Config{})
	m := straightMove(7)
	e.Move(0, m)
	if e.LastPosition() != 7 {
		t.Errorf("LastPosition = %v, want 7", e.LastPosition())
	}
}
