package gcode

import "testing"

func TestDwellConvertsMillisecondsAndFloorsNegative(t *testing.T) {
	if got := Dwell(Args{"P": "500"}); got != 0.5 {
		t.Errorf("Dwell(P=500) = %v, want 0.5", got)
	}
	if got := Dwell(Args{"P": "-10"}); got != 0 {
		t.Errorf("Dwell(P=-10) = %v, want 0", got)
	}
	if got := Dwell(Args{}); got != 0 {
		t.Errorf("Dwell() = %v, want 0", got)
	}
}

func TestAccelSCoercedToMinimum(t *testing.T) {
	got, err := Accel(Args{"S": "50"}, "M204 S50")
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("Accel(S=50) = %v, want 100", got)
	}
}

func TestAccelSAboveMinimumPassesThrough(t *testing.T) {
	got, err := Accel(Args{"S": "3000"}, "M204 S3000")
	if err != nil {
		t.Fatal(err)
	}
	if got != 3000 {
		t.Errorf("Accel(S=3000) = %v, want 3000", got)
	}
}

func TestAccelFallsBackToMinOfPAndT(t *testing.T) {
	got, err := Accel(Args{"P": "500", "T": "800"}, "M204 P500 T800")
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Errorf("Accel(P=500,T=800) = %v, want 500", got)
	}
}

func TestAccelMissingPOrTIsInvalid(t *testing.T) {
	_, err := Accel(Args{"P": "500"}, "M204 P500")
	if err == nil {
		t.Fatal("expected error when T is missing")
	}
	if err.(Error).Code() != "key73" {
		t.Errorf("code = %v, want key73", err.(Error).Code())
	}
}

func TestParseVelocityLimitAppliesQmodeCapAndSquareCornerCeiling(t *testing.T) {
	qmode := QmodeCap{Enabled: true, MaxAccel: 2000, MaxAccelToDecel: 1000}
	lim := ParseVelocityLimit(Args{
		"ACCEL":                  "5000",
		"ACCEL_TO_DECEL":         "4000",
		"SQUARE_CORNER_VELOCITY": "50",
	}, qmode, 8)
	if *lim.Accel != 2000 {
		t.Errorf("accel = %v, want capped to 2000", *lim.Accel)
	}
	if *lim.AccelToDecel != 1000 {
		t.Errorf("accel_to_decel = %v, want capped to 1000", *lim.AccelToDecel)
	}
	if *lim.SquareCornerVelocity != 8 {
		t.Errorf("square_corner_velocity = %v, want capped to 8", *lim.SquareCornerVelocity)
	}
}

func TestParseVelocityLimitEmpty(t *testing.T) {
	lim := ParseVelocityLimit(Args{}, QmodeCap{}, 8)
	if !lim.IsEmpty() {
		t.Error("expected IsEmpty for a bare SET_VELOCITY_LIMIT")
	}
}

func TestG29Flag(t *testing.T) {
	if !G29Flag(Args{"VALUE": "1"}) {
		t.Error("expected true for VALUE=1")
	}
	if G29Flag(Args{"VALUE": "0"}) {
		t.Error("expected false for VALUE=0")
	}
	if G29Flag(Args{}) {
		t.Error("expected false when VALUE absent")
	}
}
