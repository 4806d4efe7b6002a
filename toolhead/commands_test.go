package toolhead

import (
	"strings"
	"testing"

	"toolhead.dev/gcode"
	"toolhead.dev/move"
)

func TestCmdM204SetsMaxAccelAndRecalcsJunction(t *testing.T) {
	th, _ := newTestToolHead(t)
	before := th.JunctionDeviation
	th.SquareCornerVelocity = 8
	if err := th.CmdM204(gcode.Args{"S": "2000"}, "M204 S2000"); err != nil {
		t.Fatalf("CmdM204: %v", err)
	}
	if th.MaxAccel != 2000 {
		t.Errorf("max accel = %v, want 2000", th.MaxAccel)
	}
	if th.JunctionDeviation == before {
		t.Error("expected junction deviation to be recalculated")
	}
}

func TestCmdM204InvalidCommand(t *testing.T) {
	th, _ := newTestToolHead(t)
	err := th.CmdM204(gcode.Args{}, "M204")
	if err == nil {
		t.Fatal("expected error for M204 with no S, P or T")
	}
	ce, ok := err.(gcode.Error)
	if !ok {
		t.Fatalf("got %T, want gcode.Error", err)
	}
	if ce.Code() != "key73" {
		t.Errorf("code = %v, want key73", ce.Code())
	}
}

func TestCmdSetVelocityLimitReportsCurrentWhenEmpty(t *testing.T) {
	th, _ := newTestToolHead(t)
	report := th.CmdSetVelocityLimit(gcode.Args{}, gcode.QmodeCap{})
	if !strings.Contains(report, "max_velocity") {
		t.Errorf("report = %q, want it to mention max_velocity", report)
	}
}

func TestCmdSetVelocityLimitAppliesParameters(t *testing.T) {
	th, _ := newTestToolHead(t)
	report := th.CmdSetVelocityLimit(gcode.Args{"VELOCITY": "123", "ACCEL": "4000"}, gcode.QmodeCap{})
	if report != "" {
		t.Errorf("expected empty report on a setting command, got %q", report)
	}
	if th.MaxVelocity != 123 {
		t.Errorf("max velocity = %v, want 123", th.MaxVelocity)
	}
	if th.MaxAccel != 4000 {
		t.Errorf("max accel = %v, want 4000", th.MaxAccel)
	}
}

func TestCmdSetVelocityLimitClampsSquareCornerVelocity(t *testing.T) {
	th, _ := newTestToolHead(t)
	th.SquareCornerMaxVelocity = 8
	th.CmdSetVelocityLimit(gcode.Args{"SQUARE_CORNER_VELOCITY": "50"}, gcode.QmodeCap{})
	if th.SquareCornerVelocity != 8 {
		t.Errorf("square corner velocity = %v, want clamped to 8", th.SquareCornerVelocity)
	}
}

func TestCmdSetG29Flag(t *testing.T) {
	th, _ := newTestToolHead(t)
	th.CmdSetG29Flag(gcode.Args{"VALUE": "1"})
	if !th.G29Flag {
		t.Error("expected G29 flag set")
	}
	th.CmdSetG29Flag(gcode.Args{"VALUE": "0"})
	if th.G29Flag {
		t.Error("expected G29 flag cleared")
	}
}

func TestCmdG4Dwells(t *testing.T) {
	th, _ := newTestToolHead(t)
	before := th.Clock.PrintTime
	th.CmdG4(gcode.Args{"P": "200"})
	if th.Clock.PrintTime < before+0.2-1e-9 {
		t.Errorf("print time = %v, want >= %v", th.Clock.PrintTime, before+0.2)
	}
}

func TestCmdM400WaitsForQueuedMoves(t *testing.T) {
	th, _ := newTestToolHead(t)
	if err := th.Move(move.Vec{10, 0, 0, 0}, 50); err != nil {
		t.Fatal(err)
	}
	th.CmdM400(gcode.Args{})
	if _, _, empty := th.CheckBusy(float64(th.Reactor.Monotonic())); !empty {
		t.Error("expected lookahead queue empty after M400")
	}
}
