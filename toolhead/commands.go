package toolhead

import "toolhead.dev/gcode"

// CmdG4 dwells for the duration requested by a G4 command's P
// parameter.
func (t *ToolHead) CmdG4(args gcode.Args) {
	t.Dwell(gcode.Dwell(args))
}

// CmdM400 blocks until all queued moves have completed.
func (t *ToolHead) CmdM400(args gcode.Args) {
	t.WaitMoves()
}

// CmdM204 sets the maximum acceleration from an M204 command,
// recalculating the junction-deviation constant.
func (t *ToolHead) CmdM204(args gcode.Args, raw string) error {
	accel, err := gcode.Accel(args, raw)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.MaxAccel = accel
	t.recalcJunctionDeviation()
	return nil
}

// CmdSetVelocityLimit applies a SET_VELOCITY_LIMIT command, returning
// the current limits report when called with no parameters.
func (t *ToolHead) CmdSetVelocityLimit(args gcode.Args, qmode gcode.QmodeCap) string {
	lim := gcode.ParseVelocityLimit(args, qmode, t.SquareCornerMaxVelocity)

	t.mu.Lock()
	defer t.mu.Unlock()

	if lim.IsEmpty() {
		return gcode.ReportLimits(t.MaxVelocity, t.MaxAccel, t.MaxAccelToDecel, t.SquareCornerVelocity)
	}
	if lim.Velocity != nil {
		t.MaxVelocity = *lim.Velocity
	}
	if lim.Accel != nil {
		t.MaxAccel = *lim.Accel
	}
	if lim.AccelToDecel != nil {
		t.RequestedAccelToDecel = *lim.AccelToDecel
	}
	if lim.SquareCornerVelocity != nil {
		t.SquareCornerVelocity = *lim.SquareCornerVelocity
	}
	t.recalcJunctionDeviation()
	return ""
}

// CmdSetG29Flag sets the toolhead's G29 reporting flag from a
// SET_G29_FLAG command.
func (t *ToolHead) CmdSetG29Flag(args gcode.Args) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.G29Flag = gcode.G29Flag(args)
}
