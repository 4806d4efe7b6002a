// package mcu defines the Mcu collaborator: the downstream
// microcontroller(s) that actually render step pulses. The toolhead
// only needs a monotonic estimate of what time the hardware has
// reached, a way to tell it to flush buffered commands up to a given
// time, and whether it can be paused for (i.e. is not a dry-run file
// sink).
package mcu

// Mcu is one downstream controller driving some subset of the
// toolhead's axes.
type Mcu interface {
	// EstimatedPrintTime returns a monotonic estimate of what time the
	// hardware has reached, as of now (a reactor.Time, passed as
	// float64 seconds to keep this package reactor-agnostic).
	EstimatedPrintTime(now float64) float64
	// FlushMoves instructs the controller to flush buffered commands
	// up to upto.
	FlushMoves(upto float64)
	// IsFileOutput reports whether this Mcu is a non-realtime sink
	// (e.g. writing a step-pulse trace to a file); such sinks cannot
	// be waited on for backpressure.
	IsFileOutput() bool
	// CheckActive lets the Mcu note whether it has work outstanding,
	// for statistics.
	CheckActive(printTime, now float64)
}
