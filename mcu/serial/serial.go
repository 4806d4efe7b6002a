//go:build !tinygo

// package serial drives a downstream microcontroller over a serial
// link with a small framed command/status protocol: query how far the
// controller's clock has advanced, and tell it to flush buffered step
// commands up to a time. Framing and the buffered-write/cancellation
// shape follow the engraver's serial protocol driver.
package serial

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"

	"github.com/tarm/serial"
)

const (
	cmdEstimate = 0x45 // 'E'
	cmdFlush    = 0x46 // 'F'
	cmdActive   = 0x41 // 'A'
	ackByte     = 0x00
)

// ticksPerSecond scales a float64-seconds print time to the integer
// microsecond ticks exchanged on the wire.
const ticksPerSecond = 1_000_000

// Open opens dev (or a platform default if empty) at the controller's
// fixed baud rate.
func Open(dev string) (io.ReadWriteCloser, error) {
	const baudRate = 250000

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyACM0", "/dev/ttyUSB0")
		}
	}
	var firstErr error
	for _, d := range devices {
		c := &serial.Config{Name: d, Baud: baudRate}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("mcu/serial: no device specified")
	}
	return nil, firstErr
}

// Mcu talks the flush/estimate protocol to a downstream controller
// over dev.
type Mcu struct {
	bufw *bufio.Writer
	bufr *bufio.Reader
	dev  io.ReadWriter
	eerr error
}

// New wraps dev as an Mcu.
func New(dev io.ReadWriter) *Mcu {
	return &Mcu{
		bufw: bufio.NewWriterSize(dev, 64),
		bufr: bufio.NewReaderSize(dev, 64),
		dev:  dev,
	}
}

func (m *Mcu) wr(data ...byte) {
	if m.eerr != nil {
		return
	}
	_, m.eerr = m.bufw.Write(data)
}

func (m *Mcu) flushWrites() {
	if m.eerr != nil {
		return
	}
	m.eerr = m.bufw.Flush()
}

func (m *Mcu) read(n int) []byte {
	m.flushWrites()
	if m.eerr != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(m.bufr, buf); err != nil {
		m.eerr = err
		return nil
	}
	return buf
}

func (m *Mcu) expectAck() {
	resp := m.read(1)
	if m.eerr != nil {
		return
	}
	if resp[0] != ackByte {
		m.eerr = fmt.Errorf("mcu/serial: unexpected ack byte %#x", resp[0])
	}
}

// EstimatedPrintTime asks the controller for its current clock and
// converts it back to seconds.
func (m *Mcu) EstimatedPrintTime(now float64) float64 {
	m.wr(cmdEstimate)
	resp := m.read(8)
	if m.eerr != nil || resp == nil {
		return 0
	}
	ticks := binary.LittleEndian.Uint64(resp)
	return float64(ticks) / ticksPerSecond
}

// FlushMoves tells the controller to flush commands up to upto.
func (m *Mcu) FlushMoves(upto float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(upto*ticksPerSecond))
	m.wr(cmdFlush)
	m.wr(buf[:]...)
	m.expectAck()
}

// IsFileOutput always reports false: a serial Mcu is a real,
// pausable, controller.
func (m *Mcu) IsFileOutput() bool { return false }

// CheckActive pings the controller's activity status; errors are
// recorded for the next operation to surface.
func (m *Mcu) CheckActive(printTime, now float64) {
	m.wr(cmdActive)
	m.read(1)
}

// Err returns the first I/O error encountered, if any.
func (m *Mcu) Err() error { return m.eerr }
