// command printerd runs the toolhead coordinator against a configured
// printer: it loads motion limits from a YAML config file, opens the
// downstream Mcu, and services G-code-style commands from stdin until
// the process is killed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"toolhead.dev/config"
	"toolhead.dev/extruder/linear"
	"toolhead.dev/gcode"
	"toolhead.dev/kinematics/cartesian"
	"toolhead.dev/mcu"
	mcuserial "toolhead.dev/mcu/serial"
	"toolhead.dev/reactor"
	"toolhead.dev/toolhead"
	"toolhead.dev/trapq"
	"toolhead.dev/trapq/store"
	"toolhead.dev/zpos"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))

	configPath := flag.String("config", "printer.yaml", "printer motion config")
	device := flag.String("device", "", "serial device for the Mcu (platform default if empty)")
	zposPath := flag.String("zpos", "zpos.json", "persisted last-Z state file")
	flag.Parse()

	log.Println("printerd: loading config...")
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	kin := cartesian.New(cfg.KinematicsLimits())
	ext := linear.New("extruder", cfg.Extruder)

	log.Println("printerd: opening mcu...")
	dev, err := mcuserial.Open(*device)
	if err != nil {
		return err
	}
	defer dev.Close()
	m := mcuserial.New(dev)

	zp, err := zpos.Load(*zposPath)
	if err != nil {
		return err
	}

	bridge := &trapq.Bridge{Queue: store.New(), Extruder: ext}
	react := reactor.New()

	th := toolhead.New(toolheadConfig(cfg), kin, ext, []mcu.Mcu{m}, bridge, react, zp)
	th.OnShutdown = func(reason string) {
		log.Printf("printerd: shutdown: %s", reason)
	}
	th.OnZPosError = func(err error) {
		log.Printf("printerd: failed to persist last-known z position: %v", err)
	}

	log.Println("printerd: ready")
	return serve(th, os.Stdin, os.Stdout)
}

func toolheadConfig(cfg *config.Printer) toolhead.Config {
	lim := cfg.MoveLimits()
	return toolhead.Config{
		MaxVelocity:             lim.MaxVelocity,
		MaxAccel:                lim.MaxAccel,
		RequestedAccelToDecel:   lim.MaxAccelToDecel,
		SquareCornerVelocity:    lim.SquareCornerVelocity,
		SquareCornerMaxVelocity: cfg.SquareCornerMaxVelocity,
		BufferTimeLow:           cfg.BufferTimeLow,
		BufferTimeHigh:          cfg.BufferTimeHigh,
		BufferTimeStart:         cfg.BufferTimeStart,
		MoveFlushTime:           cfg.MoveFlushTime,
	}
}

// serve reads newline-delimited G-code-style commands from r and
// dispatches the handful the toolhead owns directly, writing a
// one-line status or error to w for each.
func serve(th *toolhead.ToolHead, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := dispatch(th, line); err != nil {
			fmt.Fprintf(w, "!! %v\n", err)
			continue
		}
		fmt.Fprintln(w, "ok")
	}
	return sc.Err()
}

func dispatch(th *toolhead.ToolHead, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	args := parseArgs(rest)
	switch strings.ToUpper(cmd) {
	case "G4":
		th.CmdG4(args)
	case "M400":
		th.CmdM400(args)
	case "M204":
		return th.CmdM204(args, line)
	case "SET_VELOCITY_LIMIT":
		th.CmdSetVelocityLimit(args, gcode.QmodeCap{})
	case "SET_G29_FLAG":
		th.CmdSetG29Flag(args)
	default:
		return gcode.InvalidCommand(line)
	}
	return nil
}

func parseArgs(rest string) gcode.Args {
	args := gcode.Args{}
	for _, field := range strings.Fields(rest) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			// Classic G-code parameter: a letter followed by its value,
			// as in "G4 P500" or "M204 S3000".
			if len(field) < 2 {
				continue
			}
			key, val = field[:1], field[1:]
		}
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			continue
		}
		args[strings.ToUpper(key)] = val
	}
	return args
}
