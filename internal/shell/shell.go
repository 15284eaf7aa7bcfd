package shell

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/shaunagostinho/radarbridge/internal/console"
	"github.com/shaunagostinho/radarbridge/internal/radar"
)

// Radar is the part of *radar.Sensor the shell drives.
type Radar interface {
	Snapshot() radar.Snapshot
	Do(ctx context.Context, fn func(*radar.Engine) error) error
}

// Shell provides an ishell backed interactive shell on one sensor.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell *ishell.Shell
	Radar Radar
}

const (
	shellKey = "$shell"
	prompt   = "ld2410 > "

	defaultTimeout = 5 * time.Second
)

// action is the body of a command. Output goes to w.
type action func(s *Shell, w io.Writer, args []string) error

type command struct {
	name    string
	aliases []string
	help    string
	run     action
}

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands = []command{
		{"status", []string{"st"}, "show the latest detection and frame counters", runStatus},
		{"config", nil, "read the gate configuration from the sensor", runConfig},
		{"version", []string{"ver"}, "read the firmware version", runVersion},
		{"eng", nil, "eng on|off: switch engineering reports", runEngineering},
		{"gates", nil, "gates <moving> <stationary> <idle-seconds>: set the farthest gates", runGates},
		{"sens", nil, "sens <gate|all> <motion> <stationary>: set gate sensitivity (0-100)", runSensitivity},
		{"baud", nil, "baud <rate>: set the line rate, applied after restart", runBaud},
		{"restart", nil, "reboot the sensor", runRestart},
		{"factory-reset", nil, "restore factory settings, applied after restart", runFactoryReset},
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell on r.
func New(r Radar) *Shell {
	s := newShell(r)
	s.Shell = ishell.New()
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd.ishellCmd())
	}
	return s
}

func newShell(r Radar) *Shell {
	return &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     defaultTimeout,
		Radar:       r,
	}
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (cmd command) ishellCmd() *ishell.Cmd {
	run := cmd.run
	return &ishell.Cmd{
		Name:    cmd.name,
		Aliases: cmd.aliases,
		Help:    cmd.help,
		Func: func(c *ishell.Context) {
			if err := run(ShellFrom(c), contextWriter{c}, c.Args); err != nil {
				c.Err(err)
			}
		},
	}
}

type contextWriter struct{ c *ishell.Context }

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

// Exec runs one command by name or alias, writing its output to w.
func (s *Shell) Exec(w io.Writer, name string, args ...string) error {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(s, w, args)
		}
		for _, a := range cmd.aliases {
			if a == name {
				return cmd.run(s, w, args)
			}
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

// Run runs the shell. With args, they are evaluated as one command line.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return fmt.Errorf("nothing to evaluate")
	}
	s.Shell.Run()
	return nil
}

func (s *Shell) do(fn func(*radar.Engine) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	return s.Radar.Do(ctx, fn)
}

func (s *Shell) print(w io.Writer, v interface{}, text string) error {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(out))
		return nil
	}
	fmt.Fprintln(w, text)
	return nil
}

func (s *Shell) ok(w io.Writer) error {
	return s.print(w, map[string]bool{"ok": true}, "OK")
}

func wantArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func parseUint8(name, s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", name, err)
	}
	return uint8(v), nil
}

func runStatus(s *Shell, w io.Writer, args []string) error {
	snap := s.Radar.Snapshot()
	if s.OutputJSON {
		return s.print(w, snap, "")
	}
	if !snap.Connected {
		fmt.Fprintln(w, "Radar disconnected")
	} else {
		fmt.Fprintln(w, console.FormatDetection(snap.Detection))
		if snap.Engineering != nil {
			fmt.Fprintln(w, console.FormatGates(snap.Engineering))
			fmt.Fprintf(w, "Light: %d Out: %v\n", snap.Engineering.LightLevel, snap.Engineering.OutPin)
		}
	}
	if snap.Firmware != nil {
		fmt.Fprintf(w, "Firmware: %s\n", snap.Firmware)
	}
	fmt.Fprintf(w, "Frames: %d Discarded: %d\n", snap.Frames.Frames, snap.Frames.Discarded)
	return nil
}

func runConfig(s *Shell, w io.Writer, args []string) error {
	var cfg *radar.SensorConfiguration
	err := s.do(func(e *radar.Engine) error {
		var err error
		cfg, err = e.ReadConfiguration()
		return err
	})
	if err != nil {
		return err
	}
	if s.OutputJSON {
		return s.print(w, cfg, "")
	}
	console.WriteConfiguration(w, *cfg)
	return nil
}

func runVersion(s *Shell, w io.Writer, args []string) error {
	var v *radar.FirmwareVersion
	err := s.do(func(e *radar.Engine) error {
		var err error
		v, err = e.ReadFirmwareVersion()
		return err
	})
	if err != nil {
		return err
	}
	return s.print(w, v, v.String())
}

func runEngineering(s *Shell, w io.Writer, args []string) error {
	if err := wantArgs(args, 1, "eng on|off"); err != nil {
		return err
	}
	var on bool
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		on = true
	case "off", "0", "false":
	default:
		return fmt.Errorf("invalid mode: %q", args[0])
	}
	if err := s.do(func(e *radar.Engine) error { return e.SetEngineeringMode(on) }); err != nil {
		return err
	}
	return s.ok(w)
}

func runGates(s *Shell, w io.Writer, args []string) error {
	if err := wantArgs(args, 3, "gates <moving> <stationary> <idle-seconds>"); err != nil {
		return err
	}
	moving, err := parseUint8("moving gate", args[0])
	if err != nil {
		return err
	}
	stationary, err := parseUint8("stationary gate", args[1])
	if err != nil {
		return err
	}
	idle, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid idle time: %v", err)
	}
	if err := s.do(func(e *radar.Engine) error { return e.SetMaxGates(moving, stationary, uint16(idle)) }); err != nil {
		return err
	}
	return s.ok(w)
}

func runSensitivity(s *Shell, w io.Writer, args []string) error {
	if err := wantArgs(args, 3, "sens <gate|all> <motion> <stationary>"); err != nil {
		return err
	}
	gate := -1
	if strings.ToLower(args[0]) != "all" {
		g, err := parseUint8("gate", args[0])
		if err != nil {
			return err
		}
		gate = int(g)
	}
	motion, err := parseUint8("motion sensitivity", args[1])
	if err != nil {
		return err
	}
	stationary, err := parseUint8("stationary sensitivity", args[2])
	if err != nil {
		return err
	}
	if err := s.do(func(e *radar.Engine) error { return e.SetGateSensitivity(gate, motion, stationary) }); err != nil {
		return err
	}
	return s.ok(w)
}

// baudIndex maps a line rate to its set-baud-rate index.
func baudIndex(rate int) (uint16, error) {
	for idx, r := range radar.BaudRates {
		if r == rate {
			return idx, nil
		}
	}
	rates := make([]int, 0, len(radar.BaudRates))
	for _, r := range radar.BaudRates {
		rates = append(rates, r)
	}
	sort.Ints(rates)
	return 0, fmt.Errorf("invalid baud rate %d, one of %v", rate, rates)
}

func runBaud(s *Shell, w io.Writer, args []string) error {
	if err := wantArgs(args, 1, "baud <rate>"); err != nil {
		return err
	}
	rate, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid baud rate: %v", err)
	}
	idx, err := baudIndex(rate)
	if err != nil {
		return err
	}
	if err := s.do(func(e *radar.Engine) error { return e.SetBaudRate(idx) }); err != nil {
		return err
	}
	return s.ok(w)
}

func runRestart(s *Shell, w io.Writer, args []string) error {
	if err := s.do(func(e *radar.Engine) error { return e.Restart() }); err != nil {
		return err
	}
	return s.ok(w)
}

func runFactoryReset(s *Shell, w io.Writer, args []string) error {
	if err := s.do(func(e *radar.Engine) error { return e.FactoryReset() }); err != nil {
		return err
	}
	return s.ok(w)
}
