package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/shaunagostinho/radarbridge/internal/radar"
)

// Radar is the part of *radar.Sensor the console needs.
type Radar interface {
	Snapshot() radar.Snapshot
	Do(ctx context.Context, fn func(*radar.Engine) error) error
}

const (
	lineEnd   = "\r\n"
	separator = "===================================="

	DefaultReportInterval     = 500 * time.Millisecond
	DefaultDisconnectInterval = 5 * time.Second
	DefaultConfigRetry        = 30 * time.Second

	commandTimeout = 3 * time.Second
	tickInterval   = 50 * time.Millisecond
	// A reminder is printed after this many report lines without gate data.
	engineeringHintEvery = 50
)

// Console speaks the line protocol consumed by the desktop viewer: periodic
// detection lines, configuration blocks and a handful of text commands.
type Console struct {
	radar Radar
	out   io.Writer
	in    io.Reader

	ReportInterval     time.Duration
	DisconnectInterval time.Duration
	ConfigRetry        time.Duration

	lastReading    time.Time
	lastConfigRead time.Time
	firmwareShown  bool
	configShown    bool
	headerShown    bool
	basicLines     int

	now func() time.Time
}

// New creates a Console writing to out and reading commands from in. in may
// be nil for an output-only console.
func New(r Radar, out io.Writer, in io.Reader) *Console {
	return &Console{
		radar:              r,
		out:                out,
		in:                 in,
		ReportInterval:     DefaultReportInterval,
		DisconnectInterval: DefaultDisconnectInterval,
		ConfigRetry:        DefaultConfigRetry,
		now:                time.Now,
	}
}

// OpenSerial opens the console UART, 8N1.
func OpenSerial(path string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("console: failed to open %s: %w", path, err)
	}
	return port, nil
}

// Run prints the banner and then reports until ctx is done.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	if c.in != nil {
		go c.readLines(ctx, lines)
	}

	c.banner()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			c.HandleCommand(ctx, line)
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Console) readLines(ctx context.Context, lines chan<- string) {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		glog.Warningf("[console] input closed: %v", err)
	}
}

func (c *Console) println(a ...interface{}) {
	fmt.Fprint(c.out, a...)
	io.WriteString(c.out, lineEnd)
}

func (c *Console) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.out, format, a...)
	io.WriteString(c.out, lineEnd)
}

func (c *Console) banner() {
	c.println(separator)
	c.println("LD2410 Radar Bridge")
	c.println(separator)
}

// tick runs the periodic output: detection lines while the sensor is live, a
// disconnect notice while it is not, and the configuration block until it
// has been shown once.
func (c *Console) tick(ctx context.Context) {
	now := c.now()
	snap := c.radar.Snapshot()

	if !snap.Connected {
		if now.Sub(c.lastReading) >= c.DisconnectInterval {
			c.lastReading = now
			c.println("Radar disconnected - Check connections")
		}
		return
	}

	if !c.firmwareShown && snap.Firmware != nil {
		c.firmwareShown = true
		c.println(separator)
		c.println("FIRMWARE INFORMATION:")
		c.println(separator)
		c.println("Version: ", snap.Firmware.String())
	}

	if !c.configShown {
		cfg := snap.Configuration
		if cfg == nil && now.Sub(c.lastConfigRead) >= c.ConfigRetry {
			c.lastConfigRead = now
			c.println("")
			c.println("Retrying configuration read...")
			cfg, _ = c.readConfiguration(ctx)
		}
		if cfg != nil {
			c.PrintConfiguration(*cfg)
			c.configShown = true
		}
	}

	if !c.headerShown {
		c.headerShown = true
		c.println(separator)
		c.println("REAL-TIME DETECTION DATA:")
		c.printf("(Updates every %dms)", c.ReportInterval.Milliseconds())
		c.println("Format: Presence: YES/NO | Stationary: XXcm E:YY | Moving: XXcm E:YY")
		c.println(separator)
	}

	if now.Sub(c.lastReading) >= c.ReportInterval {
		c.lastReading = now
		c.printDetection(snap)
	}
}

func (c *Console) printDetection(snap radar.Snapshot) {
	c.println(FormatDetection(snap.Detection))
	if snap.Engineering != nil {
		c.basicLines = 0
		c.println(FormatGates(snap.Engineering))
		return
	}
	if c.basicLines++; c.basicLines >= engineeringHintEvery {
		c.basicLines = 0
		c.println("DEBUG: Engineering mode not enabled")
	}
}

// FormatDetection renders one detection line, e.g.
//
//	Presence: YES | Stationary: 38cm E:100 | Moving: 30cm E:100
func FormatDetection(d radar.DetectionReport) string {
	if !d.Presence {
		return "Presence: NO"
	}
	var b strings.Builder
	b.WriteString("Presence: YES")
	if d.StationaryDetected {
		fmt.Fprintf(&b, " | Stationary: %dcm E:%d", d.StationaryDistanceCm, d.StationaryEnergy)
	}
	if d.MovingDetected {
		fmt.Fprintf(&b, " | Moving: %dcm E:%d", d.MovingDistanceCm, d.MovingEnergy)
	}
	return b.String()
}

// FormatGates renders the per-gate energies of an engineering report.
func FormatGates(e *radar.EngineeringData) string {
	return "GATES_MOV:" + joinGates(e.MovingEnergyPerGate) + " | GATES_STAT:" + joinGates(e.StationaryEnergyPerGate)
}

func joinGates(g [radar.GateCount]uint8) string {
	parts := make([]string, len(g))
	for i, v := range g {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

// PrintConfiguration writes the human-readable configuration block.
func (c *Console) PrintConfiguration(cfg radar.SensorConfiguration) {
	WriteConfiguration(c.out, cfg)
}

// WriteConfiguration writes the configuration block to w.
func WriteConfiguration(w io.Writer, cfg radar.SensorConfiguration) {
	line := func(format string, a ...interface{}) {
		fmt.Fprintf(w, format+lineEnd, a...)
	}
	line(separator)
	line("SENSOR CONFIGURATION:")
	line(separator)
	line("Max gate: %d", cfg.MaxGate)
	line("Max moving gate: %d", cfg.MaxMovingGate)
	line("Max stationary gate: %d", cfg.MaxStationaryGate)
	line("Sensor idle time: %d seconds", cfg.IdleTimeoutSeconds)
	line("")
	line("Motion Sensitivity (per gate):")
	for i, v := range cfg.MotionSensitivity {
		line("  Gate %d: %d", i, v)
	}
	line("")
	line("Stationary Sensitivity (per gate):")
	for i, v := range cfg.StationarySensitivity {
		line("  Gate %d: %d", i, v)
	}
	line(separator)
}

// HandleCommand executes one input line.
func (c *Console) HandleCommand(ctx context.Context, line string) {
	cmd := strings.ToUpper(strings.TrimSpace(line))
	glog.V(1).Infof("[console] command %q", cmd)

	switch cmd {
	case "GET_CONFIG":
		cfg := c.radar.Snapshot().Configuration
		if cfg == nil {
			var err error
			if cfg, err = c.readConfiguration(ctx); err != nil {
				c.printf("ERROR:%v", err)
				return
			}
		}
		c.println("CONFIG_START")
		for i, v := range cfg.MotionSensitivity {
			c.printf("SENSITIVITY_MOTION:%d:%d", i, v)
		}
		for i, v := range cfg.StationarySensitivity {
			c.printf("SENSITIVITY_STATIC:%d:%d", i, v)
		}
		c.println("CONFIG_END")

	case "GET_VERSION":
		v := c.radar.Snapshot().Firmware
		if v == nil {
			err := c.do(ctx, func(e *radar.Engine) error {
				var err error
				v, err = e.ReadFirmwareVersion()
				return err
			})
			if err != nil {
				c.printf("ERROR:%v", err)
				return
			}
		}
		c.println("VERSION:", v.String())

	case "ENG_ON", "ENG_OFF":
		on := cmd == "ENG_ON"
		if err := c.do(ctx, func(e *radar.Engine) error { return e.SetEngineeringMode(on) }); err != nil {
			c.printf("ERROR:%v", err)
			return
		}
		c.println("OK")

	default:
		c.printf("ERROR:unknown command %s", cmd)
	}
}

func (c *Console) readConfiguration(ctx context.Context) (*radar.SensorConfiguration, error) {
	var cfg *radar.SensorConfiguration
	err := c.do(ctx, func(e *radar.Engine) error {
		var err error
		cfg, err = e.ReadConfiguration()
		return err
	})
	if err != nil {
		glog.Warningf("[console] failed to read configuration: %v", err)
		return nil, err
	}
	return cfg, nil
}

func (c *Console) do(ctx context.Context, fn func(*radar.Engine) error) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return c.radar.Do(ctx, fn)
}
