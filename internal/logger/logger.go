package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/shaunagostinho/radarbridge/internal/radar"
)

// Logger records timestamped radar snapshots to CSV files with automatic rotation.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int

	now func() time.Time
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // ~14 hrs at 2 Hz
)

var csvHeader = buildHeader()

func buildHeader() []string {
	h := []string{
		"timestamp", "connected", "state", "presence",
		"moving", "moving_cm", "moving_energy",
		"stationary", "stationary_cm", "stationary_energy",
		"detection_cm", "light", "out_pin",
	}
	for g := 0; g < radar.GateCount; g++ {
		h = append(h, fmt.Sprintf("mov_g%d", g))
	}
	for g := 0; g < radar.GateCount; g++ {
		h = append(h, fmt.Sprintf("stat_g%d", g))
	}
	return append(h, "frames", "discarded")
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/radarbridge"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 100 * time.Millisecond // Default 10 Hz
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a snapshot if the minimum interval has elapsed.
func (l *Logger) Record(snap radar.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := l.now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			glog.Warningf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(now, snap)); err != nil {
		glog.Warningf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("radar_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	glog.Infof("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, s radar.Snapshot) []string {
	d := s.Detection
	row := []string{
		ts.Format(time.RFC3339Nano),
		boolStr(s.Connected),
		d.State.String(),
		boolStr(d.Presence),
		boolStr(d.MovingDetected),
		strconv.Itoa(int(d.MovingDistanceCm)),
		strconv.Itoa(int(d.MovingEnergy)),
		boolStr(d.StationaryDetected),
		strconv.Itoa(int(d.StationaryDistanceCm)),
		strconv.Itoa(int(d.StationaryEnergy)),
		strconv.Itoa(int(d.DetectionDistanceCm)),
	}

	// Engineering columns stay empty in basic mode.
	eng := make([]string, 2+2*radar.GateCount)
	if e := s.Engineering; e != nil {
		eng[0] = strconv.Itoa(int(e.LightLevel))
		eng[1] = boolStr(e.OutPin)
		for g := 0; g < radar.GateCount; g++ {
			eng[2+g] = strconv.Itoa(int(e.MovingEnergyPerGate[g]))
			eng[2+radar.GateCount+g] = strconv.Itoa(int(e.StationaryEnergyPerGate[g]))
		}
	}
	row = append(row, eng...)

	return append(row,
		strconv.FormatUint(s.Frames.Frames, 10),
		strconv.FormatUint(s.Frames.Discarded, 10),
	)
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
