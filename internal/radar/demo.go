package radar

import (
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Simulator is an in-process LD2410 stand-in. It streams data reports on a
// fixed interval, answers command frames with ACKs and keeps the settings
// written to it. It is the transport behind -demo and the engine tests.
type Simulator struct {
	mu sync.Mutex

	// Interval between data reports. 0 disables reporting.
	Interval time.Duration
	// Mute drops every command without an ACK.
	Mute bool
	// FailEngineering makes that many enable-engineering commands fail.
	FailEngineering int

	out      []byte
	cmds     *Assembler
	lastEmit time.Time
	t        float64
	closed   bool

	configMode  bool
	engineering bool
	config      SensorConfiguration
	firmware    FirmwareVersion
	baudIndex   uint16

	now func() time.Time
}

// NewSimulator creates a Simulator with factory default settings.
func NewSimulator() *Simulator {
	s := &Simulator{
		Interval: 100 * time.Millisecond,
		cmds:     NewAssembler(DefaultMaxPayload),
		firmware: FirmwareVersion{Type: 0, Major: 2, Minor: 4, Bugfix: 0x24052111},
		now:      time.Now,
	}
	s.factoryDefaults()
	return s
}

// DemoOpener returns an opener that creates a fresh Simulator.
func DemoOpener() Opener {
	return func() (Transport, error) { return NewSimulator(), nil }
}

func (s *Simulator) factoryDefaults() {
	s.config = SensorConfiguration{
		MaxGate:               MaxGate,
		MaxMovingGate:         MaxGate,
		MaxStationaryGate:     MaxGate,
		IdleTimeoutSeconds:    5,
		MotionSensitivity:     [GateCount]uint8{50, 50, 40, 30, 20, 15, 15, 15, 15},
		StationarySensitivity: [GateCount]uint8{0, 0, 40, 40, 30, 30, 20, 20, 20},
	}
	s.baudIndex = 0x0007
}

// Engineering reports whether the simulated sensor is in engineering mode.
func (s *Simulator) Engineering() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineering
}

// Configuration returns the simulated sensor settings.
func (s *Simulator) Configuration() SensorConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Read returns pending ACKs and any reports that have come due.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}

	now := s.now()
	if s.Interval > 0 && !s.configMode {
		if s.lastEmit.IsZero() {
			s.lastEmit = now.Add(-s.Interval)
		}
		for now.Sub(s.lastEmit) >= s.Interval {
			s.lastEmit = s.lastEmit.Add(s.Interval)
			s.out = append(s.out, s.nextReport()...)
		}
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// Write accepts command frames, possibly split across calls.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	for _, f := range s.cmds.Feed(p) {
		if f.Kind != KindAck || len(f.Payload) < 2 || s.Mute {
			continue
		}
		code := CommandCode(binary.LittleEndian.Uint16(f.Payload))
		status, data := s.handle(code, f.Payload[2:])
		s.out = append(s.out, EncodeAck(code, status, data)...)
	}
	return len(p), nil
}

// Close implements io.Closer.
func (s *Simulator) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

const (
	statusOK   uint16 = 0
	statusFail uint16 = 1
)

func (s *Simulator) handle(code CommandCode, params []byte) (uint16, []byte) {
	if code == CmdEnableConfig {
		s.configMode = true
		return statusOK, []byte{0x01, 0x00, 0x40, 0x00}
	}
	if !s.configMode {
		return statusFail, nil
	}

	switch code {
	case CmdEndConfig:
		s.configMode = false
	case CmdReadConfig:
		return statusOK, EncodeConfiguration(s.config)
	case CmdReadFirmware:
		return statusOK, EncodeFirmwareVersion(s.firmware)
	case CmdEnableEngineering:
		if s.FailEngineering > 0 {
			s.FailEngineering--
			return statusFail, nil
		}
		s.engineering = true
	case CmdDisableEngineering:
		s.engineering = false
	case CmdSetMaxValues:
		for word, val := range decodeParamWords(params) {
			switch word {
			case paramMaxMovingGate:
				s.config.MaxMovingGate = uint8(val)
			case paramMaxStationaryGate:
				s.config.MaxStationaryGate = uint8(val)
			case paramIdleTimeout:
				s.config.IdleTimeoutSeconds = uint16(val)
			}
		}
	case CmdSetSensitivity:
		w := decodeParamWords(params)
		gates := []uint32{w[paramGate]}
		if w[paramGate] == allGates {
			gates = []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8}
		}
		for _, g := range gates {
			if g > MaxGate {
				return statusFail, nil
			}
			s.config.MotionSensitivity[g] = uint8(w[paramMotionSens])
			s.config.StationarySensitivity[g] = uint8(w[paramStaticSens])
		}
	case CmdSetBaudRate:
		if len(params) < 2 {
			return statusFail, nil
		}
		s.baudIndex = binary.LittleEndian.Uint16(params)
	case CmdFactoryReset:
		s.factoryDefaults()
	case CmdRestart:
		s.configMode = false
		s.engineering = false
	default:
		return statusFail, nil
	}
	return statusOK, nil
}

func decodeParamWords(p []byte) map[uint16]uint32 {
	out := make(map[uint16]uint32)
	for i := 0; i+6 <= len(p); i += 6 {
		out[binary.LittleEndian.Uint16(p[i:])] = binary.LittleEndian.Uint32(p[i+2:])
	}
	return out
}

// nextReport simulates one person walking towards and away from the sensor
// and sometimes standing still.
func (s *Simulator) nextReport() []byte {
	s.t += 0.1

	dist := 150 + 120*math.Sin(s.t*0.4)
	walking := math.Sin(s.t*0.15) > -0.3
	present := math.Sin(s.t*0.05) > -0.8

	d := DetectionReport{}
	switch {
	case !present:
		d.State = TargetNone
	case walking:
		d.State = TargetBoth
	default:
		d.State = TargetStationary
	}
	if d.State.Moving() {
		d.MovingDistanceCm = uint16(dist)
		d.MovingEnergy = uint8(60 + rand.Intn(40))
	}
	if d.State.Stationary() {
		d.StationaryDistanceCm = uint16(dist + rand.Float64()*10)
		d.StationaryEnergy = uint8(40 + rand.Intn(60))
	}
	if present {
		d.DetectionDistanceCm = uint16(dist)
	}

	if !s.engineering {
		return EncodeReport(d, nil)
	}

	eng := &EngineeringData{
		MaxMovingGate:     s.config.MaxMovingGate,
		MaxStationaryGate: s.config.MaxStationaryGate,
		LightLevel:        uint8(80 + rand.Intn(20)),
		OutPin:            present,
	}
	// Gates are 75 cm wide.
	target := dist / 75
	for g := 0; g < GateCount; g++ {
		noise := uint8(rand.Intn(8))
		eng.MovingEnergyPerGate[g] = noise
		eng.StationaryEnergyPerGate[g] = noise
		if !present {
			continue
		}
		peak := 100 - 35*math.Abs(float64(g)-target)
		if peak < 0 {
			peak = 0
		}
		if walking {
			eng.MovingEnergyPerGate[g] += uint8(peak * 0.9)
		}
		eng.StationaryEnergyPerGate[g] += uint8(peak * 0.6)
	}
	return EncodeReport(d, eng)
}
