package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/radarbridge/internal/radar"
)

type fakeRadar struct {
	sim    *radar.Simulator
	state  *radar.State
	engine *radar.Engine
	err    error
}

func newFakeRadar() *fakeRadar {
	sim := radar.NewSimulator()
	sim.Interval = 0
	state := radar.NewState(0)
	return &fakeRadar{sim: sim, state: state, engine: radar.NewEngine(radar.NewPipeline(sim, state, 0))}
}

func (f *fakeRadar) Snapshot() radar.Snapshot { return f.state.Snapshot() }

func (f *fakeRadar) Do(ctx context.Context, fn func(*radar.Engine) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.engine)
}

func exec(t *testing.T, s *Shell, name string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := s.Exec(&out, name, args...)
	return out.String(), err
}

func TestStatus(t *testing.T) {
	r := newFakeRadar()
	s := newShell(r)

	out, err := exec(t, s, "status")
	require.NoError(t, err)
	assert.Equal(t, "Radar disconnected\nFrames: 0 Discarded: 0\n", out)

	r.state.MarkFrame(radar.AssemblerStats{Frames: 7, Discarded: 1})
	r.state.ApplyDetection(radar.DetectionReport{State: radar.TargetMoving, Presence: true, MovingDetected: true, MovingDistanceCm: 80, MovingEnergy: 44})
	out, err = exec(t, s, "st")
	require.NoError(t, err)
	assert.Equal(t, "Presence: YES | Moving: 80cm E:44\nFrames: 7 Discarded: 1\n", out)

	s.OutputJSON = true
	out, err = exec(t, s, "status")
	require.NoError(t, err)
	var snap radar.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, uint16(80), snap.Detection.MovingDistanceCm)
}

func TestConfigAndVersion(t *testing.T) {
	r := newFakeRadar()
	s := newShell(r)

	out, err := exec(t, s, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "SENSOR CONFIGURATION:")
	assert.Contains(t, out, "Sensor idle time: 5 seconds")
	assert.NotNil(t, r.state.Snapshot().Configuration)

	out, err = exec(t, s, "ver")
	require.NoError(t, err)
	assert.Equal(t, "2.4.24052111\n", out)

	s.OutputJSON = true
	out, err = exec(t, s, "config")
	require.NoError(t, err)
	var cfg radar.SensorConfiguration
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, r.sim.Configuration(), cfg)
}

func TestEngineering(t *testing.T) {
	r := newFakeRadar()
	s := newShell(r)

	out, err := exec(t, s, "eng", "on")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
	assert.True(t, r.sim.Engineering())

	_, err = exec(t, s, "eng", "OFF")
	require.NoError(t, err)
	assert.False(t, r.sim.Engineering())

	_, err = exec(t, s, "eng", "maybe")
	assert.EqualError(t, err, `invalid mode: "maybe"`)
	_, err = exec(t, s, "eng")
	assert.EqualError(t, err, "usage: eng on|off")
}

func TestGatesAndSensitivity(t *testing.T) {
	r := newFakeRadar()
	s := newShell(r)

	_, err := exec(t, s, "gates", "5", "6", "30")
	require.NoError(t, err)
	cfg := r.sim.Configuration()
	assert.Equal(t, uint8(5), cfg.MaxMovingGate)
	assert.Equal(t, uint8(6), cfg.MaxStationaryGate)
	assert.Equal(t, uint16(30), cfg.IdleTimeoutSeconds)

	_, err = exec(t, s, "sens", "all", "60", "70")
	require.NoError(t, err)
	_, err = exec(t, s, "sens", "3", "10", "20")
	require.NoError(t, err)
	cfg = r.sim.Configuration()
	assert.Equal(t, uint8(60), cfg.MotionSensitivity[0])
	assert.Equal(t, uint8(70), cfg.StationarySensitivity[8])
	assert.Equal(t, uint8(10), cfg.MotionSensitivity[3])
	assert.Equal(t, uint8(20), cfg.StationarySensitivity[3])

	tests := []struct {
		name string
		args []string
	}{
		{"gates", []string{"5", "6"}},
		{"gates", []string{"x", "6", "30"}},
		{"gates", []string{"5", "6", "70000"}},
		{"gates", []string{"9", "6", "30"}},
		{"sens", []string{"1", "300", "20"}},
		{"sens", []string{"1", "100", "101"}},
		{"sens", []string{"12", "10", "10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name+" "+strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := exec(t, s, tt.name, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestBaudIndex(t *testing.T) {
	idx, err := baudIndex(115200)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), idx)

	_, err = baudIndex(12345)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid baud rate 12345"))
	assert.Contains(t, err.Error(), "[9600 19200 38400 57600 115200 230400 256000 460800]")
}

func TestBaudRestartReset(t *testing.T) {
	r := newFakeRadar()
	s := newShell(r)

	_, err := exec(t, s, "baud", "256000")
	require.NoError(t, err)
	_, err = exec(t, s, "baud", "fast")
	assert.Error(t, err)

	_, err = exec(t, s, "gates", "2", "2", "1")
	require.NoError(t, err)
	_, err = exec(t, s, "factory-reset")
	require.NoError(t, err)
	assert.Equal(t, uint8(radar.MaxGate), r.sim.Configuration().MaxMovingGate)

	require.NoError(t, r.engine.SetEngineeringMode(true))
	out, err := exec(t, s, "restart")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
	assert.False(t, r.sim.Engineering())
}

func TestRadarErrorsPropagate(t *testing.T) {
	r := newFakeRadar()
	r.err = radar.ErrNotConnected
	s := newShell(r)

	_, err := exec(t, s, "version")
	assert.True(t, errors.Is(err, radar.ErrNotConnected))

	_, err = exec(t, s, "nope")
	assert.EqualError(t, err, `unknown command "nope"`)
}
