package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
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

func (f *fakeRadar) Name() string { return "LD2410" }
func (f *fakeRadar) IsOpen() bool { return f.err == nil }
func (f *fakeRadar) Snapshot() radar.Snapshot { return f.state.Snapshot() }

func (f *fakeRadar) Do(ctx context.Context, fn func(*radar.Engine) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.engine)
}

func newTestServer(t *testing.T) (*Server, *fakeRadar, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "config.yaml")
	r := newFakeRadar()
	s := New(cfg, r, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, r, ts
}

func TestGetRadar(t *testing.T) {
	_, r, ts := newTestServer(t)
	r.state.MarkFrame(radar.AssemblerStats{Frames: 3})
	r.state.ApplyDetection(radar.DetectionReport{State: radar.TargetMoving, Presence: true, MovingDetected: true, MovingDistanceCm: 42})

	resp, err := http.Get(ts.URL + "/api/radar")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var f Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	require.NotNil(t, f.Radar)
	assert.True(t, f.Radar.Connected)
	assert.Equal(t, uint16(42), f.Radar.Detection.MovingDistanceCm)
	assert.Equal(t, &SensorInfo{Name: "LD2410", Type: "demo", Open: true}, f.Sensor)
}

func TestEngineeringEndpoint(t *testing.T) {
	_, r, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/radar/engineering", "application/json", strings.NewReader(`{"enabled":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, r.sim.Engineering())

	resp, err = http.Post(ts.URL+"/api/radar/engineering", "application/json", strings.NewReader(`{"enabled":false}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, r.sim.Engineering())

	resp, err = http.Post(ts.URL+"/api/radar/engineering", "application/json", strings.NewReader(`nope`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/radar/engineering")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCommandErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not connected", radar.ErrNotConnected, http.StatusServiceUnavailable},
		{"timeout", &radar.TimeoutError{Command: radar.CmdRestart}, http.StatusGatewayTimeout},
		{"refused", &radar.CommandError{Command: radar.CmdRestart, Status: 1}, http.StatusConflict},
		{"ctx", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r, ts := newTestServer(t)
			r.err = tt.err
			resp, err := http.Post(ts.URL+"/api/radar/restart", "application/json", nil)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRadarConfigEndpoint(t *testing.T) {
	_, r, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/radar/config", "application/json", nil)
	require.NoError(t, err)
	var cfg radar.SensorConfiguration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.Equal(t, r.sim.Configuration(), cfg)
	assert.NotNil(t, r.state.Snapshot().Configuration)

	body := `{"maxMovingGate":4,"idleTimeoutSeconds":20,"gates":[{"gate":-1,"motion":35,"stationary":25},{"gate":2,"motion":90,"stationary":80}]}`
	resp, err = http.Post(ts.URL+"/api/radar/config", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, uint8(4), cfg.MaxMovingGate)
	assert.Equal(t, uint8(radar.MaxGate), cfg.MaxStationaryGate)
	assert.Equal(t, uint16(20), cfg.IdleTimeoutSeconds)
	assert.Equal(t, uint8(35), cfg.MotionSensitivity[0])
	assert.Equal(t, uint8(90), cfg.MotionSensitivity[2])
	assert.Equal(t, uint8(80), cfg.StationarySensitivity[2])

	resp, err = http.Post(ts.URL+"/api/radar/config", "application/json", strings.NewReader(`{"gates":[{"gate":12}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRestartEndpoint(t *testing.T) {
	_, r, ts := newTestServer(t)
	require.NoError(t, r.engine.SetEngineeringMode(true))

	resp, err := http.Post(ts.URL+"/api/radar/restart", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, r.sim.Engineering())
}

func TestConfigEndpoint(t *testing.T) {
	s, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/config", "application/json", strings.NewReader(`{"logging":{"intervalMs":250},"server":{"broadcastHz":5}}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	snap := s.cfg.Snapshot()
	assert.Equal(t, 250, snap.Logging.Interval)
	assert.Equal(t, 5, snap.Server.BroadcastHz)
	assert.Equal(t, "/dev/ttyUSB0", snap.Radar.PortPath)

	resp, err = http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, float64(250), got["logging"]["intervalMs"])

	saved := LoadConfig(s.cfg.path)
	assert.Equal(t, 250, saved.Logging.Interval)
}

func TestWebSocketBroadcast(t *testing.T) {
	s, r, ts := newTestServer(t)
	r.state.MarkFrame(radar.AssemblerStats{Frames: 1})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Frame
	require.NoError(t, conn.ReadJSON(&first))
	require.NotNil(t, first.Sensor)
	assert.Equal(t, "LD2410", first.Sensor.Name)

	r.state.ApplyDetection(radar.DetectionReport{State: radar.TargetStationary, Presence: true, StationaryDetected: true, StationaryDistanceCm: 210})
	s.tick()

	var next Frame
	require.NoError(t, conn.ReadJSON(&next))
	require.NotNil(t, next.Radar)
	assert.Equal(t, uint16(210), next.Radar.Detection.StationaryDistanceCm)
}
