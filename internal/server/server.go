package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/radarbridge/internal/logger"
	"github.com/shaunagostinho/radarbridge/internal/radar"
)

// Radar is the part of *radar.Sensor the server needs.
type Radar interface {
	Name() string
	IsOpen() bool
	Snapshot() radar.Snapshot
	Do(ctx context.Context, fn func(*radar.Engine) error) error
}

const commandTimeout = 5 * time.Second

// Server broadcasts radar snapshots to WebSocket clients and exposes the
// sensor commands over HTTP.
type Server struct {
	cfg    *Config
	radar  Radar
	webFS  fs.FS
	logger *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Sensor *SensorInfo     `json:"sensor,omitempty"`
	Radar  *radar.Snapshot `json:"radar,omitempty"`
	Stamp  int64           `json:"stamp"` // Unix ms
}

// SensorInfo describes the sensor link.
type SensorInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Open bool   `json:"open"`
}

// New creates a new Server.
func New(cfg *Config, r Radar, webFS fs.FS) *Server {
	return &Server{
		cfg:   cfg,
		radar: r,
		webFS: webFS,
		logger: logger.New(logger.Config{
			Enabled:    cfg.Logging.Enabled,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.Interval,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)

	// Radar API
	mux.HandleFunc("/api/radar", s.handleRadar)
	mux.HandleFunc("/api/radar/config", s.handleRadarConfig)
	mux.HandleFunc("/api/radar/engineering", s.handleEngineering)
	mux.HandleFunc("/api/radar/restart", s.handleRestart)
	return mux
}

// Run starts the HTTP server and the broadcast loop.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Snapshot().Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	glog.Infof("[server] listening on %s", srv.Addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) sensorInfo() *SensorInfo {
	return &SensorInfo{
		Name: s.radar.Name(),
		Type: s.cfg.Snapshot().Radar.Type,
		Open: s.radar.IsOpen(),
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	glog.Infof("[ws] client connected (%d total)", n)

	// Initial frame so the page can render before the first tick
	snap := s.radar.Snapshot()
	first := Frame{Sensor: s.sensorInfo(), Radar: &snap, Stamp: time.Now().UnixMilli()}
	if data, err := json.Marshal(first); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive, detects close)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			glog.Infof("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// commandError maps a sensor error onto an HTTP status.
func commandError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, radar.ErrNotConnected):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, radar.ErrCommandTimeout):
		code = http.StatusGatewayTimeout
	case radar.IsCommandError(err):
		code = http.StatusConflict
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			glog.Warningf("[config] save failed: %v", err)
		}
		s.logger.SetEnabled(s.cfg.Snapshot().Logging.Enabled)
		writeOK(w)

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleRadar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	snap := s.radar.Snapshot()
	writeJSON(w, Frame{Sensor: s.sensorInfo(), Radar: &snap, Stamp: time.Now().UnixMilli()})
}

// GateSetting is one per-gate sensitivity change. Gate -1 selects all gates.
type GateSetting struct {
	Gate       int   `json:"gate"`
	Motion     uint8 `json:"motion"`
	Stationary uint8 `json:"stationary"`
}

// RadarSettings is the optional body of POST /api/radar/config. Empty fields
// are left alone; the configuration is read back afterwards either way.
type RadarSettings struct {
	MaxMovingGate      *uint8        `json:"maxMovingGate,omitempty"`
	MaxStationaryGate  *uint8        `json:"maxStationaryGate,omitempty"`
	IdleTimeoutSeconds *uint16       `json:"idleTimeoutSeconds,omitempty"`
	Gates              []GateSetting `json:"gates,omitempty"`
}

func (s *Server) handleRadarConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	var set RadarSettings
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &set); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	var cfg *radar.SensorConfiguration
	err = s.radar.Do(ctx, func(e *radar.Engine) error {
		if err := applySettings(e, set); err != nil {
			return err
		}
		var err error
		cfg, err = e.ReadConfiguration()
		return err
	})
	if err != nil {
		glog.Warningf("[server] radar config: %v", err)
		commandError(w, err)
		return
	}
	writeJSON(w, cfg)
}

func applySettings(e *radar.Engine, set RadarSettings) error {
	if set.MaxMovingGate != nil || set.MaxStationaryGate != nil || set.IdleTimeoutSeconds != nil {
		// The command sets all three; fill the gaps from the sensor.
		cur, err := e.ReadConfiguration()
		if err != nil {
			return err
		}
		moving, stationary, idle := cur.MaxMovingGate, cur.MaxStationaryGate, cur.IdleTimeoutSeconds
		if set.MaxMovingGate != nil {
			moving = *set.MaxMovingGate
		}
		if set.MaxStationaryGate != nil {
			stationary = *set.MaxStationaryGate
		}
		if set.IdleTimeoutSeconds != nil {
			idle = *set.IdleTimeoutSeconds
		}
		if err := e.SetMaxGates(moving, stationary, idle); err != nil {
			return err
		}
	}
	for _, g := range set.Gates {
		if err := e.SetGateSensitivity(g.Gate, g.Motion, g.Stationary); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleEngineering(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", 400)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := s.radar.Do(ctx, func(e *radar.Engine) error { return e.SetEngineeringMode(req.Enabled) }); err != nil {
		glog.Warningf("[server] engineering mode: %v", err)
		commandError(w, err)
		return
	}
	glog.Infof("[server] engineering mode %v", req.Enabled)
	writeOK(w)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := s.radar.Do(ctx, func(e *radar.Engine) error { return e.Restart() }); err != nil {
		glog.Warningf("[server] restart: %v", err)
		commandError(w, err)
		return
	}
	glog.Infof("[server] sensor restarting")
	writeOK(w)
}

// broadcastLoop pushes the current snapshot to clients and the CSV log at
// BroadcastHz.
func (s *Server) broadcastLoop(ctx context.Context) {
	hz := s.cfg.Snapshot().Server.BroadcastHz
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Close()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) tick() {
	snap := s.radar.Snapshot()
	// Nothing to show until the first frame
	if snap.LastFrame.IsZero() {
		return
	}
	s.broadcast(Frame{Sensor: s.sensorInfo(), Radar: &snap, Stamp: time.Now().UnixMilli()})
	s.logger.Record(snap)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
