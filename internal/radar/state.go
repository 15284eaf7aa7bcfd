package radar

import (
	"sync"
	"time"
)

// DefaultLivenessWindow is how long the sensor may stay silent before it is
// reported disconnected.
const DefaultLivenessWindow = 5 * time.Second

// Snapshot is an immutable copy of the sensor state.
type Snapshot struct {
	Connected     bool                 `json:"connected"`
	LastFrame     time.Time            `json:"lastFrame"`
	Detection     DetectionReport      `json:"detection"`
	DetectionAt   time.Time            `json:"detectionAt"`
	Engineering   *EngineeringData     `json:"engineering,omitempty"`
	Configuration *SensorConfiguration `json:"configuration,omitempty"`
	Firmware      *FirmwareVersion     `json:"firmware,omitempty"`
	Frames        AssemblerStats       `json:"frames"`
}

// State holds the latest decoded sensor data. The decode path is the only
// writer; any goroutine may take a Snapshot.
type State struct {
	mu       sync.RWMutex
	liveness time.Duration
	now      func() time.Time

	lastFrame   time.Time
	detection   DetectionReport
	detectionAt time.Time
	engineering *EngineeringData
	config      *SensorConfiguration
	firmware    *FirmwareVersion
	frames      AssemblerStats
}

// NewState creates an empty State. liveness <= 0 selects DefaultLivenessWindow.
func NewState(liveness time.Duration) *State {
	if liveness <= 0 {
		liveness = DefaultLivenessWindow
	}
	return &State{liveness: liveness, now: time.Now}
}

// MarkFrame records that a frame of any family was assembled.
func (s *State) MarkFrame(stats AssemblerStats) {
	s.mu.Lock()
	s.lastFrame = s.now()
	s.frames = stats
	s.mu.Unlock()
}

// ApplyDetection replaces the detection report.
func (s *State) ApplyDetection(d DetectionReport) {
	s.mu.Lock()
	s.detection = d
	s.detectionAt = s.now()
	s.mu.Unlock()
}

// ApplyEngineering replaces the engineering data. nil clears it.
func (s *State) ApplyEngineering(e *EngineeringData) {
	var cp *EngineeringData
	if e != nil {
		v := *e
		cp = &v
	}
	s.mu.Lock()
	s.engineering = cp
	s.mu.Unlock()
}

// ApplyConfiguration replaces the sensor configuration.
func (s *State) ApplyConfiguration(c SensorConfiguration) {
	s.mu.Lock()
	s.config = &c
	s.mu.Unlock()
}

// ApplyFirmware replaces the firmware version.
func (s *State) ApplyFirmware(v FirmwareVersion) {
	s.mu.Lock()
	s.firmware = &v
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state. Pointer fields point at
// copies owned by the snapshot.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		LastFrame:   s.lastFrame,
		Detection:   s.detection,
		DetectionAt: s.detectionAt,
		Frames:      s.frames,
	}
	snap.Connected = !s.lastFrame.IsZero() && s.now().Sub(s.lastFrame) < s.liveness
	if s.engineering != nil {
		e := *s.engineering
		snap.Engineering = &e
	}
	if s.config != nil {
		c := *s.config
		snap.Configuration = &c
	}
	if s.firmware != nil {
		f := *s.firmware
		snap.Firmware = &f
	}
	return snap
}
