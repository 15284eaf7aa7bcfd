package radar

import "fmt"

// DetectionReport is the target summary carried by every data report.
// Distance and energy fields are zero unless the matching flag is set.
type DetectionReport struct {
	State                TargetState `json:"state"`
	Presence             bool        `json:"presence"`
	MovingDetected       bool        `json:"movingDetected"`
	MovingDistanceCm     uint16      `json:"movingDistanceCm"`
	MovingEnergy         uint8       `json:"movingEnergy"` // 0-100
	StationaryDetected   bool        `json:"stationaryDetected"`
	StationaryDistanceCm uint16      `json:"stationaryDistanceCm"`
	StationaryEnergy     uint8       `json:"stationaryEnergy"`    // 0-100
	DetectionDistanceCm  uint16      `json:"detectionDistanceCm"` // sensor's combined estimate
}

// EngineeringData holds the per-gate energies sent in engineering mode.
type EngineeringData struct {
	MaxMovingGate           uint8            `json:"maxMovingGate"`
	MaxStationaryGate       uint8            `json:"maxStationaryGate"`
	MovingEnergyPerGate     [GateCount]uint8 `json:"movingEnergyPerGate"`
	StationaryEnergyPerGate [GateCount]uint8 `json:"stationaryEnergyPerGate"`
	LightLevel              uint8            `json:"lightLevel"` // photosensitive reading, 0-255
	OutPin                  bool             `json:"outPin"`
}

// SensorConfiguration is the reply to a read-config command. Gates above
// MaxGate still carry sensitivities but the sensor ignores them.
type SensorConfiguration struct {
	MaxGate               uint8            `json:"maxGate"`
	MaxMovingGate         uint8            `json:"maxMovingGate"`
	MaxStationaryGate     uint8            `json:"maxStationaryGate"`
	IdleTimeoutSeconds    uint16           `json:"idleTimeoutSeconds"`
	MotionSensitivity     [GateCount]uint8 `json:"motionSensitivity"`
	StationarySensitivity [GateCount]uint8 `json:"stationarySensitivity"`
}

// FirmwareVersion is the reply to a read-firmware command.
type FirmwareVersion struct {
	Type   uint16 `json:"type"`
	Major  uint8  `json:"major"`
	Minor  uint8  `json:"minor"`
	Bugfix uint32 `json:"bugfix"`
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%X", v.Major, v.Minor, v.Bugfix)
}

// ConfigModeInfo is the reply to an enable-config command.
type ConfigModeInfo struct {
	ProtocolVersion uint16 `json:"protocolVersion"`
	BufferSize      uint16 `json:"bufferSize"`
}

// Message is a decoded frame: *Report or *AckFrame.
type Message interface {
	Kind() FrameKind
}

// Report is a decoded data report. Engineering is nil for basic reports.
type Report struct {
	Detection   DetectionReport
	Engineering *EngineeringData
}

// Kind implements Message.
func (*Report) Kind() FrameKind { return KindReport }

// AckFrame is a decoded command reply. Reply holds the typed return payload
// for commands that have one (*SensorConfiguration, *FirmwareVersion,
// *ConfigModeInfo) and is nil otherwise or when Status is not success.
type AckFrame struct {
	Command CommandCode
	Status  uint16
	Data    []byte
	Reply   interface{}

	replyErr error
}

// Kind implements Message.
func (*AckFrame) Kind() FrameKind { return KindAck }

// ReplyErr returns the *UnsupportedReplyError found while decoding the
// return data, if any.
func (a *AckFrame) ReplyErr() error { return a.replyErr }

// Success reports whether the sensor accepted the command.
func (a *AckFrame) Success() bool { return a.Status == 0 }
