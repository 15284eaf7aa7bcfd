package radar

import "fmt"

// Frame magic values. Data reports are pushed by the sensor on its own;
// command frames and their ACKs share the second pair.
var (
	dataHeader = [4]byte{0xF4, 0xF3, 0xF2, 0xF1}
	dataFooter = [4]byte{0xF8, 0xF7, 0xF6, 0xF5}
	cmdHeader  = [4]byte{0xFD, 0xFC, 0xFB, 0xFA}
	cmdFooter  = [4]byte{0x04, 0x03, 0x02, 0x01}
)

const (
	// GateCount is the number of distance gates (0..8) the sensor reports on.
	GateCount = 9
	// MaxGate is the highest gate index.
	MaxGate = GateCount - 1

	// DefaultMaxPayload bounds the declared length of an incoming frame.
	// The largest legitimate payload (engineering report) is 35 bytes.
	DefaultMaxPayload = 64

	headerSize = 4
	lengthSize = 2
	footerSize = 4

	// Report payload layout
	reportTypeEngineering byte = 0x01
	reportTypeBasic       byte = 0x02
	reportHead            byte = 0xAA
	reportTail            byte = 0x55
	reportCheck           byte = 0x00

	basicReportSize       = 13 // type + head + 9 target bytes + tail + check
	engineeringReportSize = 35 // basic + 2 max gates + 2*9 energies + light + out pin

	// ACK payload layout
	ackFlag      = 0x0100
	ackCodeSize  = 2
	ackStatusLen = 2
	configHead   = 0xAA
)

// CommandCode identifies a command frame and the ACK answering it.
type CommandCode uint16

const (
	CmdEnableConfig       CommandCode = 0x00FF
	CmdEndConfig          CommandCode = 0x00FE
	CmdSetMaxValues       CommandCode = 0x0060
	CmdReadConfig         CommandCode = 0x0061
	CmdEnableEngineering  CommandCode = 0x0062
	CmdDisableEngineering CommandCode = 0x0063
	CmdSetSensitivity     CommandCode = 0x0064
	CmdReadFirmware       CommandCode = 0x00A0
	CmdSetBaudRate        CommandCode = 0x00A1
	CmdFactoryReset       CommandCode = 0x00A2
	CmdRestart            CommandCode = 0x00A3
)

func (c CommandCode) String() string {
	switch c {
	case CmdEnableConfig:
		return "enable-config"
	case CmdEndConfig:
		return "end-config"
	case CmdSetMaxValues:
		return "set-max-values"
	case CmdReadConfig:
		return "read-config"
	case CmdEnableEngineering:
		return "enable-engineering"
	case CmdDisableEngineering:
		return "disable-engineering"
	case CmdSetSensitivity:
		return "set-sensitivity"
	case CmdReadFirmware:
		return "read-firmware"
	case CmdSetBaudRate:
		return "set-baud-rate"
	case CmdFactoryReset:
		return "factory-reset"
	case CmdRestart:
		return "restart"
	default:
		return fmt.Sprintf("cmd-0x%04X", uint16(c))
	}
}

// Parameter words used inside set-max-values and set-sensitivity commands.
const (
	paramMaxMovingGate     uint16 = 0x0000
	paramMaxStationaryGate uint16 = 0x0001
	paramIdleTimeout       uint16 = 0x0002

	paramGate        uint16 = 0x0000
	paramMotionSens  uint16 = 0x0001
	paramStaticSens  uint16 = 0x0002
	allGates         uint32 = 0xFFFF
	configModeEnable uint16 = 0x0001
)

// TargetState is the enumerated target byte of a data report.
type TargetState byte

const (
	TargetNone       TargetState = 0x00
	TargetMoving     TargetState = 0x01
	TargetStationary TargetState = 0x02
	TargetBoth       TargetState = 0x03
)

func (t TargetState) String() string {
	switch t {
	case TargetNone:
		return "none"
	case TargetMoving:
		return "moving"
	case TargetStationary:
		return "stationary"
	case TargetBoth:
		return "moving+stationary"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(t))
	}
}

// Moving reports whether the state includes a moving target.
func (t TargetState) Moving() bool { return t == TargetMoving || t == TargetBoth }

// Stationary reports whether the state includes a stationary target.
func (t TargetState) Stationary() bool { return t == TargetStationary || t == TargetBoth }

// BaudRates maps the set-baud-rate index parameter to the resulting line rate.
var BaudRates = map[uint16]int{
	0x0001: 9600,
	0x0002: 19200,
	0x0003: 38400,
	0x0004: 57600,
	0x0005: 115200,
	0x0006: 230400,
	0x0007: 256000,
	0x0008: 460800,
}
