package radar

import (
	"encoding/binary"
	"fmt"
)

// Decode interprets an assembled frame. It never blocks and keeps no state.
//
// Report payload:
//
//	[type][0xAA][state][mov dist LE16][mov energy][stat dist LE16][stat energy][detect dist LE16]
//	engineering only: [max mov gate][max stat gate][9 x mov energy][9 x stat energy][light][out]
//	[0x55][0x00]
//
// ACK payload:
//
//	[command|0x0100 LE16][status LE16][return data...]
//
// An ACK whose return data has the wrong shape is returned together with an
// *UnsupportedReplyError so the waiting command can still be matched.
func Decode(f *RawFrame) (Message, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrFrameCorrupt)
	}
	if f.Kind == KindAck {
		ack, err := decodeAck(f.Payload)
		if ack == nil {
			return nil, err
		}
		return ack, err
	}
	r, err := decodeReport(f.Payload)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func decodeReport(p []byte) (*Report, error) {
	if len(p) < basicReportSize {
		return nil, fmt.Errorf("%w: report too short (%d bytes)", ErrFrameCorrupt, len(p))
	}
	if p[1] != reportHead || p[len(p)-2] != reportTail || p[len(p)-1] != reportCheck {
		return nil, fmt.Errorf("%w: bad report markers % X", ErrFrameCorrupt, []byte{p[1], p[len(p)-2], p[len(p)-1]})
	}

	typ := p[0]
	switch {
	case typ == reportTypeBasic && len(p) == basicReportSize:
	case typ == reportTypeEngineering && len(p) >= engineeringReportSize:
	default:
		return nil, fmt.Errorf("%w: report type 0x%02X with %d bytes", ErrFrameCorrupt, typ, len(p))
	}

	r := &Report{Detection: decodeDetection(p[2:11])}
	if typ == reportTypeEngineering {
		r.Engineering = decodeEngineering(p[11:])
	}
	return r, nil
}

// decodeDetection maps the target state enumeration onto the boolean flags.
func decodeDetection(t []byte) DetectionReport {
	state := TargetState(t[0])
	d := DetectionReport{
		State:               state,
		MovingDetected:      state.Moving(),
		StationaryDetected:  state.Stationary(),
		DetectionDistanceCm: binary.LittleEndian.Uint16(t[7:9]),
	}
	d.Presence = d.MovingDetected || d.StationaryDetected
	if d.MovingDetected {
		d.MovingDistanceCm = binary.LittleEndian.Uint16(t[1:3])
		d.MovingEnergy = t[3]
	}
	if d.StationaryDetected {
		d.StationaryDistanceCm = binary.LittleEndian.Uint16(t[4:6])
		d.StationaryEnergy = t[6]
	}
	return d
}

func decodeEngineering(e []byte) *EngineeringData {
	ed := &EngineeringData{
		MaxMovingGate:     e[0],
		MaxStationaryGate: e[1],
	}
	copy(ed.MovingEnergyPerGate[:], e[2:2+GateCount])
	copy(ed.StationaryEnergyPerGate[:], e[2+GateCount:2+2*GateCount])
	ed.LightLevel = e[2+2*GateCount]
	ed.OutPin = e[3+2*GateCount] != 0
	return ed
}

func decodeAck(p []byte) (*AckFrame, error) {
	if len(p) < ackCodeSize+ackStatusLen {
		return nil, fmt.Errorf("%w: ack too short (%d bytes)", ErrFrameCorrupt, len(p))
	}
	word := binary.LittleEndian.Uint16(p[0:2])
	if word&ackFlag == 0 {
		return nil, fmt.Errorf("%w: 0x%04X is not an ack word", ErrFrameCorrupt, word)
	}
	ack := &AckFrame{
		Command: CommandCode(word &^ ackFlag),
		Status:  binary.LittleEndian.Uint16(p[2:4]),
		Data:    p[4:],
	}
	if !ack.Success() {
		return ack, nil
	}

	var err error
	switch ack.Command {
	case CmdEnableConfig:
		ack.Reply, err = parseConfigModeInfo(ack.Data)
	case CmdReadConfig:
		ack.Reply, err = parseConfiguration(ack.Data)
	case CmdReadFirmware:
		ack.Reply, err = parseFirmwareVersion(ack.Data)
	}
	if err != nil {
		ack.Reply, ack.replyErr = nil, err
		return ack, err
	}
	return ack, nil
}

func parseConfigModeInfo(d []byte) (*ConfigModeInfo, error) {
	if len(d) < 4 {
		return nil, &UnsupportedReplyError{Command: CmdEnableConfig, Length: len(d), Reason: "want 4 bytes"}
	}
	return &ConfigModeInfo{
		ProtocolVersion: binary.LittleEndian.Uint16(d[0:2]),
		BufferSize:      binary.LittleEndian.Uint16(d[2:4]),
	}, nil
}

// parseConfiguration decodes:
//
//	[0xAA][max gate][max moving gate][max stationary gate][9 x motion][9 x stationary][idle LE16]
func parseConfiguration(d []byte) (*SensorConfiguration, error) {
	const size = 4 + 2*GateCount + 2
	if len(d) != size {
		return nil, &UnsupportedReplyError{Command: CmdReadConfig, Length: len(d), Reason: fmt.Sprintf("want %d bytes", size)}
	}
	if d[0] != configHead {
		return nil, &UnsupportedReplyError{Command: CmdReadConfig, Length: len(d), Reason: fmt.Sprintf("head 0x%02X", d[0])}
	}
	c := &SensorConfiguration{
		MaxGate:           d[1],
		MaxMovingGate:     d[2],
		MaxStationaryGate: d[3],
	}
	if c.MaxGate > MaxGate || c.MaxMovingGate > c.MaxGate || c.MaxStationaryGate > c.MaxGate {
		return nil, &UnsupportedReplyError{Command: CmdReadConfig, Length: len(d),
			Reason: fmt.Sprintf("gates %d/%d/%d out of range", c.MaxGate, c.MaxMovingGate, c.MaxStationaryGate)}
	}
	copy(c.MotionSensitivity[:], d[4:4+GateCount])
	copy(c.StationarySensitivity[:], d[4+GateCount:4+2*GateCount])
	c.IdleTimeoutSeconds = binary.LittleEndian.Uint16(d[4+2*GateCount:])
	return c, nil
}

// parseFirmwareVersion decodes [type LE16][minor][major][bugfix LE32].
func parseFirmwareVersion(d []byte) (*FirmwareVersion, error) {
	if len(d) < 8 {
		return nil, &UnsupportedReplyError{Command: CmdReadFirmware, Length: len(d), Reason: "want 8 bytes"}
	}
	return &FirmwareVersion{
		Type:   binary.LittleEndian.Uint16(d[0:2]),
		Minor:  d[2],
		Major:  d[3],
		Bugfix: binary.LittleEndian.Uint32(d[4:8]),
	}, nil
}
