package radar

import "encoding/binary"

// CommandFrame is an outbound command: a command word plus parameter bytes.
type CommandFrame struct {
	Code   CommandCode
	Params []byte
}

// Bytes serialises the command:
//
//	FD FC FB FA | len LE16 | code LE16 | params | 04 03 02 01
func (c *CommandFrame) Bytes() []byte {
	payload := make([]byte, 2, 2+len(c.Params))
	binary.LittleEndian.PutUint16(payload, uint16(c.Code))
	payload = append(payload, c.Params...)
	return wrapFrame(cmdHeader, cmdFooter, payload)
}

func wrapFrame(header, footer [4]byte, payload []byte) []byte {
	frame := make([]byte, 0, headerSize+lengthSize+len(payload)+footerSize)
	frame = append(frame, header[:]...)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, footer[:]...)
	return frame
}

// paramWords builds the repeated [word LE16][value LE32] parameter layout
// used by set-max-values and set-sensitivity.
func paramWords(pairs ...uint32) []byte {
	out := make([]byte, 0, len(pairs)/2*6)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = binary.LittleEndian.AppendUint16(out, uint16(pairs[i]))
		out = binary.LittleEndian.AppendUint32(out, pairs[i+1])
	}
	return out
}

// EncodeReport builds a complete data report frame. A non-nil eng produces
// an engineering-mode (45-byte) frame.
func EncodeReport(d DetectionReport, eng *EngineeringData) []byte {
	typ := reportTypeBasic
	if eng != nil {
		typ = reportTypeEngineering
	}
	p := []byte{typ, reportHead, byte(d.State)}
	p = binary.LittleEndian.AppendUint16(p, d.MovingDistanceCm)
	p = append(p, d.MovingEnergy)
	p = binary.LittleEndian.AppendUint16(p, d.StationaryDistanceCm)
	p = append(p, d.StationaryEnergy)
	p = binary.LittleEndian.AppendUint16(p, d.DetectionDistanceCm)
	if eng != nil {
		p = append(p, eng.MaxMovingGate, eng.MaxStationaryGate)
		p = append(p, eng.MovingEnergyPerGate[:]...)
		p = append(p, eng.StationaryEnergyPerGate[:]...)
		out := byte(0)
		if eng.OutPin {
			out = 1
		}
		p = append(p, eng.LightLevel, out)
	}
	p = append(p, reportTail, reportCheck)
	return wrapFrame(dataHeader, dataFooter, p)
}

// EncodeAck builds a complete ACK frame for code with the given status and
// return data.
func EncodeAck(code CommandCode, status uint16, data []byte) []byte {
	p := make([]byte, 0, 4+len(data))
	p = binary.LittleEndian.AppendUint16(p, uint16(code)|ackFlag)
	p = binary.LittleEndian.AppendUint16(p, status)
	p = append(p, data...)
	return wrapFrame(cmdHeader, cmdFooter, p)
}

// EncodeConfiguration builds the read-config return data for c.
func EncodeConfiguration(c SensorConfiguration) []byte {
	d := []byte{configHead, c.MaxGate, c.MaxMovingGate, c.MaxStationaryGate}
	d = append(d, c.MotionSensitivity[:]...)
	d = append(d, c.StationarySensitivity[:]...)
	return binary.LittleEndian.AppendUint16(d, c.IdleTimeoutSeconds)
}

// EncodeFirmwareVersion builds the read-firmware return data for v.
func EncodeFirmwareVersion(v FirmwareVersion) []byte {
	d := binary.LittleEndian.AppendUint16(nil, v.Type)
	d = append(d, v.Minor, v.Major)
	return binary.LittleEndian.AppendUint32(d, v.Bugfix)
}
