package radar

import (
	"io"

	"github.com/golang/glog"
)

// Transport is the byte channel to the sensor. Read must not block for long:
// it returns whatever is available, possibly nothing. Serial ports satisfy
// this when opened with a short read timeout.
type Transport interface {
	io.ReadWriteCloser
}

const readChunk = 256

// Pipeline runs bytes from a Transport through the Assembler and Decoder and
// applies decoded reports to a State.
//
// Poll drains everything the transport has buffered, so the only throughput
// requirement is on the caller's scheduling: the poll period must stay below
// (receive buffer size) / (baud / 10) seconds. At 256000 baud a 4 KiB driver
// buffer fills in 160 ms, while the sensor itself sends about ten frames of
// at most 45 bytes per second.
type Pipeline struct {
	transport Transport
	asm       *Assembler
	state     *State
	buf       []byte
}

// NewPipeline creates a Pipeline. maxPayload is passed to NewAssembler.
func NewPipeline(t Transport, state *State, maxPayload int) *Pipeline {
	return &Pipeline{
		transport: t,
		asm:       NewAssembler(maxPayload),
		state:     state,
		buf:       make([]byte, readChunk),
	}
}

// State returns the state the pipeline writes to.
func (p *Pipeline) State() *State { return p.state }

// Write sends raw bytes to the sensor.
func (p *Pipeline) Write(b []byte) error {
	glog.V(2).Infof("[radar] tx % X", b)
	_, err := p.transport.Write(b)
	return err
}

// Poll reads until the transport has nothing more to give, applies every
// decoded report and returns the ACK frames seen. A read error is returned
// after the bytes read before it have been processed.
func (p *Pipeline) Poll() ([]*AckFrame, error) {
	var acks []*AckFrame
	for {
		n, err := p.transport.Read(p.buf)
		if n > 0 {
			acks = append(acks, p.process(p.buf[:n])...)
		}
		if err != nil {
			return acks, err
		}
		if n == 0 {
			return acks, nil
		}
	}
}

func (p *Pipeline) process(b []byte) []*AckFrame {
	var acks []*AckFrame
	for _, f := range p.asm.Feed(b) {
		p.state.MarkFrame(p.asm.Stats())

		msg, err := Decode(f)
		switch m := msg.(type) {
		case *Report:
			p.state.ApplyDetection(m.Detection)
			// Basic reports mean engineering mode is off.
			p.state.ApplyEngineering(m.Engineering)
		case *AckFrame:
			glog.V(2).Infof("[radar] rx ack %s status=%d data=% X", m.Command, m.Status, m.Data)
			acks = append(acks, m)
		default:
			glog.V(2).Infof("[radar] dropped %s frame: %v", f.Kind, err)
		}
	}
	return acks
}
