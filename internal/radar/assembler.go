package radar

import (
	"encoding/binary"

	"github.com/golang/glog"
)

// FrameKind tells which family a frame belongs to, taken from its header magic.
type FrameKind int

const (
	// KindReport is a data report pushed by the sensor.
	KindReport FrameKind = iota
	// KindAck is a reply to a command frame.
	KindAck
)

func (k FrameKind) String() string {
	if k == KindAck {
		return "ack"
	}
	return "report"
}

// RawFrame is the payload found between a validated header/length and footer.
type RawFrame struct {
	Kind    FrameKind
	Payload []byte
}

type assembleState int

const (
	stateHeader assembleState = iota
	stateLength
	statePayload
	stateFooter
)

// AssemblerStats counts what the assembler has done since creation.
type AssemblerStats struct {
	Frames    uint64 `json:"frames"`
	Discarded uint64 `json:"discarded"`
}

// Assembler finds frame boundaries in a byte stream. Garbage between frames,
// truncated frames and bad footers are dropped silently and the assembler
// resynchronises on the next header.
type Assembler struct {
	maxPayload int

	state   assembleState
	kind    FrameKind
	matched int // header or footer bytes matched so far
	lenBuf  [lengthSize]byte
	lenGot  int
	want    int
	payload []byte

	stats AssemblerStats
}

// NewAssembler creates an Assembler. maxPayload <= 0 selects DefaultMaxPayload.
func NewAssembler(maxPayload int) *Assembler {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Assembler{maxPayload: maxPayload}
}

// Stats returns frame counters.
func (a *Assembler) Stats() AssemblerStats { return a.stats }

// Reset drops any partial frame.
func (a *Assembler) Reset() {
	a.state = stateHeader
	a.matched = 0
	a.lenGot = 0
	a.want = 0
	a.payload = nil
}

// Feed consumes a chunk of bytes and returns every frame completed by it.
func (a *Assembler) Feed(p []byte) []*RawFrame {
	var frames []*RawFrame
	for _, b := range p {
		if f := a.FeedByte(b); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// FeedByte consumes one byte and returns a frame when b completes one.
func (a *Assembler) FeedByte(b byte) *RawFrame {
	switch a.state {
	case stateHeader:
		a.matchHeader(b)

	case stateLength:
		a.lenBuf[a.lenGot] = b
		a.lenGot++
		if a.lenGot < lengthSize {
			return nil
		}
		n := int(binary.LittleEndian.Uint16(a.lenBuf[:]))
		if n == 0 || n > a.maxPayload {
			glog.V(2).Infof("[radar] discard %s frame: length %d out of range", a.kind, n)
			a.discard()
			return nil
		}
		a.want = n
		a.payload = make([]byte, 0, n)
		a.state = statePayload

	case statePayload:
		a.payload = append(a.payload, b)
		if len(a.payload) == a.want {
			a.state = stateFooter
			a.matched = 0
		}

	case stateFooter:
		if b != a.footer()[a.matched] {
			glog.V(2).Infof("[radar] discard %s frame: footer byte %d is 0x%02X", a.kind, a.matched, b)
			a.discard()
			// The bad byte may be the start of the next frame.
			a.matchHeader(b)
			return nil
		}
		a.matched++
		if a.matched < footerSize {
			return nil
		}
		f := &RawFrame{Kind: a.kind, Payload: a.payload}
		a.stats.Frames++
		a.Reset()
		return f
	}
	return nil
}

func (a *Assembler) footer() [4]byte {
	if a.kind == KindAck {
		return cmdFooter
	}
	return dataFooter
}

// matchHeader advances header matching. Neither magic repeats a byte, so on a
// mismatch the current byte only needs checking as the start of a new header.
func (a *Assembler) matchHeader(b byte) {
	if a.matched > 0 {
		hdr := dataHeader
		if a.kind == KindAck {
			hdr = cmdHeader
		}
		if b == hdr[a.matched] {
			a.matched++
			if a.matched == headerSize {
				a.state = stateLength
				a.lenGot = 0
			}
			return
		}
		a.matched = 0
	}
	switch b {
	case dataHeader[0]:
		a.kind, a.matched = KindReport, 1
	case cmdHeader[0]:
		a.kind, a.matched = KindAck, 1
	}
}

func (a *Assembler) discard() {
	a.stats.Discarded++
	a.Reset()
}
