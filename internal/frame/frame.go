// Package frame implements the length-prefixed, LRC-protected binary
// frame used by both USB-CDC and BLE-NUS transports:
//
//	SOF(1)=0x11  LRC1(1)  CMD(2)  STATUS(2)  LEN(2)  LRC2(1)  DATA(LEN)  LRC3(1)
//
// All multi-byte fields are network byte order. Grounded verbatim on the
// original firmware's utils/netdata.h and utils/dataframe.c.
package frame

import (
	"encoding/binary"
	"fmt"
)

// SOF is the start-of-frame marker byte.
const SOF = 0x11

// MaxDataLen is the maximum DATA length a frame may carry.
const MaxDataLen = 512

// Frame is a decoded request/response.
type Frame struct {
	Cmd    uint16
	Status uint16
	Data   []byte
}

func computeLRC(buf []byte) byte {
	var sum byte
	for _, b := range buf {
		sum += b
	}
	return byte(0x100 - int(sum)&0xff)
}

// Encode serializes cmd/status/data into a single contiguous frame.
func Encode(cmd, status uint16, data []byte) ([]byte, error) {
	if len(data) > MaxDataLen {
		return nil, fmt.Errorf("frame: data length %d exceeds max %d", len(data), MaxDataLen)
	}
	cmdBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(cmdBuf, cmd)
	statusBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(statusBuf, status)
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(data)))

	lrc1 := computeLRC([]byte{SOF})
	head := []byte{SOF, lrc1}
	head = append(head, cmdBuf...)
	head = append(head, statusBuf...)
	head = append(head, lenBuf...)
	lrc2 := computeLRC(head)

	out := make([]byte, 0, 10+len(data))
	out = append(out, head...)
	out = append(out, lrc2)
	out = append(out, data...)
	out = append(out, computeLRC(data))
	return out, nil
}

// Decode parses a single complete frame from buf, returning the frame. It
// does not use the incremental Parser;
// it is a convenience for tests and one-shot decoding of a buffer known
// to hold exactly one frame.
func Decode(buf []byte) (*Frame, error) {
	p := NewParser()
	for i, b := range buf {
		f, err := p.Feed(b)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
		_ = i
	}
	return nil, fmt.Errorf("frame: incomplete frame")
}

type parserState int

const (
	stateWaitSOF parserState = iota
	stateWaitLRC1
	stateWaitCmd
	stateWaitStatus
	stateWaitLen
	stateWaitLRC2
	stateWaitData
	stateWaitLRC3
	stateBusy
)

// Parser is a byte-at-a-time state machine that assembles frames from a
// transport byte stream. It resets itself on any framing mismatch rather
// than propagating an error up the stack, matching spec.md §7's "frame
// parser errors silently reset" policy.
type Parser struct {
	state  parserState
	lrc1   byte
	cmdBuf []byte
	stsBuf []byte
	lenBuf []byte
	length uint16
	data   []byte
	dataAt int
	busy   bool
}

// NewParser returns a Parser ready to consume bytes.
func NewParser() *Parser {
	return &Parser{state: stateWaitSOF}
}

// Busy reports whether a completed frame is still awaiting processing by
// the caller (see the frame-codec backpressure Open Question). The
// default wiring in this core drops bytes fed while Busy, matching the
// original firmware; callers that want backpressure instead can check
// this before feeding more bytes.
func (p *Parser) Busy() bool {
	return p.busy
}

// Done must be called by the owner once it has consumed the frame
// returned by Feed, to allow the parser to accept a new one.
func (p *Parser) Done() {
	p.busy = false
}

func (p *Parser) reset() {
	p.state = stateWaitSOF
	p.cmdBuf = nil
	p.stsBuf = nil
	p.lenBuf = nil
	p.data = nil
	p.dataAt = 0
	p.length = 0
}

// Feed consumes one byte. It returns a non-nil *Frame exactly when a
// complete, LRC-valid frame has been assembled. While Busy(), Feed drops
// incoming bytes without mutating state (matching the original firmware).
func (p *Parser) Feed(b byte) (*Frame, error) {
	if p.busy {
		return nil, nil
	}
	switch p.state {
	case stateWaitSOF:
		if b != SOF {
			return nil, nil
		}
		p.reset()
		p.state = stateWaitLRC1
	case stateWaitLRC1:
		if b != computeLRC([]byte{SOF}) {
			p.reset()
			return nil, nil
		}
		p.lrc1 = b
		p.cmdBuf = make([]byte, 0, 2)
		p.state = stateWaitCmd
	case stateWaitCmd:
		p.cmdBuf = append(p.cmdBuf, b)
		if len(p.cmdBuf) == 2 {
			p.stsBuf = make([]byte, 0, 2)
			p.state = stateWaitStatus
		}
	case stateWaitStatus:
		p.stsBuf = append(p.stsBuf, b)
		if len(p.stsBuf) == 2 {
			p.lenBuf = make([]byte, 0, 2)
			p.state = stateWaitLen
		}
	case stateWaitLen:
		p.lenBuf = append(p.lenBuf, b)
		if len(p.lenBuf) == 2 {
			p.length = binary.BigEndian.Uint16(p.lenBuf)
			if p.length > MaxDataLen {
				p.reset()
				return nil, nil
			}
			p.state = stateWaitLRC2
		}
	case stateWaitLRC2:
		head := []byte{SOF, p.lrc1}
		head = append(head, p.cmdBuf...)
		head = append(head, p.stsBuf...)
		head = append(head, p.lenBuf...)
		if b != computeLRC(head) {
			p.reset()
			return nil, nil
		}
		if p.length == 0 {
			p.state = stateWaitLRC3
		} else {
			p.data = make([]byte, p.length)
			p.dataAt = 0
			p.state = stateWaitData
		}
	case stateWaitData:
		p.data[p.dataAt] = b
		p.dataAt++
		if p.dataAt == int(p.length) {
			p.state = stateWaitLRC3
		}
	case stateWaitLRC3:
		if b != computeLRC(p.data) {
			p.reset()
			return nil, nil
		}
		f := &Frame{
			Cmd:    binary.BigEndian.Uint16(p.cmdBuf),
			Status: binary.BigEndian.Uint16(p.stsBuf),
			Data:   p.data,
		}
		p.reset()
		p.busy = true
		return f, nil
	}
	return nil, nil
}
