// Package pcd implements the ISO/IEC 14443-A reader (PCD) side of the
// toolbox: anti-collision/select scanning, HALT, the MIFARE Classic
// hardware-auth engine contract, and a raw-frame passthrough. Component
// C2, grounded on the original firmware's reader/hf/rc522.c.
package pcd

import (
	"time"

	"github.com/chameleonultra/chamelgo/internal/core"
)

// Status classifies the outcome of a reader exchange.
type Status int

const (
	Ok Status = iota
	TagLost
	ProtocolErr
	ParityErr
	CrcErr
	Collision
	AuthFail
	BccErr
	AtsErr
)

const (
	cmdREQA = 0x26
	cmdWUPA = 0x52
	cmdHALT = 0x50
	cmdRATS = 0xE0
	selCL1  = 0x93
	selCL2  = 0x95
	selCL3  = 0x97
	opAnticoll = 0x20
	opSelect   = 0x70
)

// Transceiver is the RC522-class hardware abstraction the PCD drives:
// bit-level framing, field control and the chip's own Crypto1 auth
// engine (which never exposes cipher state to software).
type Transceiver interface {
	Antenna(on bool)
	Reset()
	SetTimeout(d time.Duration)
	// Transfer sends txBits bits of tx and returns the response and its
	// bit count, classifying hardware/protocol failures into Status.
	Transfer(tx []byte, txBits int) (rx []byte, rxBits int, status Status)
	// MF1AuthHW loads key into the reader's Crypto1 engine and runs the
	// full auth handshake against the already-selected tag in hardware;
	// true iff the "crypto1 on" latch is set afterward.
	MF1AuthHW(keyType byte, block byte, key [6]byte, uid [4]byte) bool
	// ClearCrypto1 unconditionally clears the hardware's "crypto1 on"
	// latch, per the invariant that any failed exchange must clear it.
	ClearCrypto1()
}

// Tag14a is the reader's view of a discovered tag.
type Tag14a struct {
	UID    [10]byte
	UIDLen int
	SAK    byte
	ATQA   [2]byte
	ATS    []byte
}

// PCD is the 14443-A reader state machine, driving a Transceiver.
type PCD struct {
	tr Transceiver
}

// New returns a PCD driving tr.
func New(tr Transceiver) *PCD {
	return &PCD{tr: tr}
}

func (p *PCD) appendCRC(buf []byte) []byte {
	return core.AppendCRC16A(buf)
}

// ScanOnce runs REQA, then cascades ANTICOLL/SELECT until a complete UID
// is obtained, storing the result into out. If the final SAK indicates
// ISO-DEP support (bit 5 set) it also issues RATS.
func (p *PCD) ScanOnce(out *Tag14a) Status {
	rx, rxBits, status := p.tr.Transfer([]byte{cmdREQA}, 7)
	if status != Ok {
		return status
	}
	if rxBits != 16 || len(rx) < 2 {
		return ProtocolErr
	}
	out.ATQA = [2]byte{rx[0], rx[1]}

	level := byte(selCL1)
	uidOff := 0
	for {
		anticoll, bits, status := p.tr.Transfer([]byte{level, opAnticoll}, 16)
		if status != Ok {
			return status
		}
		if bits != 40 || len(anticoll) != 5 {
			return ProtocolErr
		}
		seg := anticoll[:4]
		bcc := anticoll[4]
		wantBCC := seg[0] ^ seg[1] ^ seg[2] ^ seg[3]
		if bcc != wantBCC {
			return BccErr
		}

		sel := p.appendCRC(append([]byte{level, opSelect}, append(append([]byte{}, seg...), bcc)...))
		sak, bits, status := p.tr.Transfer(sel, len(sel)*8)
		if status != Ok {
			return status
		}
		if bits != 8 || len(sak) != 1 {
			return ProtocolErr
		}
		out.SAK = sak[0]

		if seg[0] == 0x88 {
			copy(out.UID[uidOff:], seg[1:4])
			uidOff += 3
		} else {
			copy(out.UID[uidOff:], seg)
			uidOff += 4
		}

		if sak[0]&0x04 == 0 {
			break
		}
		switch level {
		case selCL1:
			level = selCL2
		case selCL2:
			level = selCL3
		default:
			return ProtocolErr
		}
	}
	out.UIDLen = uidOff

	if out.SAK&0x20 != 0 {
		ratsReq := p.appendCRC([]byte{cmdRATS, 0x80})
		ats, bits, status := p.tr.Transfer(ratsReq, len(ratsReq)*8)
		if status != Ok {
			return AtsErr
		}
		if bits == 0 {
			return AtsErr
		}
		out.ATS = ats
	}
	return Ok
}

// ScanAuto retries ScanOnce once on any non-Ok status.
func (p *PCD) ScanAuto(out *Tag14a) Status {
	if s := p.ScanOnce(out); s == Ok {
		return s
	}
	return p.ScanOnce(out)
}

// HaltTag sends HALT; success is indicated by no reply (per 14443-3).
func (p *PCD) HaltTag() Status {
	req := p.appendCRC([]byte{cmdHALT, 0x00})
	_, bits, status := p.tr.Transfer(req, len(req)*8)
	if status != Ok {
		return status
	}
	if bits != 0 {
		return ProtocolErr
	}
	return Ok
}

// MF1Auth runs the reader's hardware Crypto1 auth engine against block
// using keyType (0 = A, 1 = B) and key. keyType/block/uid are passed
// through to the Transceiver's own engine, which never surfaces cipher
// state to software (spec.md §4.2).
func (p *PCD) MF1Auth(keyType byte, block byte, key [6]byte, uid [4]byte) Status {
	if !p.tr.MF1AuthHW(keyType, block, key, uid) {
		p.tr.ClearCrypto1()
		return AuthFail
	}
	return Ok
}

// MF1Read reads a 16-byte block once MF1Auth has succeeded.
func (p *PCD) MF1Read(block byte) ([16]byte, Status) {
	var out [16]byte
	req := p.appendCRC([]byte{0x30, block})
	rx, bits, status := p.tr.Transfer(req, len(req)*8)
	if status != Ok {
		p.tr.ClearCrypto1()
		return out, status
	}
	if bits != 144 || len(rx) != 18 || !core.CheckCRC16A(rx) {
		p.tr.ClearCrypto1()
		return out, CrcErr
	}
	copy(out[:], rx[:16])
	return out, Ok
}

// MF1Write writes a 16-byte block once MF1Auth has succeeded, performing
// the standard two-phase ACK/data exchange.
func (p *PCD) MF1Write(block byte, data [16]byte) Status {
	req := p.appendCRC([]byte{0xA0, block})
	ack, bits, status := p.tr.Transfer(req, len(req)*8)
	if status != Ok || bits != 4 || len(ack) != 1 || ack[0] != 0x0A {
		p.tr.ClearCrypto1()
		return AuthFail
	}

	payload := p.appendCRC(append([]byte{}, data[:]...))
	ack2, bits2, status2 := p.tr.Transfer(payload, len(payload)*8)
	if status2 != Ok || bits2 != 4 || len(ack2) != 1 || ack2[0] != 0x0A {
		p.tr.ClearCrypto1()
		return AuthFail
	}
	return Ok
}

// RawOpts mirrors the raw_cmd passthrough's option set.
type RawOpts struct {
	ActivateField   bool
	WaitResponse    bool
	AppendCRC       bool
	AutoSelect      bool
	KeepField       bool
	CheckResponseCRC bool
}

// RawCmd issues tx (txBits valid bits) with the given options and
// returns whatever the tag answers. Bit-aligned transmission (txBits not
// a multiple of 8) is only permitted when AppendCRC is false.
func (p *PCD) RawCmd(opts RawOpts, tx []byte, txBits int) ([]byte, Status) {
	if opts.AppendCRC && txBits%8 != 0 {
		return nil, ProtocolErr
	}
	if opts.ActivateField {
		p.tr.Antenna(true)
	}
	if opts.AutoSelect {
		var tag Tag14a
		if s := p.ScanOnce(&tag); s != Ok {
			return nil, s
		}
	}

	out := tx
	bits := txBits
	if opts.AppendCRC {
		out = p.appendCRC(append([]byte{}, tx...))
		bits = len(out) * 8
	}

	if !opts.WaitResponse {
		p.tr.Transfer(out, bits)
		if !opts.KeepField {
			p.tr.Antenna(false)
		}
		return nil, Ok
	}

	rx, _, status := p.tr.Transfer(out, bits)
	if !opts.KeepField {
		p.tr.Antenna(false)
	}
	if status != Ok {
		return nil, status
	}
	if opts.CheckResponseCRC && !core.CheckCRC16A(rx) {
		return nil, CrcErr
	}
	return rx, Ok
}
