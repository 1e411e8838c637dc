// Package picc implements the field-event-driven ISO/IEC 14443-A tag
// (PICC) responder state machine (component C4): anti-collision, HALT,
// RATS, and hand-off of any other frame to a type-specific handler.
// Grounded on the original firmware's rfid/nfctag/hf/nfc_14a.c.
package picc

// State is the 14A tag's protocol state.
type State int

const (
	Idle State = iota
	Ready
	Active
	Halted
)

// CollRes is the anti-collision identity a type handler supplies: the
// UID, its cascade-derived length, SAK and ATQA. Matches spec.md §3's
// "14A tag snapshot".
type CollRes struct {
	UID          [10]byte
	UIDLen       int // 4, 7 or 10
	CascadeLevel int // 1, 2 or 3
	SAK          byte
	ATQA         [2]byte
	ATS          []byte // nil if this type has no ATS
}

// TypeHandler is the capability set a tag type (MF1, MFU/NTAG, ...) must
// implement to plug into the PICC state machine, per DESIGN NOTES §9's
// "closed sum type ... {coll_res, cmd_handler, reset_handler}".
type TypeHandler interface {
	// CollRes returns this type's current anti-collision identity.
	CollRes() CollRes
	// HandleActive processes a frame received while Active (anything
	// other than a plaintext HALT/RATS, which the PICC machine itself
	// handles), and returns the response bytes (nil for a 4-bit NAK / no
	// reply) plus halt=true if the type handler itself recognized an
	// encrypted HALT and wants the PICC machine to transition to Halted
	// (needed because an authenticated HALT is Crypto1-encrypted and so
	// invisible to the generic plaintext HALT check).
	HandleActive(cmd []byte) (resp []byte, halt bool)
	// HandleIdleMagic gives the type handler first refusal on frames
	// received in Idle/Halted, for magic-mode backdoor commands (e.g.
	// MF1 Gen1a's 0x40/0x43). consumed is false if the handler has no
	// interest in cmd, letting the PICC machine fall back to normal
	// REQA/WUPA/SELECT processing.
	HandleIdleMagic(cmd []byte, bits int) (resp []byte, consumed bool)
	// Reset notifies the type handler that the PICC state machine is
	// returning to Idle (field lost, or a protocol violation).
	Reset()
}

const (
	cmdREQA  = 0x26
	cmdWUPA  = 0x52
	cmdHALT  = 0x50
	cmdRATS  = 0xE0
	selCL1   = 0x93
	selCL2   = 0x95
	selCL3   = 0x97
	opAnticoll = 0x20
	opSelect   = 0x70
)

// PICC is the tag-side 14443-A state machine. It holds no I/O of its own;
// callers feed it bit-framed requests via Handle and forward its
// responses to the RF modulator.
type PICC struct {
	state   State
	handler TypeHandler
	// resetOnFieldLost implements the optional (off-by-default) field-lost
	// NFCT-reset workaround documented as an Open Question in spec.md §9.
	resetOnFieldLost bool
}

// New returns a PICC in Idle, driving handler.
func New(handler TypeHandler) *PICC {
	return &PICC{state: Idle, handler: handler}
}

// State returns the current protocol state.
func (p *PICC) State() State {
	return p.state
}

// SetResetOnFieldLost toggles the field-lost reset heuristic (off by
// default; see SPEC_FULL.md's Open Question notes).
func (p *PICC) SetResetOnFieldLost(v bool) {
	p.resetOnFieldLost = v
}

// FieldLost notifies the PICC that the RF field has disappeared.
func (p *PICC) FieldLost() {
	if p.resetOnFieldLost {
		p.state = Idle
		p.handler.Reset()
	}
}

// Handle processes one 14A frame (cmd bytes, with bits the number of
// valid bits in the final byte — 7 for short frames like REQA/WUPA, 8
// otherwise) and returns the response frame, or nil for no reply.
func (p *PICC) Handle(cmd []byte, bits int) []byte {
	if len(cmd) == 0 {
		return nil
	}

	if p.state == Idle || p.state == Halted {
		if resp, consumed := p.handler.HandleIdleMagic(cmd, bits); consumed {
			return resp
		}
	}

	switch p.state {
	case Idle:
		return p.handleIdle(cmd, bits)
	case Halted:
		return p.handleHalted(cmd, bits)
	case Ready:
		return p.handleReady(cmd)
	case Active:
		return p.handleActive(cmd)
	}
	return nil
}

func (p *PICC) handleIdle(cmd []byte, bits int) []byte {
	if bits == 7 && (cmd[0] == cmdREQA || cmd[0] == cmdWUPA) {
		p.state = Ready
		atqa := p.handler.CollRes().ATQA
		return atqa[:]
	}
	return nil
}

func (p *PICC) handleHalted(cmd []byte, bits int) []byte {
	// REQA is ignored while Halted; only WUPA wakes the tag (spec.md §4.4).
	if bits == 7 && cmd[0] == cmdWUPA {
		p.state = Ready
		atqa := p.handler.CollRes().ATQA
		return atqa[:]
	}
	return nil
}

func (p *PICC) handleReady(cmd []byte) []byte {
	if len(cmd) < 2 {
		p.state = Idle
		return nil
	}
	level := cmd[0]
	if level != selCL1 && level != selCL2 && level != selCL3 {
		p.state = Idle
		return nil
	}
	cr := p.handler.CollRes()

	switch cmd[1] {
	case opAnticoll:
		seg := cascadeSegment(cr, level)
		bcc := seg[0] ^ seg[1] ^ seg[2] ^ seg[3]
		return append(append([]byte{}, seg[:]...), bcc)

	case opSelect:
		// cmd = level, 0x70, uid4, bcc, crc(2)
		if len(cmd) < 9 {
			p.state = Idle
			return nil
		}
		seg := cascadeSegment(cr, level)
		gotUID := [4]byte{cmd[2], cmd[3], cmd[4], cmd[5]}
		gotBCC := cmd[6]
		wantBCC := seg[0] ^ seg[1] ^ seg[2] ^ seg[3]
		if gotUID != seg || gotBCC != wantBCC {
			p.state = Idle
			return nil
		}
		sak := cr.SAK
		isFinal := currentCascadeLevel(level) == cr.CascadeLevel
		if !isFinal {
			sak |= 0x04 // "UID not complete" bit
			return []byte{sak}
		}
		p.state = Active
		return []byte{sak}

	default:
		p.state = Idle
		return nil
	}
}

func (p *PICC) handleActive(cmd []byte) []byte {
	if len(cmd) >= 2 && cmd[0] == cmdHALT && cmd[1] == 0x00 {
		p.state = Halted
		return nil
	}
	if len(cmd) >= 1 && cmd[0] == cmdRATS {
		cr := p.handler.CollRes()
		if cr.ATS == nil {
			return []byte{0x00} // 4-bit NAK sentinel
		}
		fsdi := byte(8)
		if len(cmd) >= 2 {
			fsdi = cmd[1] >> 4
		}
		fsd := fsdLookup(fsdi)
		ats := cr.ATS
		if len(ats) > fsd {
			ats = ats[:fsd]
		}
		return ats
	}
	resp, halt := p.handler.HandleActive(cmd)
	if halt {
		p.state = Halted
		return nil
	}
	return resp
}

func currentCascadeLevel(level byte) int {
	switch level {
	case selCL1:
		return 1
	case selCL2:
		return 2
	case selCL3:
		return 3
	}
	return 0
}

// cascadeSegment returns the 4-byte UID segment for the requested
// cascade level, prefixed with the cascade-tag byte 0x88 when the
// segment is not the final one (i.e. the tag's full UID is longer than
// this level provides).
func cascadeSegment(cr CollRes, level byte) [4]byte {
	lvl := currentCascadeLevel(level)
	final := lvl == cr.CascadeLevel
	off := (lvl - 1) * 3

	var seg [4]byte
	if final {
		copy(seg[:], cr.UID[off:off+4])
		return seg
	}
	seg[0] = 0x88
	copy(seg[1:], cr.UID[off:off+3])
	return seg
}

func fsdLookup(fsdi byte) int {
	table := []int{16, 24, 32, 40, 48, 64, 96, 128, 256}
	if int(fsdi) < len(table) {
		return table[fsdi]
	}
	return 256
}
