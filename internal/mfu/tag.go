package mfu

import (
	"github.com/chameleonultra/chamelgo/internal/picc"
)

const (
	opGetVersion = 0x60
	opRead       = 0x30
	opFastRead   = 0x3A
	opWrite      = 0xA2
	opCompatWrite = 0xA0
	opReadCnt    = 0x39
	opIncrCnt    = 0xA5
	opPwdAuth    = 0x1B
	opReadSig    = 0x3C
	opHalt       = 0x50
)

const maxCounterValue = 0xFFFFFF

// Counter is a one-way monotonic counter page. Its 4th byte is modeled
// as two separate fields rather than a raw byte: Tearing (bit 7) and,
// for counter 0 only, AuthFailCount (low nibble) — the AUTHLIM
// failed-PWD_AUTH tally lives in counter 0's high byte, so it's kept on
// the same struct that round-trips through slot persistence instead of
// a field private to the in-memory session.
type Counter struct {
	Value         uint32 // low 24 bits significant
	Tearing       bool
	AuthFailCount byte // counter 0 only
}

// Tag is an emulated MIFARE Ultralight / NTAG. Its ordinary memory is a
// flat page array; the one-way counters, signature and GET_VERSION
// payload are modeled as separate fields (rather than mapped into
// Memory's address space) since the firmware's exact page placement for
// them is underdocumented per-subtype — see DESIGN.md's Open Question
// note. PWD/PACK/AUTH0/ACCESS live in ordinary Memory pages so lock-byte
// and CFGLCK semantics apply to them uniformly.
type Tag struct {
	coll   picc.CollRes
	Config Config
	Memory [][4]byte

	Counters  [3]Counter
	Signature [32]byte

	authed bool

	// Config page indices, resolved once from Config.Type's layout.
	pwdPage, packPage, authLimPage, auth0Page int
}

// NewTag builds a Tag with the given anti-collision identity,
// configuration and initial page memory.
func NewTag(coll picc.CollRes, cfg Config, memory [][4]byte) *Tag {
	t := &Tag{coll: coll, Config: cfg, Memory: memory}
	n := len(memory)
	t.pwdPage = n - 3
	t.packPage = n - 2
	t.authLimPage = n - 4
	t.auth0Page = n - 5
	return t
}

func (t *Tag) CollRes() picc.CollRes { return t.coll }

func (t *Tag) Reset() {
	t.authed = false
}

func (t *Tag) HandleIdleMagic(cmd []byte, bits int) ([]byte, bool) {
	return nil, false
}

// HandleActive serves one command frame received while the PICC layer
// is Active. MF0/NTAG has no Crypto1 session, so frames are plaintext;
// halt is only ever true for the plain HALT command (the PICC layer's
// own plaintext-HALT check already handles this in practice, but the
// type handler honors it too for completeness).
func (t *Tag) HandleActive(cmd []byte) ([]byte, bool) {
	if len(cmd) == 0 {
		return nil, false
	}
	switch cmd[0] {
	case opGetVersion:
		return t.handleGetVersion()
	case opRead:
		return t.handleRead(cmd)
	case opFastRead:
		return t.handleFastRead(cmd)
	case opWrite:
		return t.handleWrite(cmd)
	case opCompatWrite:
		return t.handleCompatWrite(cmd)
	case opReadCnt:
		return t.handleReadCnt(cmd)
	case opIncrCnt:
		return t.handleIncrCnt(cmd)
	case opPwdAuth:
		return t.handlePwdAuth(cmd)
	case opReadSig:
		return append([]byte{}, t.Signature[:]...), false
	case opHalt:
		if len(cmd) >= 2 && cmd[1] == 0x00 {
			return nil, true
		}
	}
	return nil, false
}

func (t *Tag) handleGetVersion() ([]byte, bool) {
	if !t.Config.Type.HasGetVersion() {
		return nil, false
	}
	v := versionBlocks[t.Config.Type]
	return v[:], false
}

func (t *Tag) maxReadablePage() int {
	if t.authRequired() && !t.authed {
		auth0 := int(t.Memory[t.auth0Page][0])
		if auth0 < len(t.Memory) {
			return auth0 - 1
		}
	}
	return len(t.Memory) - 1
}

func (t *Tag) authRequired() bool {
	if t.auth0Page < 0 || t.auth0Page >= len(t.Memory) {
		return false
	}
	return int(t.Memory[t.auth0Page][0]) < len(t.Memory)
}

// handleRead serves a 16-byte "rolling window" of four pages starting at
// the requested page, wrapping to page 0 past the end, per the ISO
// 14443-3 Type 2 READ command.
func (t *Tag) handleRead(cmd []byte) ([]byte, bool) {
	if len(cmd) < 2 {
		return nil, false
	}
	start := int(cmd[1])
	max := t.maxReadablePage()
	if start > max || start >= len(t.Memory) {
		return nil, false
	}
	out := make([]byte, 0, 16)
	for i := 0; i < 4; i++ {
		p := start + i
		if p >= len(t.Memory) {
			p = p % len(t.Memory)
		}
		out = append(out, t.Memory[p][:]...)
	}
	return out, false
}

func (t *Tag) handleFastRead(cmd []byte) ([]byte, bool) {
	if len(cmd) < 3 {
		return nil, false
	}
	start, end := int(cmd[1]), int(cmd[2])
	max := t.maxReadablePage()
	if start > end || end > max || end >= len(t.Memory) {
		return nil, false
	}
	out := make([]byte, 0, (end-start+1)*4)
	for p := start; p <= end; p++ {
		out = append(out, t.Memory[p][:]...)
	}
	return out, false
}

func (t *Tag) writeAllowed(page int) bool {
	if (page < 2 && !t.Config.UIDMagic) || page >= len(t.Memory) {
		return false
	}
	if t.authRequired() && !t.authed {
		auth0 := int(t.Memory[t.auth0Page][0])
		if page >= auth0 {
			return false
		}
	}
	if page == t.auth0Page || page == t.authLimPage || page == t.pwdPage || page == t.packPage {
		if IsConfigLocked(t.Config.Type, t.Memory) {
			return false
		}
	}
	return true
}

func (t *Tag) applyWrite(page int, data [4]byte) ([]byte, bool) {
	switch t.Config.WriteMode {
	case WriteDenied:
		return nil, false
	case WriteDeceive:
		return []byte{0x0A}, false
	}
	locked := IsPageLocked(t.Config.Type, t.Memory, page)
	switch page {
	case 2:
		// Static lock bytes (2-3) OR-merge rather than replace.
		merged := t.Memory[page]
		merged[2] |= data[2]
		merged[3] |= data[3]
		merged[0], merged[1] = data[0], data[1]
		t.Memory[page] = merged
	case 3:
		if locked {
			return nil, false
		}
		merged := t.Memory[page]
		for i := range merged {
			merged[i] |= data[i]
		}
		t.Memory[page] = merged
	default:
		if locked && !(page <= 1 && t.Config.UIDMagic) {
			return nil, false
		}
		if page == 0 && !t.Config.UIDMagic {
			return nil, false
		}
		t.Memory[page] = data
	}
	return []byte{0x0A}, false
}

func (t *Tag) handleWrite(cmd []byte) ([]byte, bool) {
	if len(cmd) < 6 {
		return nil, false
	}
	page := int(cmd[1])
	if !t.writeAllowed(page) {
		return nil, false
	}
	var data [4]byte
	copy(data[:], cmd[2:6])
	return t.applyWrite(page, data)
}

func (t *Tag) handleCompatWrite(cmd []byte) ([]byte, bool) {
	if len(cmd) < 18 {
		return nil, false
	}
	page := int(cmd[1])
	if !t.writeAllowed(page) {
		return nil, false
	}
	var data [4]byte
	copy(data[:], cmd[2:6]) // COMPAT_WRITE pads to 16 bytes; only the first 4 are stored
	return t.applyWrite(page, data)
}

func (t *Tag) handleReadCnt(cmd []byte) ([]byte, bool) {
	if len(cmd) < 2 {
		return nil, false
	}
	idx := int(cmd[1])
	if idx < 0 || idx >= len(t.Counters) {
		return nil, false
	}
	v := t.Counters[idx].Value
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}, false
}

func (t *Tag) handleIncrCnt(cmd []byte) ([]byte, bool) {
	if !t.Config.Type.HasIncrCnt() || len(cmd) < 5 {
		return nil, false
	}
	idx := int(cmd[1])
	if idx < 0 || idx >= len(t.Counters) {
		return nil, false
	}
	delta := uint32(cmd[2]) | uint32(cmd[3])<<8 | uint32(cmd[4])<<16
	next := t.Counters[idx].Value + delta
	if next > maxCounterValue {
		next = maxCounterValue
	}
	t.Counters[idx].Value = next
	return []byte{0x0A}, false
}

func (t *Tag) handlePwdAuth(cmd []byte) ([]byte, bool) {
	if len(cmd) < 5 {
		return nil, false
	}
	authLim := t.Memory[t.authLimPage][3] & 0x07
	if authLim != 0 && t.Counters[0].AuthFailCount >= authLim {
		return nil, false
	}
	want := t.Memory[t.pwdPage]
	if [4]byte{cmd[1], cmd[2], cmd[3], cmd[4]} != want {
		if authLim != 0 {
			t.Counters[0].AuthFailCount++
		}
		return nil, false
	}
	t.Counters[0].AuthFailCount = 0
	t.authed = true
	if t.Config.UIDMagic {
		return []byte{0x80, 0x80}, false
	}
	pack := t.Memory[t.packPage]
	return []byte{pack[0], pack[1]}, false
}
