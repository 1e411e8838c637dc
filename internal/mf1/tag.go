package mf1

import (
	"encoding/binary"
	"math/rand"

	"github.com/chameleonultra/chamelgo/internal/core"
	"github.com/chameleonultra/chamelgo/internal/crypto1"
	"github.com/chameleonultra/chamelgo/internal/picc"
)

// SubState is the MF1-specific substate nested inside picc.Active.
type SubState int

const (
	Unauth SubState = iota
	Authing
	Authed
	Write
	Increment
	Decrement
	Restore
	Gen1aUnlocking
	Gen1aUnlockedRwWait
)

const (
	opRead      = 0x30
	opWrite     = 0xA0
	opDecrement = 0xC0
	opIncrement = 0xC1
	opRestore   = 0xC2
	opTransfer  = 0xB0
	opHalt      = 0x50
	opAuthA     = 0x60
	opAuthB     = 0x61
	opGen1aWake = 0x40
	opGen1aAuth = 0x43
)

// NonceSource supplies 32-bit nonces for the auth handshake; tests inject
// a deterministic one, production uses defaultNonceSource.
type NonceSource func() uint32

func defaultNonceSource() uint32 {
	return rand.Uint32()
}

// Tag is a MIFARE Classic emulated tag: the anti-collision identity, the
// access-controlled memory image, and the auth/data substate machine.
// Implements picc.TypeHandler.
type Tag struct {
	coll   picc.CollRes
	Config Config
	Memory [][16]byte // N rows of 16 bytes; row N-1 is highest addressable block

	sub    SubState
	nonce  NonceSource
	cipher *crypto1.Cipher

	pendingBlock  byte
	pendingKeyB   bool
	pendingNested bool
	pendingNt     [4]byte
	rar           uint32
	at            uint32

	opBlock byte
	scratch [16]byte

	Log *AuthLog
}

// NewTag builds a Tag over memory (one row per block) with the given
// anti-collision identity and configuration.
func NewTag(coll picc.CollRes, cfg Config, memory [][16]byte) *Tag {
	return &Tag{coll: coll, Config: cfg, Memory: memory, sub: Unauth, nonce: defaultNonceSource, Log: NewAuthLog()}
}

// SetNonceSource overrides the nonce generator (for deterministic tests).
func (t *Tag) SetNonceSource(f NonceSource) { t.nonce = f }

func (t *Tag) CollRes() picc.CollRes { return t.coll }

func (t *Tag) Reset() {
	t.sub = Unauth
	t.cipher = nil
}

// sectorOf returns the sector index containing block, and the trailer
// block number for that sector. MIFARE 1K/Mini use fixed 4-block sectors;
// 4K tags use 4-block sectors for the first 32 sectors and 16-block
// sectors after, per the standard layout.
func sectorOf(block int) (sector, trailer int) {
	if block < 128 {
		sector = block / 4
		trailer = sector*4 + 3
		return
	}
	sector = 32 + (block-128)/16
	trailer = 128 + (sector-32)*16 + 15
	return
}

func (t *Tag) trailerRow(block int) [16]byte {
	_, trailer := sectorOf(block)
	if trailer < 0 || trailer >= len(t.Memory) {
		return [16]byte{}
	}
	return t.Memory[trailer]
}

// HandleIdleMagic implements the Gen1a magic back-door (spec.md §4.5).
// Gen1a tags answer raw read/write while the PICC state machine is still
// Idle/Halted, never transitioning to Active, so the whole unlock/read/
// write sequence is handled here rather than via HandleActive: a 7-bit
// 0x40 enters Gen1aUnlocking; an 8-bit 0x43 from there promotes to
// Gen1aUnlockedRwWait, after which raw READ/WRITE are served directly.
func (t *Tag) HandleIdleMagic(cmd []byte, bits int) ([]byte, bool) {
	if !t.Config.Gen1aMagic || len(cmd) == 0 {
		return nil, false
	}
	if t.sub == Unauth && bits == 7 && cmd[0] == opGen1aWake {
		t.sub = Gen1aUnlocking
		return nil, true
	}
	if t.sub == Gen1aUnlocking && bits == 8 && cmd[0] == opGen1aAuth {
		t.sub = Gen1aUnlockedRwWait
		t.cipher = nil
		return nil, true
	}
	if t.sub == Gen1aUnlockedRwWait && (cmd[0] == opRead || cmd[0] == opWrite) {
		return t.handleGen1aRW(cmd)
	}
	return nil, false
}

// HandleActive processes frames received while the PICC layer is Active.
func (t *Tag) HandleActive(cmd []byte) (resp []byte, halt bool) {
	if t.sub == Unauth || t.sub == Authed {
		if len(cmd) >= 2 && (cmd[0] == opAuthA || cmd[0] == opAuthB) {
			return t.beginAuth(cmd)
		}
	}
	if t.sub == Authing {
		return t.continueAuth(cmd)
	}
	if t.sub == Authed || t.sub == Write || t.sub == Increment || t.sub == Decrement || t.sub == Restore {
		return t.handleAuthed(cmd)
	}
	if len(cmd) >= 2 && (cmd[0] == opAuthA || cmd[0] == opAuthB) {
		return t.beginAuth(cmd)
	}
	return nil, false
}

func (t *Tag) beginAuth(cmd []byte) ([]byte, bool) {
	block := cmd[1]
	isKeyB := cmd[0] == opAuthB
	if int(block) >= len(t.Memory) {
		return nil, false
	}
	nested := t.sub == Authed
	trailer := t.trailerRow(int(block))
	var key [6]byte
	if isKeyB {
		copy(key[:], trailer[10:16])
	} else {
		copy(key[:], trailer[0:6])
	}

	nt := t.nonce()
	var ntB [4]byte
	binary.BigEndian.PutUint32(ntB[:], nt)

	t.rar = crypto1.PRNGSuccessor(nt, 64)
	t.at = crypto1.PRNGSuccessor(nt, 96)
	t.pendingBlock = block
	t.pendingKeyB = isKeyB
	t.pendingNested = nested
	t.pendingNt = ntB

	var uid4 [4]byte
	copy(uid4[:], t.coll.UID[:4])

	if t.Config.DetectionEnable {
		t.Log.BeginAttempt(block, isKeyB, nested, uid4, ntB)
	}

	if !nested {
		t.cipher = crypto1.Setup(key, uid4, ntB)
		t.sub = Authing
		return ntB[:], false
	}

	var encNt [4]byte
	t.cipher, encNt, _ = crypto1.SetupNested(key, uid4, ntB)
	t.sub = Authing
	return encNt[:], false
}

func (t *Tag) continueAuth(cmd []byte) ([]byte, bool) {
	if len(cmd) < 8 {
		t.sub = Unauth
		return nil, false
	}
	var nrEnc, arEnc [4]byte
	copy(nrEnc[:], cmd[0:4])
	copy(arEnc[:], cmd[4:8])

	nr := t.cipher.FeedReaderNonce(nrEnc)
	ar := arEnc
	t.cipher.Decrypt(ar[:])

	if t.Config.DetectionEnable {
		t.Log.RecordReaderAnswer(nr, ar)
		defer t.Log.Finalize()
	}

	if binary.BigEndian.Uint32(ar[:]) != t.rar {
		t.sub = Unauth
		return nil, false
	}

	var atB [4]byte
	binary.BigEndian.PutUint32(atB[:], t.at)
	t.cipher.Encrypt(atB[:], nil)
	t.sub = Authed
	return atB[:], false
}

// ProbeParityNAK evaluates a candidate reader continuation (nrEnc
// followed by arEnc, 8 bytes total) and its 8 claimed parity bits
// against the real, in-progress Authing session's cipher, without
// disturbing it. It reports the index (0-3 for nrEnc, 4-7 for arEnc)
// of the first byte whose true required parity — odd parity of the
// decrypted byte XORed with the keystream bit sampled just before that
// byte clocks — disagrees with the claim, the point at which real
// silicon stops decoding the frame and answers with an immediate 4-bit
// NAK rather than completing the auth check. nakAt == 8 means every
// byte's parity matched. This is the bit-level signal a dark-side
// parity oracle probes for; real RC522-class hardware never exposes it
// above the Transceiver's byte-framed Transfer path, which is why this
// exists as a direct hook rather than a wire command.
func (t *Tag) ProbeParityNAK(nrEnc, arEnc [4]byte, claimedParity [8]byte) (nakAt int, ks byte) {
	if t.sub != Authing || t.cipher == nil {
		return 0, 0
	}
	probe := t.cipher.Clone()
	for i, b := range nrEnc {
		ksBit := probe.FilterOutput()
		out := probe.Byte(b, true)
		plain := b ^ out
		want := crypto1.OddParityByte(plain) ^ ksBit
		if want != claimedParity[i] {
			return i, ksBit
		}
	}
	for i, b := range arEnc {
		ksBit := probe.FilterOutput()
		out := probe.Byte(0, false)
		plain := b ^ out
		want := crypto1.OddParityByte(plain) ^ ksBit
		if want != claimedParity[4+i] {
			return 4 + i, ksBit
		}
	}
	return 8, 0
}

func (t *Tag) decryptFrame(cmd []byte) []byte {
	out := make([]byte, len(cmd))
	copy(out, cmd)
	t.cipher.Decrypt(out)
	return out
}

func (t *Tag) handleAuthed(cmd []byte) ([]byte, bool) {
	plain := t.decryptFrame(cmd)
	if len(plain) < 2 || !core.CheckCRC16A(plain) {
		return nil, false
	}
	op := plain[0]

	switch t.sub {
	case Write:
		return t.handleWriteData(plain)
	case Increment, Decrement, Restore:
		return t.handleValueOperand(op, plain)
	}

	switch op {
	case opRead:
		return t.handleRead(plain)
	case opWrite:
		block := plain[1]
		t.opBlock = block
		t.sub = Write
		return t.ackEncrypted(), false
	case opIncrement:
		t.opBlock = plain[1]
		t.sub = Increment
		return t.ackEncrypted(), false
	case opDecrement:
		t.opBlock = plain[1]
		t.sub = Decrement
		return t.ackEncrypted(), false
	case opRestore:
		t.opBlock = plain[1]
		t.sub = Restore
		return t.ackEncrypted(), false
	case opTransfer:
		return t.handleTransfer(plain)
	case opHalt:
		if len(plain) >= 2 && plain[1] == 0x00 {
			t.sub = Authed
			return nil, true
		}
		return nil, false
	}
	return nil, false
}

func (t *Tag) handleRead(plain []byte) ([]byte, bool) {
	block := int(plain[1])
	if block >= len(t.Memory) {
		return t.nakEncrypted(), false
	}
	row := t.Memory[block]
	sector, trailer := sectorOf(block)
	_ = sector
	if block == trailer {
		perm := TrailerAccess(accessBytes(row))
		masked := row
		for i := 0; i < 6; i++ {
			masked[i] = 0 // Key A is never readable back
		}
		if !perm.ReadKeyB {
			for i := 10; i < 16; i++ {
				masked[i] = 0
			}
		}
		if !perm.ReadAcc {
			masked[6], masked[7], masked[8] = 0, 0, 0
		}
		row = masked
	} else {
		rel := block - (trailer - 3)
		perm := DataBlockAccess(accessBytes(t.Memory[trailer]), rel)
		if !perm.Read {
			return t.nakEncrypted(), false
		}
	}
	out := make([]byte, 16)
	copy(out, row[:])
	out = core.AppendCRC16A(out)
	t.cipher.Encrypt(out, nil)
	return out, false
}

func (t *Tag) handleValueOperand(op byte, plain []byte) ([]byte, bool) {
	if len(plain) < 6 {
		t.sub = Authed
		return nil, false
	}
	operand := int32(binary.LittleEndian.Uint32(plain[1:5]))
	block := int(t.opBlock)
	if block >= len(t.Memory) || !IsValidValueBlock(t.Memory[block]) {
		t.sub = Authed
		return t.nakEncrypted(), false
	}
	current := ValueOf(t.Memory[block])
	var next int32
	switch t.sub {
	case Increment:
		next = current + operand
	case Decrement:
		next = current - operand
	case Restore:
		next = current
	}
	t.scratch = MakeValueBlock(next, plain[5])
	t.sub = Authed
	return nil, false
}

func (t *Tag) handleTransfer(plain []byte) ([]byte, bool) {
	block := int(plain[1])
	if block >= len(t.Memory) {
		return t.nakEncrypted(), false
	}
	switch t.Config.WriteMode {
	case WriteDenied:
		return t.nakEncrypted(), false
	case WriteDeceive:
		return t.ackEncrypted(), false
	case WriteShadow:
		t.Memory[block] = t.scratch
		return t.ackEncrypted(), false
	default:
		t.Memory[block] = t.scratch
		return t.ackEncrypted(), false
	}
}

// handleWriteData applies the 16-byte payload of the frame following a
// WRITE command, once handleAuthed has routed here on t.sub == Write.
func (t *Tag) handleWriteData(plain []byte) ([]byte, bool) {
	block := int(t.opBlock)
	t.sub = Authed
	if block >= len(t.Memory) {
		return t.nakEncrypted(), false
	}
	if block == 0 && !t.Config.Gen2Magic {
		// Block 0 (UID/manufacturer data) is read-only on a genuine
		// MIFARE Classic; only a Gen2 ("CUID") magic tag accepts a
		// normal authenticated write to it.
		return t.nakEncrypted(), false
	}
	var row [16]byte
	copy(row[:], plain[:16])

	switch t.Config.WriteMode {
	case WriteDenied:
		return t.nakEncrypted(), false
	case WriteDeceive:
		return t.ackEncrypted(), false
	case WriteShadow:
		t.Memory[block] = row
		return t.ackEncrypted(), false
	default:
		t.Memory[block] = row
		return t.ackEncrypted(), false
	}
}

func (t *Tag) ackEncrypted() []byte {
	buf := []byte{0x0A} // 4-bit ACK sentinel, encrypted
	t.cipher.Encrypt(buf, nil)
	return buf
}

func (t *Tag) nakEncrypted() []byte {
	buf := []byte{0x00} // 4-bit NAK sentinel, encrypted
	t.cipher.Encrypt(buf, nil)
	return buf
}

func accessBytes(trailer [16]byte) [4]byte {
	var a [4]byte
	copy(a[:], trailer[6:10])
	return a
}

// handleGen1aRW serves a raw Gen1a-unlocked read or write. The bool
// return is "consumed", matching HandleIdleMagic's contract — it is
// always true here since the caller already matched cmd[0].
func (t *Tag) handleGen1aRW(cmd []byte) ([]byte, bool) {
	if len(cmd) < 2 {
		return nil, true
	}
	switch cmd[0] {
	case opRead:
		block := int(cmd[1])
		if block >= len(t.Memory) {
			return nil, true
		}
		row := t.Memory[block]
		return core.AppendCRC16A(append([]byte{}, row[:]...)), true
	case opWrite:
		block := int(cmd[1])
		if block >= len(t.Memory) || len(cmd) < 18 {
			return nil, true
		}
		var row [16]byte
		copy(row[:], cmd[2:18])
		t.Memory[block] = row
		return []byte{0x0A}, true
	}
	return nil, true
}

// SubState reports the current auth/data substate (for tests/inspection).
func (t *Tag) SubState() SubState { return t.sub }
