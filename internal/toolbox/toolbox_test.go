package toolbox

import (
	"testing"
	"time"

	"github.com/chameleonultra/chamelgo/internal/crypto1"
	"github.com/chameleonultra/chamelgo/internal/mf1"
	"github.com/chameleonultra/chamelgo/internal/pcd"
	"github.com/chameleonultra/chamelgo/internal/picc"
)

// loopbackTr adapts a picc.PICC to pcd.Transceiver, letting toolbox
// attacks drive a real mf1.Tag state machine without physical hardware.
type loopbackTr struct{ picc *picc.PICC }

func (l *loopbackTr) Antenna(on bool)            {}
func (l *loopbackTr) Reset()                     {}
func (l *loopbackTr) SetTimeout(d time.Duration) {}
func (l *loopbackTr) Transfer(tx []byte, txBits int) ([]byte, int, pcd.Status) {
	resp := l.picc.Handle(tx, txBits)
	return resp, len(resp) * 8, pcd.Ok
}
func (l *loopbackTr) MF1AuthHW(keyType byte, block byte, key [6]byte, uid [4]byte) bool { return false }
func (l *loopbackTr) ClearCrypto1()                                                     {}

// oneSectorMemory builds a single-sector (4-block) image whose trailer
// carries key as both Key A and Key B with factory-default access bits.
func oneSectorMemory(key [6]byte) [][16]byte {
	mem := make([][16]byte, 4)
	var trailer [16]byte
	copy(trailer[0:6], key[:])
	trailer[6], trailer[7], trailer[8] = 0xFF, 0x07, 0x80
	copy(trailer[10:16], key[:])
	mem[3] = trailer
	return mem
}

// fixture is a cooperative virtual MIFARE Classic tag wired up through
// the real mf1/picc/pcd stack, exposing the toolbox.Exchanger contract
// directly over raw 14443-A frames (bypassing any hardware auth engine,
// exactly as real attack tooling must).
type fixture struct {
	tag  *mf1.Tag
	picc *picc.PICC
	p    *pcd.PCD
	uid  [4]byte
}

func newFixture(key [6]byte) *fixture {
	cr := picc.CollRes{CascadeLevel: 1, SAK: 0x08, ATQA: [2]byte{0x04, 0x00}}
	copy(cr.UID[:], []byte{0x11, 0x22, 0x33, 0x44})

	tag := mf1.NewTag(cr, mf1.Config{WriteMode: mf1.WriteNormal}, oneSectorMemory(key))
	pc := picc.New(tag)
	pc.SetResetOnFieldLost(true)
	tr := &loopbackTr{picc: pc}

	f := &fixture{tag: tag, picc: pc, p: pcd.New(tr)}
	copy(f.uid[:], cr.UID[:4])
	f.reconnect()
	return f
}

func (f *fixture) reconnect() {
	var out pcd.Tag14a
	f.p.ScanOnce(&out)
}

func (f *fixture) Exchange(tx []byte) ([]byte, bool) {
	rx, status := f.p.RawCmd(pcd.RawOpts{WaitResponse: true}, tx, len(tx)*8)
	if status != pcd.Ok || rx == nil {
		return nil, false
	}
	return rx, true
}

func (f *fixture) ResetField() {
	f.picc.FieldLost()
	f.reconnect()
}

func (f *fixture) UID() [4]byte { return f.uid }

// darksideFixture extends fixture with a cooperative ProbeParity oracle
// that drives mf1.Tag's real ProbeParityNAK hook: it never reads d.key
// to compute its answers, only to build the tag itself. For round pos
// it brute-forces up to 256 raw byte candidates at that position (with
// earlier positions pinned to whichever candidate was already found to
// pass, so the tag's parity check reaches pos), the same search a real
// attacker ignorant of the key has to run (see DESIGN.md).
type darksideFixture struct {
	*fixture
	key [6]byte

	pinnedNr  [4]byte
	pinnedAr  [4]byte
	pinnedPar [8]byte
}

func newDarksideFixture(key [6]byte) *darksideFixture {
	f := newFixture(key)
	// Dark-side only targets a Static/Weak PRNG target; fix the nonce so
	// every resync in the probe loop observes the same nt1.
	f.tag.SetNonceSource(func() uint32 { return 0x5A5A5A5A })
	return &darksideFixture{fixture: f, key: key}
}

func setProbeByte(nrEnc, arEnc *[4]byte, pos int, v byte) {
	if pos < 4 {
		nrEnc[pos] = v
		return
	}
	arEnc[pos-4] = v
}

func (d *darksideFixture) ProbeParity(pos int, block byte, isKeyB bool) (gotNak bool, parity byte, ks byte) {
	if _, ok := firstAuthNonce(d.fixture, block, isKeyB); !ok {
		return true, 0, 0
	}

	nrEnc, arEnc, claimed := d.pinnedNr, d.pinnedAr, d.pinnedPar
	var foundPass bool

	for guess := 0; guess < 256; guess++ {
		setProbeByte(&nrEnc, &arEnc, pos, byte(guess))
		// A reader that doesn't know the key can only guess a parity
		// bit, not derive the real one; the naive guess is odd parity
		// of the raw byte it's sending.
		claimed[pos] = crypto1.OddParityByte(byte(guess))

		nakAt, ksBit := d.tag.ProbeParityNAK(nrEnc, arEnc, claimed)
		if nakAt == pos && !gotNak {
			gotNak, parity, ks = true, claimed[pos], ksBit
		}
		if nakAt > pos && !foundPass {
			d.pinnedNr, d.pinnedAr, d.pinnedPar = nrEnc, arEnc, claimed
			foundPass = true
		}
		if gotNak && foundPass {
			break
		}
	}
	return gotNak, parity, ks
}

func (d *darksideFixture) PinnedFrame() (nrEnc, arEnc [4]byte) {
	return d.pinnedNr, d.pinnedAr
}

var testKey = [6]byte{0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6}

func TestCheckPRNGTypeStaticTagUsesFixedNonce(t *testing.T) {
	f := newFixture(testKey)
	// Force determinism: feed the same nonce across resets.
	f.tag.SetNonceSource(func() uint32 { return 0xCAFEBABE })

	prngType, status := CheckPRNGType(f, 3, false)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}
	if prngType != Static {
		t.Fatalf("prngType = %v, want Static", prngType)
	}
}

func TestCheckPRNGTypeWeakTagReachableByLFSR(t *testing.T) {
	f := newFixture(testKey)
	n := uint32(0x12345678)
	f.tag.SetNonceSource(func() uint32 {
		n = crypto1.PRNGSuccessor(n, 17)
		return n
	})

	prngType, status := CheckPRNGType(f, 3, false)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}
	if prngType != Weak {
		t.Fatalf("prngType = %v, want Weak", prngType)
	}
}

func TestNestedDistanceDetectRecoversKnownClockDistance(t *testing.T) {
	f := newFixture(testKey)
	n := uint32(0xDEADC0DE)
	f.tag.SetNonceSource(func() uint32 {
		n = crypto1.PRNGSuccessor(n, 400)
		return n
	})

	dist, status := NestedDistanceDetect(f, 3, false, testKey)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}
	if dist == 0 {
		t.Fatal("expected a nonzero clock distance")
	}
}

func TestNestedRecoverKeyFindsKnownKeyAmongCandidates(t *testing.T) {
	f := newFixture(testKey)
	n := uint32(0x0BADF00D)
	f.tag.SetNonceSource(func() uint32 {
		n = crypto1.PRNGSuccessor(n, 250)
		return n
	})

	core, status := NestedRecoverKey(f, 3, false, testKey, 3, false)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}

	candidates := [][6]byte{
		{0, 0, 0, 0, 0, 0},
		testKey,
		{1, 2, 3, 4, 5, 6},
	}
	got, ok := RecoverKeyFromNested(core, candidates)
	if !ok {
		t.Fatal("expected to recover the key")
	}
	if got != testKey {
		t.Fatalf("got %x, want %x", got, testKey)
	}
}

func TestStaticNestedRecoverKeyCollectsBothSamples(t *testing.T) {
	f := newFixture(testKey)
	core, status := StaticNestedRecoverKey(f, 3, false, testKey)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}
	if core.Chained.Nt1 == 0 {
		t.Fatal("expected a nonzero chained nt1")
	}
}

func TestDarksideRecoverKeyReconstructsOriginalKey(t *testing.T) {
	f := newDarksideFixture(testKey)
	core, status := DarksideRecoverKey(f, 3, false)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}

	candidates := [][6]byte{
		{0, 0, 0, 0, 0, 0},
		testKey,
	}
	got, ok := RecoverKeyFromDarkside(core, candidates)
	if !ok {
		t.Fatal("expected to recover the key")
	}
	if got != testKey {
		t.Fatalf("got %x, want %x", got, testKey)
	}
}

func TestDarksideRecoverKeyNoNakSentWithoutOracle(t *testing.T) {
	f := newFixture(testKey)
	_, status := DarksideRecoverKey(f, 3, false)
	if status != NoNakSent {
		t.Fatalf("status = %v, want NoNakSent", status)
	}
}

func TestCheckKeysOfSectorsFindsMatchingDictionaryEntry(t *testing.T) {
	f := newFixture(testKey)
	dict := [][6]byte{
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		testKey,
	}
	results, status := CheckKeysOfSectors(f, []int{0}, dict)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}
	if len(results) != 1 || !results[0].FoundA || results[0].KeyA != testKey {
		t.Fatalf("results = %+v, want sector 0 key A = %x", results, testKey)
	}
	if !results[0].FoundB || results[0].KeyB != testKey {
		t.Fatalf("results = %+v, want sector 0 key B = %x", results, testKey)
	}
}

func TestCheckKeysOfSectorsNoMatchLeavesFoundFalse(t *testing.T) {
	f := newFixture(testKey)
	dict := [][6]byte{{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}
	results, status := CheckKeysOfSectors(f, []int{0}, dict)
	if status != Ok {
		t.Fatalf("status = %v, want Ok", status)
	}
	if results[0].FoundA || results[0].FoundB {
		t.Fatal("expected no key to match")
	}
}
