package main

import (
	"time"

	"github.com/chameleonultra/chamelgo/internal/mf1"
	"github.com/chameleonultra/chamelgo/internal/pcd"
	"github.com/chameleonultra/chamelgo/internal/picc"
)

// loopbackTransceiver adapts a picc.PICC to pcd.Transceiver, the same
// wiring internal/toolbox's tests use to drive the reader stack without
// physical RC522 hardware (see internal/toolbox/toolbox_test.go's
// loopbackTr). There is no real RC522 anywhere in this environment, so
// every HF-reader command this process answers is, underneath, a
// software card exercising the real pcd/picc/mf1 state machines — the
// virtual-PICC fixture spec.md §8 explicitly sanctions for testing,
// promoted here to the process's only reader target.
type loopbackTransceiver struct {
	picc      *picc.PICC
	antennaOn bool
	timeout   time.Duration
}

func (l *loopbackTransceiver) Antenna(on bool) { l.antennaOn = on }

func (l *loopbackTransceiver) Reset() {}

func (l *loopbackTransceiver) SetTimeout(d time.Duration) { l.timeout = d }

func (l *loopbackTransceiver) Transfer(tx []byte, txBits int) ([]byte, int, pcd.Status) {
	resp := l.picc.Handle(tx, txBits)
	if resp == nil {
		return nil, 0, pcd.TagLost
	}
	return resp, len(resp) * 8, pcd.Ok
}

func (l *loopbackTransceiver) MF1AuthHW(keyType byte, block byte, key [6]byte, uid [4]byte) bool {
	return false
}

func (l *loopbackTransceiver) ClearCrypto1() {}

// virtualReaderStack owns the reader-side PCD plus the single virtual
// card it targets, and implements both dispatch.ReaderPrep (the
// per-command antenna priming) and toolbox.Exchanger (the raw-frame
// interface the Crypto1 attack suite drives directly).
type virtualReaderStack struct {
	tr  *loopbackTransceiver
	p   *pcd.PCD
	uid [4]byte
}

func defaultCardMemory(key [6]byte) [][16]byte {
	mem := make([][16]byte, 4)
	var trailer [16]byte
	copy(trailer[0:6], key[:])
	trailer[6], trailer[7], trailer[8] = 0xFF, 0x07, 0x80
	copy(trailer[10:16], key[:])
	mem[3] = trailer
	return mem
}

func newVirtualReaderStack(timeout time.Duration) *virtualReaderStack {
	cr := picc.CollRes{CascadeLevel: 1, SAK: 0x08, ATQA: [2]byte{0x04, 0x00}}
	copy(cr.UID[:], []byte{0x11, 0x22, 0x33, 0x44})

	defaultKey := [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	tag := mf1.NewTag(cr, mf1.Config{WriteMode: mf1.WriteNormal}, defaultCardMemory(defaultKey))
	pc := picc.New(tag)
	pc.SetResetOnFieldLost(true)

	tr := &loopbackTransceiver{picc: pc, timeout: timeout}
	rs := &virtualReaderStack{tr: tr, p: pcd.New(tr)}
	copy(rs.uid[:], cr.UID[:4])
	return rs
}

// ResetRC522, AntennaOn and AntennaOff implement dispatch.ReaderPrep.
func (v *virtualReaderStack) ResetRC522() { v.tr.Reset() }
func (v *virtualReaderStack) AntennaOn()  { v.tr.Antenna(true) }
func (v *virtualReaderStack) AntennaOff() { v.tr.Antenna(false) }

// Scan runs the 14443-A discovery sequence and returns the discovered
// tag, for the HF14aScan command.
func (v *virtualReaderStack) Scan() (pcd.Tag14a, pcd.Status) {
	var out pcd.Tag14a
	status := v.p.ScanOnce(&out)
	return out, status
}

// PCD returns the underlying reader for commands that need direct
// MF1 auth/read/write access rather than the raw Exchanger interface.
func (v *virtualReaderStack) PCD() *pcd.PCD { return v.p }

// Exchange, ResetField and UID implement toolbox.Exchanger.
func (v *virtualReaderStack) Exchange(tx []byte) ([]byte, bool) {
	rx, status := v.p.RawCmd(pcd.RawOpts{WaitResponse: true}, tx, len(tx)*8)
	if status != pcd.Ok || rx == nil {
		return nil, false
	}
	return rx, true
}

func (v *virtualReaderStack) ResetField() {
	v.tr.picc.FieldLost()
	var out pcd.Tag14a
	v.p.ScanOnce(&out)
}

func (v *virtualReaderStack) UID() [4]byte { return v.uid }
