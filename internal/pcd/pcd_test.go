package pcd

import (
	"time"

	"github.com/chameleonultra/chamelgo/internal/picc"
)

// loopbackTransceiver drives an in-process picc.PICC directly, letting
// pcd_test exercise the full reader-side anti-collision/select/HALT flow
// against a real tag-side state machine without any physical hardware.
type loopbackTransceiver struct {
	tag *picc.PICC
}

func (l *loopbackTransceiver) Antenna(on bool)            {}
func (l *loopbackTransceiver) Reset()                     {}
func (l *loopbackTransceiver) SetTimeout(d time.Duration) {}

func (l *loopbackTransceiver) Transfer(tx []byte, txBits int) ([]byte, int, Status) {
	resp := l.tag.Handle(tx, txBits)
	return resp, len(resp) * 8, Ok
}

func (l *loopbackTransceiver) MF1AuthHW(keyType byte, block byte, key [6]byte, uid [4]byte) bool {
	return false
}

func (l *loopbackTransceiver) ClearCrypto1() {}
