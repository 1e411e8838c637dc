package main

import (
	"sync"

	"github.com/chameleonultra/chamelgo/internal/lf"
)

// lfEmulatorHolder lets the LF emulator's broadcast frame be swapped at
// runtime (e.g. by a SetEM410xID command) while core.Runner's ticker
// keeps calling the same Tick closure every interval.
type lfEmulatorHolder struct {
	mu    sync.Mutex
	emu   *lf.Emulator
	sense lf.FieldSensor
}

func newLFEmulatorHolder(frame [64]byte, sense lf.FieldSensor) *lfEmulatorHolder {
	return &lfEmulatorHolder{emu: lf.NewEmulator(frame, sense), sense: sense}
}

func (h *lfEmulatorHolder) Tick() byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.emu.Tick()
}

// SetFrame replaces the broadcast frame, starting fresh from Sensing.
func (h *lfEmulatorHolder) SetFrame(frame [64]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emu = lf.NewEmulator(frame, h.sense)
}
